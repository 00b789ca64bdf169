// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-tpm-token.
//
// go-tpm-token is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mechanismsCmd lists the supported mechanisms with their key-size
// ranges and capability flags
var mechanismsCmd = &cobra.Command{
	Use:   "mechanisms",
	Short: "List supported cryptographic mechanisms",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := openContext()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = ctx.Close() }()

		fmt.Printf("%-12s %10s %10s %10s\n", "MECHANISM", "MIN", "MAX", "FLAGS")
		for _, m := range ctx.Mechanisms() {
			info, err := ctx.MechanismInfo(m)
			if err != nil {
				handleError(err)
				return
			}
			fmt.Printf("0x%08x %10d %10d 0x%08x\n", uint(m), info.MinKeySize, info.MaxKeySize, info.Flags)
		}
	},
}
