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
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// randomCmd reads bytes from the hardware RNG
var randomCmd = &cobra.Command{
	Use:   "random <bytes>",
	Short: "Read random bytes from the TPM",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			handleError(fmt.Errorf("invalid byte count %q", args[0]))
			return
		}

		ctx, err := openContext()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = ctx.Close() }()

		buf, err := ctx.GetRandom(n)
		if err != nil {
			handleError(fmt.Errorf("failed to read random bytes: %w", err))
			return
		}
		defer buf.Destroy()

		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			_, _ = os.Stdout.Write(buf.Bytes())
			return
		}
		fmt.Println(buf.Hex())
	},
}

func init() {
	randomCmd.Flags().Bool("raw", false, "write raw bytes instead of hex")
}
