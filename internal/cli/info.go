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

// infoCmd prints the hardware identity record
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show TPM token information",
	Long:  `Read the manufacturer, model and firmware identity of the TPM`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := openContext()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = ctx.Close() }()

		info, err := ctx.TokenInfo()
		if err != nil {
			handleError(fmt.Errorf("failed to read token info: %w", err))
			return
		}

		fmt.Printf("Manufacturer:     %s (%s)\n", info.Manufacturer, info.ManufacturerID)
		fmt.Printf("Model:            %s\n", info.Model)
		fmt.Printf("Firmware version: %s\n", info.FirmwareVersion)
		fmt.Printf("Spec version:     %s\n", info.SpecVersion)
	},
}
