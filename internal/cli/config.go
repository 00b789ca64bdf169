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
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-tpm-token/pkg/tpm"
)

// configCmd shows the effective hardware configuration as YAML. With
// --file it instead loads and validates a configuration file, so a bad
// file is caught before it reaches a provisioning run.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective TPM configuration",
	Run: func(cmd *cobra.Command, args []string) {
		var cfg *tpm.Config
		var err error

		if file, _ := cmd.Flags().GetString("file"); file != "" {
			cfg, err = tpm.LoadConfigFile(file)
		} else {
			cfg, err = tpm.ParseTCTI(viper.GetString("tcti"))
		}
		if err != nil {
			handleError(err)
		}

		out, err := cfg.YAML()
		if err != nil {
			handleError(err)
		}
		fmt.Print(string(out))
	},
}

func init() {
	configCmd.Flags().String("file", "", "validate and show a configuration file")
}
