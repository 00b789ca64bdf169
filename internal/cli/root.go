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
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-tpm-token/pkg/logging"
	"github.com/jeremyhahn/go-tpm-token/pkg/storage"
	"github.com/jeremyhahn/go-tpm-token/pkg/token"
	"github.com/jeremyhahn/go-tpm-token/pkg/tpm"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tpm-token",
	Short: "tpm-token - TPM 2.0 backed security token tool",
	Long: `tpm-token manages the hardware key-management core of a TPM 2.0
backed security token: provisioning the storage primary, sealing and
unsealing secrets, and querying token capabilities.

The TPM transport is selected with --tcti or the TPM_TOKEN_TCTI
environment variable:
  device[:/dev/tpmrm0]        hardware TPM character device
  swtpm[:host=H,port=P]       SWTPM TCP sockets
  simulator                   in-process simulator builds only`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "",
		"config file (default is $HOME/.tpm-token.yaml)")
	rootCmd.PersistentFlags().String("tcti", "device",
		"TPM transport selection string")
	rootCmd.PersistentFlags().String("store", defaultStoreDir(),
		"directory for blob storage")
	rootCmd.PersistentFlags().Bool("debug", false,
		"enable debug logging")

	for _, flag := range []string{"tcti", "store", "debug"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(mechanismsCmd)
	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(unsealCmd)
}

// initConfig reads the optional config file and environment overrides.
func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tpm-token")
	}

	viper.SetEnvPrefix("TPM_TOKEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tpm-token"
	}
	return home + "/.tpm-token/blobs"
}

// openContext opens a hardware context from the effective transport
// selection.
func openContext() (*tpm.Context, error) {
	logger := logging.NewLogger(viper.GetBool("debug"))
	ctx, err := tpm.OpenTCTI(viper.GetString("tcti"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open TPM: %w", err)
	}
	return ctx, nil
}

// openStore opens the file-backed blob store.
func openStore() (storage.BlobStore, error) {
	store, err := storage.NewFileStore(viper.GetString("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return store, nil
}

// handleError prints an error with its PKCS#11 return code and exits
// with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v (CKR 0x%08X)\n", err, token.RV(err))
	os.Exit(1)
}
