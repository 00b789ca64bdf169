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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// sealCmd wraps a secret as a TPM sealed object and stores its blobs
var sealCmd = &cobra.Command{
	Use:   "seal <name>",
	Short: "Seal a secret read from stdin",
	Long: `Read a secret from stdin, seal it under the storage primary with the
given authorization value, and store the resulting blobs under <name>.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		auth, _ := cmd.Flags().GetString("auth")

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			handleError(fmt.Errorf("failed to read secret: %w", err))
			return
		}
		sec := secret.New(data)
		secret.Zero(data)
		defer sec.Destroy()

		ctx, err := openContext()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = ctx.Close() }()

		store, err := openStore()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = store.Close() }()

		primary, primaryBlob, err := ctx.GetExistingPrimary()
		if err != nil {
			handleError(fmt.Errorf("no provisioned primary, run provision first: %w", err))
			return
		}
		primaryBlob.Destroy()

		objAuth := secret.NewString(auth)
		defer objAuth.Destroy()

		pub, priv, handle, err := ctx.SealWithData(nil, primary, objAuth, nil, sec)
		if err != nil {
			handleError(fmt.Errorf("failed to seal: %w", err))
			return
		}
		defer pub.Destroy()
		defer priv.Destroy()
		defer func() { _ = ctx.FlushHandle(handle) }()

		if err := store.Put(name+".pub", pub.Bytes()); err != nil {
			handleError(err)
			return
		}
		if err := store.Put(name+".priv", priv.Bytes()); err != nil {
			handleError(err)
			return
		}

		fmt.Printf("Sealed %d bytes as %q\n", sec.Len(), name)
	},
}

// unsealCmd loads a stored sealed object and recovers its secret
var unsealCmd = &cobra.Command{
	Use:   "unseal <name>",
	Short: "Unseal a stored secret to stdout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		auth, _ := cmd.Flags().GetString("auth")

		ctx, err := openContext()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = ctx.Close() }()

		store, err := openStore()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = store.Close() }()

		pubBytes, err := store.Get(name + ".pub")
		if err != nil {
			handleError(fmt.Errorf("no sealed object %q: %w", name, err))
			return
		}
		privBytes, err := store.Get(name + ".priv")
		if err != nil {
			handleError(fmt.Errorf("no sealed object %q: %w", name, err))
			return
		}
		pub := secret.New(pubBytes)
		priv := secret.New(privBytes)
		defer pub.Destroy()
		defer priv.Destroy()

		primary, primaryBlob, err := ctx.GetExistingPrimary()
		if err != nil {
			handleError(fmt.Errorf("no provisioned primary: %w", err))
			return
		}
		primaryBlob.Destroy()

		objAuth := secret.NewString(auth)
		defer objAuth.Destroy()

		handle, err := ctx.Load(primary, nil, pub, priv)
		if err != nil {
			handleError(fmt.Errorf("failed to load sealed object: %w", err))
			return
		}
		defer func() { _ = ctx.FlushHandle(handle) }()

		sec, err := ctx.Unseal(handle, objAuth)
		if err != nil {
			handleError(fmt.Errorf("failed to unseal: %w", err))
			return
		}
		defer sec.Destroy()

		_, _ = os.Stdout.Write(sec.Bytes())
	},
}

func init() {
	sealCmd.Flags().String("auth", "", "authorization value for the sealed object")
	unsealCmd.Flags().String("auth", "", "authorization value for the sealed object")
}
