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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
	"github.com/jeremyhahn/go-tpm-token/pkg/tpm"
)

// primaryBlobID is the blob store ID holding the primary handle blob.
const primaryBlobID = "primary"

// provisionCmd creates the storage primary key if it does not exist and
// persists its handle blob
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the TPM storage primary key",
	Long: `Create the storage primary key under the owner hierarchy and persist
its handle blob, or report the existing primary if one is already
provisioned.`,
	Run: func(cmd *cobra.Command, args []string) {
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

		if handle, blob, err := ctx.GetExistingPrimary(); err == nil {
			defer blob.Destroy()
			fmt.Printf("Primary already provisioned at 0x%08x\n", uint32(handle))
			return
		} else if !errors.Is(err, tpm.ErrPrimaryNotFound) {
			handleError(err)
			return
		}

		ownerAuth, _ := cmd.Flags().GetString("owner-auth")
		handle, blob, err := ctx.CreatePrimary(secret.NewString(ownerAuth))
		if err != nil {
			handleError(fmt.Errorf("failed to create primary: %w", err))
			return
		}
		defer blob.Destroy()

		if err := store.Put(primaryBlobID, blob.Bytes()); err != nil {
			handleError(fmt.Errorf("failed to persist primary blob: %w", err))
			return
		}

		fmt.Printf("Primary provisioned at 0x%08x\n", uint32(handle))
	},
}

func init() {
	provisionCmd.Flags().String("owner-auth", "", "owner hierarchy authorization")
}
