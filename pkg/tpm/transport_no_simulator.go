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

//go:build !tpm_simulator

package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2/transport"
)

// openSimulator reports that simulator support was not compiled in.
func openSimulator() (transport.TPMCloser, error) {
	return nil, fmt.Errorf("%w: simulator support not compiled (build with -tags tpm_simulator)", ErrInit)
}
