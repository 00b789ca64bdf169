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

package tpm

import (
	"fmt"
	"strings"

	"github.com/google/go-tpm/tpm2"
)

// TokenInfo is the hardware identity record surfaced to the token's
// C_GetTokenInfo projection.
type TokenInfo struct {
	// ManufacturerID is the raw 4-character vendor code (e.g. "IFX").
	ManufacturerID string

	// Manufacturer is the vendor code extended with a human-readable
	// name when the vendor is known (e.g. "IFX - Infineon").
	Manufacturer string

	// Model is the vendor model string.
	Model string

	// FirmwareVersion is the vendor firmware version, major.minor.
	FirmwareVersion string

	// SpecVersion is the implemented TPM library specification
	// revision (e.g. "2.0 rev 1.59").
	SpecVersion string
}

// manufacturerNames extends the registered TCG vendor codes with a
// human-readable form. Immutable; keyed by the trimmed 4CC.
var manufacturerNames = map[string]string{
	"AMD":  "AMD",
	"ATML": "Atmel",
	"BRCM": "Broadcom",
	"HPE":  "HPE",
	"IBM":  "IBM",
	"IFX":  "Infineon",
	"INTC": "Intel",
	"LEN":  "Lenovo",
	"MSFT": "Microsoft",
	"NSM":  "National Semiconductor",
	"NTC":  "Nuvoton Technology",
	"NTZ":  "Nationz",
	"QCOM": "Qualcomm",
	"SMSC": "SMSC",
	"STM":  "ST Microelectronics",
	"SMSN": "Samsung",
	"SNS":  "Sinosun",
	"TXN":  "Texas Instruments",
	"WEC":  "Winbond",
	"ROCC": "Fuzhou Rockchip",
	"GOOG": "Google",
}

// tpmProperty reads a single fixed TPM property.
func (c *Context) tpmProperty(prop tpm2.TPMPT) (uint32, error) {
	rsp, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(prop),
		PropertyCount: 1,
	}.Execute(c.transport)
	if err != nil {
		return 0, classify("TPM2_GetCapability", err)
	}
	props, err := rsp.CapabilityData.Data.TPMProperties()
	if err != nil {
		return 0, fmt.Errorf("%w: properties: %s", ErrDevice, err)
	}
	if len(props.TPMProperty) == 0 {
		return 0, fmt.Errorf("%w: property 0x%x not reported", ErrDevice, uint32(prop))
	}
	return props.TPMProperty[0].Value, nil
}

// propertyString decodes a property value holding up to four ASCII
// characters, dropping NUL padding.
func propertyString(v uint32) string {
	raw := []byte{
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
	return strings.TrimRight(string(raw), "\x00 ")
}

// TokenInfo reads the hardware identity: spec and firmware versions,
// manufacturer and model. Read-only; fails with ErrDevice on a
// transport fault.
func (c *Context) TokenInfo() (*TokenInfo, error) {
	if c.closed {
		return nil, ErrClosed
	}

	manufacturer, err := c.tpmProperty(tpm2.TPMPTManufacturer)
	if err != nil {
		return nil, err
	}
	vendor1, err := c.tpmProperty(tpm2.TPMPTVendorString1)
	if err != nil {
		return nil, err
	}
	vendor2, err := c.tpmProperty(tpm2.TPMPTVendorString2)
	if err != nil {
		return nil, err
	}
	fw1, err := c.tpmProperty(tpm2.TPMPTFirmwareVersion1)
	if err != nil {
		return nil, err
	}
	revision, err := c.tpmProperty(tpm2.TPMPTRevision)
	if err != nil {
		return nil, err
	}

	info := &TokenInfo{
		ManufacturerID:  propertyString(manufacturer),
		Model:           propertyString(vendor1) + propertyString(vendor2),
		FirmwareVersion: fmt.Sprintf("%d.%d", fw1>>16, fw1&0xffff),
		SpecVersion:     fmt.Sprintf("2.0 rev %d.%d", revision/100, revision%100),
	}
	if name, ok := manufacturerNames[info.ManufacturerID]; ok {
		info.Manufacturer = fmt.Sprintf("%s - %s", info.ManufacturerID, name)
	} else {
		info.Manufacturer = info.ManufacturerID
	}

	return info, nil
}
