// Copyright 2021 The Project Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"fmt"
)

const (
	// BootMagic starts every boot image.
	BootMagic = "AIC "
	// BootHeaderSize is the size of the boot image header.
	BootHeaderSize = 256
	// DefaultBootHeadVersion is used when the configuration names none.
	DefaultBootHeadVersion = 0x00010001
)

// Signature algorithm identifiers.
const (
	SignAlgoMD5     = 0
	SignAlgoRSA2048 = 1
)

// Encryption algorithm identifiers.
const (
	EncAlgoNone      = 0
	EncAlgoAES128CBC = 1
)

// BootHeader is the header the boot ROM parses at the start of a boot image.
//
// All offsets are relative to the start of the image. The header is
// followed by the loader, the resource section and the trailer, which holds
// either an RSA signature or an MD5 digest.
type BootHeader struct {
	Magic [4]byte
	// Checksum makes the 32-bit little endian words of the whole image sum
	// to zero.
	Checksum    uint32
	HeadVersion uint32
	ImageLength uint32
	// FirmwareVersion is the anti-rollback counter.
	FirmwareVersion uint32
	LoaderLength    uint32
	LoadAddress     uint32
	EntryPoint      uint32
	SignAlgo        uint32
	EncAlgo         uint32
	SignOffset      uint32
	SignLength      uint32
	KeyOffset       uint32
	KeyLength       uint32
	IVOffset        uint32
	IVLength        uint32
	PrivateOffset   uint32
	PrivateLength   uint32
	PBPOffset       uint32
	PBPLength       uint32
	// LoaderExtOffset locates the extension image carrying a loader which
	// runs from DRAM. It is zero when there is none.
	LoaderExtOffset uint32
}

// MarshalBinary encodes the header into its 256 byte form.
func (h *BootHeader) MarshalBinary() ([]byte, error) {
	hdr := *h
	copy(hdr.Magic[:], BootMagic)
	b, err := encode(&hdr, BootHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode boot header: %v", err)
	}
	return b, nil
}

// UnmarshalBinary decodes a header from the start of b.
func (h *BootHeader) UnmarshalBinary(b []byte) error {
	if len(b) < BootHeaderSize {
		return fmt.Errorf("boot header too short: %d bytes", len(b))
	}
	if err := decode(b, h); err != nil {
		return fmt.Errorf("failed to decode boot header: %v", err)
	}
	if string(h.Magic[:]) != BootMagic {
		return fmt.Errorf("bad boot image magic %q", h.Magic[:])
	}
	return nil
}
