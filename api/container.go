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
	// FirmwareMagic starts every firmware container.
	FirmwareMagic = "AIC.FW"
	// MetaMagic starts every component meta record.
	MetaMagic = "META"

	// FirmwareHeaderSize is the size of the slot holding the container
	// header. The meta area follows it.
	FirmwareHeaderSize = 2048
	// MetaSize is the size of the slot holding one meta record.
	MetaSize = 512
	// DataAlign is the alignment of every component in the file area.
	DataAlign = 2048

	// NoRAM marks a component which is not loaded to RAM.
	NoRAM = 0xFFFFFFFF
	// InfoName names the meta record describing the container header.
	InfoName = "image.info"
)

// FirmwareHeader is the header at the start of a firmware container.
type FirmwareHeader struct {
	Platform  string
	Product   string
	Version   string
	MediaType string
	MediaDev  uint32
	// NANDArrayOrg lists the supported SPI-NAND geometries as
	// "P=<page>,B=<block>;...".
	NANDArrayOrg string
	MetaOffset   uint32
	MetaSize     uint32
	FileOffset   uint32
	FileSize     uint32
}

type rawFirmwareHeader struct {
	Magic        [8]byte
	Platform     [64]byte
	Product      [64]byte
	Version      [64]byte
	MediaType    [64]byte
	MediaDev     uint32
	NANDArrayOrg [64]byte
	MetaOffset   uint32
	MetaSize     uint32
	FileOffset   uint32
	FileSize     uint32
}

// MarshalBinary encodes the header into its 2048 byte slot. Strings which
// don't fit their field are an error.
func (h *FirmwareHeader) MarshalBinary() ([]byte, error) {
	r := rawFirmwareHeader{
		MediaDev:   h.MediaDev,
		MetaOffset: h.MetaOffset,
		MetaSize:   h.MetaSize,
		FileOffset: h.FileOffset,
		FileSize:   h.FileSize,
	}
	copy(r.Magic[:], FirmwareMagic)
	for _, f := range []struct {
		dst   []byte
		val   string
		field string
	}{
		{r.Platform[:], h.Platform, "platform"},
		{r.Product[:], h.Product, "product"},
		{r.Version[:], h.Version, "version"},
		{r.MediaType[:], h.MediaType, "media type"},
		{r.NANDArrayOrg[:], h.NANDArrayOrg, "NAND array organization"},
	} {
		if err := putString(f.dst, f.val, f.field); err != nil {
			return nil, err
		}
	}
	return encode(&r, FirmwareHeaderSize)
}

// UnmarshalBinary decodes a header from the start of b.
func (h *FirmwareHeader) UnmarshalBinary(b []byte) error {
	var r rawFirmwareHeader
	if err := decode(b, &r); err != nil {
		return fmt.Errorf("failed to decode firmware header: %v", err)
	}
	if m := cString(r.Magic[:]); m != FirmwareMagic {
		return fmt.Errorf("bad firmware magic %q", m)
	}
	*h = FirmwareHeader{
		Platform:     cString(r.Platform[:]),
		Product:      cString(r.Product[:]),
		Version:      cString(r.Version[:]),
		MediaType:    cString(r.MediaType[:]),
		MediaDev:     r.MediaDev,
		NANDArrayOrg: cString(r.NANDArrayOrg[:]),
		MetaOffset:   r.MetaOffset,
		MetaSize:     r.MetaSize,
		FileOffset:   r.FileOffset,
		FileSize:     r.FileSize,
	}
	return nil
}

// ComponentMeta locates and checksums one firmware component inside a
// container.
type ComponentMeta struct {
	// Name is "image.<section>.<component>", or InfoName.
	Name string
	// Partition lists the partitions the component is burnt to, ';' separated.
	Partition string
	Offset    uint32
	Size      uint32
	// CRC32 is the IEEE CRC-32 of the component's bytes.
	CRC32 uint32
	// RAM is the load address, or NoRAM.
	RAM uint32
	// Attr lists the component flags, ';' separated.
	Attr string
}

type rawComponentMeta struct {
	Magic     [8]byte
	Name      [64]byte
	Partition [64]byte
	Offset    uint32
	Size      uint32
	CRC32     uint32
	RAM       uint32
	Attr      [64]byte
}

// MarshalBinary encodes the record into its 512 byte slot.
func (m *ComponentMeta) MarshalBinary() ([]byte, error) {
	r := rawComponentMeta{
		Offset: m.Offset,
		Size:   m.Size,
		CRC32:  m.CRC32,
		RAM:    m.RAM,
	}
	copy(r.Magic[:], MetaMagic)
	if err := putString(r.Name[:], m.Name, "component name"); err != nil {
		return nil, err
	}
	if err := putString(r.Partition[:], m.Partition, m.Name+" partition"); err != nil {
		return nil, err
	}
	if err := putString(r.Attr[:], m.Attr, m.Name+" attributes"); err != nil {
		return nil, err
	}
	return encode(&r, MetaSize)
}

// UnmarshalBinary decodes a record from the start of b.
func (m *ComponentMeta) UnmarshalBinary(b []byte) error {
	var r rawComponentMeta
	if err := decode(b, &r); err != nil {
		return fmt.Errorf("failed to decode meta record: %v", err)
	}
	if mg := cString(r.Magic[:]); mg != MetaMagic {
		return fmt.Errorf("bad meta magic %q", mg)
	}
	*m = ComponentMeta{
		Name:      cString(r.Name[:]),
		Partition: cString(r.Partition[:]),
		Offset:    r.Offset,
		Size:      r.Size,
		CRC32:     r.CRC32,
		RAM:       r.RAM,
		Attr:      cString(r.Attr[:]),
	}
	return nil
}
