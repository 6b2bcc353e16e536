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

package partition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artinchip/aicimg/config"
)

const headerGuard = "_AIC_IMAGE_CFG_JSON_PARTITION_TABLE_H_"

// Names of the defines written by Header.
const (
	DefineMTD  = "IMAGE_CFG_JSON_PARTS_MTD"
	DefineUBI  = "IMAGE_CFG_JSON_PARTS_UBI"
	DefineNFTL = "IMAGE_CFG_JSON_PARTS_NFTL"
	DefineGPT  = "IMAGE_CFG_JSON_PARTS_GPT"
)

func (t *Table) mtdMedia() bool {
	return t.Media == config.MediaSPINOR || t.Media == config.MediaSPINAND
}

// item renders e as "<size>[@<offset>](<name>)". With resolve set a "-" size
// is replaced by the resolved size.
func item(e Entry, resolve bool) string {
	size := e.RawSize
	if resolve && e.Remainder() {
		size = config.FormatSize(e.Size)
	}
	var b strings.Builder
	b.WriteString(size)
	if e.RawOffset != "" {
		b.WriteString("@")
		b.WriteString(e.RawOffset)
	}
	fmt.Fprintf(&b, "(%s)", e.Name)
	return b.String()
}

func list(entries []Entry, resolve bool) string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, item(e, resolve))
	}
	return strings.Join(items, ",")
}

// MTD returns the mtdparts string, e.g. "spi0.0:1m(spl),-(data)". It is
// empty for mmc media.
func (t *Table) MTD() string {
	if !t.mtdMedia() {
		return ""
	}
	return fmt.Sprintf("spi%d.0:%s", t.DeviceID, list(t.Entries, false))
}

// UBI returns the UBI volume string, e.g. "data:32m(rootfs),-(user)", with
// the volumes of each partition separated by ';'. It is empty when no
// partition has UBI volumes.
func (t *Table) UBI() string {
	return t.volumeString(func(e Entry) []Entry { return e.UBI })
}

// NFTL is like UBI, for NFTL volumes.
func (t *Table) NFTL() string {
	return t.volumeString(func(e Entry) []Entry { return e.NFTL })
}

func (t *Table) volumeString(vols func(Entry) []Entry) string {
	if !t.mtdMedia() {
		return ""
	}
	var parts []string
	for _, e := range t.Entries {
		if v := vols(e); len(v) > 0 {
			parts = append(parts, e.Name+":"+list(v, false))
		}
	}
	return strings.Join(parts, ";")
}

// GPT returns the GPT partition string for mmc media, e.g.
// "1M(boot),63M(rootfs)". A "-" size is rendered as its resolved size. It is
// empty for other media.
func (t *Table) GPT() string {
	if t.Media != config.MediaMMC {
		return ""
	}
	return list(t.Entries, true)
}

// Types lists the kinds of partition strings the table has.
func (t *Table) Types() []string {
	if !t.mtdMedia() {
		return []string{"gpt"}
	}
	types := []string{"mtd"}
	if t.UBI() != "" {
		types = append(types, "ubi")
	}
	if t.NFTL() != "" {
		types = append(types, "nftl")
	}
	return types
}

// Header renders the C header describing the table.
//
// For spi-nor media it also carries a FAL_PART_TABLE define for the flash
// abstraction layer, listing resolved offsets and sizes.
func (t *Table) Header() string {
	var b strings.Builder
	b.WriteString("/* This is an auto generated file, please don't modify it. */\n\n")
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", headerGuard, headerGuard)

	define := func(name, val string) {
		if val != "" {
			fmt.Fprintf(&b, "#define %s %q\n", name, val)
		}
	}
	if t.mtdMedia() {
		define(DefineMTD, t.MTD())
		define(DefineUBI, t.UBI())
		define(DefineNFTL, t.NFTL())
	} else {
		define(DefineGPT, t.GPT())
	}

	if t.Media == config.MediaSPINOR {
		b.WriteString("\n#ifdef FAL_PART_HAS_TABLE_CFG\n")
		b.WriteString("#define FAL_PART_TABLE \\\n{ \\\n")
		for _, e := range t.Entries {
			fmt.Fprintf(&b, "    {FAL_PART_MAGIC_WORD, %q,FAL_USING_NOR_FLASH_DEV_NAME, %d,%d,0}, \\\n", e.Name, e.Offset, e.Size)
		}
		b.WriteString("}\n#endif\n")
	}
	b.WriteString("\n#endif\n")
	return b.String()
}

type sidecar struct {
	Partitions struct {
		MTD  string   `json:"mtd,omitempty"`
		UBI  string   `json:"ubi,omitempty"`
		NFTL string   `json:"nftl,omitempty"`
		GPT  string   `json:"gpt,omitempty"`
		Type []string `json:"type"`
	} `json:"partitions"`
}

// JSON renders the partition strings as a JSON document:
//
//	{"partitions": {"mtd": "...", "ubi": "...", "type": ["mtd", "ubi"]}}
func (t *Table) JSON() ([]byte, error) {
	var s sidecar
	s.Partitions.MTD = t.MTD()
	s.Partitions.UBI = t.UBI()
	s.Partitions.NFTL = t.NFTL()
	s.Partitions.GPT = t.GPT()
	s.Partitions.Type = t.Types()
	b, err := json.MarshalIndent(s, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal partition table: %v", err)
	}
	return append(b, '\n'), nil
}

// Env returns the U-Boot environment lines describing the table. They are
// prepended to environment sources so that U-Boot knows the layout.
func (t *Table) Env() string {
	if !t.mtdMedia() {
		gpt := t.GPT()
		return fmt.Sprintf("GPT=%s\nparts_mmc=%s\n", gpt, gpt)
	}
	s := fmt.Sprintf("MTD=%s\n", t.MTD())
	if ubi := t.UBI(); ubi != "" {
		s += fmt.Sprintf("UBI=%s\n", ubi)
	}
	return s
}
