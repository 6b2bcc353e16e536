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

// Package partition derives partition tables from an image configuration.
//
// A Table is computed once from the configuration and rendered into the
// forms consumed downstream: MTD and GPT partition strings, the C header and
// JSON sidecar compiled into the firmware, U-Boot environment lines, and the
// partition usage list used to size filesystem images.
package partition

import (
	"fmt"
	"strings"

	"github.com/artinchip/aicimg/config"
)

// GPTHeaderSize is the space reserved for the GPT at the start of mmc media.
const GPTHeaderSize = 17 * config.KiB

// Entry is a partition, or a volume inside a partition, with its extent
// resolved.
type Entry struct {
	Name string
	// Offset is the absolute offset on the media for partitions, and the
	// offset inside the enclosing partition for volumes.
	Offset uint64
	Size   uint64
	// RawSize and RawOffset are the expressions from the configuration.
	// RawOffset is empty unless the offset was given explicitly.
	RawSize   string
	RawOffset string
	// UBI and NFTL hold the volumes of the partition, if any.
	UBI  []Entry
	NFTL []Entry
}

// Remainder reports whether the entry was declared with the "-" size.
func (e Entry) Remainder() bool {
	return e.RawSize == "-"
}

// End returns the offset just past the entry.
func (e Entry) End() uint64 {
	return e.Offset + e.Size
}

// Table is a resolved partition table.
type Table struct {
	Media    string
	DeviceID int
	// Size is the declared media size, or zero if the configuration has none.
	Size    uint64
	Entries []Entry
}

// New resolves the partition table of cfg, laying partitions out from the
// start of the media.
func New(cfg *config.Config) (*Table, error) {
	return NewAt(cfg, 0)
}

// NewAt is like New, but lays partitions out from start.
//
// Partitions are placed in declaration order. Each one starts where the
// previous one ended unless it has an explicit offset, and a "-" size takes
// all of the remaining space up to the media size. Volumes follow the same
// rule inside their partition.
func NewAt(cfg *config.Config, start uint64) (*Table, error) {
	media := cfg.Image.Info.Media
	switch media.Type {
	case config.MediaSPINOR, config.MediaSPINAND, config.MediaMMC:
	default:
		return nil, fmt.Errorf("%w: unsupported media type %q", config.ErrConfig, media.Type)
	}
	layout := &cfg.Layout
	if layout.Partitions.Len() == 0 {
		return nil, fmt.Errorf("%w: partition table is empty", config.ErrConfig)
	}

	t := &Table{
		Media:    media.Type,
		DeviceID: int(media.DeviceID),
	}
	if layout.Size != "" {
		s, err := config.ParseSize(layout.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.size: %v", config.ErrConfig, media.Type, err)
		}
		t.Size = s.Bytes
	}

	var exts []extent
	for _, name := range layout.Partitions.Keys() {
		p, _ := layout.Partitions.Get(name)
		exts = append(exts, extent{name: name, size: p.Size, offset: p.Offset})
	}
	entries, err := resolve(exts, start, t.Size, layout.Size != "")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", config.ErrConfig, media.Type, err)
	}

	for i, name := range layout.Partitions.Keys() {
		p, _ := layout.Partitions.Get(name)
		e := &entries[i]
		if e.UBI, err = volumes(e, "ubi", p.UBI); err != nil {
			return nil, err
		}
		if e.NFTL, err = volumes(e, "nftl", p.NFTL); err != nil {
			return nil, err
		}
	}
	t.Entries = entries
	return t, nil
}

func volumes(part *Entry, kind string, vols *config.Ordered[config.Volume]) ([]Entry, error) {
	if vols == nil {
		return nil, nil
	}
	if vols.Len() == 0 {
		return nil, fmt.Errorf("%w: %s volume list of partition %q is empty", config.ErrConfig, kind, part.Name)
	}
	var exts []extent
	for _, name := range vols.Keys() {
		v, _ := vols.Get(name)
		exts = append(exts, extent{name: name, size: v.Size, offset: v.Offset})
	}
	entries, err := resolve(exts, 0, part.Size, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s volumes of %q: %v", config.ErrConfig, kind, part.Name, err)
	}
	return entries, nil
}

type extent struct {
	name, size, offset string
}

// resolve places exts one after the other from start. When haveTotal is
// false a remainder size can't be resolved.
func resolve(exts []extent, start, total uint64, haveTotal bool) ([]Entry, error) {
	entries := make([]Entry, 0, len(exts))
	cursor := start
	for _, x := range exts {
		e := Entry{
			Name:      x.name,
			RawSize:   strings.TrimSpace(x.size),
			RawOffset: strings.TrimSpace(x.offset),
		}
		if e.RawOffset != "" {
			o, err := config.ParseSize(e.RawOffset)
			if err != nil {
				return nil, fmt.Errorf("%s: %v", x.name, err)
			}
			if o.Remainder {
				return nil, fmt.Errorf("%s: \"-\" is not an offset", x.name)
			}
			cursor = o.Bytes
		}
		s, err := config.ParseSize(e.RawSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", x.name, err)
		}
		e.Offset = cursor
		if s.Remainder {
			if !haveTotal {
				return nil, fmt.Errorf("%s: size \"-\" needs a declared total size", x.name)
			}
			if cursor > total {
				return nil, fmt.Errorf("%s: offset %#x is beyond the end (%#x)", x.name, cursor, total)
			}
			e.Size = total - cursor
		} else {
			e.Size = s.Bytes
		}
		cursor = e.End()
		entries = append(entries, e)
	}
	return entries, nil
}

// Lookup returns the entry named by ref. A reference of the form
// "part:volume" names a UBI volume of part.
func (t *Table) Lookup(ref string) (Entry, bool) {
	name, vol, isVol := strings.Cut(ref, ":")
	for _, e := range t.Entries {
		if e.Name != name {
			continue
		}
		if !isVol {
			return e, true
		}
		for _, v := range e.UBI {
			if v.Name == vol {
				return v, true
			}
		}
		return Entry{}, false
	}
	return Entry{}, false
}

// Exists reports whether ref names a partition or UBI volume of the table.
func (t *Table) Exists(ref string) bool {
	_, ok := t.Lookup(ref)
	return ok
}
