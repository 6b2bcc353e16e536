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

package fwimg

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/artinchip/aicimg/api"
)

// Container is a parsed firmware container.
type Container struct {
	Header api.FirmwareHeader
	// Metas holds the meta records in file order.
	Metas []api.ComponentMeta
	r     io.ReaderAt
}

// Open parses the header and meta records of the container read by r.
func Open(r io.ReaderAt) (*Container, error) {
	hb := make([]byte, api.FirmwareHeaderSize)
	if _, err := r.ReadAt(hb, 0); err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}
	c := &Container{r: r}
	if err := c.Header.UnmarshalBinary(hb); err != nil {
		return nil, err
	}
	if c.Header.MetaSize%api.MetaSize != 0 {
		return nil, fmt.Errorf("meta area size %#x is not a multiple of %d", c.Header.MetaSize, api.MetaSize)
	}
	// Read record by record, a corrupt meta size then fails at the end of
	// the file.
	mb := make([]byte, api.MetaSize)
	for i := uint32(0); i < c.Header.MetaSize/api.MetaSize; i++ {
		off := int64(c.Header.MetaOffset) + int64(i)*api.MetaSize
		if _, err := r.ReadAt(mb, off); err != nil {
			return nil, fmt.Errorf("failed to read meta record %d at %#x: %v", i, off, err)
		}
		var m api.ComponentMeta
		if err := m.UnmarshalBinary(mb); err != nil {
			return nil, fmt.Errorf("meta record %d: %v", i, err)
		}
		c.Metas = append(c.Metas, m)
	}
	return c, nil
}

// Meta returns the meta record called name.
func (c *Container) Meta(name string) (api.ComponentMeta, bool) {
	for _, m := range c.Metas {
		if m.Name == name {
			return m, true
		}
	}
	return api.ComponentMeta{}, false
}

// Component returns a reader over the bytes of the component called name.
func (c *Container) Component(name string) (*io.SectionReader, error) {
	m, ok := c.Meta(name)
	if !ok {
		return nil, fmt.Errorf("no component %q", name)
	}
	return io.NewSectionReader(c.r, int64(m.Offset), int64(m.Size)), nil
}

// Verify checks the layout of the container and recomputes the CRC of every
// component, the header included.
func (c *Container) Verify() error {
	h := c.Header
	if want := api.Align(api.FirmwareHeaderSize+uint64(h.MetaSize), api.DataAlign); uint64(h.FileOffset) != want {
		return fmt.Errorf("file area at %#x, want %#x", h.FileOffset, want)
	}
	next := uint64(h.FileOffset)
	info := false
	for _, m := range c.Metas {
		if m.Name == api.InfoName {
			info = true
		} else {
			if uint64(m.Offset) != next {
				return fmt.Errorf("%s at %#x, want %#x", m.Name, m.Offset, next)
			}
			next += api.Align(uint64(m.Size), api.DataAlign)
		}
		s, err := c.Component(m.Name)
		if err != nil {
			return err
		}
		crc := crc32.NewIEEE()
		if _, err := io.Copy(crc, s); err != nil {
			return fmt.Errorf("failed to read %s: %v", m.Name, err)
		}
		if got := crc.Sum32(); got != m.CRC32 {
			return fmt.Errorf("%s: CRC %08x, want %08x", m.Name, got, m.CRC32)
		}
	}
	if !info {
		return fmt.Errorf("no %s record", api.InfoName)
	}
	if end := uint64(h.FileOffset) + uint64(h.FileSize); next != end {
		return fmt.Errorf("components end at %#x, file area ends at %#x", next, end)
	}
	return nil
}
