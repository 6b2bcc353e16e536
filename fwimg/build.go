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

// Package fwimg builds and reads AIC firmware containers.
//
// A container starts with a 2048 byte header, followed by one 512 byte meta
// record per component and the component files themselves, each aligned to
// 2048 bytes:
//
//	+--------+------+------+-----+------+------------+------------+-----+
//	| header | meta | meta | ... | meta | component0 | component1 | ... |
//	+--------+------+------+-----+------+------------+------------+-----+
//
// Meta records are emitted for the updater components, then for the
// container header itself ("image.info"), then for the target components.
package fwimg

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/partition"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
)

// ErrMissingFile is wrapped by errors about required component files which
// cannot be found.
var ErrMissingFile = errors.New("component file not found")

// DefaultBootConfig is the name of the boot configuration written next to
// each container.
const DefaultBootConfig = "bootcfg.txt"

// Result describes one container written by Build.
type Result struct {
	// Image is the path of the container.
	Image string
	// BootConfig is the path of its boot configuration file.
	BootConfig string
	// Variant names the SPI-NAND geometry the container is for, if any.
	Variant string
	Header  api.FirmwareHeader
	// Metas holds the meta records in file order.
	Metas []api.ComponentMeta
}

// Build writes the firmware containers described by cfg into the data
// directory, together with their boot configuration files.
//
// SPI-NAND configurations whose UBI images name a '*' wildcard get one
// container per supported geometry; everything else gets exactly one.
func Build(ctx config.Context, cfg *config.Config) ([]Result, error) {
	table, err := partition.New(cfg)
	if err != nil {
		return nil, err
	}
	for _, section := range []string{config.SectionUpdater, config.SectionTarget} {
		comps := cfg.Image.Section(section)
		for _, name := range comps.Keys() {
			c, _ := comps.Get(name)
			for _, ref := range c.Part {
				if !table.Exists(ref) {
					return nil, fmt.Errorf("%w: image.%s.%s: partition %q does not exist", config.ErrConfig, section, name, ref)
				}
			}
		}
	}

	ps, err := plans(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Every variant is scanned before anything is written.
	for _, p := range ps {
		if err := p.scan(ctx); err != nil {
			return nil, err
		}
	}
	var results []Result
	for _, p := range ps {
		r, err := build(ctx, p)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

// build writes the container and boot configuration of a scanned plan.
func build(ctx config.Context, p *plan) (*Result, error) {
	hdr, metas, err := layout(p)
	if err != nil {
		return nil, err
	}

	out := ctx.DataPath(p.imageName())
	glog.Infof("Building %s", out)
	if err := write(out, p, &hdr, metas); err != nil {
		return nil, err
	}

	files := make(map[string]string)
	for _, c := range p.components {
		files[c.metaName()] = c.file
	}
	bc := ctx.DataPath(p.bootConfig)
	if err := renameio.WriteFile(bc, BootConfig(filepath.Base(out), metas, files), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %q: %v", bc, err)
	}
	glog.Infof("Wrote %s (%s) and %s", out, humanize.IBytes(uint64(hdr.FileOffset)+uint64(hdr.FileSize)), bc)

	return &Result{
		Image:      out,
		BootConfig: bc,
		Variant:    p.variant,
		Header:     hdr,
		Metas:      metas,
	}, nil
}

// layout computes the header and the meta records of a scanned plan. CRCs
// are left for write to fill in.
func layout(p *plan) (api.FirmwareHeader, []api.ComponentMeta, error) {
	n := 1
	for _, c := range p.components {
		if c.path != "" {
			n++
		}
	}
	metaSize := uint64(n) * api.MetaSize
	fileOffset := api.Align(api.FirmwareHeaderSize+metaSize, api.DataAlign)

	var metas []api.ComponentMeta
	cursor := fileOffset
	for _, section := range []string{config.SectionUpdater, config.SectionTarget} {
		if section == config.SectionTarget {
			metas = append(metas, api.ComponentMeta{
				Name: api.InfoName,
				Size: api.FirmwareHeaderSize,
				RAM:  api.NoRAM,
				Attr: "required",
			})
		}
		for _, c := range p.section(section) {
			if c.path == "" {
				continue
			}
			ram := uint32(api.NoRAM)
			if c.conf.RAM != "" {
				r, err := config.ParseHex(c.conf.RAM)
				if err != nil {
					return api.FirmwareHeader{}, nil, fmt.Errorf("%s.ram: %v", c.metaName(), err)
				}
				ram = r
			}
			metas = append(metas, api.ComponentMeta{
				Name:      c.metaName(),
				Partition: c.conf.Part.Join(";"),
				Offset:    uint32(cursor),
				Size:      uint32(c.size),
				RAM:       ram,
				Attr:      c.conf.Attr.Join(";"),
			})
			cursor += api.Align(c.size, api.DataAlign)
		}
	}
	if cursor > 0xFFFFFFFF {
		return api.FirmwareHeader{}, nil, fmt.Errorf("container too large (%d bytes)", cursor)
	}

	hdr := api.FirmwareHeader{
		Platform:     p.platform,
		Product:      p.product,
		Version:      p.version,
		MediaType:    p.media.Type,
		MediaDev:     uint32(p.media.DeviceID),
		NANDArrayOrg: p.nandArrayOrg(),
		MetaOffset:   api.FirmwareHeaderSize,
		MetaSize:     uint32(metaSize),
		FileOffset:   uint32(fileOffset),
		FileSize:     uint32(cursor - fileOffset),
	}
	return hdr, metas, nil
}

// write lays the container out in a pending file which atomically replaces
// out once it is complete. The CRCs of metas are filled in along the way.
func write(out string, p *plan, hdr *api.FirmwareHeader, metas []api.ComponentMeta) error {
	f, err := renameio.NewPendingFile(out, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("failed to create %q: %v", out, err)
	}
	defer f.Cleanup()

	if err := f.Truncate(int64(hdr.FileOffset) + int64(hdr.FileSize)); err != nil {
		return fmt.Errorf("failed to size %q: %v", out, err)
	}

	// Component files, padding is left zero.
	byName := make(map[string]*component)
	for _, c := range p.components {
		byName[c.metaName()] = c
	}
	for i := range metas {
		m := &metas[i]
		c, ok := byName[m.Name]
		if !ok {
			continue
		}
		crc, err := copyAt(f, int64(m.Offset), c)
		if err != nil {
			return err
		}
		m.CRC32 = crc
		glog.V(1).Infof("Meta for %-25s offset %#08x size %#08x (%s) crc %08x", m.Name, m.Offset, m.Size, humanize.IBytes(uint64(m.Size)), m.CRC32)
	}

	h, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(h, 0); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}
	off := int64(hdr.MetaOffset)
	for i := range metas {
		m := &metas[i]
		if m.Name == api.InfoName {
			m.CRC32 = crc32.ChecksumIEEE(h)
			glog.V(1).Infof("Meta for %-25s offset %#08x size %#08x crc %08x", m.Name, m.Offset, m.Size, m.CRC32)
		}
		b, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(b, off); err != nil {
			return fmt.Errorf("failed to write meta %s: %v", m.Name, err)
		}
		off += api.MetaSize
	}

	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to commit %q: %v", out, err)
	}
	return nil
}

// copyAt copies a component file into w at off, returning its CRC. The file
// must still have the size it had when the plan was scanned.
func copyAt(w io.WriterAt, off int64, c *component) (uint32, error) {
	in, err := os.Open(c.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %q: %v", c.path, err)
	}
	defer in.Close()

	crc := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(io.NewOffsetWriter(w, off), crc), in)
	if err != nil {
		return 0, fmt.Errorf("failed to copy %q: %v", c.path, err)
	}
	if uint64(n) != c.size {
		return 0, fmt.Errorf("%q changed size during the build (%d != %d bytes)", c.path, n, c.size)
	}
	return crc.Sum32(), nil
}
