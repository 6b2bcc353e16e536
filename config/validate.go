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

package config

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks the configuration as a whole, returning every problem found
// in a single error wrapping ErrConfig.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	media := c.Image.Info.Media
	switch media.Type {
	case MediaSPINOR, MediaSPINAND, MediaMMC:
	default:
		add("image.info.media.type: unsupported media %q", media.Type)
	}
	for i, org := range media.ArrayOrganization {
		for _, f := range []struct{ key, val string }{{"page", org.Page}, {"block", org.Block}, {"oob", org.OOB}} {
			if f.val == "" && f.key == "oob" {
				continue
			}
			if s, err := ParseSize(f.val); err != nil || s.Remainder {
				add("image.info.media.array_organization[%d].%s: invalid size %q", i, f.key, f.val)
			}
		}
	}

	prefix := media.Type
	if c.Layout.Size != "" {
		if s, err := ParseSize(c.Layout.Size); err != nil || s.Remainder {
			add("%s.size: invalid size %q", prefix, c.Layout.Size)
		}
	}
	if c.Layout.Partitions.Len() == 0 {
		add("%s.partitions: partition table is empty", prefix)
	}
	keys := c.Layout.Partitions.Keys()
	for i, name := range keys {
		p, _ := c.Layout.Partitions.Get(name)
		path := fmt.Sprintf("%s.partitions.%s", prefix, name)
		errs = multierr.Append(errs, checkExtent(path, p.Size, p.Offset, i == len(keys)-1))
		for _, v := range []struct {
			kind string
			vols *Ordered[Volume]
		}{{"ubi", p.UBI}, {"nftl", p.NFTL}} {
			if v.vols == nil {
				continue
			}
			if v.vols.Len() == 0 {
				add("%s.%s: volume list is empty", path, v.kind)
			}
			vkeys := v.vols.Keys()
			for j, vname := range vkeys {
				vol, _ := v.vols.Get(vname)
				errs = multierr.Append(errs, checkExtent(fmt.Sprintf("%s.%s.%s", path, v.kind, vname), vol.Size, vol.Offset, j == len(vkeys)-1))
			}
		}
	}

	for _, section := range []string{SectionUpdater, SectionTarget} {
		comps := c.Image.Section(section)
		for _, name := range comps.Keys() {
			comp, _ := comps.Get(name)
			path := fmt.Sprintf("image.%s.%s", section, name)
			if comp.File == "" {
				add("%s.file: missing", path)
			}
			for _, ref := range comp.Part {
				if !c.Layout.HasPartition(ref) {
					add("%s.part: partition %q does not exist", path, ref)
				}
			}
			if comp.RAM != "" {
				if _, err := ParseHex(comp.RAM); err != nil {
					add("%s.ram: %v", path, err)
				}
			}
		}
	}

	for _, name := range c.Temporary.AICBoot.Keys() {
		b, _ := c.Temporary.AICBoot.Get(name)
		errs = multierr.Append(errs, b.validate("temporary.aicboot."+name))
	}
	for _, name := range c.Temporary.UBootEnv.Keys() {
		e, _ := c.Temporary.UBootEnv.Get(name)
		if s, err := ParseSize(e.Size); err != nil || s.Remainder || s.Bytes == 0 {
			add("temporary.uboot_env.%s.size: invalid size %q", name, e.Size)
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %v", ErrConfig, errs)
	}
	return nil
}

// checkExtent validates the size and offset of a partition or volume. The
// remainder size is only accepted on the last entry.
func checkExtent(path, size, offset string, last bool) error {
	var errs error
	s, err := ParseSize(size)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s.size: %v", path, err))
	} else if s.Remainder && !last {
		errs = multierr.Append(errs, fmt.Errorf("%s.size: \"-\" is only allowed on the last entry", path))
	}
	if offset != "" {
		if o, err := ParseSize(offset); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s.offset: %v", path, err))
		} else if o.Remainder {
			errs = multierr.Append(errs, fmt.Errorf("%s.offset: \"-\" is not an offset", path))
		}
	}
	return errs
}

func (b BootImage) validate(path string) error {
	var errs error
	if b.HeadVer != "" {
		if _, err := ParseHex(b.HeadVer); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s.head_ver: %v", path, err))
		}
	}
	if l := b.Loader; l != nil {
		if l.File == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s.loader.file: missing", path))
		}
		for _, f := range []struct{ key, val string }{{"load address", l.LoadAddress}, {"entry point", l.EntryPoint}} {
			if f.val == "" {
				continue
			}
			if _, err := ParseHex(f.val); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s.loader.%s: %v", path, f.key, err))
			}
		}
	}
	if e := b.Encryption; e != nil {
		if e.Algo != AlgoAES128CBC {
			errs = multierr.Append(errs, fmt.Errorf("%s.encryption.algo: unsupported algorithm %q", path, e.Algo))
		}
		if e.Key == "" || e.IV == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s.encryption: key and iv are required", path))
		}
	}
	if s := b.Signature; s != nil {
		if s.Algo != AlgoRSA2048 {
			errs = multierr.Append(errs, fmt.Errorf("%s.signature.algo: unsupported algorithm %q", path, s.Algo))
		}
		if s.PrivKey == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s.signature.privkey: missing", path))
		}
	}
	return errs
}
