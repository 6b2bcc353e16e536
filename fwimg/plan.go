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
	"math"
	"os"
	"strings"

	"github.com/artinchip/aicimg/config"
	"github.com/golang/glog"
)

// component is a firmware component as it is packed into one container.
type component struct {
	section string
	name    string
	conf    config.Component
	// file is the configured file name, with any wildcard substituted.
	file string
	// path is the resolved file, empty when an optional file is missing.
	path string
	size uint64
}

// metaName returns the name of the component's meta record.
func (c *component) metaName() string {
	return fmt.Sprintf("image.%s.%s", c.section, c.name)
}

// plan holds everything one container build needs. Each NAND geometry
// variant gets its own plan; the configuration itself is never modified.
type plan struct {
	platform     string
	product      string
	version      string
	antiRollback string
	media        config.Media
	bootConfig   string
	// variant is the NAND geometry, e.g. "page_2k_block_128k", or empty.
	variant    string
	components []*component
}

// imageName returns the container's file name,
// "<platform>_<product>_v<version>[_c<anti-rollback>].img".
func (p *plan) imageName() string {
	n := fmt.Sprintf("%s_%s_v%s", p.platform, p.product, p.version)
	if p.antiRollback != "" {
		n += "_c" + p.antiRollback
	}
	return strings.ReplaceAll(n+".img", " ", "_")
}

// nandArrayOrg renders the supported geometries as "P=2K,B=128K;P=4K,B=256K".
func (p *plan) nandArrayOrg() string {
	var orgs []string
	for _, o := range p.media.ArrayOrganization {
		orgs = append(orgs, fmt.Sprintf("P=%s,B=%s", strings.ToUpper(o.Page), strings.ToUpper(o.Block)))
	}
	return strings.Join(orgs, ";")
}

// section returns the components of the named section, in order.
func (p *plan) section(name string) []*component {
	var r []*component
	for _, c := range p.components {
		if c.section == name {
			r = append(r, c)
		}
	}
	return r
}

// newPlan builds the plan for one container. suffix is substituted for the
// wildcard in UBI target component files, and appended to the product name.
func newPlan(cfg *config.Config, suffix string) *plan {
	info := cfg.Image.Info
	p := &plan{
		platform:     string(info.Platform),
		product:      string(info.Product) + suffix,
		version:      string(info.Version),
		antiRollback: string(info.AntiRollback),
		media:        info.Media,
		bootConfig:   DefaultBootConfig,
	}
	if suffix != "" {
		p.variant = strings.TrimPrefix(suffix, "_")
		p.bootConfig = fmt.Sprintf("%s(%s)", DefaultBootConfig, p.variant)
	}
	for _, section := range []string{config.SectionUpdater, config.SectionTarget} {
		comps := cfg.Image.Section(section)
		for _, name := range comps.Keys() {
			conf, _ := comps.Get(name)
			file := conf.File
			if suffix != "" && section == config.SectionTarget && conf.UBI() {
				file = strings.ReplaceAll(file, "*", suffix)
			}
			p.components = append(p.components, &component{
				section: section,
				name:    name,
				conf:    conf,
				file:    file,
			})
		}
	}
	return p
}

// geometrySuffix returns the file and product suffix of a NAND geometry.
func geometrySuffix(o config.NANDOrganization) string {
	return strings.ToLower(fmt.Sprintf("_page_%s_block_%s", o.Page, o.Block))
}

// wildcardUBI returns the UBI target components whose file has a wildcard.
func wildcardUBI(cfg *config.Config) []string {
	var names []string
	target := &cfg.Image.Target
	for _, name := range target.Keys() {
		c, _ := target.Get(name)
		if c.UBI() && strings.Contains(c.File, "*") {
			names = append(names, name)
		}
	}
	return names
}

// plans returns the plans to build. SPI-NAND configurations with wildcard
// UBI images get one plan per geometry whose images all exist; everything
// else gets a single plan.
func plans(ctx config.Context, cfg *config.Config) ([]*plan, error) {
	wild := wildcardUBI(cfg)
	if cfg.Image.Info.Media.Type != config.MediaSPINAND || len(wild) == 0 {
		return []*plan{newPlan(cfg, "")}, nil
	}

	var ps []*plan
	for _, org := range cfg.Image.Info.Media.ArrayOrganization {
		suffix := geometrySuffix(org)
		ok := true
		for _, name := range wild {
			c, _ := cfg.Image.Target.Get(name)
			file := strings.ReplaceAll(c.File, "*", suffix)
			if _, err := ctx.FindData(file); err != nil && !c.Optional() {
				glog.Warningf("Skipping NAND geometry %s: %s not found", strings.TrimPrefix(suffix, "_"), file)
				ok = false
				break
			}
		}
		if ok {
			ps = append(ps, newPlan(cfg, suffix))
		}
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: no NAND geometry has all of its UBI images", ErrMissingFile)
	}
	return ps, nil
}

// scan resolves every component file and records its size. A missing file
// is an error for required components; other components are left out, as
// are empty files.
func (p *plan) scan(ctx config.Context) error {
	for _, c := range p.components {
		path, err := ctx.FindData(c.file)
		if err != nil {
			if c.conf.Required() {
				return fmt.Errorf("%w: %s: %v", ErrMissingFile, c.metaName(), err)
			}
			glog.V(1).Infof("Optional component %s (%s) not found, leaving it out", c.metaName(), c.file)
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %q: %v", path, err)
		}
		if fi.Size() > math.MaxUint32 {
			return fmt.Errorf("%s: %q is too large for a container (%d bytes)", c.metaName(), path, fi.Size())
		}
		if fi.Size() == 0 {
			glog.V(1).Infof("Component %s (%s) is empty, leaving it out", c.metaName(), path)
			continue
		}
		c.path = path
		c.size = uint64(fi.Size())
	}
	return nil
}
