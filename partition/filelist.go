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
	"fmt"
	"strings"

	"github.com/artinchip/aicimg/config"
)

// FileList renders the partition usage list: one "part,file,size" line for
// every partition a target component is burnt to, giving the size its
// filesystem image has to be made for.
//
// For spi-nand media the list starts with a "nands=page,block,oob;..." line
// enumerating the supported geometries. For mmc media the layout starts after
// the GPT header area.
func FileList(cfg *config.Config) (string, error) {
	var start uint64
	if cfg.Image.Info.Media.Type == config.MediaMMC {
		start = GPTHeaderSize
	}
	t, err := NewAt(cfg, start)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if t.Media == config.MediaSPINAND {
		var nands []string
		for _, org := range cfg.Image.Info.Media.ArrayOrganization {
			vals := make([]uint64, 0, 3)
			for _, s := range []string{org.Page, org.Block, org.OOB} {
				var v uint64
				if s != "" {
					sz, err := config.ParseSize(s)
					if err != nil {
						return "", fmt.Errorf("%w: array_organization: %v", config.ErrConfig, err)
					}
					v = sz.Bytes
				}
				vals = append(vals, v)
			}
			nands = append(nands, fmt.Sprintf("%d,%d,%d", vals[0], vals[1], vals[2]))
		}
		if len(nands) > 0 {
			fmt.Fprintf(&b, "nands=%s\n", strings.Join(nands, ";"))
		}
	}

	target := &cfg.Image.Target
	for _, name := range target.Keys() {
		c, _ := target.Get(name)
		for _, ref := range c.Part {
			e, ok := t.Lookup(ref)
			if !ok {
				return "", fmt.Errorf("%w: image.target.%s: partition %q does not exist", config.ErrConfig, name, ref)
			}
			fmt.Fprintf(&b, "%s,%s,%d\n", ref, c.File, e.Size)
		}
	}
	return b.String(), nil
}
