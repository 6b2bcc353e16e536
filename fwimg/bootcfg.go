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
	"strings"

	"github.com/artinchip/aicimg/api"
)

const bootConfigPreamble = `# Boot configuration file
# Used in SD Card FAT32 boot and USB Disk upgrade.
# Format:
# protection=part1 name,part2 name,part3 name
#   Protects partitions from being overwritten when they are upgraded.
# boot0=size@offset
#   boot0 size and location offset in 'image' file, boot rom read it.
# boot0=example.bin
#   boot0 image is file example.bin, boot rom read it.
# boot1=size@offset
#   boot1 size and location offset in 'image' file, boot0 read it.
# boot1=example.bin
#   boot1 image is file example.bin, boot0 read it.
# image=example.img
#   Packed image file is example.img, boot1 use it.


`

// bootKeys maps the updater components the boot ROM and boot0 read
// directly from the container to their boot configuration keys.
var bootKeys = []struct{ component, key string }{
	{"spl", "boot0"},
	{"uboot", "boot1"},
	{"env", "env"},
}

// BootConfig renders the boot configuration of the container named image.
// Every updater spl, uboot and env component present in metas gets a
// "key=size@offset" line, commented with its file name from files.
func BootConfig(image string, metas []api.ComponentMeta, files map[string]string) []byte {
	byName := make(map[string]api.ComponentMeta)
	for _, m := range metas {
		byName[m.Name] = m
	}

	var b strings.Builder
	b.WriteString(bootConfigPreamble)
	for _, k := range bootKeys {
		name := "image.updater." + k.component
		m, ok := byName[name]
		if !ok || m.Size == 0 {
			continue
		}
		fmt.Fprintf(&b, "# %s\n%s=%#x@%#x\n", files[name], k.key, m.Size, m.Offset)
	}
	fmt.Fprintf(&b, "image=%s\n", image)
	return []byte(b.String())
}
