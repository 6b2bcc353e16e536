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
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	itemRE   = regexp.MustCompile(`^([^@()]+)(?:@([^@()]+))?\(([^()]+)\)$`)
	defineRE = regexp.MustCompile(`^#define\s+(IMAGE_CFG_JSON_PARTS_[A-Z]+)\s+(".*")\s*$`)
)

// ParseParts parses a partition list as rendered by MTD or GPT, optionally
// prefixed by an mtd id such as "spi0.0:", and resolves it with the same
// rules as NewAt. total is the size "-" extends to; zero means unknown.
func ParseParts(s string, total uint64) ([]Entry, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 && i < strings.Index(s, "(") {
		s = s[i+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("empty partition list")
	}
	var exts []extent
	for _, it := range strings.Split(s, ",") {
		m := itemRE.FindStringSubmatch(strings.TrimSpace(it))
		if m == nil {
			return nil, fmt.Errorf("malformed partition %q", it)
		}
		exts = append(exts, extent{name: m[3], size: m[1], offset: m[2]})
	}
	return resolve(exts, 0, total, total != 0)
}

// ParseVolumes parses a UBI or NFTL string into the volumes of each
// partition, keyed by partition name. sizes gives the size of each partition.
func ParseVolumes(s string, sizes map[string]uint64) (map[string][]Entry, error) {
	vols := make(map[string][]Entry)
	for _, p := range strings.Split(strings.TrimSpace(s), ";") {
		name, l, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("malformed volume list %q", p)
		}
		size, ok := sizes[name]
		if !ok {
			return nil, fmt.Errorf("volume list for unknown partition %q", name)
		}
		e, err := ParseParts(l, size)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
		vols[name] = e
	}
	return vols, nil
}

// ParseHeader extracts the partition string defines from a header rendered
// by Header, keyed by define name.
func ParseHeader(text string) (map[string]string, error) {
	defs := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		m := defineRE.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		v, err := strconv.Unquote(m[2])
		if err != nil {
			return nil, fmt.Errorf("malformed define %s: %v", m[1], err)
		}
		defs[m[1]] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no partition defines found")
	}
	return defs, nil
}
