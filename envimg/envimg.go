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

// Package envimg builds U-Boot environment images.
//
// The image layout is the one U-Boot's env_import expects: a little endian
// CRC-32 of the data region, a flags byte for redundant environments, and a
// data region of NUL terminated "name=value" entries, closed by an empty
// entry and padded with 0xff.
package envimg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

const (
	crcSize   = 4
	flagsSize = 1
	padByte   = 0xff

	// ActiveFlag marks the active copy of a redundant environment.
	ActiveFlag = 0x01
)

// Build converts the text environment into an image of exactly size bytes.
// Empty lines and lines starting with '#' are skipped.
func Build(text []byte, size int, redundant bool) ([]byte, error) {
	hdr := crcSize
	if redundant {
		hdr += flagsSize
	}
	if size <= hdr {
		return nil, fmt.Errorf("environment size %d is too small", size)
	}

	var data bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(nil, max(len(text)+1, bufio.MaxScanTokenSize))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			return nil, fmt.Errorf("line %d: %q is not a name=value pair", n, line)
		}
		data.WriteString(line)
		data.WriteByte(0)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %v", err)
	}
	data.WriteByte(0)

	avail := size - hdr
	if data.Len() > avail {
		return nil, fmt.Errorf("environment needs %d bytes, only %d available", data.Len(), avail)
	}

	img := make([]byte, size)
	region := img[hdr:]
	copy(region, data.Bytes())
	for i := data.Len(); i < len(region); i++ {
		region[i] = padByte
	}
	binary.LittleEndian.PutUint32(img, crc32.ChecksumIEEE(region))
	if redundant {
		img[crcSize] = ActiveFlag
	}
	return img, nil
}

// Parse returns the entries of an environment image built by Build, and
// checks its CRC.
func Parse(img []byte, redundant bool) ([]string, error) {
	hdr := crcSize
	if redundant {
		hdr += flagsSize
	}
	if len(img) <= hdr {
		return nil, fmt.Errorf("environment image too short: %d bytes", len(img))
	}
	region := img[hdr:]
	if got, want := crc32.ChecksumIEEE(region), binary.LittleEndian.Uint32(img); got != want {
		return nil, fmt.Errorf("environment crc %#08x, header says %#08x", got, want)
	}
	var entries []string
	for len(region) > 0 && region[0] != 0 {
		i := bytes.IndexByte(region, 0)
		if i < 0 {
			return nil, fmt.Errorf("unterminated environment entry")
		}
		entries = append(entries, string(region[:i]))
		region = region[i+1:]
	}
	return entries, nil
}
