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

package envimg

import (
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuild(t *testing.T) {
	text := []byte("MTD=spi0.0:1m(spl),-(data)\n# comment\n\nbootdelay=0\r\nbootcmd=run boot_nand\n")
	want := []string{"MTD=spi0.0:1m(spl),-(data)", "bootdelay=0", "bootcmd=run boot_nand"}

	for _, test := range []struct {
		desc      string
		redundant bool
		hdr       int
	}{
		{desc: "single", hdr: 4},
		{desc: "redundant", redundant: true, hdr: 5},
	} {
		t.Run(test.desc, func(t *testing.T) {
			img, err := Build(text, 0x1000, test.redundant)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(img) != 0x1000 {
				t.Fatalf("image is %d bytes, want %d", len(img), 0x1000)
			}
			if got, want := binary.LittleEndian.Uint32(img), crc32.ChecksumIEEE(img[test.hdr:]); got != want {
				t.Errorf("crc = %#x, want %#x", got, want)
			}
			if test.redundant && img[4] != ActiveFlag {
				t.Errorf("flags = %#x, want %#x", img[4], ActiveFlag)
			}
			if img[len(img)-1] != padByte {
				t.Errorf("last byte = %#x, want padding", img[len(img)-1])
			}
			got, err := Parse(img, test.redundant)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("entries diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	for _, test := range []struct {
		desc string
		text string
		size int
	}{
		{desc: "does not fit", text: "bootcmd=run a_very_long_command\n", size: 16},
		{desc: "too small", text: "", size: 4},
		{desc: "not a pair", text: "bootcmd\n", size: 64},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := Build([]byte(test.text), test.size, false); err == nil {
				t.Error("Build succeeded, want error")
			}
		})
	}
}

func TestParseBadCRC(t *testing.T) {
	img, err := Build([]byte("a=b\n"), 64, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img[10] ^= 0xff
	if _, err := Parse(img, false); err == nil {
		t.Error("Parse accepted a corrupted image")
	}
}

func TestBuildLongLine(t *testing.T) {
	long := "bootargs=" + strings.Repeat("x", 100*1024)
	img, err := Build([]byte("bootdelay=0\n"+long+"\n"), 256*1024, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Parse(img, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d := cmp.Diff([]string{"bootdelay=0", long}, got); d != "" {
		t.Errorf("entries diff (-want +got):\n%s", d)
	}
}
