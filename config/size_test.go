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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSize(t *testing.T) {
	for _, test := range []struct {
		desc    string
		in      string
		want    Size
		wantErr bool
	}{
		{
			desc: "decimal",
			in:   "4096",
			want: Size{Raw: "4096", Bytes: 4096},
		}, {
			desc: "kilobytes",
			in:   "4k",
			want: Size{Raw: "4k", Bytes: 4 * KiB},
		}, {
			desc: "upper case megabytes",
			in:   "16M",
			want: Size{Raw: "16M", Bytes: 16 * MiB},
		}, {
			desc: "gigabytes",
			in:   "1g",
			want: Size{Raw: "1g", Bytes: GiB},
		}, {
			desc: "hex",
			in:   "0x1000",
			want: Size{Raw: "0x1000", Bytes: 0x1000},
		}, {
			desc: "remainder",
			in:   "-",
			want: Size{Raw: "-", Remainder: true},
		}, {
			desc: "surrounding spaces",
			in:   " 2m ",
			want: Size{Raw: " 2m ", Bytes: 2 * MiB},
		}, {
			desc:    "empty",
			in:      "",
			wantErr: true,
		}, {
			desc:    "bad suffix",
			in:      "12t",
			wantErr: true,
		}, {
			desc:    "bad hex",
			in:      "0xzz",
			wantErr: true,
		}, {
			desc:    "suffix only",
			in:      "k",
			wantErr: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := ParseSize(test.in)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("ParseSize(%q) = %v, wantErr %v", test.in, err, test.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("ParseSize(%q) diff (-want +got):\n%s", test.in, diff)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	for _, test := range []struct {
		in   uint64
		want string
	}{
		{in: 0, want: "0"},
		{in: 4097, want: "4097"},
		{in: 4 * KiB, want: "4K"},
		{in: 63 * MiB, want: "63M"},
		{in: 1536 * KiB, want: "1536K"},
		{in: 2 * GiB, want: "2G"},
	} {
		if got := FormatSize(test.in); got != test.want {
			t.Errorf("FormatSize(%d) = %q, want %q", test.in, got, test.want)
		}
		if test.in == 0 {
			continue
		}
		// Every rendered size must parse back to the same byte count.
		s, err := ParseSize(test.want)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", test.want, err)
			continue
		}
		if s.Bytes != test.in {
			t.Errorf("ParseSize(FormatSize(%d)) = %d", test.in, s.Bytes)
		}
	}
}

func TestParseHex(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "0x40000000", want: 0x40000000},
		{in: "0X10", want: 0x10},
		{in: "30100000", want: 0x30100000},
		{in: "0x1FFFFFFFF", wantErr: true},
		{in: "", wantErr: true},
		{in: "xyz", wantErr: true},
	} {
		got, err := ParseHex(test.in)
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("ParseHex(%q) = %v, wantErr %v", test.in, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParseHex(%q) = %#x, want %#x", test.in, got, test.want)
		}
	}
}
