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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
)

// Size is a parsed size expression such as "4k", "0x1000", "16M" or "-".
type Size struct {
	// Raw is the expression as written in the configuration.
	Raw string
	// Bytes is the value of the expression. It is zero for the remainder expression.
	Bytes uint64
	// Remainder is set for "-", which stands for all of the space left on the
	// media (or in the enclosing partition) after the current offset.
	Remainder bool
}

// ParseSize parses a size expression.
//
// Accepted forms are "-", hexadecimal with a 0x prefix, and decimal with an
// optional k, m or g suffix (case insensitive, powers of 1024).
func ParseSize(s string) (Size, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Size{}, errors.New("empty size expression")
	}
	if s == "-" {
		return Size{Raw: raw, Remainder: true}, nil
	}
	if strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return Size{}, fmt.Errorf("invalid size %q: %v", raw, err)
		}
		return Size{Raw: raw, Bytes: v}, nil
	}
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'k':
		mult = KiB
	case 'm':
		mult = MiB
	case 'g':
		mult = GiB
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %v", raw, err)
	}
	return Size{Raw: raw, Bytes: v * mult}, nil
}

// MustParseSize is like ParseSize but panics on error. It is meant for
// expressions which have already been validated.
func MustParseSize(s string) Size {
	v, err := ParseSize(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatSize renders n using the largest unit which divides it exactly.
func FormatSize(n uint64) string {
	switch {
	case n == 0:
		return "0"
	case n%GiB == 0:
		return fmt.Sprintf("%dG", n/GiB)
	case n%MiB == 0:
		return fmt.Sprintf("%dM", n/MiB)
	case n%KiB == 0:
		return fmt.Sprintf("%dK", n/KiB)
	}
	return strconv.FormatUint(n, 10)
}

// ParseHex parses a 32-bit hexadecimal value, with or without a 0x prefix.
func ParseHex(s string) (uint32, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(t, "0x")
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %v", s, err)
	}
	return uint32(v), nil
}
