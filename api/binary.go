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

package api

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// putString copies s into the fixed width field dst, NUL padding it. Strings
// which don't fit are rejected rather than truncated.
func putString(dst []byte, s, field string) error {
	if len(s) > len(dst) {
		return fmt.Errorf("%s %q is longer than %d bytes", field, s, len(dst))
	}
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// cString returns the contents of a NUL padded field.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// encode writes the fixed layout record v into a zeroed slot of the given size.
func encode(v interface{}, slot int) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	if buf.Len() > slot {
		return nil, fmt.Errorf("record of %d bytes does not fit a %d byte slot", buf.Len(), slot)
	}
	b := make([]byte, slot)
	copy(b, buf.Bytes())
	return b, nil
}

// decode reads the fixed layout record v from the start of b.
func decode(b []byte, v interface{}) error {
	if n := binary.Size(v); len(b) < n {
		return fmt.Errorf("short record: %d bytes, need %d", len(b), n)
	}
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

// Align rounds n up to a multiple of a.
func Align(n, a uint64) uint64 {
	if a == 0 {
		return n
	}
	return (n + a - 1) / a * a
}
