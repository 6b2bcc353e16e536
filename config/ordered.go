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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Ordered is a JSON object which remembers the order its keys were declared in.
//
// Partitions and firmware components are laid out in declaration order, so
// the plain map decoding of encoding/json can't be used for them.
type Ordered[T any] struct {
	keys []string
	vals map[string]T
}

// Keys returns the keys in declaration order.
func (o *Ordered[T]) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of entries.
func (o *Ordered[T]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Get returns the value stored under key.
func (o *Ordered[T]) Get(key string) (T, bool) {
	var zero T
	if o == nil {
		return zero, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Set stores v under key, appending the key if it is new.
func (o *Ordered[T]) Set(key string, v T) {
	if o.vals == nil {
		o.vals = make(map[string]T)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// UnmarshalJSON decodes a JSON object, keeping the key order.
func (o *Ordered[T]) UnmarshalJSON(b []byte) error {
	o.keys = nil
	o.vals = make(map[string]T)
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if _, dup := o.vals[key]; dup {
			return fmt.Errorf("duplicate key %q", key)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("%s: %v", key, err)
		}
		o.keys = append(o.keys, key)
		o.vals[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// StringList is a configuration value which may be written either as a single
// string or as a list of strings.
type StringList []string

// UnmarshalJSON accepts "a", "a;b" or ["a", "b"].
func (l *StringList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = nil
		for _, f := range strings.Split(s, ";") {
			if f = strings.TrimSpace(f); f != "" {
				*l = append(*l, f)
			}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %v", err)
	}
	*l = list
	return nil
}

// Has reports whether s is one of the entries.
func (l StringList) Has(s string) bool {
	for _, v := range l {
		if strings.TrimSpace(v) == s {
			return true
		}
	}
	return false
}

// Join concatenates the entries with sep, dropping any spaces.
func (l StringList) Join(sep string) string {
	return strings.ReplaceAll(strings.Join(l, sep), " ", "")
}

// Scalar is a string valued setting which also accepts a bare JSON number,
// e.g. "version": 1 or "anti-rollback": "3".
type Scalar string

// UnmarshalJSON accepts a JSON string or number.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = Scalar(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number: %v", err)
	}
	*s = Scalar(n.String())
	return nil
}

// DeviceID is the media device number, written either as a number or a string.
type DeviceID int

// UnmarshalJSON accepts 0 or "0".
func (d *DeviceID) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*d = DeviceID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expected a device number: %v", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid device number %q: %v", s, err)
	}
	*d = DeviceID(n)
	return nil
}
