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
	"os"
	"path/filepath"
)

// Context holds the directories a build reads from and writes to. It is
// passed by value to every builder and never modified during a build.
type Context struct {
	// DataDir holds the component files, and receives the build outputs.
	DataDir string
	// KeyDir holds key material. Lookups fall back to DataDir.
	KeyDir string
	// BinDir holds external tools such as mkimage. Empty means $PATH.
	BinDir string
}

// Find resolves name, first as given and then relative to each of dirs in
// turn. It returns an error naming every place tried if the file does not
// exist.
func (c Context) Find(name string, dirs ...string) (string, error) {
	if name == "" {
		return "", errors.New("empty file name")
	}
	tried := []string{name}
	if exists(name) {
		return name, nil
	}
	if !filepath.IsAbs(name) {
		for _, d := range dirs {
			if d == "" {
				continue
			}
			p := filepath.Join(d, name)
			if exists(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}
	return "", fmt.Errorf("%q not found (tried %q): %w", name, tried, os.ErrNotExist)
}

// FindData resolves name in the data directory.
func (c Context) FindData(name string) (string, error) {
	return c.Find(name, c.DataDir)
}

// FindKey resolves name in the key directory, then in the data directory.
func (c Context) FindKey(name string) (string, error) {
	return c.Find(name, c.KeyDir, c.DataDir)
}

// DataPath returns the path of name inside the data directory, whether or
// not it exists.
func (c Context) DataPath(name string) string {
	if filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func exists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
