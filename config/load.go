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
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tailscale/hujson"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/multierr"
)

var (
	//go:embed schema.json
	schemaJSON string

	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// document mirrors the top level of an image configuration file.
type document struct {
	SPINOR    *Layout   `json:"spi-nor"`
	SPINAND   *Layout   `json:"spi-nand"`
	MMC       *Layout   `json:"mmc"`
	Image     Image     `json:"image"`
	Temporary Temporary `json:"temporary"`
}

// Load reads and parses the image configuration at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %v", path, err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse parses an image configuration.
//
// The document may contain // and /* */ comments and trailing commas. It is
// checked against the configuration schema, decoded, and then validated as a
// whole; all problems found are reported together.
func Parse(b []byte) (*Config, error) {
	std, err := hujson.Standardize(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := validateSchema(std); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(std, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c := &Config{
		Image:     doc.Image,
		Temporary: doc.Temporary,
	}
	var l *Layout
	switch doc.Image.Info.Media.Type {
	case MediaSPINOR:
		l = doc.SPINOR
	case MediaSPINAND:
		l = doc.SPINAND
	case MediaMMC:
		l = doc.MMC
	}
	if l == nil {
		return nil, fmt.Errorf("%w: no partition layout for media %q", ErrConfig, doc.Image.Info.Media.Type)
	}
	c.Layout = *l

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func validateSchema(doc []byte) error {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	if schemaErr != nil {
		return fmt.Errorf("failed to load configuration schema: %v", schemaErr)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if result.Valid() {
		return nil
	}
	var errs error
	for _, desc := range result.Errors() {
		errs = multierr.Append(errs, errors.New(desc.String()))
	}
	return fmt.Errorf("%w: %v", ErrConfig, errs)
}
