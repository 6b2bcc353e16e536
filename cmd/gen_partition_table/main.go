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

// gen_partition_table writes the partition table of an image configuration
// as a C header and as a JSON sidecar.
package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/partition"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
)

var (
	configFile = flag.String("config", "", "Path to the image configuration")
	outFile    = flag.String("outfile", "", "Path to write the C header to, leave unset to write to stdout")
	jsonFile   = flag.String("json", "", "Path to write the JSON partition table to, leave unset to write to stdout")
)

func main() {
	flag.Parse()
	if err := checkFlags(); err != nil {
		glog.Exitf("Invalid flags:\n%s", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	t, err := partition.New(cfg)
	if err != nil {
		glog.Exitf("Failed to lay out partitions: %v", err)
	}

	j, err := t.JSON()
	if err != nil {
		glog.Exitf("Failed to marshal partition table: %v", err)
	}
	output(*jsonFile, j)
	output(*outFile, []byte(t.Header()))
}

// output writes data to path, or to stdout if path is empty.
func output(path string, data []byte) {
	if path == "" {
		fmt.Print(string(data))
		return
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		glog.Exitf("Failed to write to output file %q: %v", path, err)
	}
	glog.Infof("Wrote %q", path)
}

func checkFlags() error {
	errs := make([]string, 0)
	if *configFile == "" {
		errs = append(errs, "--config can't be empty")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}
