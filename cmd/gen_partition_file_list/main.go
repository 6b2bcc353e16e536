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

// gen_partition_file_list writes the list of partitions target components
// are burnt to, with the size each filesystem image has to be made for.
package main

import (
	"flag"
	"fmt"

	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/partition"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
)

var (
	configFile = flag.String("config", "", "Path to the image configuration")
	outFile    = flag.String("outfile", "", "Path to write the list to, leave unset to write to stdout")
)

func main() {
	flag.Parse()
	if *configFile == "" {
		glog.Exitf("Invalid flags:\n--config can't be empty")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	list, err := partition.FileList(cfg)
	if err != nil {
		glog.Exitf("Failed to create partition file list: %v", err)
	}

	if *outFile == "" {
		fmt.Print(list)
		return
	}
	if err := renameio.WriteFile(*outFile, []byte(list), 0644); err != nil {
		glog.Exitf("Failed to write to output file %q: %v", *outFile, err)
	}
	glog.Infof("Wrote partition file list to %q", *outFile)
}
