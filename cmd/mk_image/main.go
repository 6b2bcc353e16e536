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

// mk_image builds AIC firmware containers from an image configuration.
//
// The "temporary" section of the configuration is processed first, building
// boot images, U-Boot environments and FIT images into the data directory.
// The container and its boot configuration are then written next to them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/fwimg"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
)

var (
	configFile = flag.String("config", "", "Path to the image configuration")
	dataDir    = flag.String("datadir", "", "Directory holding the component files, and receiving the outputs")
	keyDir     = flag.String("keydir", "", "Directory holding key material, defaults to --datadir")
	binDir     = flag.String("bindir", "", "Directory holding mkimage, defaults to the directory of this tool and then $PATH")
	verbose    = flag.Bool("verbose", false, "Log the layout of every image built")
)

func main() {
	flag.Parse()
	if *verbose {
		flag.Set("v", "1")
		flag.Set("logtostderr", "true")
	}

	if err := checkFlags(); err != nil {
		glog.Exitf("Invalid flags:\n%s", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	ctx := config.Context{
		DataDir: *dataDir,
		KeyDir:  *keyDir,
		BinDir:  *binDir,
	}
	if ctx.KeyDir == "" {
		ctx.KeyDir = ctx.DataDir
	}
	if ctx.BinDir == "" {
		if exe, err := os.Executable(); err == nil {
			ctx.BinDir = filepath.Dir(exe)
		}
	}

	if err := fwimg.Preprocess(ctx, cfg); err != nil {
		glog.Exitf("Failed to preprocess: %v", err)
	}
	results, err := fwimg.Build(ctx, cfg)
	if err != nil {
		glog.Exitf("Failed to build firmware container: %v", err)
	}
	for _, r := range results {
		size := uint64(r.Header.FileOffset) + uint64(r.Header.FileSize)
		fmt.Printf("%s (%s, %d components)\n", r.Image, humanize.IBytes(size), len(r.Metas))
	}
}

func checkFlags() error {
	errs := make([]string, 0)
	checkEmpty := func(n, s string) {
		if s == "" {
			errs = append(errs, fmt.Sprintf("--%s can't be empty", n))
		}
	}
	checkEmpty("config", *configFile)
	checkEmpty("datadir", *dataDir)
	if *dataDir != "" {
		if fi, err := os.Stat(*dataDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Sprintf("--datadir %q is not a directory", *dataDir))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}
