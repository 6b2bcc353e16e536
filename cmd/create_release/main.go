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

// create_release is a tool to create a signed release manifest for a
// firmware container.
package main

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/api/verify"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
	"golang.org/x/mod/sumdb/note"
)

var (
	image        = flag.String("image", "", "Path to the firmware container")
	bootConfig   = flag.String("bootcfg", "", "Path to the container's boot configuration, if it should be committed to")
	description  = flag.String("description", "", "Human readable description of the release")
	antiRollback = flag.String("anti_rollback", "", "Anti-rollback counter of the release")
	signingKey   = flag.String("signing_key", "", "Path to file containing the note private key used to sign the manifest")
	outputFile   = flag.String("output", "", "Path to write output file to, leave unset to write to stdout")
)

func main() {
	flag.Parse()

	if err := checkFlags(); err != nil {
		glog.Exitf("Invalid flags:\n%s", err)
	}

	k, err := os.ReadFile(*signingKey)
	if err != nil {
		glog.Exitf("Failed to read signing key: %v", err)
	}
	signer, err := note.NewSigner(strings.TrimSpace(string(k)))
	if err != nil {
		glog.Exitf("Failed to initialise key: %v", err)
	}

	img, err := os.ReadFile(*image)
	if err != nil {
		glog.Exitf("Failed to read firmware container %q: %v", *image, err)
	}

	glog.Info("Hashing firmware container...")
	fr, err := verify.NewRelease(img, *description)
	if err != nil {
		glog.Exitf("Failed to describe %q: %v", *image, err)
	}
	fr.AntiRollback = *antiRollback
	if *bootConfig != "" {
		b, err := os.ReadFile(*bootConfig)
		if err != nil {
			glog.Exitf("Failed to read boot configuration %q: %v", *bootConfig, err)
		}
		h := sha256.Sum256(b)
		fr.ArtifactSHA256[api.BootConfigArtifactName] = h[:]
	}
	if glog.V(1) {
		pp, _ := json.MarshalIndent(fr, "", "  ")
		glog.V(1).Infof("Created FirmwareRelease:\n%s", pp)
	}

	signed, err := verify.Sign(fr, signer)
	if err != nil {
		glog.Exitf("Failed to sign FirmwareRelease: %v", err)
	}

	if *outputFile == "" {
		fmt.Print(string(signed))
	} else {
		if err := renameio.WriteFile(*outputFile, signed, 0644); err != nil {
			glog.Exitf("Failed to write to output file %q: %v", *outputFile, err)
		}
		glog.Infof("Wrote release manifest to %q", *outputFile)
	}
}

func checkFlags() error {
	errs := make([]string, 0)
	checkEmpty := func(n, s string) {
		if s == "" {
			errs = append(errs, fmt.Sprintf("--%s can't be empty", n))
		}
	}
	checkEmpty("image", *image)
	checkEmpty("signing_key", *signingKey)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}
