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

// verify_release is a tool to verify a release manifest against the
// firmware container it describes.
package main

import (
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/api/verify"
	"github.com/golang/glog"
	"golang.org/x/mod/sumdb/note"
)

var (
	publicKeyFile = flag.String("public_key", "", "Path to file containing the public key used to sign the manifest")
	manifest      = flag.String("manifest", "", "Path to the signed manifest")
	image         = flag.String("image", "", "Path to the firmware container")
	bootConfig    = flag.String("bootcfg", "", "Path to the boot configuration, if it should be checked too")
)

func main() {
	flag.Parse()
	if err := validateFlags(); err != nil {
		glog.Exitf("Invalid flag(s):\n%s", err)
	}

	msg, err := os.ReadFile(*manifest)
	if err != nil {
		glog.Exitf("failed to read manifest file: %v", err)
	}
	img, err := os.ReadFile(*image)
	if err != nil {
		glog.Exitf("failed to read firmware container: %v", err)
	}
	k, err := os.ReadFile(*publicKeyFile)
	if err != nil {
		glog.Exitf("failed to read public key file: %v", err)
	}
	verifier, err := note.NewVerifier(strings.TrimSpace(string(k)))
	if err != nil {
		glog.Exitf("failed to initialise key: %v", err)
	}

	glog.Info("Verifying release...")
	fr, err := verify.Release(msg, verifier, img)
	if err != nil {
		glog.Exitf("Failed to verify release: %v", err)
	}
	if *bootConfig != "" {
		b, err := os.ReadFile(*bootConfig)
		if err != nil {
			glog.Exitf("failed to read boot configuration: %v", err)
		}
		h := sha256.Sum256(b)
		if err := verify.Artifacts(fr, map[string][]byte{api.BootConfigArtifactName: h[:]}); err != nil {
			glog.Exitf("Failed to verify boot configuration: %v", err)
		}
	}

	fmt.Printf("%s %s %s: %d components, root %x\n", fr.PlatformID, fr.Product, fr.Revision, len(fr.Components), fr.ComponentRoot)
}

func validateFlags() error {
	errs := make([]string, 0)
	checkEmpty := func(n, s string) {
		if s == "" {
			errs = append(errs, fmt.Sprintf("--%s can't be empty", n))
		}
	}
	checkEmpty("public_key", *publicKeyFile)
	checkEmpty("manifest", *manifest)
	checkEmpty("image", *image)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}
