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

package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/bootimg"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/subcommands"
)

type bootCommand struct {
	pubKey string
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "prints and checks the headers of boot images" }
func (*bootCommand) Usage() string {
	return "boot [-pubkey key.pem] image...\n"
}

func (cmd *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.pubKey, "pubkey", "", "PEM public (or private) key to check signed images with")
}

func (cmd *bootCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := cmd.execute(os.Stdout, f.Args()); err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *bootCommand) execute(w io.Writer, paths []string) error {
	var pub *rsa.PublicKey
	if cmd.pubKey != "" {
		b, err := os.ReadFile(cmd.pubKey)
		if err != nil {
			return fmt.Errorf("failed to read public key: %v", err)
		}
		if pub, err = bootimg.ParsePublicKey(b); err != nil {
			return fmt.Errorf("%s: %v", cmd.pubKey, err)
		}
	}

	failed := false
	for _, p := range paths {
		img, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %q: %v", p, err)
		}
		fmt.Fprintf(w, "%s:\n", p)
		if err := printBootHeader(w, img, ""); err != nil {
			return fmt.Errorf("%s: %v", p, err)
		}
		if ext, ok, err := bootimg.Extension(img); err != nil {
			return fmt.Errorf("%s: %v", p, err)
		} else if ok {
			fmt.Fprintln(w, "  extension image:")
			if err := printBootHeader(w, ext, "  "); err != nil {
				return fmt.Errorf("%s: extension image: %v", p, err)
			}
		}
		if err := bootimg.Verify(img, pub); err != nil {
			fmt.Fprintf(w, "  verification FAILED: %v\n", err)
			failed = true
			continue
		}
		fmt.Fprintln(w, "  verification OK")
	}
	if failed {
		return errors.New("some images failed verification")
	}
	return nil
}

func printBootHeader(w io.Writer, img []byte, indent string) error {
	h, err := bootimg.Parse(img)
	if err != nil {
		return err
	}
	sign := "md5 + checksum"
	if h.SignAlgo == api.SignAlgoRSA2048 {
		sign = "rsa-2048 + sha256"
	}
	enc := "none"
	if h.EncAlgo == api.EncAlgoAES128CBC {
		enc = "aes-128-cbc"
	}

	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	row := func(k, format string, args ...interface{}) {
		fmt.Fprintf(tw, "%s  %s:\t%s\n", indent, k, fmt.Sprintf(format, args...))
	}
	row("head version", "%#08x", h.HeadVersion)
	row("length", "%d (%s)", h.ImageLength, humanize.IBytes(uint64(h.ImageLength)))
	row("anti-rollback", "%d", h.FirmwareVersion)
	row("loader", "%d bytes, load %#08x, entry %#08x", h.LoaderLength, h.LoadAddress, h.EntryPoint)
	row("signature", "%s at %#x", sign, h.SignOffset)
	row("encryption", "%s", enc)
	for _, s := range []struct {
		name     string
		off, len uint32
	}{
		{"public key", h.KeyOffset, h.KeyLength},
		{"iv", h.IVOffset, h.IVLength},
		{"private data", h.PrivateOffset, h.PrivateLength},
		{"pbp", h.PBPOffset, h.PBPLength},
	} {
		if s.len > 0 {
			row(s.name, "%d bytes at %#x", s.len, s.off)
		}
	}
	if h.LoaderExtOffset != 0 {
		row("extension", "at %#x", h.LoaderExtOffset)
	}
	return tw.Flush()
}
