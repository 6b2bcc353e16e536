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
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/fwimg"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
	"github.com/google/subcommands"
)

type containerCommand struct {
	verify  bool
	extract string
	out     string
}

func (*containerCommand) Name() string     { return "container" }
func (*containerCommand) Synopsis() string { return "lists and checks the components of firmware containers" }
func (*containerCommand) Usage() string {
	return "container [-verify=false] [-extract image.target.os -o os.itb] image...\n"
}

func (cmd *containerCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.verify, "verify", true, "recompute the CRC of every component")
	f.StringVar(&cmd.extract, "extract", "", "name of a component to extract")
	f.StringVar(&cmd.out, "o", "", "file to extract the component to")
}

func (cmd *containerCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 || (cmd.extract != "") != (cmd.out != "") {
		f.Usage()
		return subcommands.ExitUsageError
	}
	for _, p := range f.Args() {
		if err := cmd.execute(os.Stdout, p); err != nil {
			glog.Errorf("%s: %v", p, err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

func (cmd *containerCommand) execute(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	c, err := fwimg.Open(f)
	if err != nil {
		return err
	}

	h := c.Header
	fmt.Fprintf(w, "%s:\n", path)
	fmt.Fprintf(w, "  %s %s v%s for %s (device %d)\n", h.Platform, h.Product, h.Version, h.MediaType, h.MediaDev)
	if h.NANDArrayOrg != "" {
		fmt.Fprintf(w, "  NAND geometries: %s\n", h.NANDArrayOrg)
	}
	fmt.Fprintf(w, "  meta area %#x+%#x, file area %#x+%#x (%s)\n", h.MetaOffset, h.MetaSize, h.FileOffset, h.FileSize, humanize.IBytes(uint64(h.FileSize)))

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tOFFSET\tSIZE\tCRC32\tRAM\tPARTITION\tATTR")
	for _, m := range c.Metas {
		ram := "-"
		if m.RAM != api.NoRAM {
			ram = fmt.Sprintf("%#08x", m.RAM)
		}
		fmt.Fprintf(tw, "  %s\t%#08x\t%s\t%08x\t%s\t%s\t%s\n", m.Name, m.Offset, humanize.IBytes(uint64(m.Size)), m.CRC32, ram, m.Partition, m.Attr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if cmd.verify {
		if err := c.Verify(); err != nil {
			return fmt.Errorf("verification failed: %v", err)
		}
		fmt.Fprintln(w, "  verification OK")
	}

	if cmd.extract != "" {
		s, err := c.Component(cmd.extract)
		if err != nil {
			return err
		}
		b := make([]byte, s.Size())
		if _, err := s.ReadAt(b, 0); err != nil && err != io.EOF {
			return fmt.Errorf("failed to read %s: %v", cmd.extract, err)
		}
		if err := renameio.WriteFile(cmd.out, b, 0644); err != nil {
			return fmt.Errorf("failed to write %q: %v", cmd.out, err)
		}
		glog.Infof("Extracted %s to %q", cmd.extract, cmd.out)
	}
	return nil
}
