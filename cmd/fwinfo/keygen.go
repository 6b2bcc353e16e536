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
	"crypto/rand"
	"flag"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/renameio/v2"
	"github.com/google/subcommands"
	"golang.org/x/mod/sumdb/note"
)

type keygenCommand struct {
	name       string
	privateOut string
	publicOut  string
}

func (*keygenCommand) Name() string     { return "keygen" }
func (*keygenCommand) Synopsis() string { return "creates a key pair for signing release manifests" }
func (*keygenCommand) Usage() string {
	return "keygen -name <key name> -private_out <file> -public_out <file>\n"
}

func (cmd *keygenCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.name, "name", "", "name of the key, e.g. d21x-release")
	f.StringVar(&cmd.privateOut, "private_out", "", "file to write the private key to")
	f.StringVar(&cmd.publicOut, "public_out", "", "file to write the public key to")
}

func (cmd *keygenCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if cmd.name == "" || cmd.privateOut == "" || cmd.publicOut == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	skey, vkey, err := note.GenerateKey(rand.Reader, cmd.name)
	if err != nil {
		glog.Errorf("Failed to generate key: %v", err)
		return subcommands.ExitFailure
	}
	if err := renameio.WriteFile(cmd.privateOut, []byte(skey+"\n"), 0600); err != nil {
		glog.Errorf("Failed to write private key: %v", err)
		return subcommands.ExitFailure
	}
	if err := renameio.WriteFile(cmd.publicOut, []byte(vkey+"\n"), 0644); err != nil {
		glog.Errorf("Failed to write public key: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println(vkey)
	return subcommands.ExitSuccess
}
