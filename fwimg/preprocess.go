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

package fwimg

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/artinchip/aicimg/bootimg"
	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/envimg"
	"github.com/artinchip/aicimg/partition"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/renameio/v2"
)

// Preprocess produces the intermediate files named in the "temporary"
// section of cfg, writing each into the data directory: FIT images first,
// then U-Boot environments, then boot images.
func Preprocess(ctx config.Context, cfg *config.Config) error {
	t := &cfg.Temporary
	for _, name := range t.ITB.Keys() {
		itb, _ := t.ITB.Get(name)
		if err := buildITB(ctx, name, itb); err != nil {
			return fmt.Errorf("itb %s: %w", name, err)
		}
	}

	if t.UBootEnv.Len() > 0 {
		table, err := partition.New(cfg)
		if err != nil {
			return err
		}
		for _, name := range t.UBootEnv.Keys() {
			e, _ := t.UBootEnv.Get(name)
			if err := buildEnv(ctx, name, e, table.Env()); err != nil {
				return fmt.Errorf("uboot_env %s: %w", name, err)
			}
		}
	}

	for _, name := range t.AICBoot.Keys() {
		b, _ := t.AICBoot.Get(name)
		img, err := bootimg.Build(ctx, &b)
		if err != nil {
			return fmt.Errorf("aicboot %s: %w", name, err)
		}
		if err := writeData(ctx, name, img); err != nil {
			return err
		}
	}
	return nil
}

func writeData(ctx config.Context, name string, data []byte) error {
	out := ctx.DataPath(name)
	if err := renameio.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %v", out, err)
	}
	glog.Infof("Wrote %s (%s)", out, humanize.IBytes(uint64(len(data))))
	return nil
}

// buildEnv writes a U-Boot environment image. The partition layout
// variables are placed ahead of the configured environment text.
func buildEnv(ctx config.Context, name string, e config.EnvImage, parts string) error {
	src, err := ctx.FindData(e.File)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %q: %v", src, err)
	}
	size, err := config.ParseSize(e.Size)
	if err != nil {
		return fmt.Errorf("%w: size: %v", config.ErrConfig, err)
	}
	img, err := envimg.Build(append([]byte(parts), text...), int(size.Bytes), e.IsRedundant())
	if err != nil {
		return err
	}
	return writeData(ctx, name, img)
}

// mkimage locates the mkimage tool, preferring the one in BinDir.
func mkimage(ctx config.Context) (string, error) {
	if ctx.BinDir != "" {
		p := filepath.Join(ctx.BinDir, "mkimage")
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	p, err := exec.LookPath("mkimage")
	if err != nil {
		return "", fmt.Errorf("mkimage not found in %q or $PATH: %v", ctx.BinDir, err)
	}
	return p, nil
}

// buildITB runs mkimage over the ITS source. When a key directory and DTB
// are configured the image is signed and the public key is written into the
// DTB, which can then be appended to a binary.
func buildITB(ctx config.Context, name string, itb config.ITB) error {
	tool, err := mkimage(ctx)
	if err != nil {
		return err
	}
	its, err := ctx.FindData(itb.ITS)
	if err != nil {
		return err
	}

	args := []string{"-E", "-f", its}
	var dtb string
	if itb.DTB != "" {
		if dtb, err = ctx.FindData(itb.DTB); err != nil {
			return err
		}
	}
	if itb.KeyDir != "" && dtb != "" {
		keyDir, ok := findDir(itb.KeyDir, ctx.KeyDir, ctx.DataDir)
		if ok {
			args = append(args, "-k", keyDir, "-K", dtb, "-r")
		} else {
			glog.Warningf("Key directory %q not found, %s is not signed", itb.KeyDir, name)
		}
	}
	out := ctx.DataPath(name)
	args = append(args, out)

	glog.V(1).Infof("Running %s %q", tool, args)
	if output, err := exec.Command(tool, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %v\n%s", tool, err, output)
	}
	glog.Infof("Wrote %s", out)

	if itb.Bin == nil {
		return nil
	}
	if dtb == "" {
		return fmt.Errorf("%w: bin needs a dtb", config.ErrConfig)
	}
	src, err := ctx.FindData(itb.Bin.Src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, p := range []string{src, dtb} {
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %q: %v", p, err)
		}
		buf.Write(b)
	}
	return writeData(ctx, itb.Bin.Dst, buf.Bytes())
}

// findDir resolves a directory as given, then relative to each of dirs.
func findDir(name string, dirs ...string) (string, bool) {
	cands := []string{name}
	if !filepath.IsAbs(name) {
		for _, d := range dirs {
			if d != "" {
				cands = append(cands, filepath.Join(d, name))
			}
		}
	}
	for _, c := range cands {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			return c, true
		}
	}
	return "", false
}
