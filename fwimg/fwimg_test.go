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
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/bootimg"
	"github.com/artinchip/aicimg/config"
	"github.com/artinchip/aicimg/envimg"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const norConfig = `{
	"spi-nor": {
		"size": "16m",
		"partitions": {
			"spl":   { "size": "256k" },
			"uboot": { "size": "512k" },
			"env":   { "size": "64k" },
			"os":    { "size": "-" },
		},
	},
	"image": {
		"info": {
			"platform": "d21x",
			"product": "demo",
			"version": "1.0.0",
			%s
			"media": { "type": "spi-nor", "device_id": 0 },
		},
		"updater": { %s },
		"target": { %s },
	},
}`

const nandConfig = `{
	"spi-nand": {
		"size": "128m",
		"partitions": {
			"spl":  { "size": "1m" },
			"data": { "size": "-", "ubi": { "rootfs": { "size": "32m" }, "user": { "size": "-" } } },
		},
	},
	"image": {
		"info": {
			"platform": "d21x",
			"product": "demo",
			"version": "1.0",
			"media": {
				"type": "spi-nand",
				"array_organization": [
					{ "page": "2k", "block": "128k" },
					{ "page": "4k", "block": "256k" },
				],
			},
		},
		"updater": {
			"spl": { "file": "spl.aic", "attr": "required" },
		},
		"target": {
			"spl":    { "file": "spl.aic", "attr": ["mtd", "required"], "part": "spl" },
			"rootfs": { "file": "rootfs*.ubi", "attr": ["ubi"], "part": "data:rootfs" },
		},
	},
}`

func norFixture(antiRollback, updater, target string) string {
	return fmt.Sprintf(norConfig, antiRollback, updater, target)
}

func parse(t *testing.T, s string) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(s))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return c
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for n, d := range files {
		if err := os.WriteFile(filepath.Join(dir, n), d, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func openContainer(t *testing.T, path string) *Container {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	c, err := Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestBuildMissingOptional(t *testing.T) {
	dir := t.TempDir()
	spl := pattern(4096, 1)
	writeFiles(t, dir, map[string][]byte{"spl.aic": spl})
	cfg := parse(t, norFixture("",
		`"spl": { "file": "spl.aic", "attr": ["required", "run"], "ram": "0x30100000" },
		 "env": { "file": "env.bin", "attr": "optional" },`,
		""))

	rs, err := Build(config.Context{DataDir: dir}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("got %d results, want 1", len(rs))
	}
	r := rs[0]

	wantHdr := api.FirmwareHeader{
		Platform:   "d21x",
		Product:    "demo",
		Version:    "1.0.0",
		MediaType:  "spi-nor",
		MetaOffset: 2048,
		MetaSize:   1024,
		FileOffset: 4096,
		FileSize:   4096,
	}
	if d := cmp.Diff(wantHdr, r.Header); d != "" {
		t.Errorf("header diff (-want +got):\n%s", d)
	}
	hb, err := r.Header.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	wantMetas := []api.ComponentMeta{
		{Name: "image.updater.spl", Offset: 4096, Size: 4096, CRC32: crc32.ChecksumIEEE(spl), RAM: 0x30100000, Attr: "required;run"},
		{Name: "image.info", Offset: 0, Size: 2048, CRC32: crc32.ChecksumIEEE(hb), RAM: api.NoRAM, Attr: "required"},
	}
	if d := cmp.Diff(wantMetas, r.Metas); d != "" {
		t.Errorf("metas diff (-want +got):\n%s", d)
	}

	if got, want := r.Image, filepath.Join(dir, "d21x_demo_v1.0.0.img"); got != want {
		t.Errorf("image %q, want %q", got, want)
	}
	img, err := os.ReadFile(r.Image)
	if err != nil {
		t.Fatal(err)
	}
	if len(img) != 8192 {
		t.Errorf("container is %d bytes, want 8192", len(img))
	}
	if !bytes.Equal(img[4096:], spl) {
		t.Error("spl not found at its offset")
	}

	c := openContainer(t, r.Image)
	if d := cmp.Diff(r.Metas, c.Metas); d != "" {
		t.Errorf("read back metas diff (-built +read):\n%s", d)
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}

	bc, err := os.ReadFile(r.BootConfig)
	if err != nil {
		t.Fatal(err)
	}
	want := bootConfigPreamble + "# spl.aic\nboot0=0x1000@0x1000\nimage=d21x_demo_v1.0.0.img\n"
	if d := cmp.Diff(want, string(bc)); d != "" {
		t.Errorf("boot config diff (-want +got):\n%s", d)
	}
}

func TestBuildLayout(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"spl.aic":    pattern(4096, 1),
		"u-boot.bin": pattern(5000, 2),
		"env.bin":    pattern(100, 3),
		"os.itb":     pattern(3000, 4),
	}
	writeFiles(t, dir, files)
	cfg := parse(t, norFixture(`"anti-rollback": "2",`,
		`"env":   { "file": "env.bin", "attr": "optional" },
		 "spl":   { "file": "spl.aic", "attr": "required" },
		 "uboot": { "file": "u-boot.bin", "attr": "required" },`,
		`"spl":   { "file": "spl.aic", "attr": ["mtd", "required"], "part": "spl" },
		 "uboot": { "file": "u-boot.bin", "attr": ["mtd", "required"], "part": "uboot" },
		 "env":   { "file": "env.bin", "attr": ["mtd", "optional"], "part": ["env"] },
		 "os":    { "file": "os.itb", "attr": ["mtd", "required"], "part": ["os"] },`))

	rs, err := Build(config.Context{DataDir: dir}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := rs[0]
	if got, want := filepath.Base(r.Image), "d21x_demo_v1.0.0_c2.img"; got != want {
		t.Errorf("image %q, want %q", got, want)
	}

	var names []string
	for _, m := range r.Metas {
		names = append(names, m.Name)
	}
	wantNames := []string{
		"image.updater.env", "image.updater.spl", "image.updater.uboot",
		"image.info",
		"image.target.spl", "image.target.uboot", "image.target.env", "image.target.os",
	}
	if d := cmp.Diff(wantNames, names); d != "" {
		t.Errorf("meta order diff (-want +got):\n%s", d)
	}

	if got, want := r.Header.MetaSize, uint32(len(wantNames)*api.MetaSize); got != want {
		t.Errorf("meta size %d, want %d", got, want)
	}
	if got, want := r.Header.FileOffset, uint32(api.Align(2048+uint64(r.Header.MetaSize), 2048)); got != want {
		t.Errorf("file offset %#x, want %#x", got, want)
	}
	next := r.Header.FileOffset
	for _, m := range r.Metas {
		if m.Name == api.InfoName {
			continue
		}
		if m.Offset != next {
			t.Errorf("%s at %#x, want %#x", m.Name, m.Offset, next)
		}
		if m.Offset%api.DataAlign != 0 {
			t.Errorf("%s at %#x is not aligned", m.Name, m.Offset)
		}
		next += uint32(api.Align(uint64(m.Size), api.DataAlign))
	}
	if got, want := r.Header.FileOffset+r.Header.FileSize, next; got != want {
		t.Errorf("file area ends at %#x, want %#x", got, want)
	}

	c := openContainer(t, r.Image)
	if err := c.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	s, err := c.Component("image.target.os")
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, s.Size())
	if _, err := s.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, files["os.itb"]) {
		t.Error("image.target.os content differs from os.itb")
	}
	if m, _ := c.Meta("image.target.env"); m.Partition != "env" || m.Attr != "mtd;optional" {
		t.Errorf("image.target.env partition %q attr %q", m.Partition, m.Attr)
	}

	bc, err := os.ReadFile(r.BootConfig)
	if err != nil {
		t.Fatal(err)
	}
	env, _ := c.Meta("image.updater.env")
	spl, _ := c.Meta("image.updater.spl")
	uboot, _ := c.Meta("image.updater.uboot")
	want := bootConfigPreamble +
		fmt.Sprintf("# spl.aic\nboot0=%#x@%#x\n", spl.Size, spl.Offset) +
		fmt.Sprintf("# u-boot.bin\nboot1=%#x@%#x\n", uboot.Size, uboot.Offset) +
		fmt.Sprintf("# env.bin\nenv=%#x@%#x\n", env.Size, env.Offset) +
		"image=d21x_demo_v1.0.0_c2.img\n"
	if d := cmp.Diff(want, string(bc)); d != "" {
		t.Errorf("boot config diff (-want +got):\n%s", d)
	}
}

func TestBuildEmptyComponent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"spl.aic": pattern(4096, 1),
		"env.bin": {},
		"os.itb":  pattern(100, 2),
	})
	cfg := parse(t, norFixture("",
		`"spl": { "file": "spl.aic", "attr": "required" },
		 "env": { "file": "env.bin", "attr": "optional" },`,
		`"os": { "file": "os.itb", "attr": "required", "part": "os" },`))

	rs, err := Build(config.Context{DataDir: dir}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := rs[0]

	var got []string
	for _, m := range r.Metas {
		got = append(got, fmt.Sprintf("%s@%#x+%d", m.Name, m.Offset, m.Size))
	}
	want := []string{
		"image.updater.spl@0x1000+4096",
		"image.info@0x0+2048",
		"image.target.os@0x2000+100",
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("metas diff (-want +got):\n%s", d)
	}
	if got, want := r.Header.MetaSize, uint32(3*api.MetaSize); got != want {
		t.Errorf("meta size %d, want %d", got, want)
	}
	if err := openContainer(t, r.Image).Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	bc, err := os.ReadFile(r.BootConfig)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(bc), "env=") {
		t.Errorf("boot config references the empty env:\n%s", bc)
	}
}

func TestBuildMissingRequired(t *testing.T) {
	dir := t.TempDir()
	cfg := parse(t, norFixture("", `"spl": { "file": "spl.aic", "attr": "required" },`, ""))
	_, err := Build(config.Context{DataDir: dir}, cfg)
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("Build: got %v, want %v", err, ErrMissingFile)
	}
	if !strings.Contains(err.Error(), "image.updater.spl") {
		t.Errorf("error %q does not name the component", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "d21x_demo_v1.0.0.img")); !os.IsNotExist(err) {
		t.Errorf("container written despite error: %v", err)
	}
}

func TestBuildNANDVariants(t *testing.T) {
	for _, test := range []struct {
		desc         string
		files        []string
		wantVariants []string
		wantErr      bool
	}{
		{
			desc:         "all geometries",
			files:        []string{"rootfs_page_2k_block_128k.ubi", "rootfs_page_4k_block_256k.ubi"},
			wantVariants: []string{"page_2k_block_128k", "page_4k_block_256k"},
		}, {
			desc:         "one geometry missing",
			files:        []string{"rootfs_page_4k_block_256k.ubi"},
			wantVariants: []string{"page_4k_block_256k"},
		}, {
			desc:    "none",
			wantErr: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string][]byte{"spl.aic": pattern(2048, 7)}
			for i, f := range test.files {
				files[f] = pattern(10000+i, byte(i))
			}
			writeFiles(t, dir, files)
			cfg := parse(t, nandConfig)

			rs, err := Build(config.Context{DataDir: dir}, cfg)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Build: %v, wantErr %v", err, test.wantErr)
			}
			if test.wantErr {
				if !errors.Is(err, ErrMissingFile) {
					t.Errorf("got %v, want %v", err, ErrMissingFile)
				}
				return
			}

			var variants []string
			for _, r := range rs {
				variants = append(variants, r.Variant)
				if got, want := r.Header.Product, "demo_"+r.Variant; got != want {
					t.Errorf("product %q, want %q", got, want)
				}
				if got, want := r.Header.NANDArrayOrg, "P=2K,B=128K;P=4K,B=256K"; got != want {
					t.Errorf("nand_array_org %q, want %q", got, want)
				}
				if got, want := filepath.Base(r.Image), "d21x_demo_"+r.Variant+"_v1.0.img"; got != want {
					t.Errorf("image %q, want %q", got, want)
				}
				if got, want := filepath.Base(r.BootConfig), "bootcfg.txt("+r.Variant+")"; got != want {
					t.Errorf("boot config %q, want %q", got, want)
				}
				c := openContainer(t, r.Image)
				if err := c.Verify(); err != nil {
					t.Errorf("Verify: %v", err)
				}
				m, ok := c.Meta("image.target.rootfs")
				if !ok {
					t.Fatal("no rootfs component")
				}
				if want := files["rootfs_"+r.Variant+".ubi"]; int(m.Size) != len(want) || m.CRC32 != crc32.ChecksumIEEE(want) {
					t.Errorf("rootfs is not the %s image", r.Variant)
				}
				if m.Partition != "data:rootfs" {
					t.Errorf("rootfs partition %q", m.Partition)
				}
			}
			if d := cmp.Diff(test.wantVariants, variants); d != "" {
				t.Errorf("variants diff (-want +got):\n%s", d)
			}
			if got, _ := cfg.Image.Target.Get("rootfs"); got.File != "rootfs*.ubi" {
				t.Errorf("configuration modified: rootfs file is %q", got.File)
			}
		})
	}
}

func TestVerifyCorruption(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"spl.aic": pattern(4096, 1)})
	cfg := parse(t, norFixture("", `"spl": { "file": "spl.aic", "attr": "required" },`, ""))
	rs, err := Build(config.Context{DataDir: dir}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := os.ReadFile(rs[0].Image)
	if err != nil {
		t.Fatal(err)
	}

	for _, test := range []struct {
		desc    string
		off     int
		wantMsg string
	}{
		{desc: "component", off: 5000, wantMsg: "image.updater.spl: CRC"},
		{desc: "header", off: 100, wantMsg: "image.info: CRC"},
	} {
		t.Run(test.desc, func(t *testing.T) {
			bad := append([]byte(nil), img...)
			bad[test.off] ^= 0xff
			c, err := Open(bytes.NewReader(bad))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			err = c.Verify()
			if err == nil || !strings.Contains(err.Error(), test.wantMsg) {
				t.Errorf("Verify: got %v, want error containing %q", err, test.wantMsg)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	huge := api.FirmwareHeader{
		Platform:   "d21x",
		MetaOffset: api.FirmwareHeaderSize,
		MetaSize:   0xFFFFFE00,
		FileOffset: 0,
	}
	hugeHdr, err := huge.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		desc string
		img  []byte
	}{
		{desc: "short", img: make([]byte, 100)},
		{desc: "bad magic", img: make([]byte, 4096)},
		{desc: "meta area beyond end of file", img: hugeHdr},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := Open(bytes.NewReader(test.img)); err == nil {
				t.Error("Open: got nil error")
			}
		})
	}
}

func TestBootConfig(t *testing.T) {
	metas := []api.ComponentMeta{
		{Name: "image.updater.uboot", Offset: 0x3000, Size: 0x2000},
		{Name: "image.updater.spl", Offset: 0x2000, Size: 0x800},
		{Name: "image.updater.env", Offset: 0x5000, Size: 0},
		{Name: "image.info", Size: 2048},
		{Name: "image.target.spl", Offset: 0x2000, Size: 0x800},
	}
	files := map[string]string{
		"image.updater.uboot": "u-boot.bin",
		"image.updater.spl":   "spl.aic",
		"image.updater.env":   "env.bin",
	}
	got := string(BootConfig("x.img", metas, files))
	want := bootConfigPreamble +
		"# spl.aic\nboot0=0x800@0x2000\n" +
		"# u-boot.bin\nboot1=0x2000@0x3000\n" +
		"image=x.img\n"
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("BootConfig diff (-want +got):\n%s", d)
	}
}

func TestPreprocess(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"loader.bin": pattern(3000, 9),
		"env.txt":    []byte("# boot settings\nbootdelay=0\n\nbootcmd=run boot_os\n"),
	})
	cfg := parse(t, strings.Replace(norFixture("", "", ""), `"image": {`, `"temporary": {
		"aicboot": {
			"boot.aic": { "loader": { "file": "loader.bin", "load address": "0x30100000", "run in dram": "false" } },
		},
		"uboot_env": {
			"env.bin": { "file": "env.txt", "size": "0x1000", "redundant": "enable" },
		},
	},
	"image": {`, 1))

	if err := Preprocess(config.Context{DataDir: dir}, cfg); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	boot, err := os.ReadFile(filepath.Join(dir, "boot.aic"))
	if err != nil {
		t.Fatal(err)
	}
	if err := bootimg.Verify(boot, nil); err != nil {
		t.Errorf("boot image: %v", err)
	}

	env, err := os.ReadFile(filepath.Join(dir, "env.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(env) != 0x1000 {
		t.Errorf("environment is %d bytes, want %d", len(env), 0x1000)
	}
	entries, err := envimg.Parse(env, true)
	if err != nil {
		t.Fatalf("envimg.Parse: %v", err)
	}
	want := []string{
		"MTD=spi0.0:256k(spl),512k(uboot),64k(env),-(os)",
		"bootdelay=0",
		"bootcmd=run boot_os",
	}
	if d := cmp.Diff(want, entries); d != "" {
		t.Errorf("environment diff (-want +got):\n%s", d)
	}
}

func TestPreprocessITB(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell")
	}
	dir := t.TempDir()
	bin := t.TempDir()
	// The fake mkimage records its arguments in the output file.
	script := "#!/bin/sh\nfor out; do :; done\necho \"$@\" > \"$out\"\n"
	if err := os.WriteFile(filepath.Join(bin, "mkimage"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "keys"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, dir, map[string][]byte{
		"kernel.its":   []byte("/dts-v1/;"),
		"u-boot.dtb":   []byte("DTB"),
		"u-boot-nodtb": []byte("UBOOT"),
	})
	cfg := parse(t, strings.Replace(norFixture("", "", ""), `"image": {`, `"temporary": {
		"itb": {
			"kernel.itb": {
				"its": "kernel.its",
				"dtb": "u-boot.dtb",
				"keydir": "keys",
				"bin": { "src": "u-boot-nodtb", "dst": "u-boot.bin" },
			},
		},
	},
	"image": {`, 1))

	ctx := config.Context{DataDir: dir, BinDir: bin}
	if err := Preprocess(ctx, cfg); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	args, err := os.ReadFile(filepath.Join(dir, "kernel.itb"))
	if err != nil {
		t.Fatal(err)
	}
	wantArgs := strings.Join([]string{
		"-E", "-f", filepath.Join(dir, "kernel.its"),
		"-k", filepath.Join(dir, "keys"),
		"-K", filepath.Join(dir, "u-boot.dtb"),
		"-r", filepath.Join(dir, "kernel.itb"),
	}, " ") + "\n"
	if d := cmp.Diff(wantArgs, string(args)); d != "" {
		t.Errorf("mkimage arguments diff (-want +got):\n%s", d)
	}

	got, err := os.ReadFile(filepath.Join(dir, "u-boot.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff("UBOOTDTB", string(got)); d != "" {
		t.Errorf("u-boot.bin diff (-want +got):\n%s", d)
	}
}

func TestPlanDoesNotMutateConfig(t *testing.T) {
	cfg := parse(t, nandConfig)
	p := newPlan(cfg, "_page_2k_block_128k")
	var rootfs *component
	for _, c := range p.components {
		if c.section == config.SectionTarget && c.name == "rootfs" {
			rootfs = c
		}
	}
	if rootfs == nil {
		t.Fatal("no rootfs component in plan")
	}
	if got, want := rootfs.file, "rootfs_page_2k_block_128k.ubi"; got != want {
		t.Errorf("rootfs file %q, want %q", got, want)
	}
	orig, _ := cfg.Image.Target.Get("rootfs")
	if diff := cmp.Diff(config.Component{File: "rootfs*.ubi", Attr: config.StringList{"ubi"}, Part: config.StringList{"data:rootfs"}}, orig, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("configuration component diff (-want +got):\n%s", diff)
	}
}
