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

// Package config loads image configuration files.
//
// An image configuration describes the flash media and its partitions, the
// firmware components packed into the firmware container, and the
// preprocessing steps (boot images, U-Boot environments, FIT images) which
// produce some of those components.
package config

import (
	"errors"
	"strings"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid image configuration")

// Supported media types.
const (
	MediaSPINOR  = "spi-nor"
	MediaSPINAND = "spi-nand"
	MediaMMC     = "mmc"
)

// Supported boot image algorithms.
const (
	AlgoAES128CBC = "aes-128-cbc"
	AlgoRSA2048   = "rsa,2048"
)

// Component sections of the firmware container, in emission order.
const (
	SectionUpdater = "updater"
	SectionTarget  = "target"
)

// Config is a parsed and validated image configuration.
type Config struct {
	// Image describes the firmware container.
	Image Image
	// Layout is the partition layout of the media named by Image.Info.Media.Type.
	Layout Layout
	// Temporary lists the preprocessing steps run before the container is built.
	Temporary Temporary
}

// Image is the "image" section.
type Image struct {
	Info    Info               `json:"info"`
	Updater Ordered[Component] `json:"updater"`
	Target  Ordered[Component] `json:"target"`
}

// Section returns the components of the named section.
func (i *Image) Section(name string) *Ordered[Component] {
	switch name {
	case SectionUpdater:
		return &i.Updater
	case SectionTarget:
		return &i.Target
	}
	return nil
}

// Info identifies the firmware and the media it is meant for.
type Info struct {
	Platform     Scalar `json:"platform"`
	Product      Scalar `json:"product"`
	Version      Scalar `json:"version"`
	AntiRollback Scalar `json:"anti-rollback,omitempty"`
	Media        Media  `json:"media"`
}

// Media describes the storage device.
type Media struct {
	Type     string   `json:"type"`
	DeviceID DeviceID `json:"device_id"`
	// ArrayOrganization lists the SPI-NAND geometries the firmware supports.
	ArrayOrganization []NANDOrganization `json:"array_organization,omitempty"`
}

// NANDOrganization is one SPI-NAND page/block geometry.
type NANDOrganization struct {
	Page  string `json:"page"`
	Block string `json:"block"`
	OOB   string `json:"oob,omitempty"`
}

// Layout is the media section ("spi-nor", "spi-nand" or "mmc").
type Layout struct {
	Size       string             `json:"size,omitempty"`
	Partitions Ordered[Partition] `json:"partitions"`
}

// Partition is one entry of the partition table.
type Partition struct {
	Size   string           `json:"size"`
	Offset string           `json:"offset,omitempty"`
	UBI    *Ordered[Volume] `json:"ubi,omitempty"`
	NFTL   *Ordered[Volume] `json:"nftl,omitempty"`
}

// Volume is a UBI or NFTL volume inside a partition.
type Volume struct {
	Size   string `json:"size"`
	Offset string `json:"offset,omitempty"`
}

// HasPartition reports whether ref names a partition of the layout. A
// reference of the form "part:volume" names a UBI volume inside part.
func (l *Layout) HasPartition(ref string) bool {
	name, vol, isVol := strings.Cut(ref, ":")
	p, ok := l.Partitions.Get(name)
	if !ok {
		return false
	}
	if !isVol {
		return true
	}
	_, ok = p.UBI.Get(vol)
	return ok
}

// Component is a firmware component packed into the container.
type Component struct {
	// File is the component's file, relative to the data directory. It may
	// contain a '*' which is replaced per SPI-NAND geometry.
	File string `json:"file"`
	// Attr holds flags such as "required", "optional" or "ubi".
	Attr StringList `json:"attr,omitempty"`
	// Part lists the partitions (or "part:volume" references) the component is burnt to.
	Part StringList `json:"part,omitempty"`
	// RAM is the hexadecimal load address, if the component is loaded to RAM.
	RAM string `json:"ram,omitempty"`
}

// Required reports whether a missing file is an error.
func (c Component) Required() bool { return c.Attr.Has("required") }

// Optional reports whether the component is flagged optional.
func (c Component) Optional() bool { return c.Attr.Has("optional") }

// UBI reports whether the component is a UBI image.
func (c Component) UBI() bool { return c.Attr.Has("ubi") }

// Temporary is the preprocessing section.
type Temporary struct {
	AICBoot  Ordered[BootImage] `json:"aicboot"`
	UBootEnv Ordered[EnvImage]  `json:"uboot_env"`
	ITB      Ordered[ITB]       `json:"itb"`
}

// BootImage configures one boot ROM image.
type BootImage struct {
	HeadVer      string      `json:"head_ver,omitempty"`
	AntiRollback uint32      `json:"anti-rollback counter,omitempty"`
	Loader       *Loader     `json:"loader,omitempty"`
	Resource     *Resource   `json:"resource,omitempty"`
	Encryption   *Encryption `json:"encryption,omitempty"`
	Signature    *Signature  `json:"signature,omitempty"`
}

// Loader is the second stage loader carried by a boot image.
type Loader struct {
	File        string `json:"file"`
	LoadAddress string `json:"load address,omitempty"`
	EntryPoint  string `json:"entry point,omitempty"`
	RunInDRAM   string `json:"run in dram,omitempty"`
}

// InDRAM reports whether the loader runs from DRAM, in which case it is
// carried by an extension image. Unless explicitly disabled, it does.
func (l *Loader) InDRAM() bool {
	return l != nil && !strings.EqualFold(strings.TrimSpace(l.RunInDRAM), "false")
}

// Resource lists the files of a boot image's resource section.
type Resource struct {
	Private string `json:"private,omitempty"`
	PubKey  string `json:"pubkey,omitempty"`
	PBP     string `json:"pbp,omitempty"`
}

// Encryption configures encryption of the loader.
type Encryption struct {
	Algo string `json:"algo"`
	Key  string `json:"key"`
	IV   string `json:"iv"`
}

// Signature configures the boot image signature.
type Signature struct {
	Algo    string `json:"algo"`
	PrivKey string `json:"privkey"`
}

// EnvImage configures a U-Boot environment blob.
type EnvImage struct {
	File      string `json:"file"`
	Size      string `json:"size"`
	Redundant string `json:"redundant,omitempty"`
}

// IsRedundant reports whether the environment has a redundant copy flag.
func (e EnvImage) IsRedundant() bool {
	return strings.Contains(strings.ToLower(e.Redundant), "enable")
}

// ITB configures a FIT image built by mkimage.
type ITB struct {
	ITS    string  `json:"its"`
	DTB    string  `json:"dtb,omitempty"`
	KeyDir string  `json:"keydir,omitempty"`
	Bin    *ITBBin `json:"bin,omitempty"`
}

// ITBBin asks for Src to be concatenated with the DTB into Dst.
type ITBBin struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}
