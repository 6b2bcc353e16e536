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

// Package api contains the public on-disk structures of firmware images:
// the boot image header read by the boot ROM, the firmware container header
// and meta records read by updaters, and the release manifest describing a
// built container.
package api

const (
	// ContainerArtifactName is the name of the firmware container which is
	// expected to be present in the ArtifactSHA256 map of valid FirmwareRelease
	// instances.
	ContainerArtifactName = "firmware.img"
	// BootConfigArtifactName is the name of the boot configuration file.
	BootConfigArtifactName = "bootcfg.txt"
)

// FirmwareRelease represents a firmware release, and commits to the contents
// of the firmware container and every component inside it.
type FirmwareRelease struct {
	// Description is a human readable description of the firmware release.
	Description string `json:"description"`

	// PlatformID identifies the SoC platform this release targets, e.g. "d21x".
	PlatformID string `json:"platform_id"`

	// Product identifies the board or product.
	Product string `json:"product"`

	// Revision identifies the revision of this release.
	// e.g. "1.0.0"
	Revision string `json:"revision"`

	// AntiRollback is the anti-rollback counter of the release, if any.
	AntiRollback string `json:"anti_rollback,omitempty"`

	// Media is the type of storage the container is burnt to.
	Media string `json:"media"`

	// ArtifactSHA256 contains the SHA256 hashes of the named release artifacts.
	ArtifactSHA256 map[string][]byte `json:"artifact_sha256"`

	// Components describes every component packed in the container, in
	// container order.
	Components []ReleaseComponent `json:"components"`

	// ComponentRoot is the RFC 6962 Merkle tree root over the SHA256 hashes
	// of Components, in order.
	ComponentRoot []byte `json:"component_root"`
}

// ReleaseComponent describes one component of a released container.
type ReleaseComponent struct {
	Name      string `json:"name"`
	Partition string `json:"partition,omitempty"`
	Offset    uint32 `json:"offset"`
	Size      uint32 `json:"size"`
	CRC32     uint32 `json:"crc32"`
	SHA256    []byte `json:"sha256"`
}
