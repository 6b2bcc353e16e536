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

// Package verify provides verification functions for firmware releases.
package verify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/fwimg"
	"golang.org/x/mod/sumdb/note"
)

// NewRelease describes the firmware container image as an unsigned
// FirmwareRelease, committing to the container itself and to each of its
// components.
func NewRelease(image []byte, description string) (*api.FirmwareRelease, error) {
	c, err := fwimg.Open(bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, fmt.Errorf("invalid container: %v", err)
	}
	comps, err := components(c, image)
	if err != nil {
		return nil, err
	}
	hashes := make([][]byte, 0, len(comps))
	for _, rc := range comps {
		hashes = append(hashes, rc.SHA256)
	}
	root, err := ComponentRoot(hashes)
	if err != nil {
		return nil, err
	}
	return &api.FirmwareRelease{
		Description: description,
		PlatformID:  c.Header.Platform,
		Product:     c.Header.Product,
		Revision:    c.Header.Version,
		Media:       c.Header.MediaType,
		ArtifactSHA256: map[string][]byte{
			api.ContainerArtifactName: sha256Sum(image),
		},
		Components:    comps,
		ComponentRoot: root,
	}, nil
}

func components(c *fwimg.Container, image []byte) ([]api.ReleaseComponent, error) {
	var r []api.ReleaseComponent
	for _, m := range c.Metas {
		end := uint64(m.Offset) + uint64(m.Size)
		if end > uint64(len(image)) {
			return nil, fmt.Errorf("%s ends at %#x, beyond the end of the container (%#x)", m.Name, end, len(image))
		}
		r = append(r, api.ReleaseComponent{
			Name:      m.Name,
			Partition: m.Partition,
			Offset:    m.Offset,
			Size:      m.Size,
			CRC32:     m.CRC32,
			SHA256:    sha256Sum(image[m.Offset:end]),
		})
	}
	return r, nil
}

// Release verifies a signed FirmwareRelease manifest against the firmware
// container image it describes.
//
// For the release to be considered good, we need to:
//  1. check the signature on the manifest
//  2. check that the container hash is the one the manifest commits to
//  3. check that the container is self-consistent (layout and CRCs)
//  4. check that every component has the location and hash claimed by the manifest
//  5. recompute the component root from the manifest's component hashes
func Release(signed []byte, v note.Verifier, image []byte) (*api.FirmwareRelease, error) {
	fr := &api.FirmwareRelease{}
	{
		frRaw, err := note.Open(signed, note.VerifierList(v))
		if err != nil {
			return nil, fmt.Errorf("invalid signature on FirmwareRelease: %v", err)
		}
		if err := json.Unmarshal([]byte(frRaw.Text), fr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal FirmwareRelease: %v", err)
		}
	}

	if err := Artifacts(fr, map[string][]byte{api.ContainerArtifactName: sha256Sum(image)}); err != nil {
		return nil, err
	}

	got, err := NewRelease(image, fr.Description)
	if err != nil {
		return nil, err
	}
	if g, w := len(got.Components), len(fr.Components); g != w {
		return nil, fmt.Errorf("container has %d components, FirmwareRelease claims %d", g, w)
	}
	for i, c := range got.Components {
		want := fr.Components[i]
		if c.Name != want.Name || c.Offset != want.Offset || c.Size != want.Size || c.CRC32 != want.CRC32 {
			return nil, fmt.Errorf("component %d is %s at %#x (%d bytes, crc %08x), FirmwareRelease claims %s at %#x (%d bytes, crc %08x)",
				i, c.Name, c.Offset, c.Size, c.CRC32, want.Name, want.Offset, want.Size, want.CRC32)
		}
		if !bytes.Equal(c.SHA256, want.SHA256) {
			return nil, fmt.Errorf("component hash for %q is %x, but FirmwareRelease claims %x", c.Name, c.SHA256, want.SHA256)
		}
	}

	hashes := make([][]byte, 0, len(fr.Components))
	for _, c := range fr.Components {
		hashes = append(hashes, c.SHA256)
	}
	root, err := ComponentRoot(hashes)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(root, fr.ComponentRoot) {
		return nil, fmt.Errorf("component root is %x, but FirmwareRelease claims %x", root, fr.ComponentRoot)
	}
	return fr, nil
}

// Artifacts checks that the provided artifact hashes are the same as the
// ones claimed by the FirmwareRelease manifest.
func Artifacts(fr *api.FirmwareRelease, artifactHashes map[string][]byte) error {
	for artifact, expected := range artifactHashes {
		h, ok := fr.ArtifactSHA256[artifact]
		if !ok {
			return fmt.Errorf("FirmwareRelease does not commit to artifact hash for %q", artifact)
		}
		if !bytes.Equal(expected, h) {
			return fmt.Errorf("expected artifact hash for %q is %x, but FirmwareRelease claims %x", artifact, expected, h)
		}
	}
	return nil
}

// Sign marshals fr and signs it as a note.
func Sign(fr *api.FirmwareRelease, s note.Signer) ([]byte, error) {
	frRaw, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal FirmwareRelease: %v", err)
	}
	n, err := note.Sign(&note.Note{Text: string(frRaw) + "\n"}, s)
	if err != nil {
		return nil, fmt.Errorf("failed to sign FirmwareRelease: %v", err)
	}
	return n, nil
}
