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

// Package bootimg assembles boot images for the boot ROM.
//
// A boot image is a 256 byte header, an optional loader (optionally AES
// encrypted), a resource section, and a trailer holding either an RSA-2048
// signature or an MD5 digest. When the loader runs from DRAM it is carried
// by a second, self contained extension image appended to the first.
package bootimg

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/artinchip/aicimg/api"
	"github.com/artinchip/aicimg/config"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
)

// ErrChecksum is returned when an image's words don't sum to zero.
var ErrChecksum = errors.New("boot image checksum mismatch")

const (
	// MaxLoaderSize is the largest loader a boot image can carry.
	MaxLoaderSize = 4 * config.MiB

	loaderAlign   = 256
	privateAlign  = 4
	pubKeyAlign   = 4
	ivAlign       = 4
	pbpAlign      = 16
	resourceAlign = 256
	// ExtAlign is the alignment of the extension image.
	ExtAlign = 512

	md5Size    = md5.Size
	rsaSigSize = 256
	ivSize     = aes.BlockSize
	aesKeySize = 16
)

// inputs holds the files a boot image is made of.
type inputs struct {
	loader  []byte
	private []byte
	pubKey  []byte
	pbp     []byte
	iv      []byte
	key     []byte
	signer  *rsa.PrivateKey
}

// layout describes one image, primary or extension.
type layout struct {
	headVer     uint32
	fwVer       uint32
	loadAddress uint32
	entryPoint  uint32
	// loader is placed in the image; loaderLength is what the header reports.
	loader       []byte
	loaderLength uint32
	encAlgo      uint32
	key          []byte
	private      []byte
	pubKey       []byte
	iv           []byte
	pbp          []byte
	hasExt       bool
	signer       *rsa.PrivateKey
}

// Build assembles the boot image configured by b. Files are looked up with
// ctx: the loader and pbp in the data directory, key material in the key
// directory and then the data directory.
func Build(ctx config.Context, b *config.BootImage) ([]byte, error) {
	if err := checkParams(b); err != nil {
		return nil, err
	}
	in, err := load(ctx, b)
	if err != nil {
		return nil, err
	}

	headVer := uint32(api.DefaultBootHeadVersion)
	if b.HeadVer != "" {
		if headVer, err = config.ParseHex(b.HeadVer); err != nil {
			return nil, fmt.Errorf("%w: head_ver: %v", config.ErrConfig, err)
		}
	}
	var loadAddress, entryPoint uint32
	if l := b.Loader; l != nil {
		if l.LoadAddress != "" {
			if loadAddress, err = config.ParseHex(l.LoadAddress); err != nil {
				return nil, fmt.Errorf("%w: load address: %v", config.ErrConfig, err)
			}
		}
		if l.EntryPoint != "" {
			if entryPoint, err = config.ParseHex(l.EntryPoint); err != nil {
				return nil, fmt.Errorf("%w: entry point: %v", config.ErrConfig, err)
			}
		}
	}

	inDRAM := b.Loader.InDRAM()
	primary := layout{
		headVer:     headVer,
		fwVer:       b.AntiRollback,
		loadAddress: loadAddress,
		entryPoint:  entryPoint,
		private:     in.private,
		pubKey:      in.pubKey,
		iv:          in.iv,
		pbp:         in.pbp,
		hasExt:      inDRAM,
		signer:      in.signer,
	}
	if b.Encryption != nil {
		primary.encAlgo = api.EncAlgoAES128CBC
		primary.key = in.key
	}
	if !inDRAM {
		primary.loader = in.loader
		primary.loaderLength = uint32(len(in.loader))
	}
	img, err := assemble(primary)
	if err != nil {
		return nil, err
	}
	if !inDRAM {
		return img, nil
	}

	ext, err := assemble(layout{
		headVer:      headVer,
		loadAddress:  loadAddress,
		entryPoint:   entryPoint,
		loader:       in.loader,
		loaderLength: uint32(len(in.loader)),
		private:      in.private,
		pubKey:       in.pubKey,
		signer:       in.signer,
	})
	if err != nil {
		return nil, fmt.Errorf("extension image: %w", err)
	}
	padded := make([]byte, int(api.Align(uint64(len(img)), ExtAlign)), len(img)+len(ext)+ExtAlign)
	copy(padded, img)
	glog.V(1).Infof("Extension image at %#x, %s", len(padded), humanize.IBytes(uint64(len(ext))))
	return append(padded, ext...), nil
}

// checkParams rejects unsupported algorithms before any file is read.
func checkParams(b *config.BootImage) error {
	if e := b.Encryption; e != nil && e.Algo != config.AlgoAES128CBC {
		return fmt.Errorf("%w: unsupported encryption algorithm %q, only %q is supported", config.ErrConfig, e.Algo, config.AlgoAES128CBC)
	}
	if s := b.Signature; s != nil && s.Algo != config.AlgoRSA2048 {
		return fmt.Errorf("%w: unsupported signature algorithm %q, only %q is supported", config.ErrConfig, s.Algo, config.AlgoRSA2048)
	}
	return nil
}

func load(ctx config.Context, b *config.BootImage) (*inputs, error) {
	in := &inputs{}
	var err error
	read := func(find func(string) (string, error), name, what string) ([]byte, error) {
		p, err := find(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		d, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", what, err)
		}
		return d, nil
	}

	if l := b.Loader; l != nil {
		if in.loader, err = read(ctx.FindData, l.File, "loader"); err != nil {
			return nil, err
		}
		if len(in.loader) == 0 {
			return nil, fmt.Errorf("loader %q is empty", l.File)
		}
		if len(in.loader) > MaxLoaderSize {
			return nil, fmt.Errorf("loader %q is %s, larger than the %s limit", l.File, humanize.IBytes(uint64(len(in.loader))), humanize.IBytes(MaxLoaderSize))
		}
	}
	if r := b.Resource; r != nil {
		if r.Private != "" {
			if in.private, err = read(ctx.FindKey, r.Private, "private data"); err != nil {
				return nil, err
			}
		}
		if r.PubKey != "" {
			if in.pubKey, err = read(ctx.FindKey, r.PubKey, "public key"); err != nil {
				return nil, err
			}
		}
		if r.PBP != "" {
			if in.pbp, err = read(ctx.FindData, r.PBP, "pbp"); err != nil {
				return nil, err
			}
		}
	}
	if e := b.Encryption; e != nil {
		if in.iv, err = read(ctx.FindKey, e.IV, "iv"); err != nil {
			return nil, err
		}
		if len(in.iv) < ivSize {
			return nil, fmt.Errorf("iv %q is %d bytes, need %d", e.IV, len(in.iv), ivSize)
		}
		if in.key, err = read(ctx.FindKey, e.Key, "aes key"); err != nil {
			return nil, err
		}
		if len(in.key) < aesKeySize {
			return nil, fmt.Errorf("aes key %q is %d bytes, need %d", e.Key, len(in.key), aesKeySize)
		}
		in.key = in.key[:aesKeySize]
	}
	if s := b.Signature; s != nil {
		keyPEM, err := read(ctx.FindKey, s.PrivKey, "signing key")
		if err != nil {
			return nil, err
		}
		if in.signer, err = ParsePrivateKey(keyPEM); err != nil {
			return nil, fmt.Errorf("signing key %q: %v", s.PrivKey, err)
		}
	}
	return in, nil
}

// pad returns b zero padded to a multiple of a.
func pad(b []byte, a uint64) []byte {
	n := api.Align(uint64(len(b)), a)
	p := make([]byte, n)
	copy(p, b)
	return p
}

// assemble lays out one image and appends its trailer.
func assemble(l layout) ([]byte, error) {
	h := api.BootHeader{
		HeadVersion:     l.headVer,
		FirmwareVersion: l.fwVer,
		LoaderLength:    l.loaderLength,
		LoadAddress:     l.loadAddress,
		EntryPoint:      l.entryPoint,
		EncAlgo:         l.encAlgo,
	}

	var loader []byte
	if len(l.loader) > 0 {
		loader = pad(l.loader, loaderAlign)
		if l.key != nil {
			enc, err := encrypt(loader, l.key, l.iv)
			if err != nil {
				return nil, err
			}
			loader = enc
		}
	}

	start := uint64(api.BootHeaderSize + len(loader))
	var res []byte
	for _, r := range []struct {
		data   []byte
		align  uint64
		offset *uint32
		length *uint32
		size   uint32
	}{
		{l.private, privateAlign, &h.PrivateOffset, &h.PrivateLength, uint32(len(l.private))},
		{l.pubKey, pubKeyAlign, &h.KeyOffset, &h.KeyLength, uint32(len(l.pubKey))},
		{l.iv, ivAlign, &h.IVOffset, &h.IVLength, ivSize},
		{l.pbp, pbpAlign, &h.PBPOffset, &h.PBPLength, uint32(len(l.pbp))},
	} {
		if r.data == nil {
			continue
		}
		*r.offset = uint32(start + uint64(len(res)))
		*r.length = r.size
		res = append(res, pad(r.data, r.align)...)
	}
	res = pad(res, resourceAlign)

	trailer := uint32(md5Size)
	h.SignAlgo = api.SignAlgoMD5
	if l.signer != nil {
		trailer = rsaSigSize
		h.SignAlgo = api.SignAlgoRSA2048
	}
	h.ImageLength = uint32(start) + uint32(len(res)) + trailer
	h.SignOffset = h.ImageLength - trailer
	h.SignLength = trailer
	if l.hasExt {
		h.LoaderExtOffset = uint32(api.Align(uint64(h.ImageLength), ExtAlign))
	}

	hdr, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	img := make([]byte, 0, h.ImageLength)
	img = append(img, hdr...)
	img = append(img, loader...)
	img = append(img, res...)

	glog.V(1).Infof("Boot image: loader %s at %#x, resource %s at %#x, total %s",
		humanize.IBytes(uint64(len(loader))), api.BootHeaderSize,
		humanize.IBytes(uint64(len(res))), start, humanize.IBytes(uint64(h.ImageLength)))

	if l.signer != nil {
		digest := sha256.Sum256(img)
		sig, err := rsa.SignPKCS1v15(rand.Reader, l.signer, crypto.SHA256, digest[:])
		if err != nil {
			return nil, fmt.Errorf("failed to sign boot image: %v", err)
		}
		return append(img, sig...), nil
	}

	digest := md5.Sum(img[8:])
	img = append(img, digest[:]...)
	binary.LittleEndian.PutUint32(img[4:], -wordSum(img))
	if s := wordSum(img); s != 0 {
		return nil, fmt.Errorf("%w: words sum to %#x after patching", ErrChecksum, s)
	}
	return img, nil
}

func encrypt(plain, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv[:ivSize]).CryptBlocks(out, plain)
	return out, nil
}

// wordSum returns the sum of the little endian 32-bit words of b. A short
// tail is zero padded.
func wordSum(b []byte) uint32 {
	var s uint32
	for i := 0; i < len(b); i += 4 {
		var w [4]byte
		copy(w[:], b[i:])
		s += binary.LittleEndian.Uint32(w[:])
	}
	return s
}
