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

package bootimg

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/artinchip/aicimg/api"
)

// Parse decodes the header of the boot image img and checks that the image
// is as long as the header claims.
func Parse(img []byte) (*api.BootHeader, error) {
	h := &api.BootHeader{}
	if err := h.UnmarshalBinary(img); err != nil {
		return nil, err
	}
	if int(h.ImageLength) > len(img) || h.ImageLength < api.BootHeaderSize {
		return nil, fmt.Errorf("image length %d does not fit the %d bytes available", h.ImageLength, len(img))
	}
	if uint64(h.SignOffset)+uint64(h.SignLength) > uint64(h.ImageLength) {
		return nil, fmt.Errorf("trailer at %#x+%d is outside the image", h.SignOffset, h.SignLength)
	}
	return h, nil
}

// Extension returns the extension image following img, if there is one.
func Extension(img []byte) ([]byte, bool, error) {
	h, err := Parse(img)
	if err != nil {
		return nil, false, err
	}
	if h.LoaderExtOffset == 0 {
		return nil, false, nil
	}
	if int(h.LoaderExtOffset) >= len(img) {
		return nil, false, fmt.Errorf("extension image offset %#x is beyond the end of the image", h.LoaderExtOffset)
	}
	return img[h.LoaderExtOffset:], true, nil
}

// Verify checks the trailer of img and of its extension image, if any.
// Signed images are checked against pub, which may be nil for images which
// aren't signed. Unsigned images must carry a valid MD5 digest and sum to
// zero.
func Verify(img []byte, pub *rsa.PublicKey) error {
	if err := verifyOne(img, pub); err != nil {
		return err
	}
	ext, ok, err := Extension(img)
	if err != nil || !ok {
		return err
	}
	if err := verifyOne(ext, pub); err != nil {
		return fmt.Errorf("extension image: %w", err)
	}
	return nil
}

func verifyOne(img []byte, pub *rsa.PublicKey) error {
	h, err := Parse(img)
	if err != nil {
		return err
	}
	img = img[:h.ImageLength]
	body, trailer := img[:h.SignOffset], img[h.SignOffset:h.SignOffset+h.SignLength]

	switch h.SignAlgo {
	case api.SignAlgoRSA2048:
		if pub == nil {
			return errors.New("image is signed, but no public key was given")
		}
		digest := sha256.Sum256(body)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], trailer); err != nil {
			return fmt.Errorf("invalid signature: %v", err)
		}
		return nil
	case api.SignAlgoMD5:
		digest := md5.Sum(body[8:])
		if !bytes.Equal(digest[:], trailer) {
			return fmt.Errorf("md5 mismatch: image has %x, computed %x", trailer, digest)
		}
		if s := wordSum(img); s != 0 {
			return fmt.Errorf("%w: words sum to %#x", ErrChecksum, s)
		}
		return nil
	}
	return fmt.Errorf("unknown signature algorithm %d", h.SignAlgo)
}

// Decrypt returns the decrypted loader region of an encrypted boot image,
// including its zero padding.
func Decrypt(img, key []byte) ([]byte, error) {
	h, err := Parse(img)
	if err != nil {
		return nil, err
	}
	if h.EncAlgo != api.EncAlgoAES128CBC {
		return nil, errors.New("image is not encrypted")
	}
	if len(key) < aesKeySize {
		return nil, fmt.Errorf("aes key is %d bytes, need %d", len(key), aesKeySize)
	}
	n := api.Align(uint64(h.LoaderLength), loaderAlign)
	if api.BootHeaderSize+n > uint64(h.ImageLength) {
		return nil, fmt.Errorf("loader of %d bytes does not fit the image", h.LoaderLength)
	}
	if h.IVLength != ivSize || uint64(h.IVOffset)+ivSize > uint64(h.ImageLength) {
		return nil, fmt.Errorf("bad iv at %#x+%d", h.IVOffset, h.IVLength)
	}
	block, err := aes.NewCipher(key[:aesKeySize])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	iv := img[h.IVOffset : h.IVOffset+ivSize]
	out := make([]byte, n)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, img[api.BootHeaderSize:api.BootHeaderSize+n])
	return out, nil
}
