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

package verify

import (
	"crypto/sha256"
	"fmt"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"
)

// ComponentRoot returns the RFC 6962 Merkle tree root over the given
// component SHA256 hashes, in order.
func ComponentRoot(hashes [][]byte) ([]byte, error) {
	h := rfc6962.DefaultHasher
	if len(hashes) == 0 {
		return h.EmptyRoot(), nil
	}
	tree := (&compact.RangeFactory{Hash: h.HashChildren}).NewEmptyRange(0)
	for i, c := range hashes {
		if err := tree.Append(h.HashLeaf(c), nil); err != nil {
			return nil, fmt.Errorf("error while appending component %d: %v", i, err)
		}
	}
	r, err := tree.GetRootHash(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get root from compact tree: %v", err)
	}
	return r, nil
}

func sha256Sum(b []byte) []byte {
	s := sha256.Sum256(b)
	return s[:]
}
