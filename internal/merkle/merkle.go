// Copyright 2025 Blink Labs Software
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

// Package merkle precomputes the sibling hashes ("steps") needed to fold a
// coinbase hash up to a block's merkle root.
package merkle

import (
	"encoding/hex"

	"github.com/blinklabs-io/marlin/internal/codec"
)

type Tree struct {
	steps [][]byte
}

// New builds a tree from transaction hashes in internal byte order. The
// coinbase slot is implied and must not be included.
func New(hashes [][]byte) *Tree {
	level := make([][]byte, 1, len(hashes)+2)
	// Coinbase placeholder
	level[0] = nil
	for _, hash := range hashes {
		level = append(level, append([]byte{}, hash...))
	}
	return &Tree{
		steps: calculateSteps(level),
	}
}

// NewFromHex builds a tree from transaction hashes in display (RPC) order
func NewFromHex(hashes []string) (*Tree, error) {
	tmpHashes := make([][]byte, 0, len(hashes))
	for _, hashHex := range hashes {
		hash, err := codec.DecodeHexLen("transaction hash", hashHex, 32)
		if err != nil {
			return nil, err
		}
		codec.ReverseInPlace(hash)
		tmpHashes = append(tmpHashes, hash)
	}
	return New(tmpHashes), nil
}

func calculateSteps(level [][]byte) [][]byte {
	var steps [][]byte
	for len(level) > 1 {
		steps = append(steps, level[1])
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 1, len(level)/2+1)
		for i := 2; i < len(level); i += 2 {
			next = append(next, join(level[i], level[i+1]))
		}
		level = next
	}
	return steps
}

func join(left []byte, right []byte) []byte {
	tmp := make([]byte, 0, len(left)+len(right))
	tmp = append(tmp, left...)
	tmp = append(tmp, right...)
	return codec.DoubleSHA256(tmp)
}

// WithFirst folds the coinbase hash through the steps and returns the merkle
// root in internal byte order. With no steps the coinbase hash is the root.
func (t *Tree) WithFirst(coinbaseHash []byte) []byte {
	acc := append([]byte{}, coinbaseHash...)
	for _, step := range t.steps {
		acc = join(acc, step)
	}
	return acc
}

// Steps returns a copy of the recorded steps
func (t *Tree) Steps() [][]byte {
	ret := make([][]byte, len(t.steps))
	for i, step := range t.steps {
		ret[i] = append([]byte{}, step...)
	}
	return ret
}

// StepsHex returns the steps as hex strings for a stratum job notification
func (t *Tree) StepsHex() []string {
	ret := make([]string, len(t.steps))
	for i, step := range t.steps {
		ret[i] = hex.EncodeToString(step)
	}
	return ret
}

func (t *Tree) Len() int {
	return len(t.steps)
}
