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

package merkle

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/marlin/internal/codec"
)

// referenceRoot computes the merkle root the long way, over the full leaf list
func referenceRoot(leaves [][]byte) []byte {
	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			next = append(next, chainhash.DoubleHashB(append(append([]byte{}, level[i]...), level[i+1]...)))
		}
		level = next
	}
	return level[0]
}

func randomHash(t *testing.T) []byte {
	t.Helper()
	ret := make([]byte, 32)
	_, err := rand.Read(ret)
	require.NoError(t, err)
	return ret
}

func TestEmptyTreeIsIdentity(t *testing.T) {
	tree := New(nil)
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.StepsHex())
	coinbaseHash := randomHash(t)
	assert.Equal(t, coinbaseHash, tree.WithFirst(coinbaseHash))
}

func TestSingleTransactionStep(t *testing.T) {
	tree, err := NewFromHex([]string{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"})
	require.NoError(t, err)
	assert.Equal(t, []string{"efcdab8967452301efcdab8967452301efcdab8967452301efcdab8967452301"}, tree.StepsHex())
}

func TestWithFirstMatchesFullTree(t *testing.T) {
	for count := 1; count <= 12; count++ {
		hashes := make([][]byte, count)
		for i := range hashes {
			hashes[i] = randomHash(t)
		}
		tree := New(hashes)
		coinbaseHash := randomHash(t)
		leaves := append([][]byte{coinbaseHash}, hashes...)
		assert.Equal(t, referenceRoot(leaves), tree.WithFirst(coinbaseHash), "count %d", count)
	}
}

func TestWithFirstIsRepeatable(t *testing.T) {
	tree := New([][]byte{randomHash(t), randomHash(t), randomHash(t)})
	coinbaseHash := randomHash(t)
	first := tree.WithFirst(coinbaseHash)
	assert.Equal(t, first, tree.WithFirst(coinbaseHash))
	assert.NotEqual(t, first, tree.WithFirst(randomHash(t)))
}

func TestNewDoesNotRetainInput(t *testing.T) {
	hash := randomHash(t)
	tree := New([][]byte{hash})
	hash[0] ^= 0xff
	assert.NotEqual(t, hash, tree.Steps()[0])
}

func TestStepCount(t *testing.T) {
	// The number of steps is the depth of the tree over n+1 leaves
	for count, expected := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 7: 3, 8: 4} {
		hashes := make([][]byte, count)
		for i := range hashes {
			hashes[i] = randomHash(t)
		}
		assert.Equal(t, expected, New(hashes).Len(), "count %d", count)
	}
}

func TestNewFromHexInvalid(t *testing.T) {
	_, err := NewFromHex([]string{"abcd"})
	require.ErrorIs(t, err, codec.ErrEncoding)
}
