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

package template

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/blinklabs-io/marlin/internal/codec"
)

const headerLen = 80

// Header is a serialized block header and its hash
type Header struct {
	Data []byte
	// Double SHA-256 of Data, internal byte order
	Hash []byte
	// Hash read as a little-endian integer, for comparison against a target
	Value *uint256.Int
}

// HashHex returns the block hash in display order
func (h *Header) HashHex() string {
	return hex.EncodeToString(codec.Reverse(h.Hash))
}

// Block is a fully serialized block ready for proposal or submission
type Block struct {
	Data   []byte
	Header *Header
}

func (b *Block) Hex() string {
	return hex.EncodeToString(b.Data)
}

// SerializeHeader builds the 80-byte header for the given coinbase and the
// worker's time and nonce (4 bytes each, hex as sent over stratum)
func (t *BlockTemplate) SerializeHeader(coinbase []byte, timeHex string, nonceHex string) (*Header, error) {
	timeBytes, err := codec.DecodeHexLen("time", timeHex, 4)
	if err != nil {
		return nil, err
	}
	nonce, err := codec.DecodeHexLen("nonce", nonceHex, 4)
	if err != nil {
		return nil, err
	}
	coinbaseHash := codec.DoubleSHA256(coinbase)
	merkleRoot := t.merkleTree.WithFirst(coinbaseHash)
	// Fields are laid out back to front in display byte order, then the whole
	// buffer is reversed into wire order
	header := make([]byte, 0, headerLen)
	header = append(header, nonce...)
	header = append(header, t.bitsBytes...)
	header = append(header, timeBytes...)
	header = append(header, codec.Reverse(merkleRoot)...)
	header = append(header, t.prevHashBytes...)
	header = append(header, codec.PackInt32BE(t.version)...)
	codec.ReverseInPlace(header)

	hash := codec.DoubleSHA256(header)
	return &Header{
		Data:  header,
		Hash:  hash,
		Value: codec.HashToInt(hash),
	}, nil
}

// SerializeBlock builds the full block: header, transaction count, the
// segwit coinbase and the template transactions
func (t *BlockTemplate) SerializeBlock(coinbase []byte, timeHex string, nonceHex string) (*Block, error) {
	if t.IsStripped() {
		return nil, fmt.Errorf(
			"%w: cannot serialize block on stripped template, load transaction data first",
			ErrPrecondition,
		)
	}
	header, err := t.SerializeHeader(coinbase, timeHex, nonceHex)
	if err != nil {
		return nil, err
	}
	witnessCoinbase, err := Segwitify(coinbase)
	if err != nil {
		return nil, err
	}
	size := len(header.Data) + 9 + len(witnessCoinbase)
	for _, txData := range t.data {
		size += len(txData)
	}
	block := make([]byte, 0, size)
	block = append(block, header.Data...)
	block = append(block, codec.VarInt(uint64(len(t.hashes)+1))...)
	block = append(block, witnessCoinbase...)
	for _, txData := range t.data {
		block = append(block, txData...)
	}
	return &Block{
		Data:   block,
		Header: header,
	}, nil
}
