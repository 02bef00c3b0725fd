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

// Package template builds pending blocks from node templates, hands out the
// stratum job parameters for them, and serializes candidate blocks from
// worker results.
package template

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/blinklabs-io/marlin/internal/codec"
	"github.com/blinklabs-io/marlin/internal/merkle"
)

// BlockTemplate is a pending block. It is built once by FromNodeTemplate or
// FromJobPayload and only changes through LoadData. It is not safe for
// concurrent use.
type BlockTemplate struct {
	version           int32
	previousBlockHash string
	bits              string
	curTime           int64
	height            int64
	flags             string
	coinbaseValue     int64
	witnessCommitment string
	longPollID        string
	hashes            []string
	data              [][]byte

	prevHashBytes []byte
	bitsBytes     []byte
	target        *uint256.Int
	merkleTree    *merkle.Tree
	genTx         *GenerationTx
}

// FromNodeTemplate builds a template from a getblocktemplate result. A
// template without transactions or without a witness commitment is mined
// as an empty block paying only the subsidy.
func FromNodeTemplate(
	tpl *NodeTemplate,
	recipients []Recipient,
	cfg GenerationConfig,
) (*BlockTemplate, error) {
	if tpl == nil {
		return nil, fmt.Errorf("%w: node template is nil", ErrPrecondition)
	}
	t := &BlockTemplate{
		version:           tpl.Version,
		previousBlockHash: tpl.PreviousBlockHash,
		flags:             tpl.CoinbaseAux.Flags,
		curTime:           tpl.CurTime,
		bits:              tpl.Bits,
		height:            tpl.Height,
		longPollID:        tpl.LongPollID,
	}
	if len(tpl.Transactions) == 0 || tpl.DefaultWitnessCommitment == "" {
		t.coinbaseValue = CoinbaseSubsidy(tpl.Height)
		t.witnessCommitment = cfg.EmptyWitnessCommitment
	} else {
		if tpl.CoinbaseValue != nil {
			t.coinbaseValue = *tpl.CoinbaseValue
		} else {
			t.coinbaseValue = CoinbaseSubsidy(tpl.Height)
		}
		t.witnessCommitment = tpl.DefaultWitnessCommitment
		t.hashes = make([]string, 0, len(tpl.Transactions))
		t.data = make([][]byte, 0, len(tpl.Transactions))
		for _, tx := range tpl.Transactions {
			txData, err := codec.DecodeHex("transaction "+tx.ID(), tx.Data)
			if err != nil {
				return nil, err
			}
			t.hashes = append(t.hashes, tx.ID())
			t.data = append(t.data, txData)
		}
	}
	if err := t.init(recipients, cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// FromJobPayload rebuilds a template from a re-broadcast job payload. The
// coinbase value and witness commitment are taken as given. A payload
// without data produces a stripped template that needs LoadData before
// SerializeBlock.
func FromJobPayload(
	p *JobPayload,
	recipients []Recipient,
	cfg GenerationConfig,
) (*BlockTemplate, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: job payload is nil", ErrPrecondition)
	}
	t := &BlockTemplate{
		version:           p.Version,
		previousBlockHash: p.PreviousBlockHash,
		flags:             p.Flags,
		coinbaseValue:     p.CoinbaseValue,
		curTime:           p.CurTime,
		bits:              p.Bits,
		height:            p.Height,
		witnessCommitment: p.WitnessCommitment,
	}
	if len(p.Hashes) > 0 {
		t.hashes = append([]string{}, p.Hashes...)
	}
	if len(p.Data) > 0 {
		if len(p.Data) != len(p.Hashes) {
			return nil, fmt.Errorf(
				"%w: job payload has %d transaction hashes but %d transactions",
				ErrDataIntegrity,
				len(p.Hashes),
				len(p.Data),
			)
		}
		t.data = make([][]byte, 0, len(p.Data))
		for idx, txHex := range p.Data {
			txData, err := codec.DecodeHex("transaction "+p.Hashes[idx], txHex)
			if err != nil {
				return nil, err
			}
			t.data = append(t.data, txData)
		}
	}
	if err := t.init(recipients, cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// init derives the target, merkle tree and generation transaction
func (t *BlockTemplate) init(recipients []Recipient, cfg GenerationConfig) error {
	if err := ValidateRecipients(recipients); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	var err error
	t.prevHashBytes, err = codec.DecodeHexLen("previousblockhash", t.previousBlockHash, 32)
	if err != nil {
		return err
	}
	t.bitsBytes, err = codec.DecodeHexLen("bits", t.bits, 4)
	if err != nil {
		return err
	}
	t.target, err = codec.TargetFromBits(t.bitsBytes)
	if err != nil {
		return err
	}
	flags, err := codec.DecodeHex("coinbase flags", t.flags)
	if err != nil {
		return err
	}
	t.merkleTree, err = merkle.NewFromHex(t.hashes)
	if err != nil {
		return err
	}
	t.genTx, err = CreateGenTx(
		t.height,
		flags,
		t.coinbaseValue,
		t.witnessCommitment,
		recipients,
		cfg,
	)
	if err != nil {
		return err
	}
	return nil
}

// LoadData fills in the transaction data of a stripped template from the
// cache. Nothing is changed when the call fails.
func (t *BlockTemplate) LoadData(cache TransactionCache) error {
	if cache == nil {
		return fmt.Errorf("%w: transaction cache is nil", ErrPrecondition)
	}
	tmpData := make([][]byte, len(t.hashes))
	for idx, hash := range t.hashes {
		txHex, ok := cache.GetTransaction(hash)
		if !ok {
			return fmt.Errorf(
				"%w: transaction %s not found in memory pool",
				ErrDataIntegrity,
				hash,
			)
		}
		txData, err := codec.DecodeHex("transaction "+hash, txHex)
		if err != nil {
			return err
		}
		tmpData[idx] = txData
	}
	t.data = tmpData
	return nil
}

// SerializeCoinbase joins the generation transaction halves around the
// extra-nonces
func (t *BlockTemplate) SerializeCoinbase(extraNonce1 string, extraNonce2 string) ([]byte, error) {
	en1, err := codec.DecodeHex("extranonce1", extraNonce1)
	if err != nil {
		return nil, err
	}
	en2, err := codec.DecodeHex("extranonce2", extraNonce2)
	if err != nil {
		return nil, err
	}
	if len(en1)+len(en2) != ExtraNonceLen {
		return nil, fmt.Errorf(
			"%w: extra-nonces are %d bytes, expected %d",
			ErrPrecondition,
			len(en1)+len(en2),
			ExtraNonceLen,
		)
	}
	ret := make([]byte, 0, len(t.genTx.Part1)+ExtraNonceLen+len(t.genTx.Part2))
	ret = append(ret, t.genTx.Part1...)
	ret = append(ret, en1...)
	ret = append(ret, en2...)
	ret = append(ret, t.genTx.Part2...)
	return ret, nil
}

// JobParams returns the stratum job notification for this template
func (t *BlockTemplate) JobParams(jobID string, cleanJobs bool) JobParams {
	// prevHashBytes is always 32 bytes, so this cannot fail
	prevHash, _ := codec.ReverseWordOrder(t.prevHashBytes)
	return JobParams{
		JobID:        jobID,
		PrevHash:     hex.EncodeToString(prevHash),
		CoinbaseA:    t.genTx.Part1Hex(),
		CoinbaseB:    t.genTx.Part2Hex(),
		MerkleBranch: t.merkleTree.StepsHex(),
		Version:      hex.EncodeToString(codec.PackInt32BE(t.version)),
		Bits:         t.bits,
		Time:         hex.EncodeToString(codec.PackUint32BE(uint32(t.curTime))), // #nosec G115
		CleanJobs:    cleanJobs,
	}
}

// Full returns the job payload including transaction data
func (t *BlockTemplate) Full() JobPayload {
	ret := t.Short()
	for _, txData := range t.data {
		ret.Data = append(ret.Data, hex.EncodeToString(txData))
	}
	return ret
}

// Short returns the job payload with transaction hashes only
func (t *BlockTemplate) Short() JobPayload {
	return JobPayload{
		Version:           t.version,
		PreviousBlockHash: t.previousBlockHash,
		CoinbaseValue:     t.coinbaseValue,
		Flags:             t.flags,
		CurTime:           t.curTime,
		Bits:              t.bits,
		Height:            t.height,
		WitnessCommitment: t.witnessCommitment,
		Hashes:            append([]string{}, t.hashes...),
		Data:              []string{},
	}
}

// Difficulty returns diff1 / target
func (t *BlockTemplate) Difficulty() *uint256.Int {
	return codec.Difficulty(t.target)
}

func (t *BlockTemplate) Target() *uint256.Int {
	return t.target.Clone()
}

func (t *BlockTemplate) CurTime() int64 {
	return t.curTime
}

func (t *BlockTemplate) PreviousBlockHash() string {
	return t.previousBlockHash
}

func (t *BlockTemplate) LongPollID() string {
	return t.longPollID
}

func (t *BlockTemplate) Height() int64 {
	return t.height
}

func (t *BlockTemplate) Version() int32 {
	return t.version
}

func (t *BlockTemplate) Bits() string {
	return t.bits
}

func (t *BlockTemplate) CoinbaseValue() int64 {
	return t.coinbaseValue
}

func (t *BlockTemplate) WitnessCommitment() string {
	return t.witnessCommitment
}

// TxCount returns the number of transactions excluding the coinbase
func (t *BlockTemplate) TxCount() int {
	return len(t.hashes)
}

// IsStripped reports whether transaction data still has to be loaded
func (t *BlockTemplate) IsStripped() bool {
	return len(t.hashes) > 0 && t.data == nil
}

// GenerationTx returns the coinbase halves
func (t *BlockTemplate) GenerationTx() GenerationTx {
	return GenerationTx{
		Part1: append([]byte{}, t.genTx.Part1...),
		Part2: append([]byte{}, t.genTx.Part2...),
	}
}
