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
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/blinklabs-io/marlin/internal/codec"
)

const (
	// ExtraNonce1Len is the pool-assigned extra-nonce size in bytes
	ExtraNonce1Len = 4
	// ExtraNonce2Len is the worker-assigned extra-nonce size in bytes
	ExtraNonce2Len = 4
	// ExtraNonceLen is the size of the gap between the generation
	// transaction halves
	ExtraNonceLen = ExtraNonce1Len + ExtraNonce2Len

	genTxVersion  = 1
	genTxLockTime = 0
	genTxSequence = 0
	genTxInputs   = 1
	coinbaseIndex = math.MaxUint32
)

const (
	DefaultDonationScript         = "a914bb3310cb575409b04b7de1cb0c6ad28762078e6887"
	DefaultWatermark              = "/Eru Ilúvatar/"
	DefaultEmptyWitnessCommitment = "6a24aa21a9ede2f61c3f71d1defd3fa999dfa36953755c690689799962b48bebd836974e8cf9"
)

// Recipient receives a fixed share of the block reward
type Recipient struct {
	// Share of the coinbase value in the range [0, 1]
	Percent float64
	Script  []byte
}

// GenerationConfig holds the process-wide values baked into every generation
// transaction
type GenerationConfig struct {
	// Output script receiving whatever is left after recipient shares
	DonationScript []byte
	// Text pushed after the extra-nonce in the coinbase scriptSig
	Watermark string
	// Witness commitment output script used for blocks without transactions
	EmptyWitnessCommitment string
	// Clock for the coinbase timestamp push
	Now func() time.Time
}

// DefaultGenerationConfig returns the stock pool donation script, watermark
// and empty-block witness commitment
func DefaultGenerationConfig() GenerationConfig {
	donationScript, _ := hex.DecodeString(DefaultDonationScript)
	return GenerationConfig{
		DonationScript:         donationScript,
		Watermark:              DefaultWatermark,
		EmptyWitnessCommitment: DefaultEmptyWitnessCommitment,
		Now:                    time.Now,
	}
}

func (c GenerationConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c GenerationConfig) validate() error {
	if len(c.DonationScript) == 0 {
		return fmt.Errorf("%w: donation script is empty", ErrConfiguration)
	}
	if c.EmptyWitnessCommitment == "" {
		return fmt.Errorf("%w: empty-block witness commitment is not set", ErrConfiguration)
	}
	return nil
}

// ValidateRecipients checks that there is at least one recipient and that the
// shares add up to no more than the whole reward
func ValidateRecipients(recipients []Recipient) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: recipients unavailable", ErrConfiguration)
	}
	var total float64
	for idx, recipient := range recipients {
		if math.IsNaN(recipient.Percent) || recipient.Percent < 0 || recipient.Percent > 1 {
			return fmt.Errorf(
				"%w: recipient %d share %v is outside [0, 1]",
				ErrConfiguration,
				idx,
				recipient.Percent,
			)
		}
		if len(recipient.Script) == 0 {
			return fmt.Errorf("%w: recipient %d has an empty script", ErrConfiguration, idx)
		}
		total += recipient.Percent
	}
	if total > 1 {
		return fmt.Errorf("%w: recipient shares add up to %v", ErrConfiguration, total)
	}
	return nil
}

// GenerateOutputs serializes the coinbase outputs, prefixed by their count:
// the donation output carrying the remainder, one output per recipient, and
// a zero-value output carrying the witness commitment script
func GenerateOutputs(
	coinbaseValue int64,
	witnessCommitment string,
	recipients []Recipient,
	cfg GenerationConfig,
) ([]byte, error) {
	commitment, err := codec.DecodeHex("witness commitment", witnessCommitment)
	if err != nil {
		return nil, err
	}
	var recipientOutputs bytes.Buffer
	remainder := coinbaseValue
	for _, recipient := range recipients {
		// Rounding is always down, the leftover goes to the donation output
		reward := int64(math.Floor(recipient.Percent * float64(coinbaseValue)))
		remainder -= reward
		if err := writeOutput(&recipientOutputs, reward, recipient.Script); err != nil {
			return nil, err
		}
	}
	if remainder < 0 {
		return nil, fmt.Errorf(
			"%w: recipient shares exceed the coinbase value by %d",
			ErrConfiguration,
			-remainder,
		)
	}
	var ret bytes.Buffer
	ret.Write(codec.VarInt(uint64(len(recipients) + 2)))
	if err := writeOutput(&ret, remainder, cfg.DonationScript); err != nil {
		return nil, err
	}
	ret.Write(recipientOutputs.Bytes())
	if err := writeOutput(&ret, 0, commitment); err != nil {
		return nil, err
	}
	return ret.Bytes(), nil
}

func writeOutput(buf *bytes.Buffer, amount int64, script []byte) error {
	amountBytes, err := codec.PackAmount(amount)
	if err != nil {
		return err
	}
	buf.Write(amountBytes)
	buf.Write(codec.VarInt(uint64(len(script))))
	buf.Write(script)
	return nil
}

// GenerationTx is a legacy coinbase transaction split around the extra-nonce
type GenerationTx struct {
	Part1 []byte
	Part2 []byte
}

// CreateGenTx builds the two halves of the coinbase transaction. The scriptSig
// carries the height, the node's coinbase flags, the current time and the
// extra-nonce length, then the extra-nonce gap, then the watermark.
func CreateGenTx(
	height int64,
	flags []byte,
	coinbaseValue int64,
	witnessCommitment string,
	recipients []Recipient,
	cfg GenerationConfig,
) (*GenerationTx, error) {
	heightPush, err := codec.SerializeNumber(height)
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	timePush, err := codec.SerializeNumber(cfg.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	var scriptSigPart1 bytes.Buffer
	scriptSigPart1.Write(heightPush)
	scriptSigPart1.Write(flags)
	scriptSigPart1.Write(timePush)
	scriptSigPart1.WriteByte(ExtraNonceLen)
	scriptSigPart2 := codec.SerializeString(cfg.Watermark)

	outputs, err := GenerateOutputs(coinbaseValue, witnessCommitment, recipients, cfg)
	if err != nil {
		return nil, err
	}

	scriptSigLen := scriptSigPart1.Len() + ExtraNonceLen + len(scriptSigPart2)
	var p1 bytes.Buffer
	p1.Write(codec.PackUint32LE(genTxVersion))
	// Transaction input
	p1.Write(codec.VarInt(genTxInputs))
	p1.Write(make([]byte, 32))
	p1.Write(codec.PackUint32LE(coinbaseIndex))
	p1.Write(codec.VarInt(uint64(scriptSigLen)))
	p1.Write(scriptSigPart1.Bytes())

	var p2 bytes.Buffer
	p2.Write(scriptSigPart2)
	p2.Write(codec.PackUint32LE(genTxSequence))
	// End transaction input
	p2.Write(outputs)
	p2.Write(codec.PackUint32LE(genTxLockTime))

	return &GenerationTx{
		Part1: p1.Bytes(),
		Part2: p2.Bytes(),
	}, nil
}

// Part1Hex and Part2Hex are the coinb1/coinb2 values of a job notification
func (g *GenerationTx) Part1Hex() string {
	return hex.EncodeToString(g.Part1)
}

func (g *GenerationTx) Part2Hex() string {
	return hex.EncodeToString(g.Part2)
}
