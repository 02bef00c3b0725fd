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

// Package templatetest provides block template fixtures for tests.
package templatetest

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/blinklabs-io/marlin/internal/template"
)

const (
	PrevHash   = "00000000000000000001a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7"
	Commitment = "6a24aa21a9edabababababababababababababababababababababababababababababababab"
	Bits       = "1d00ffff"
	CurTime    = 1700000000
	Height     = 840000
)

var PayoutScript, _ = hex.DecodeString("76a91489abcdefabbaabbaabbaabbaabbaabbaabbaabba88ac")

// GenerationConfig returns the default generation config with a fixed clock
func GenerationConfig() template.GenerationConfig {
	cfg := template.DefaultGenerationConfig()
	cfg.Now = func() time.Time {
		return time.Unix(CurTime, 0)
	}
	return cfg
}

func Recipients() []template.Recipient {
	return []template.Recipient{
		{Percent: 0.5, Script: PayoutScript},
	}
}

// NodeTemplate returns a node template carrying txCount simple transactions
// and a memory pool holding their data. seed varies the transactions and the
// previous block hash between templates.
func NodeTemplate(t testing.TB, txCount int, seed byte) (*template.NodeTemplate, template.Mempool) {
	t.Helper()
	mempool := template.Mempool{}
	var txs []template.NodeTransaction
	for i := 0; i < txCount; i++ {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(
			wire.NewTxIn(
				&wire.OutPoint{Hash: chainhash.Hash{seed, byte(i + 1)}, Index: uint32(i)}, // #nosec G115
				[]byte{0x51},
				nil,
			),
		)
		tx.AddTxOut(wire.NewTxOut(int64(1000*(i+1)), PayoutScript))
		var buf bytes.Buffer
		if err := tx.Serialize(&buf); err != nil {
			t.Fatalf("serialize transaction: %s", err)
		}
		txHex := hex.EncodeToString(buf.Bytes())
		txID := tx.TxHash().String()
		txs = append(
			txs,
			template.NodeTransaction{
				TxID: txID,
				Data: txHex,
			},
		)
		mempool[txID] = txHex
	}
	prevHash := []byte(PrevHash)
	prevHash[len(prevHash)-1] = hex.EncodeToString([]byte{seed})[1]
	coinbaseValue := int64(5000012345)
	return &template.NodeTemplate{
		Version:                  0x20000000,
		PreviousBlockHash:        string(prevHash),
		Bits:                     Bits,
		CurTime:                  CurTime,
		Height:                   Height,
		LongPollID:               string(prevHash) + "1",
		Transactions:             txs,
		DefaultWitnessCommitment: Commitment,
		CoinbaseValue:            &coinbaseValue,
	}, mempool
}
