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
	"github.com/goccy/go-json"
)

// NodeTemplate is the result of a getblocktemplate call with the segwit rule
type NodeTemplate struct {
	Version                  int32             `json:"version"`
	PreviousBlockHash        string            `json:"previousblockhash"`
	CoinbaseAux              CoinbaseAux       `json:"coinbaseaux"`
	Bits                     string            `json:"bits"`
	CurTime                  int64             `json:"curtime"`
	Height                   int64             `json:"height"`
	LongPollID               string            `json:"longpollid,omitempty"`
	Transactions             []NodeTransaction `json:"transactions"`
	DefaultWitnessCommitment string            `json:"default_witness_commitment,omitempty"`
	CoinbaseValue            *int64            `json:"coinbasevalue,omitempty"`
}

type CoinbaseAux struct {
	Flags string `json:"flags"`
}

type NodeTransaction struct {
	TxID string `json:"txid,omitempty"`
	Hash string `json:"hash,omitempty"`
	Data string `json:"data"`
}

// ID returns the txid, falling back to the hash for nodes that only send one
func (t NodeTransaction) ID() string {
	if t.TxID != "" {
		return t.TxID
	}
	return t.Hash
}

// JobPayload is the form in which a template is re-broadcast to workers. Data
// is empty for a stripped payload.
type JobPayload struct {
	Version           int32    `json:"version"`
	PreviousBlockHash string   `json:"previousblockhash"`
	CoinbaseValue     int64    `json:"coinbasevalue"`
	Flags             string   `json:"flags"`
	CurTime           int64    `json:"curtime"`
	Bits              string   `json:"bits"`
	Height            int64    `json:"height"`
	WitnessCommitment string   `json:"witness_commitment"`
	Hashes            []string `json:"hashes"`
	Data              []string `json:"data"`
}

// Clone returns a deep copy so that a payload can be handed to another owner
func (p JobPayload) Clone() JobPayload {
	ret := p
	ret.Hashes = append([]string{}, p.Hashes...)
	ret.Data = append([]string{}, p.Data...)
	return ret
}

// TransactionCache resolves raw transaction hex by txid
type TransactionCache interface {
	GetTransaction(hash string) (string, bool)
}

// Mempool is a TransactionCache backed by a plain map of txid to raw hex
type Mempool map[string]string

func (m Mempool) GetTransaction(hash string) (string, bool) {
	ret, ok := m[hash]
	return ret, ok
}

// JobParams are the parameters of a stratum mining.notify message
type JobParams struct {
	JobID        string
	PrevHash     string
	CoinbaseA    string
	CoinbaseB    string
	MerkleBranch []string
	Version      string
	Bits         string
	Time         string
	CleanJobs    bool
}

// Array returns the parameters in notification order
func (j JobParams) Array() []any {
	return []any{
		j.JobID,
		j.PrevHash,
		j.CoinbaseA,
		j.CoinbaseB,
		j.MerkleBranch,
		j.Version,
		j.Bits,
		j.Time,
		j.CleanJobs,
	}
}

func (j JobParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Array())
}
