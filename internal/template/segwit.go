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
	"fmt"

	"github.com/blinklabs-io/marlin/internal/codec"
)

var (
	// Marker 0x00 followed by flag 0x01
	segwitMarkerFlag = codec.PackUint16LE(0x0100)
	// Witness stack for the single coinbase input: one item, 32 zero bytes
	coinbaseWitness = append(
		append(codec.VarInt(1), codec.VarInt(32)...),
		make([]byte, 32)...,
	)
)

// Segwitify returns a copy of a legacy-encoded coinbase transaction with the
// segwit marker, flag and coinbase witness inserted. The input is not
// modified. A buffer too short to hold a version and lock time is rejected
// with ErrPrecondition.
func Segwitify(tx []byte) ([]byte, error) {
	if len(tx) < 8 {
		return nil, fmt.Errorf(
			"%w: transaction of %d bytes is too short to segwitify",
			ErrPrecondition,
			len(tx),
		)
	}
	ret := make([]byte, 0, len(tx)+len(segwitMarkerFlag)+len(coinbaseWitness))
	// Version
	ret = append(ret, tx[:4]...)
	ret = append(ret, segwitMarkerFlag...)
	// Inputs and outputs
	ret = append(ret, tx[4:len(tx)-4]...)
	ret = append(ret, coinbaseWitness...)
	// Lock time
	ret = append(ret, tx[len(tx)-4:]...)
	return ret, nil
}
