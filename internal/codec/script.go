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

package codec

import "fmt"

const opOneBase = 0x50

// SerializeNumber encodes n as a script push suitable for the coinbase
// scriptSig. Values 1 through 16 use the single-byte OP_1..OP_16 opcodes.
// Everything else is pushed as minimal little-endian bytes, with an extra
// zero byte when the top bit of the last byte would otherwise read as a sign.
func SerializeNumber(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: cannot serialize negative number %d", ErrEncoding, n)
	}
	if n >= 1 && n <= 16 {
		return []byte{byte(opOneBase + n)}, nil
	}
	ret := []byte{0}
	for n > 0x7f {
		ret = append(ret, byte(n&0xff))
		n >>= 8
	}
	ret = append(ret, byte(n))
	// Length prefix
	ret[0] = byte(len(ret) - 1)
	return ret, nil
}

// SerializeString returns s prefixed with its varint length
func SerializeString(s string) []byte {
	return append(VarInt(uint64(len(s))), s...)
}
