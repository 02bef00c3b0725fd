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

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	compactSignBit  = 0x00800000
	compactMantissa = 0x007fffff
)

// Diff1 is the target at difficulty 1:
// 0x00000000ffff0000000000000000000000000000000000000000000000000000
var Diff1 = new(uint256.Int).Lsh(uint256.NewInt(0xffff), 208)

// TargetFromBitsHex decodes the hex form of the compact bits used by
// getblocktemplate ("1d00ffff")
func TargetFromBitsHex(bitsHex string) (*uint256.Int, error) {
	bits, err := DecodeHexLen("bits", bitsHex, 4)
	if err != nil {
		return nil, err
	}
	return TargetFromBits(bits)
}

// TargetFromBits decodes 4 big-endian compact bytes (exponent followed by a
// 3-byte mantissa) into the full 256-bit target
func TargetFromBits(bits []byte) (*uint256.Int, error) {
	compact, err := UnpackUint32BE(bits)
	if err != nil {
		return nil, err
	}
	return TargetFromCompact(compact)
}

// TargetFromCompact computes mantissa << 8*(exponent-3). Negative, zero and
// overflowing encodings cannot describe a target and are rejected.
func TargetFromCompact(compact uint32) (*uint256.Int, error) {
	exponent := uint(compact >> 24)
	if compact&compactSignBit != 0 {
		return nil, fmt.Errorf("%w: compact bits %08x have the sign bit set", ErrEncoding, compact)
	}
	mantissa := uint64(compact & compactMantissa)
	if mantissa == 0 {
		return nil, fmt.Errorf("%w: compact bits %08x encode a zero target", ErrEncoding, compact)
	}
	target := uint256.NewInt(mantissa)
	if exponent <= 3 {
		target.Rsh(target, 8*(3-exponent))
		if target.IsZero() {
			return nil, fmt.Errorf("%w: compact bits %08x encode a zero target", ErrEncoding, compact)
		}
		return target, nil
	}
	shift := 8 * (exponent - 3)
	if uint(target.BitLen())+shift > 256 {
		return nil, fmt.Errorf("%w: compact bits %08x overflow 256 bits", ErrEncoding, compact)
	}
	return target.Lsh(target, shift), nil
}

// CompactFromTarget is the inverse of TargetFromCompact, producing the
// canonical encoding. When the top mantissa byte would collide with the
// sign bit the mantissa is shifted down a byte and the exponent bumped.
func CompactFromTarget(target *uint256.Int) uint32 {
	if target.IsZero() {
		return 0
	}
	size := uint((target.BitLen() + 7) / 8)
	var mantissa uint32
	if size <= 3 {
		mantissa = uint32(target.Uint64() << (8 * (3 - size))) // #nosec G115
	} else {
		tmp := new(uint256.Int).Rsh(target, 8*(size-3))
		mantissa = uint32(tmp.Uint64()) // #nosec G115
	}
	if mantissa&compactSignBit != 0 {
		mantissa >>= 8
		size++
	}
	return uint32(size)<<24 | mantissa // #nosec G115
}

// Difficulty returns Diff1 / target using integer division
func Difficulty(target *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(Diff1, target)
}
