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

// Package codec contains the byte and number encodings used by the Bitcoin
// wire format: fixed-width integers, varints, script numbers, compact
// difficulty bits and double SHA-256.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEncoding is returned for malformed hex input and for values that cannot
// be represented in the requested encoding
var ErrEncoding = errors.New("encoding error")

func PackUint16LE(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func PackUint16BE(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func PackInt16LE(v int16) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v)) // #nosec G115
}

func PackInt16BE(v int16) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(v)) // #nosec G115
}

func PackUint32LE(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func PackUint32BE(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func PackInt32LE(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v)) // #nosec G115
}

func PackInt32BE(v int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(v)) // #nosec G115
}

func PackUint64LE(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func PackUint64BE(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func PackInt64LE(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v)) // #nosec G115
}

func PackInt64BE(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v)) // #nosec G115
}

// PackAmount encodes an output value in satoshis. Amounts are never negative
// on the wire, so a negative value is rejected instead of wrapping.
func PackAmount(v int64) ([]byte, error) {
	if v < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", ErrEncoding, v)
	}
	return PackInt64LE(v), nil
}

func UnpackUint16LE(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, shortBuffer(2, len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

func UnpackUint16BE(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, shortBuffer(2, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

func UnpackInt16LE(b []byte) (int16, error) {
	v, err := UnpackUint16LE(b)
	return int16(v), err // #nosec G115
}

func UnpackInt16BE(b []byte) (int16, error) {
	v, err := UnpackUint16BE(b)
	return int16(v), err // #nosec G115
}

func UnpackUint32LE(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, shortBuffer(4, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func UnpackUint32BE(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, shortBuffer(4, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func UnpackInt32LE(b []byte) (int32, error) {
	v, err := UnpackUint32LE(b)
	return int32(v), err // #nosec G115
}

func UnpackInt32BE(b []byte) (int32, error) {
	v, err := UnpackUint32BE(b)
	return int32(v), err // #nosec G115
}

func UnpackUint64LE(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, shortBuffer(8, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func UnpackUint64BE(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, shortBuffer(8, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func UnpackInt64LE(b []byte) (int64, error) {
	v, err := UnpackUint64LE(b)
	return int64(v), err // #nosec G115
}

func UnpackInt64BE(b []byte) (int64, error) {
	v, err := UnpackUint64BE(b)
	return int64(v), err // #nosec G115
}

func shortBuffer(want, got int) error {
	return fmt.Errorf("%w: need %d bytes, have %d", ErrEncoding, want, got)
}

// VarInt returns the Bitcoin CompactSize encoding of n
func VarInt(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		return append([]byte{0xfd}, PackUint16LE(uint16(n))...)
	case n <= 0xffffffff:
		return append([]byte{0xfe}, PackUint32LE(uint32(n))...)
	default:
		return append([]byte{0xff}, PackUint64LE(n)...)
	}
}

// ReadVarInt decodes a CompactSize value and returns it along with the number
// of bytes consumed
func ReadVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, shortBuffer(1, 0)
	}
	switch b[0] {
	case 0xff:
		v, err := UnpackUint64LE(b[1:])
		return v, 9, err
	case 0xfe:
		v, err := UnpackUint32LE(b[1:])
		return uint64(v), 5, err
	case 0xfd:
		v, err := UnpackUint16LE(b[1:])
		return uint64(v), 3, err
	default:
		return uint64(b[0]), 1, nil
	}
}

// Reverse returns a reversed copy of b
func Reverse(b []byte) []byte {
	ret := make([]byte, len(b))
	for i := range b {
		ret[len(b)-1-i] = b[i]
	}
	return ret
}

func ReverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// ReverseWordOrder returns a copy of b with the order of its 4-byte words
// reversed and the bytes inside each word left alone. Stratum sends the
// previous block hash in this form. len(b) must be a multiple of 4.
func ReverseWordOrder(b []byte) ([]byte, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrEncoding, len(b))
	}
	ret := make([]byte, 0, len(b))
	for i := len(b) - 4; i >= 0; i -= 4 {
		ret = append(ret, b[i:i+4]...)
	}
	return ret, nil
}

// DecodeHex decodes a hex string, naming the offending field on failure
func DecodeHex(field string, s string) ([]byte, error) {
	ret, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrEncoding, field, err)
	}
	return ret, nil
}

// DecodeHexLen is DecodeHex with a required decoded length
func DecodeHexLen(field string, s string, size int) ([]byte, error) {
	ret, err := DecodeHex(field, s)
	if err != nil {
		return nil, err
	}
	if len(ret) != size {
		return nil, fmt.Errorf(
			"%w: %s: expected %d bytes, got %d",
			ErrEncoding,
			field,
			size,
			len(ret),
		)
	}
	return ret, nil
}
