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
	"github.com/holiman/uint256"
	"github.com/minio/sha256-simd"
)

// DoubleSHA256 returns SHA256(SHA256(data))
func DoubleSHA256(data []byte) []byte {
	// Hash it once
	first := sha256.Sum256(data)
	// And hash it again
	second := sha256.Sum256(first[:])
	return second[:]
}

// HashToInt interprets a hash in internal (little-endian) byte order as an
// unsigned integer, which is how it is compared against a target
func HashToInt(hash []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(Reverse(hash))
}
