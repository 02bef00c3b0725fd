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

const (
	baseSubsidy     = 5_000_000_000
	halvingInterval = 210_000
	maxHalvings     = 64
)

// CoinbaseSubsidy returns the block reward in satoshis at the given height
func CoinbaseSubsidy(height int64) int64 {
	if height < 0 {
		return baseSubsidy
	}
	halvings := height / halvingInterval
	// A shift of 64 or more is zero, not undefined
	if halvings >= maxHalvings {
		return 0
	}
	return baseSubsidy >> halvings
}
