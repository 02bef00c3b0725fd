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
	"errors"

	"github.com/blinklabs-io/marlin/internal/codec"
)

var (
	// ErrConfiguration covers missing or inconsistent recipients and pool
	// settings supplied at construction time
	ErrConfiguration = errors.New("configuration error")
	// ErrDataIntegrity is returned when referenced transaction data cannot
	// be found or does not line up with the transaction hashes
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrPrecondition is returned when an operation is called on a template
	// that is not in the required state, or with arguments of the wrong shape
	ErrPrecondition = errors.New("precondition error")
	// ErrEncoding is returned for malformed hex input
	ErrEncoding = codec.ErrEncoding
)
