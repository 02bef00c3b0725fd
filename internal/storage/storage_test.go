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

package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, ttl time.Duration) *Storage {
	t.Helper()
	s, err := New(ttl)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestPutGetTransactions(t *testing.T) {
	s := newTestStorage(t, time.Minute)
	require.NoError(t, s.PutTransactions(map[string]string{
		"aa": "0100",
		"bb": "0200",
	}))
	txHex, ok := s.GetTransaction("aa")
	assert.True(t, ok)
	assert.Equal(t, "0100", txHex)
	_, ok = s.GetTransaction("cc")
	assert.False(t, ok)
	count, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Overwrite and extend
	require.NoError(t, s.PutTransactions(map[string]string{
		"bb": "0201",
		"cc": "0300",
	}))
	txHex, ok = s.GetTransaction("bb")
	assert.True(t, ok)
	assert.Equal(t, "0201", txHex)
	count, err = s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPutLargeBatch(t *testing.T) {
	s := newTestStorage(t, 0)
	txs := make(map[string]string, 5000)
	for i := range 5000 {
		txs[fmt.Sprintf("%064x", i)] = fmt.Sprintf("%0200x", i)
	}
	require.NoError(t, s.PutTransactions(txs))
	count, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 5000, count)
}

func TestTransactionsExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for entries to expire")
	}
	s := newTestStorage(t, time.Second)
	require.NoError(t, s.PutTransactions(map[string]string{"aa": "0100"}))
	_, ok := s.GetTransaction("aa")
	require.True(t, ok)
	assert.Eventually(
		t,
		func() bool {
			_, ok := s.GetTransaction("aa")
			return !ok
		},
		5*time.Second,
		100*time.Millisecond,
	)
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStorage(t, time.Minute)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := fmt.Sprintf("%02x", i)
			assert.NoError(t, s.PutTransactions(map[string]string{hash: "00"}))
			_, ok := s.GetTransaction(hash)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	count, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}
