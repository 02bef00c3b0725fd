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

package coordinator

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/marlin/internal/metrics"
	"github.com/blinklabs-io/marlin/internal/storage"
	"github.com/blinklabs-io/marlin/internal/template"
	"github.com/blinklabs-io/marlin/internal/template/templatetest"
	"github.com/blinklabs-io/marlin/internal/worker"
)

type fakeUpstream struct {
	mutex       sync.Mutex
	templates   []*template.NodeTemplate
	templateErr error
	longPolls   chan *template.NodeTemplate
	longPollIDs []string
	verdict     string
	submitErr   error
	proposals   []string
	submissions []string
}

func newFakeUpstream(templates ...*template.NodeTemplate) *fakeUpstream {
	return &fakeUpstream{
		templates: templates,
		longPolls: make(chan *template.NodeTemplate),
	}
}

func (f *fakeUpstream) GetTemplate(ctx context.Context) (*template.NodeTemplate, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.templateErr != nil {
		err := f.templateErr
		f.templateErr = nil
		return nil, err
	}
	if len(f.templates) == 0 {
		return nil, errors.New("no template")
	}
	ret := f.templates[0]
	f.templates = f.templates[1:]
	return ret, nil
}

func (f *fakeUpstream) LongPoll(ctx context.Context, longPollID string) (*template.NodeTemplate, error) {
	f.mutex.Lock()
	f.longPollIDs = append(f.longPollIDs, longPollID)
	f.mutex.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tpl := <-f.longPolls:
		return tpl, nil
	}
}

func (f *fakeUpstream) Propose(ctx context.Context, blockHex string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.proposals = append(f.proposals, blockHex)
	return f.verdict, f.submitErr
}

func (f *fakeUpstream) Submit(ctx context.Context, blockHex string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.submissions = append(f.submissions, blockHex)
	return f.verdict, f.submitErr
}

func (f *fakeUpstream) sent() ([]string, []string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string{}, f.proposals...), append([]string{}, f.submissions...)
}

func (f *fakeUpstream) setVerdict(verdict string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.verdict = verdict
	f.submitErr = err
}

type testEnv struct {
	upstream    *fakeUpstream
	store       *storage.Storage
	workers     *worker.Manager
	recorder    *metrics.Recorder
	coordinator *Coordinator
	cancel      context.CancelFunc
	done        chan error
}

func startTestEnv(t *testing.T, upstream *fakeUpstream, jobTTL time.Duration) *testEnv {
	t.Helper()
	store, err := storage.New(time.Minute)
	require.NoError(t, err)
	recorder, err := metrics.NewRecorder()
	require.NoError(t, err)
	workers := worker.NewManager(worker.Params{
		Count:      2,
		Recipients: templatetest.Recipients(),
		Generation: templatetest.GenerationConfig(),
		Cache:      store,
	})
	workers.Start()
	c := New(Params{
		Upstream:   upstream,
		Store:      store,
		Workers:    workers,
		Metrics:    recorder,
		Recipients: templatetest.Recipients(),
		Generation: templatetest.GenerationConfig(),
		JobTTL:     jobTTL,
		RetryDelay: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{
		upstream:    upstream,
		store:       store,
		workers:     workers,
		recorder:    recorder,
		coordinator: c,
		cancel:      cancel,
		done:        make(chan error, 1),
	}
	go func() {
		env.done <- c.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-env.done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			assert.Fail(t, "coordinator did not stop")
		}
		workers.Stop()
		assert.NoError(t, store.Close())
	})
	return env
}

// metricValue sums the samples of a metric family whose labels include the
// given ones
func (e *testEnv) metricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := e.recorder.Registry().Gather()
	require.NoError(t, err)
	var ret float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, label := range metric.GetLabel() {
				if value, ok := labels[label.GetName()]; ok && value == label.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			if metric.GetCounter() != nil {
				ret += metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				ret += metric.GetGauge().GetValue()
			}
		}
	}
	return ret
}

func waitNotification(t *testing.T, w *worker.Worker) template.JobParams {
	t.Helper()
	select {
	case params := <-w.Notifications():
		return params
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for job notification")
	}
	return template.JobParams{}
}

func testCandidate(jobID string, kind worker.Kind) worker.Candidate {
	return worker.Candidate{
		JobID:       jobID,
		Kind:        kind,
		User:        "miner.1",
		Difficulty:  1024,
		ExtraNonce1: "01020304",
		ExtraNonce2: "05060708",
		Time:        "6553f100",
		Nonce:       "12345678",
	}
}

func TestPublishesFirstTemplate(t *testing.T) {
	nodeTpl, mempool := templatetest.NodeTemplate(t, 3, 1)
	env := startTestEnv(t, newFakeUpstream(nodeTpl), time.Minute)
	for i := range 2 {
		params := waitNotification(t, env.workers.Worker(i))
		assert.Equal(t, "1", params.JobID)
		assert.True(t, params.CleanJobs)
	}
	payload, ok := env.coordinator.Job("1")
	require.True(t, ok)
	assert.Equal(t, nodeTpl.PreviousBlockHash, payload.PreviousBlockHash)
	assert.Len(t, payload.Hashes, 3)
	assert.Empty(t, payload.Data)
	for hash, txHex := range mempool {
		cached, ok := env.store.GetTransaction(hash)
		assert.True(t, ok)
		assert.Equal(t, txHex, cached)
	}
	_, ok = env.coordinator.Job("2")
	assert.False(t, ok)

	assert.Equal(t, float64(1), env.metricValue(t, "marlin_jobs_broadcast_total", nil))
	assert.Equal(t, float64(templatetest.Height), env.metricValue(t, "marlin_template_height", nil))
	assert.Equal(t, float64(3), env.metricValue(t, "marlin_cached_transactions", nil))
}

func TestLongPollPublishesNewJobs(t *testing.T) {
	first, _ := templatetest.NodeTemplate(t, 3, 1)
	upstream := newFakeUpstream(first)
	env := startTestEnv(t, upstream, time.Minute)
	w := env.workers.Worker(0)
	waitNotification(t, w)

	// Same previous block, more transactions
	sameTip, _ := templatetest.NodeTemplate(t, 5, 1)
	upstream.longPolls <- sameTip
	params := waitNotification(t, w)
	assert.Equal(t, "2", params.JobID)
	assert.False(t, params.CleanJobs)

	newTip, _ := templatetest.NodeTemplate(t, 1, 2)
	upstream.longPolls <- newTip
	params = waitNotification(t, w)
	assert.Equal(t, "3", params.JobID)
	assert.True(t, params.CleanJobs)

	upstream.mutex.Lock()
	assert.Equal(t, []string{first.LongPollID, sameTip.LongPollID}, upstream.longPollIDs[:2])
	upstream.mutex.Unlock()

	payload, ok := env.coordinator.Job("2")
	require.True(t, ok)
	assert.Len(t, payload.Hashes, 5)
}

func TestResultsAreRelayed(t *testing.T) {
	nodeTpl, _ := templatetest.NodeTemplate(t, 3, 1)
	upstream := newFakeUpstream(nodeTpl)
	env := startTestEnv(t, upstream, time.Minute)
	waitNotification(t, env.workers.Worker(1))

	require.NoError(t, env.coordinator.SubmitCandidate(1, testCandidate("1", worker.KindShare)))
	require.Eventually(
		t,
		func() bool {
			proposals, _ := upstream.sent()
			return len(proposals) == 1
		},
		5*time.Second,
		10*time.Millisecond,
	)

	upstream.setVerdict("high-hash", nil)
	require.NoError(t, env.coordinator.SubmitCandidate(1, testCandidate("1", worker.KindBlock)))
	require.Eventually(
		t,
		func() bool {
			_, submissions := upstream.sent()
			return len(submissions) == 1
		},
		5*time.Second,
		10*time.Millisecond,
	)

	proposals, submissions := upstream.sent()
	assert.Equal(t, proposals[0], submissions[0])
	blockBytes, err := hex.DecodeString(submissions[0])
	require.NoError(t, err)
	var block wire.MsgBlock
	require.NoError(t, block.Deserialize(bytes.NewReader(blockBytes)))
	assert.Len(t, block.Transactions, 4)
	assert.Equal(t, nodeTpl.PreviousBlockHash, block.Header.PrevBlock.String())

	require.Eventually(
		t,
		func() bool {
			return env.metricValue(t, "marlin_submissions_total", map[string]string{"kind": "block", "status": metrics.StatusRejected}) == 1
		},
		5*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(t, float64(1), env.metricValue(t, "marlin_submissions_total", map[string]string{"kind": "share", "status": metrics.StatusAccepted}))
	assert.Equal(t, float64(2), env.metricValue(t, "marlin_candidates_total", nil))
}

func TestSubmissionErrorIsCounted(t *testing.T) {
	nodeTpl, _ := templatetest.NodeTemplate(t, 0, 1)
	upstream := newFakeUpstream(nodeTpl)
	upstream.setVerdict("", errors.New("connection reset"))
	env := startTestEnv(t, upstream, time.Minute)
	waitNotification(t, env.workers.Worker(0))
	require.NoError(t, env.coordinator.SubmitCandidate(0, testCandidate("1", worker.KindBlock)))
	require.Eventually(
		t,
		func() bool {
			return env.metricValue(t, "marlin_submissions_total", map[string]string{"kind": "block", "status": metrics.StatusError}) == 1
		},
		5*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(t, float64(1), env.metricValue(t, "marlin_upstream_errors_total", map[string]string{"method": "submitblock"}))
}

func TestStaleCandidate(t *testing.T) {
	first, _ := templatetest.NodeTemplate(t, 1, 1)
	upstream := newFakeUpstream(first)
	env := startTestEnv(t, upstream, time.Minute)
	w := env.workers.Worker(0)
	waitNotification(t, w)
	second, _ := templatetest.NodeTemplate(t, 1, 2)
	upstream.longPolls <- second
	waitNotification(t, w)

	err := env.coordinator.SubmitCandidate(0, testCandidate("1", worker.KindShare))
	assert.ErrorIs(t, err, worker.ErrStaleJob)
	assert.Equal(t, float64(1), env.metricValue(t, "marlin_candidates_stale_total", nil))
	assert.Error(t, env.coordinator.SubmitCandidate(9, testCandidate("2", worker.KindShare)))
}

func TestUpstreamErrorRetries(t *testing.T) {
	nodeTpl, _ := templatetest.NodeTemplate(t, 2, 1)
	upstream := newFakeUpstream(nodeTpl)
	upstream.templateErr = errors.New("connection refused")
	env := startTestEnv(t, upstream, time.Minute)
	params := waitNotification(t, env.workers.Worker(0))
	assert.Equal(t, "1", params.JobID)
	assert.Equal(t, float64(1), env.metricValue(t, "marlin_upstream_errors_total", map[string]string{"method": "getblocktemplate"}))
}

func TestInvalidTemplateIsSkipped(t *testing.T) {
	bad, _ := templatetest.NodeTemplate(t, 1, 1)
	bad.Bits = "zz"
	upstream := newFakeUpstream(bad)
	env := startTestEnv(t, upstream, time.Minute)
	good, _ := templatetest.NodeTemplate(t, 1, 2)
	// The coordinator keeps following long polls after a bad template
	upstream.longPolls <- good
	params := waitNotification(t, env.workers.Worker(0))
	assert.Equal(t, "1", params.JobID)
}

func TestJobsExpire(t *testing.T) {
	nodeTpl, _ := templatetest.NodeTemplate(t, 1, 1)
	env := startTestEnv(t, newFakeUpstream(nodeTpl), 50*time.Millisecond)
	waitNotification(t, env.workers.Worker(0))
	assert.Eventually(
		t,
		func() bool {
			_, ok := env.coordinator.Job("1")
			return !ok
		},
		5*time.Second,
		10*time.Millisecond,
	)
}
