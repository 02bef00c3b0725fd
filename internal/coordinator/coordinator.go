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

// Package coordinator follows the node's block templates, hands them to the
// workers as jobs and relays worker results back to the node.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/marlin/internal/metrics"
	"github.com/blinklabs-io/marlin/internal/storage"
	"github.com/blinklabs-io/marlin/internal/template"
	"github.com/blinklabs-io/marlin/internal/worker"
)

const (
	methodGetTemplate = "getblocktemplate"
	methodSubmitBlock = "submitblock"
)

// Upstream is the node RPC surface used by the coordinator
type Upstream interface {
	GetTemplate(ctx context.Context) (*template.NodeTemplate, error)
	LongPoll(ctx context.Context, longPollID string) (*template.NodeTemplate, error)
	Propose(ctx context.Context, blockHex string) (string, error)
	Submit(ctx context.Context, blockHex string) (string, error)
}

type Params struct {
	Upstream   Upstream
	Store      *storage.Storage
	Workers    *worker.Manager
	Metrics    *metrics.Recorder
	Recipients []template.Recipient
	Generation template.GenerationConfig
	JobTTL     time.Duration
	RetryDelay time.Duration
}

type Coordinator struct {
	params       Params
	jobs         *ttlcache.Cache[string, template.JobPayload]
	jobCounter   atomic.Uint64
	lastPrevHash string
}

func New(params Params) *Coordinator {
	if params.Metrics == nil {
		params.Metrics = metrics.GetRecorder()
	}
	return &Coordinator{
		params: params,
		jobs: ttlcache.New[string, template.JobPayload](
			ttlcache.WithTTL[string, template.JobPayload](params.JobTTL),
			ttlcache.WithDisableTouchOnHit[string, template.JobPayload](),
		),
	}
}

// Start fetches the first template and then follows long polls and worker
// results until ctx is cancelled
func (c *Coordinator) Start(ctx context.Context) error {
	go c.jobs.Start()
	defer c.jobs.Stop()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.templateLoop(gCtx)
	})
	g.Go(func() error {
		return c.resultLoop(gCtx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Job returns a copy of a job payload that has not expired yet
func (c *Coordinator) Job(id string) (template.JobPayload, bool) {
	item := c.jobs.Get(id)
	if item == nil {
		return template.JobPayload{}, false
	}
	return item.Value().Clone(), true
}

// SubmitCandidate routes a candidate from the session layer to the worker
// that issued its job
func (c *Coordinator) SubmitCandidate(workerIdx int, candidate worker.Candidate) error {
	w := c.params.Workers.Worker(workerIdx)
	if w == nil {
		return fmt.Errorf("unknown worker %d", workerIdx)
	}
	err := w.Submit(candidate)
	if errors.Is(err, worker.ErrStaleJob) {
		c.params.Metrics.StaleCandidate()
	}
	return err
}

func (c *Coordinator) templateLoop(ctx context.Context) error {
	var longPollID string
	for {
		var tpl *template.NodeTemplate
		var err error
		if longPollID == "" {
			tpl, err = c.params.Upstream.GetTemplate(ctx)
		} else {
			tpl, err = c.params.Upstream.LongPoll(ctx, longPollID)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.params.Metrics.UpstreamError(methodGetTemplate)
			slog.Error(
				fmt.Sprintf(
					"failed to get block template, retrying in %s: %s",
					c.params.RetryDelay,
					err,
				),
			)
			// Start over from a fresh template
			longPollID = ""
			if err := sleepContext(ctx, c.params.RetryDelay); err != nil {
				return err
			}
			continue
		}
		if err := c.publish(tpl); err != nil {
			slog.Error(
				fmt.Sprintf("failed to publish block template at height %d: %s", tpl.Height, err),
			)
		}
		longPollID = tpl.LongPollID
		if longPollID == "" {
			// The node does not support long polling, fall back to polling
			if err := sleepContext(ctx, c.params.RetryDelay); err != nil {
				return err
			}
		} else {
			slog.Debug(
				fmt.Sprintf("waiting on longpollid %s", longPollID),
			)
		}
	}
}

func (c *Coordinator) publish(nodeTpl *template.NodeTemplate) error {
	tpl, err := template.FromNodeTemplate(nodeTpl, c.params.Recipients, c.params.Generation)
	if err != nil {
		return err
	}
	txs := make(map[string]string, len(nodeTpl.Transactions))
	for _, tx := range nodeTpl.Transactions {
		txs[tx.ID()] = tx.Data
	}
	if err := c.params.Store.PutTransactions(txs); err != nil {
		return err
	}
	if count, err := c.params.Store.Len(); err == nil {
		c.params.Metrics.CachedTransactions(count)
	}
	jobID := strconv.FormatUint(c.jobCounter.Add(1), 16)
	cleanJobs := tpl.PreviousBlockHash() != c.lastPrevHash
	c.lastPrevHash = tpl.PreviousBlockHash()
	payload := tpl.Short()
	c.jobs.Set(jobID, payload, ttlcache.DefaultTTL)
	c.params.Workers.Broadcast(
		worker.Job{
			ID:        jobID,
			CleanJobs: cleanJobs,
			Payload:   payload,
		},
	)
	c.params.Metrics.TemplateReceived(tpl.Height(), tpl.TxCount())
	c.params.Metrics.JobBroadcast()
	slog.Info(
		fmt.Sprintf(
			"new job %s at height %d with %d transactions, difficulty %s (clean: %v)",
			jobID,
			tpl.Height(),
			tpl.TxCount(),
			tpl.Difficulty().Dec(),
			cleanJobs,
		),
	)
	return nil
}

func (c *Coordinator) resultLoop(ctx context.Context) error {
	results := c.params.Workers.Results()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return nil
			}
			c.handleResult(ctx, result)
		}
	}
}

func (c *Coordinator) handleResult(ctx context.Context, result worker.Result) {
	candidate := result.Candidate
	kind := string(candidate.Kind)
	c.params.Metrics.Candidate(kind)
	var verdict string
	var err error
	method := methodGetTemplate
	if candidate.Kind == worker.KindBlock {
		method = methodSubmitBlock
		slog.Info(
			fmt.Sprintf(
				"submitting block %s at height %d from %s",
				result.Block.Header.HashHex(),
				result.Height,
				candidate.User,
			),
		)
		verdict, err = c.params.Upstream.Submit(ctx, result.Block.Hex())
	} else {
		verdict, err = c.params.Upstream.Propose(ctx, result.Block.Hex())
	}
	switch {
	case err != nil:
		c.params.Metrics.UpstreamError(method)
		c.params.Metrics.Submission(kind, metrics.StatusError)
		slog.Error(
			fmt.Sprintf(
				"failed to submit %s with difficulty %v from %s: %s",
				kind,
				candidate.Difficulty,
				candidate.User,
				err,
			),
		)
	case verdict != "":
		c.params.Metrics.Submission(kind, metrics.StatusRejected)
		slog.Warn(
			fmt.Sprintf(
				"%s with difficulty %v from %s rejected by node: %s",
				kind,
				candidate.Difficulty,
				candidate.User,
				verdict,
			),
		)
	default:
		c.params.Metrics.Submission(kind, metrics.StatusAccepted)
		slog.Info(
			fmt.Sprintf(
				"%s with difficulty %v from %s accepted by node",
				kind,
				candidate.Difficulty,
				candidate.User,
			),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
