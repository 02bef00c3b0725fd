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

package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/marlin/internal/template"
)

var (
	// ErrStaleJob is returned for a candidate whose job is no longer the
	// worker's current one
	ErrStaleJob = errors.New("stale job")
	// ErrNoTemplate is returned for a candidate received before any job
	ErrNoTemplate = errors.New("no current template")
	// ErrStopped is returned once the worker has shut down
	ErrStopped = errors.New("worker stopped")
)

// Kind tells whether a candidate meets the share target or the network
// target
type Kind string

const (
	KindShare Kind = "share"
	KindBlock Kind = "block"
)

// Job is a unit of work fanned out to every worker
type Job struct {
	ID        string
	CleanJobs bool
	Payload   template.JobPayload
}

// Candidate is a solution reported by the session layer
type Candidate struct {
	JobID       string
	Kind        Kind
	User        string
	Difficulty  float64
	ExtraNonce1 string
	ExtraNonce2 string
	Time        string
	Nonce       string
}

// Result is a serialized candidate block ready for the node
type Result struct {
	WorkerID  int
	Candidate Candidate
	Height    int64
	Block     *template.Block
}

type candidateRequest struct {
	candidate Candidate
	errChan   chan error
}

// Worker owns exactly one current template, replaced on every job
type Worker struct {
	id            int
	recipients    []template.Recipient
	genCfg        template.GenerationConfig
	cache         template.TransactionCache
	waitGroup     *sync.WaitGroup
	doneChan      chan any
	resultChan    chan Result
	jobChan       chan Job
	candidateChan chan candidateRequest
	notifyChan    chan template.JobParams
	// Only touched by the worker goroutine
	current      *template.BlockTemplate
	currentJobID string
}

func newWorker(
	id int,
	params Params,
	waitGroup *sync.WaitGroup,
	doneChan chan any,
	resultChan chan Result,
) *Worker {
	return &Worker{
		id:            id,
		recipients:    params.Recipients,
		genCfg:        params.Generation,
		cache:         params.Cache,
		waitGroup:     waitGroup,
		doneChan:      doneChan,
		resultChan:    resultChan,
		jobChan:       make(chan Job, 1),
		candidateChan: make(chan candidateRequest),
		notifyChan:    make(chan template.JobParams, notificationBuffer),
	}
}

func (w *Worker) ID() int {
	return w.id
}

// Notifications delivers the job parameters of every job this worker
// switches to. When the reader falls behind, the oldest notifications are
// dropped.
func (w *Worker) Notifications() <-chan template.JobParams {
	return w.notifyChan
}

// Submit hands a candidate to the worker and waits until it has been
// serialized and queued for submission
func (w *Worker) Submit(candidate Candidate) error {
	req := candidateRequest{
		candidate: candidate,
		errChan:   make(chan error, 1),
	}
	select {
	case <-w.doneChan:
		return ErrStopped
	case w.candidateChan <- req:
	}
	select {
	case <-w.doneChan:
		return ErrStopped
	case err := <-req.errChan:
		return err
	}
}

func (w *Worker) start() {
	defer w.waitGroup.Done()
	for {
		select {
		case <-w.doneChan:
			return
		case job := <-w.jobChan:
			w.handleJob(job)
		case req := <-w.candidateChan:
			req.errChan <- w.handleCandidate(req.candidate)
		}
	}
}

// enqueue replaces any job the worker has not picked up yet
func (w *Worker) enqueue(job Job) {
	select {
	case w.jobChan <- job:
		return
	default:
	}
	select {
	case <-w.jobChan:
	default:
	}
	w.jobChan <- job
}

func (w *Worker) handleJob(job Job) {
	tpl, err := template.FromJobPayload(&job.Payload, w.recipients, w.genCfg)
	if err != nil {
		// Never keep mining on the previous template
		w.current = nil
		w.currentJobID = ""
		slog.Error(
			fmt.Sprintf("worker %d: failed to build template for job %s: %s", w.id, job.ID, err),
		)
		return
	}
	w.current = tpl
	w.currentJobID = job.ID
	slog.Debug(
		fmt.Sprintf(
			"worker %d got new job %s containing %d transactions and timestamped at %s",
			w.id,
			job.ID,
			tpl.TxCount(),
			time.Unix(tpl.CurTime(), 0).UTC().Format(time.RFC3339),
		),
	)
	w.notify(tpl.JobParams(job.ID, job.CleanJobs))
}

func (w *Worker) notify(params template.JobParams) {
	select {
	case w.notifyChan <- params:
		return
	default:
	}
	select {
	case <-w.notifyChan:
	default:
	}
	w.notifyChan <- params
}

func (w *Worker) handleCandidate(candidate Candidate) error {
	if w.current == nil {
		return ErrNoTemplate
	}
	if candidate.JobID != w.currentJobID {
		return fmt.Errorf("%w: %s, current job is %s", ErrStaleJob, candidate.JobID, w.currentJobID)
	}
	coinbase, err := w.current.SerializeCoinbase(candidate.ExtraNonce1, candidate.ExtraNonce2)
	if err != nil {
		return err
	}
	if w.current.IsStripped() {
		if err := w.current.LoadData(w.cache); err != nil {
			return err
		}
	}
	block, err := w.current.SerializeBlock(coinbase, candidate.Time, candidate.Nonce)
	if err != nil {
		return err
	}
	result := Result{
		WorkerID:  w.id,
		Candidate: candidate,
		Height:    w.current.Height(),
		Block:     block,
	}
	select {
	case <-w.doneChan:
		return ErrStopped
	case w.resultChan <- result:
	}
	return nil
}
