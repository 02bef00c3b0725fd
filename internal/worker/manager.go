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
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/marlin/internal/template"
)

const notificationBuffer = 4

type Params struct {
	Count      int
	Recipients []template.Recipient
	Generation template.GenerationConfig
	// Source of transaction data for stripped job payloads
	Cache template.TransactionCache
}

type Manager struct {
	params          Params
	workerWaitGroup sync.WaitGroup
	doneChan        chan any
	resultChan      chan Result
	workers         []*Worker
	started         bool
	mutex           sync.Mutex
}

func NewManager(params Params) *Manager {
	return &Manager{
		params: params,
	}
}

func (m *Manager) reset() {
	m.workerWaitGroup = sync.WaitGroup{}
	m.doneChan = make(chan any)
	m.resultChan = make(chan Result, max(1, m.params.Count))
	m.workers = nil
}

func (m *Manager) Start() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.started {
		return
	}
	m.reset()
	slog.Info(
		fmt.Sprintf("starting %d workers", m.params.Count),
	)
	for i := range m.params.Count {
		w := newWorker(
			i,
			m.params,
			&(m.workerWaitGroup),
			m.doneChan,
			m.resultChan,
		)
		m.workers = append(m.workers, w)
		m.workerWaitGroup.Add(1)
		go w.start()
	}
	m.started = true
}

func (m *Manager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.started {
		return
	}
	close(m.doneChan)
	m.workerWaitGroup.Wait()
	close(m.resultChan)
	m.started = false
	slog.Info("stopped workers")
}

// Results delivers serialized candidates from all workers. It is closed by
// Stop and replaced on every Start.
func (m *Manager) Results() <-chan Result {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.resultChan
}

// Broadcast sends each worker its own copy of the job
func (m *Manager) Broadcast(job Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.started {
		return
	}
	for _, w := range m.workers {
		workerJob := job
		workerJob.Payload = job.Payload.Clone()
		w.enqueue(workerJob)
	}
}

// Worker returns the worker with the given index, or nil
func (m *Manager) Worker(idx int) *Worker {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if idx < 0 || idx >= len(m.workers) {
		return nil
	}
	return m.workers[idx]
}

func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.workers)
}
