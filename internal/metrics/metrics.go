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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/marlin/internal/config"
)

const namespace = "marlin"

// Submission results
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Recorder holds the pool's Prometheus collectors on a private registry
type Recorder struct {
	registry             *prometheus.Registry
	handler              http.Handler
	templatesReceived    prometheus.Counter
	templateHeight       prometheus.Gauge
	templateTransactions prometheus.Gauge
	jobsBroadcast        prometheus.Counter
	cachedTransactions   prometheus.Gauge
	candidates           *prometheus.CounterVec
	staleCandidates      prometheus.Counter
	submissions          *prometheus.CounterVec
	upstreamErrors       *prometheus.CounterVec
}

func NewRecorder() (*Recorder, error) {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		templatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "templates_received_total",
			Help:      "Block templates received from the node.",
		}),
		templateHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "template_height",
			Help:      "Height of the current block template.",
		}),
		templateTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "template_transactions",
			Help:      "Transactions in the current block template, excluding the coinbase.",
		}),
		jobsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_broadcast_total",
			Help:      "Jobs sent to workers.",
		}),
		cachedTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_transactions",
			Help:      "Transactions held in the transaction cache.",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Worker candidates serialized, by kind.",
		}, []string{"kind"}),
		staleCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_stale_total",
			Help:      "Worker candidates for a job that was no longer current.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Proposals and block submissions to the node, by kind and result.",
		}, []string{"kind", "status"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed node RPC calls, by method.",
		}, []string{"method"}),
	}
	collectors := []prometheus.Collector{
		r.templatesReceived,
		r.templateHeight,
		r.templateTransactions,
		r.jobsBroadcast,
		r.cachedTransactions,
		r.candidates,
		r.staleCandidates,
		r.submissions,
		r.upstreamErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	r.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return r, nil
}

// Handler exposes the HTTP handler for scraping
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) TemplateReceived(height int64, txCount int) {
	r.templatesReceived.Inc()
	r.templateHeight.Set(float64(height))
	r.templateTransactions.Set(float64(txCount))
}

func (r *Recorder) JobBroadcast() {
	r.jobsBroadcast.Inc()
}

func (r *Recorder) CachedTransactions(count int) {
	r.cachedTransactions.Set(float64(count))
}

func (r *Recorder) Candidate(kind string) {
	r.candidates.WithLabelValues(kind).Inc()
}

func (r *Recorder) StaleCandidate() {
	r.staleCandidates.Inc()
}

func (r *Recorder) Submission(kind string, status string) {
	r.submissions.WithLabelValues(kind, status).Inc()
}

func (r *Recorder) UpstreamError(method string) {
	r.upstreamErrors.WithLabelValues(method).Inc()
}

var (
	globalRecorder     *Recorder
	globalRecorderOnce sync.Once
)

// GetRecorder returns the process-wide recorder
func GetRecorder() *Recorder {
	globalRecorderOnce.Do(func() {
		r, err := NewRecorder()
		if err != nil {
			// Only possible with duplicate collectors on a fresh registry
			panic(err)
		}
		globalRecorder = r
	})
	return globalRecorder
}

// Start serves the global recorder on the configured metrics address until
// ctx is cancelled
func Start(ctx context.Context) error {
	cfg := config.GetConfig()
	listener, err := net.Listen(
		"tcp",
		net.JoinHostPort(
			cfg.Metrics.ListenAddress,
			strconv.FormatUint(uint64(cfg.Metrics.ListenPort), 10),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", GetRecorder().Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	slog.Info(
		fmt.Sprintf("serving metrics on %s", listener.Addr().String()),
	)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				fmt.Sprintf("metrics listener failed: %s", err),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return nil
}
