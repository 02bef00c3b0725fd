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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/blinklabs-io/marlin/internal/config"
	"github.com/blinklabs-io/marlin/internal/coordinator"
	"github.com/blinklabs-io/marlin/internal/logging"
	"github.com/blinklabs-io/marlin/internal/metrics"
	"github.com/blinklabs-io/marlin/internal/storage"
	"github.com/blinklabs-io/marlin/internal/upstream"
	"github.com/blinklabs-io/marlin/internal/version"
	"github.com/blinklabs-io/marlin/internal/worker"
)

const (
	programName = "marlin"
)

var cmdlineFlags struct {
	configFile string
}

var rootCmd = &cobra.Command{
	Use:          programName,
	Short:        "Bitcoin block template and job engine for stratum pools",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the node's block templates and serve jobs to workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	rootCmd.AddCommand(runCmd, templateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Configure logging
	logging.Setup(&cfg.Logging)
	logger := logging.GetLogger()

	slog.Info(
		fmt.Sprintf("%s %s started", programName, version.GetVersionString()),
	)

	// Configure max processes with our logger wrapper, toss undo func
	_, err = maxprocs.Set(maxprocs.Logger(func(msg string, args ...any) {
		logger.Info(fmt.Sprintf(msg, args...))
	}))
	if err != nil {
		return fmt.Errorf("failed to set GOMAXPROCS: %w", err)
	}

	recipients, err := cfg.Recipients()
	if err != nil {
		return err
	}
	genCfg, err := cfg.GenerationConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open transaction cache
	store := storage.GetStorage()
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	// Start metrics listener
	if cfg.Metrics.ListenPort > 0 {
		if err := metrics.Start(ctx); err != nil {
			return err
		}
	}

	client := upstream.New(
		upstream.Config{
			Host:            cfg.Upstream.Host,
			Port:            cfg.Upstream.Port,
			User:            cfg.Upstream.User,
			Password:        cfg.Upstream.Password,
			Timeout:         cfg.Upstream.Timeout,
			LongPollTimeout: cfg.Upstream.LongPollTimeout,
		},
	)
	slog.Info(
		fmt.Sprintf("using node at %s", client.URL()),
	)

	// Warm the transaction cache from the node's memory pool
	mempool, err := client.GetMemoryPool(ctx)
	if err != nil {
		slog.Warn(
			fmt.Sprintf("failed to load memory pool from node: %s", err),
		)
	} else if err := store.PutTransactions(mempool); err != nil {
		return fmt.Errorf("failed to cache memory pool: %w", err)
	} else {
		slog.Info(
			fmt.Sprintf("cached %d transactions from the node's memory pool", len(mempool)),
		)
	}

	// Start workers
	workers := worker.NewManager(
		worker.Params{
			Count:      cfg.Worker.Count,
			Recipients: recipients,
			Generation: genCfg,
			Cache:      store,
		},
	)
	workers.Start()
	defer workers.Stop()
	slog.Info(
		fmt.Sprintf("started %d workers", workers.Count()),
	)

	c := coordinator.New(
		coordinator.Params{
			Upstream:   client,
			Store:      store,
			Workers:    workers,
			Recipients: recipients,
			Generation: genCfg,
			JobTTL:     cfg.Coordinator.JobTTL,
			RetryDelay: cfg.Coordinator.RetryDelay,
		},
	)
	if err := c.Start(ctx); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}
