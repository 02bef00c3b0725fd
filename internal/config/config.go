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

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/blinklabs-io/marlin/internal/template"
)

type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Stratum     StratumConfig     `yaml:"stratum"`
	Pool        PoolConfig        `yaml:"pool"`
	Storage     StorageConfig     `yaml:"storage"`
	Worker      WorkerConfig      `yaml:"worker"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

type LoggingConfig struct {
	Debug  bool   `yaml:"debug"  envconfig:"LOGGING_DEBUG"`
	Format string `yaml:"format" envconfig:"LOGGING_FORMAT" validate:"oneof=json text"`
}

type UpstreamConfig struct {
	Host            string        `yaml:"host"            envconfig:"UPSTREAM_HOST"              validate:"required"`
	Port            uint          `yaml:"port"            envconfig:"UPSTREAM_PORT"              validate:"required,max=65535"`
	User            string        `yaml:"user"            envconfig:"UPSTREAM_USER"`
	Password        string        `yaml:"password"        envconfig:"UPSTREAM_PASSWORD"`
	Timeout         time.Duration `yaml:"timeout"         envconfig:"UPSTREAM_TIMEOUT"           validate:"gt=0"`
	LongPollTimeout time.Duration `yaml:"longPollTimeout" envconfig:"UPSTREAM_LONG_POLL_TIMEOUT" validate:"gte=0"`
}

type StratumConfig struct {
	Recipients RecipientList `yaml:"recipients" envconfig:"STRATUM_RECIPIENTS" validate:"min=1,dive"`
}

type RecipientConfig struct {
	// Output script, hex encoded
	Script  string  `yaml:"script"  validate:"required,hexadecimal"`
	Percent float64 `yaml:"percent" validate:"gte=0,lte=1"`
}

// RecipientList is decoded from the environment as a comma-separated list of
// script:percent pairs
type RecipientList []RecipientConfig

func (r *RecipientList) Decode(value string) error {
	var ret RecipientList
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		script, percentStr, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("invalid recipient %q, expected script:percent", entry)
		}
		percent, err := strconv.ParseFloat(percentStr, 64)
		if err != nil {
			return fmt.Errorf("invalid recipient percent %q: %w", percentStr, err)
		}
		ret = append(ret, RecipientConfig{Script: script, Percent: percent})
	}
	*r = ret
	return nil
}

type PoolConfig struct {
	DonationScript         string `yaml:"donationScript"         envconfig:"POOL_DONATION_SCRIPT"          validate:"required,hexadecimal"`
	Watermark              string `yaml:"watermark"              envconfig:"POOL_WATERMARK"`
	EmptyWitnessCommitment string `yaml:"emptyWitnessCommitment" envconfig:"POOL_EMPTY_WITNESS_COMMITMENT" validate:"required,hexadecimal"`
}

type StorageConfig struct {
	// How long raw transactions are kept in the transaction cache
	TxTTL time.Duration `yaml:"txTTL" envconfig:"STORAGE_TX_TTL" validate:"gt=0"`
}

type WorkerConfig struct {
	Count int `yaml:"count" envconfig:"WORKER_COUNT" validate:"min=1"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"address" envconfig:"METRICS_LISTEN_ADDRESS"`
	ListenPort    uint   `yaml:"port"    envconfig:"METRICS_LISTEN_PORT"    validate:"max=65535"`
}

type CoordinatorConfig struct {
	// How long a job stays resolvable after it was broadcast
	JobTTL time.Duration `yaml:"jobTTL"     envconfig:"COORDINATOR_JOB_TTL"     validate:"gt=0"`
	// Wait before retrying after an upstream failure
	RetryDelay time.Duration `yaml:"retryDelay" envconfig:"COORDINATOR_RETRY_DELAY" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Format: "json",
		},
		Upstream: UpstreamConfig{
			Host:            "127.0.0.1",
			Port:            8332,
			User:            "bitcoin",
			Timeout:         30 * time.Second,
			LongPollTimeout: 10 * time.Minute,
		},
		Pool: PoolConfig{
			DonationScript:         template.DefaultDonationScript,
			Watermark:              template.DefaultWatermark,
			EmptyWitnessCommitment: template.DefaultEmptyWitnessCommitment,
		},
		Storage: StorageConfig{
			TxTTL: 10 * time.Minute,
		},
		// One worker per available CPU
		Worker: WorkerConfig{
			Count: max(1, runtime.GOMAXPROCS(0)),
		},
		Metrics: MetricsConfig{
			ListenAddress: "",
			ListenPort:    8081,
		},
		Coordinator: CoordinatorConfig{
			JobTTL:     10 * time.Minute,
			RetryDelay: 5 * time.Second,
		},
	}
}

var globalConfig = defaultConfig()

func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, cfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", cfg)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	recipients, err := c.Recipients()
	if err != nil {
		return err
	}
	if err := template.ValidateRecipients(recipients); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.GenerationConfig(); err != nil {
		return err
	}
	return nil
}

// Recipients returns the configured coinbase recipients with decoded scripts
func (c *Config) Recipients() ([]template.Recipient, error) {
	ret := make([]template.Recipient, 0, len(c.Stratum.Recipients))
	for idx, recipient := range c.Stratum.Recipients {
		script, err := hex.DecodeString(recipient.Script)
		if err != nil {
			return nil, fmt.Errorf("invalid script for recipient %d: %w", idx, err)
		}
		ret = append(
			ret,
			template.Recipient{
				Percent: recipient.Percent,
				Script:  script,
			},
		)
	}
	return ret, nil
}

// GenerationConfig returns the coinbase construction settings
func (c *Config) GenerationConfig() (template.GenerationConfig, error) {
	ret := template.DefaultGenerationConfig()
	donationScript, err := hex.DecodeString(c.Pool.DonationScript)
	if err != nil {
		return ret, fmt.Errorf("invalid donation script: %w", err)
	}
	ret.DonationScript = donationScript
	ret.Watermark = c.Pool.Watermark
	ret.EmptyWitnessCommitment = c.Pool.EmptyWitnessCommitment
	return ret, nil
}
