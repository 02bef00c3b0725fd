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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/marlin/internal/template"
)

const testScript = "76a91489abcdefabbaabbaabbaabbaabbaabbaabbaabba88ac"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsRequireRecipients(t *testing.T) {
	_, err := Load("")
	assert.ErrorContains(t, err, "Recipients")
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  debug: true
  format: text
upstream:
  host: node.local
  port: 18332
  user: pool
  password: hunter2
  timeout: 5s
stratum:
  recipients:
    - script: `+testScript+`
      percent: 0.25
    - script: 0014aabbccddeeff00112233445566778899aabbccdd
      percent: 0.5
storage:
  txTTL: 2m
worker:
  count: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, cfg, GetConfig())
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "node.local", cfg.Upstream.Host)
	assert.Equal(t, uint(18332), cfg.Upstream.Port)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	// Untouched values keep their defaults
	assert.Equal(t, 10*time.Minute, cfg.Upstream.LongPollTimeout)
	assert.Equal(t, template.DefaultWatermark, cfg.Pool.Watermark)
	assert.Equal(t, 2*time.Minute, cfg.Storage.TxTTL)
	assert.Equal(t, 3, cfg.Worker.Count)

	recipients, err := cfg.Recipients()
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, 0.25, recipients[0].Percent)
	assert.Len(t, recipients[1].Script, 22)

	genCfg, err := cfg.GenerationConfig()
	require.NoError(t, err)
	assert.Equal(t, template.DefaultGenerationConfig().DonationScript, genCfg.DonationScript)
	assert.Equal(t, template.DefaultEmptyWitnessCommitment, genCfg.EmptyWitnessCommitment)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("UPSTREAM_HOST", "10.0.0.2")
	t.Setenv("UPSTREAM_LONG_POLL_TIMEOUT", "90s")
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("STRATUM_RECIPIENTS", testScript+":0.5, "+testScript+":0.1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Upstream.Host)
	assert.Equal(t, 90*time.Second, cfg.Upstream.LongPollTimeout)
	assert.Equal(t, 7, cfg.Worker.Count)
	require.Len(t, cfg.Stratum.Recipients, 2)
	assert.Equal(t, 0.1, cfg.Stratum.Recipients[1].Percent)
}

func TestLoadInvalid(t *testing.T) {
	testDefs := []struct {
		name    string
		content string
	}{
		{
			"recipient shares",
			`
stratum:
  recipients:
    - script: ` + testScript + `
      percent: 0.75
    - script: ` + testScript + `
      percent: 0.5
`,
		},
		{
			"recipient percent",
			`
stratum:
  recipients:
    - script: ` + testScript + `
      percent: 1.5
`,
		},
		{
			"recipient script",
			`
stratum:
  recipients:
    - script: xyz
      percent: 0.5
`,
		},
		{
			"odd donation script",
			`
stratum:
  recipients:
    - script: ` + testScript + `
      percent: 0.5
pool:
  donationScript: abc
`,
		},
		{
			"logging format",
			`
logging:
  format: xml
stratum:
  recipients:
    - script: ` + testScript + `
      percent: 0.5
`,
		},
		{
			"worker count",
			`
worker:
  count: 0
stratum:
  recipients:
    - script: ` + testScript + `
      percent: 0.5
`,
		},
	}
	for _, testDef := range testDefs {
		_, err := Load(writeConfig(t, testDef.content))
		assert.Error(t, err, testDef.name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestRecipientListDecode(t *testing.T) {
	var list RecipientList
	require.NoError(t, list.Decode("aa:0.5,bb:0.25,"))
	assert.Equal(t, RecipientList{{Script: "aa", Percent: 0.5}, {Script: "bb", Percent: 0.25}}, list)
	assert.Error(t, list.Decode("aa"))
	assert.Error(t, list.Decode("aa:half"))
}
