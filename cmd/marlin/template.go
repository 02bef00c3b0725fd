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
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/marlin/internal/config"
	"github.com/blinklabs-io/marlin/internal/template"
)

var templateFlags struct {
	jobID string
	clean bool
}

var templateCmd = &cobra.Command{
	Use:   "template <file>",
	Short: "Build a job from a saved getblocktemplate result and print its notify params",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showTemplate(args[0])
	},
}

func init() {
	templateCmd.Flags().StringVar(&templateFlags.jobID, "job-id", "1", "job ID to use in the notify params")
	templateCmd.Flags().BoolVar(&templateFlags.clean, "clean", true, "value of the clean jobs flag")
}

func showTemplate(file string) error {
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	recipients, err := cfg.Recipients()
	if err != nil {
		return err
	}
	genCfg, err := cfg.GenerationConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var nodeTpl template.NodeTemplate
	if err := json.Unmarshal(data, &nodeTpl); err != nil {
		return fmt.Errorf("failed to decode block template: %w", err)
	}
	tpl, err := template.FromNodeTemplate(&nodeTpl, recipients, genCfg)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(
		map[string]any{
			"height":     tpl.Height(),
			"difficulty": tpl.Difficulty().Dec(),
			"txCount":    tpl.TxCount(),
			"params":     tpl.JobParams(templateFlags.jobID, templateFlags.clean),
		},
		"",
		"  ",
	)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
