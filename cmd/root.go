// Copyright 2024 Google LLC
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

package cmd

import (
	"fmt"
	"os"

	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/common"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runFn func(c *cfg.Config) error

// NewRootCmd accepts the run function as a dependency so that the command can
// be tested without starting a pool.
func NewRootCmd(run runFn) (*cobra.Command, error) {
	var (
		configObj cfg.Config
		cfgFile   string
	)
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "threadpool [flags]",
		Short: "Run a synthetic workload on a fixed-size worker pool",
		Long: `threadpool starts a fixed number of workers that execute tasks from a
single FIFO queue, feeds them a synthetic workload and reports how every task
ended. SIGINT and SIGTERM stop the pool gracefully.`,
		Version:      common.GetVersion(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile, &configObj)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&configObj)
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("threadpool version %s\n", common.GetVersion()))
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "The path to the config file where all threadpool related config needs to be specified. Flags override values from the file.")
	if err := cfg.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("error while binding flags: %w", err)
	}
	return rootCmd, nil
}

func initConfig(v *viper.Viper, cfgFile string, configObj *cfg.Config) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	err := v.Unmarshal(configObj, viper.DecodeHook(cfg.DecodeHook()), func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.TagName = "yaml"
	})
	if err != nil {
		return fmt.Errorf("error while unmarshaling the config: %w", err)
	}

	if err = cfg.ValidateConfig(configObj); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return cfg.Rationalize(v, configObj)
}

// Execute runs the threadpool command line and exits with a non-zero status
// on failure.
func Execute() {
	rootCmd, err := NewRootCmd(runWorkload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build the root command: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
