// Copyright 2024 The mysh Authors. All Rights Reserved.
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

// Package cmd wires the command line to a shell session: flag and config
// file handling via cobra and viper, then handoff to the shell package.
package cmd

import (
	"fmt"
	"os"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mysh-vfs/mysh/cfg"
	"github.com/mysh-vfs/mysh/internal/logger"
	"github.com/mysh-vfs/mysh/shell"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	config        cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "mysh",
	Short: "An interactive shell over an in-memory FAT virtual file system",
	Long: `mysh is an interactive shell whose built-in commands operate on a
persistent, in-memory FAT-style volume. Unknown commands are dispatched to
the host system, and pipelines may mix both; redirection paths always name
files inside the virtual volume.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.Validate(&config); err != nil {
			return err
		}
		if err := logger.Setup(config.LogSeverity); err != nil {
			return err
		}
		if config.DebugInvariants {
			syncutil.EnableInvariantChecking()
		}

		s, err := shell.New(config, timeutil.RealClock())
		if err != nil {
			return err
		}

		return s.Run()
	},
}

// Execute runs the root command. Startup failures (most importantly a
// missing root directory) exit with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	cfg.BindFlags(rootCmd.PersistentFlags())
	bindErr = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	unmarshalErr = viper.Unmarshal(&config, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)))
}
