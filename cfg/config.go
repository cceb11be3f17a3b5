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

// Package cfg defines the shell's configuration surface: the struct the
// flag set and optional YAML config file are unmarshalled into, plus
// defaults and validation.
package cfg

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

// Config is the session configuration, populated by viper from flags and an
// optional config file.
type Config struct {
	// Host directory holding the image and history files. Empty means "search
	// for an OS_PROJECT directory in the working directory, then under HOME".
	RootDir string `mapstructure:"root-dir"`

	// Filename of the volume image inside the root directory.
	ImageName string `mapstructure:"image-name"`

	// Filename of the flat history file inside the root directory.
	HistoryFile string `mapstructure:"history-file"`

	// One of: trace, debug, info, warning, error, off.
	LogSeverity string `mapstructure:"log-severity"`

	// Enable invariant checking on the volume lock. Expensive; every lock
	// transition walks the whole entry table and FAT.
	DebugInvariants bool `mapstructure:"debug-invariants"`

	// Save the image after destructive built-ins (rm, rmdir, mv), not just at
	// clean shutdown.
	SyncOnMutate bool `mapstructure:"sync-on-mutate"`
}

// BindFlags declares every config field on the given flag set, with
// defaults. Flag names double as the viper/mapstructure keys.
func BindFlags(flagSet *pflag.FlagSet) {
	flagSet.String("root-dir", "", "Host directory for image and history files (default: search for OS_PROJECT)")
	flagSet.String("image-name", "mysh_fs.img", "Volume image filename inside the root directory")
	flagSet.String("history-file", ".mysh_history", "History filename inside the root directory")
	flagSet.String("log-severity", "info", "Diagnostic severity: trace|debug|info|warning|error|off")
	flagSet.Bool("debug-invariants", false, "Panic on volume invariant violations")
	flagSet.Bool("sync-on-mutate", true, "Save the image after destructive built-ins")
}

var logSeverities = []string{"trace", "debug", "info", "warning", "error", "off"}

// Validate rejects values the rest of the program is not prepared for.
func Validate(c *Config) error {
	if !slices.Contains(logSeverities, c.LogSeverity) {
		return fmt.Errorf(
			"invalid log-severity %q; must be one of %v", c.LogSeverity, logSeverities)
	}
	if c.ImageName == "" {
		return fmt.Errorf("image-name must not be empty")
	}
	if c.HistoryFile == "" {
		return fmt.Errorf("history-file must not be empty")
	}

	return nil
}
