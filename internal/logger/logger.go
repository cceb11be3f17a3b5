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

// Package logger routes the shell's diagnostics through a single logrus
// instance. Command output and user-facing error lines do not go through
// here; this is for the plumbing (image I/O, dispatch decisions, capture
// sizes) that a user only wants to see when debugging.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
}

// Setup applies the configured severity. Accepted values are trace, debug,
// info, warning, error, and off; anything else is an error back to the
// config layer.
func Setup(severity string) error {
	if severity == "off" {
		log.SetOutput(io.Discard)
		return nil
	}

	level, err := logrus.ParseLevel(severity)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	return nil
}

func Tracef(format string, args ...interface{}) {
	log.Tracef(format, args...)
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}
