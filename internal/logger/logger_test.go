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

package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSeverities(t *testing.T) {
	for _, severity := range []string{"trace", "debug", "info", "warning", "error"} {
		assert.NoError(t, Setup(severity), "severity %q", severity)
	}

	assert.Error(t, Setup("loud"))
}

func TestSeverityFilters(t *testing.T) {
	var out bytes.Buffer
	log.SetOutput(&out)
	defer log.SetOutput(bytes.NewBuffer(nil))

	require.NoError(t, Setup("warning"))

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("visible %d", 3)

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "visible 3")
}

func TestOffDiscardsEverything(t *testing.T) {
	var out bytes.Buffer
	log.SetOutput(&out)

	require.NoError(t, Setup("off"))
	log.SetLevel(logrus.TraceLevel)

	Errorf("dropped")

	assert.Empty(t, out.String())
}
