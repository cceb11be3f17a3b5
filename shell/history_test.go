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

package shell

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAdd(t *testing.T) {
	var h History

	h.Add("ls")
	h.Add("pwd")

	var out bytes.Buffer
	h.Print(&out)
	assert.Equal(t, "   1  ls\n   2  pwd\n", out.String())
}

func TestHistorySkipsEmptyAndConsecutiveDuplicates(t *testing.T) {
	var h History

	h.Add("")
	h.Add("ls")
	h.Add("ls")
	h.Add("pwd")
	h.Add("ls")

	var out bytes.Buffer
	h.Print(&out)
	assert.Equal(t, "   1  ls\n   2  pwd\n   3  ls\n", out.String())
}

func TestHistoryCapacity(t *testing.T) {
	var h History

	for i := 0; i < MaxHistory+20; i++ {
		h.Add(fmt.Sprintf("cmd %d", i))
	}

	var out bytes.Buffer
	h.Print(&out)
	// The oldest lines fell off; the first retained line is cmd 20.
	assert.Contains(t, out.String(), "   1  cmd 20\n")
	assert.Contains(t, out.String(), fmt.Sprintf("%4d  cmd %d\n", MaxHistory, MaxHistory+19))
}

func TestHistorySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mysh_history")

	var h History
	h.Add("ls /")
	h.Add("cat /readme.txt")
	require.NoError(t, h.Save(path))

	var loaded History
	require.NoError(t, loaded.Load(path))

	var want, got bytes.Buffer
	h.Print(&want)
	loaded.Print(&got)
	assert.Equal(t, want.String(), got.String())
}

func TestHistoryLoadMissingFile(t *testing.T) {
	var h History

	assert.NoError(t, h.Load(filepath.Join(t.TempDir(), "absent")))

	var out bytes.Buffer
	h.Print(&out)
	assert.Empty(t, out.String())
}

func TestHistoryFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mysh_history")

	var h History
	h.Add("first")
	h.Add("second")
	require.NoError(t, h.Save(path))

	// Flat newline-separated lines, nothing else.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}
