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

package fat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageRoundTrip(t *testing.T) {
	v := newTestVolume()
	_, err := v.MkDir("/d")
	require.NoError(t, err)
	_, err = v.CreateFile("/d/f")
	require.NoError(t, err)
	require.NoError(t, v.WriteFile("/d/f", []byte("persisted contents")))
	require.NoError(t, v.ChDir("/d"))

	path := filepath.Join(t.TempDir(), "vol.img")
	require.NoError(t, v.SaveImage(path))

	restored := newTestVolume()
	require.NoError(t, restored.LoadImage(path))

	// The restored volume is byte-identical to the original: saving it again
	// produces the same blob.
	second := filepath.Join(t.TempDir(), "vol2.img")
	require.NoError(t, restored.SaveImage(second))
	want, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// And behaves identically.
	assert.Equal(t, "/d", restored.CWDPath())
	data, err := restored.ReadFile("/d/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted contents"), data)
	assert.Equal(t, v.NumEntries(), restored.NumEntries())
	assert.Equal(t, v.CountFreeBlocks(), restored.CountFreeBlocks())
}

func TestImageSizeIsFixed(t *testing.T) {
	v := newTestVolume()
	path := filepath.Join(t.TempDir(), "vol.img")

	require.NoError(t, v.SaveImage(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(imageLen), fi.Size())
}

func TestLoadMissingImage(t *testing.T) {
	v := newTestVolume()

	err := v.LoadImage(filepath.Join(t.TempDir(), "nope.img"))

	assert.True(t, os.IsNotExist(err))
}

func TestLoadShortImage(t *testing.T) {
	v := newTestVolume()
	_, err := v.CreateFile("/keep")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "short.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0644))

	assert.Error(t, v.LoadImage(path))

	// A failed load leaves the in-memory volume untouched.
	_, err = v.LookUp("/keep")
	assert.NoError(t, err)
}

func TestLoadRejectsCorruptMetadata(t *testing.T) {
	v := newTestVolume()
	path := filepath.Join(t.TempDir(), "vol.img")
	require.NoError(t, v.SaveImage(path))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)

	// Stomp the root entry's isUsed flag.
	rootUsedOff := NumBlocks*2 + nameFieldLen + 4 + 2 + 1
	blob[rootUsedOff] = 0
	require.NoError(t, os.WriteFile(path, blob, 0644))

	assert.Error(t, v.LoadImage(path))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	v := newTestVolume()
	dir := t.TempDir()

	require.NoError(t, v.SaveImage(filepath.Join(dir, "vol.img")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vol.img", entries[0].Name())
}

func TestSaveOverwritesAtomically(t *testing.T) {
	v := newTestVolume()
	path := filepath.Join(t.TempDir(), "vol.img")
	require.NoError(t, v.SaveImage(path))

	_, err := v.CreateFile("/added")
	require.NoError(t, err)
	require.NoError(t, v.SaveImage(path))

	restored := newTestVolume()
	require.NoError(t, restored.LoadImage(path))
	_, err = restored.LookUp("/added")
	assert.NoError(t, err)
}
