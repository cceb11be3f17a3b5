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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysh-vfs/mysh/cfg"
	"github.com/mysh-vfs/mysh/fat"
)

func TestMain(m *testing.M) {
	syncutil.EnableInvariantChecking()
	os.Exit(m.Run())
}

// A session detached from any terminal, with image syncing off so built-ins
// can run without touching the host filesystem.
func newTestShell(t *testing.T) *Shell {
	t.Helper()

	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	return &Shell{
		config: cfg.Config{
			ImageName:    "mysh_fs.img",
			HistoryFile:  ".mysh_history",
			SyncOnMutate: false,
		},
		volume:  fat.NewVolume(clock),
		rootDir: t.TempDir(),
	}
}

// Run a built-in against the given stdin, returning its stdout and stderr.
func runTestBuiltin(s *Shell, stdin string, argv ...string) (stdout string, stderr string, err error) {
	var out, errOut bytes.Buffer
	env := &Env{
		Shell:  s,
		Volume: s.volume,
		Stdin:  strings.NewReader(stdin),
		Stdout: &out,
		Stderr: &errOut,
	}

	err = builtins[argv[0]](env, argv)
	return out.String(), errOut.String(), err
}

func TestBuiltinRegistry(t *testing.T) {
	for _, name := range []string{
		"cd", "pwd", "ls", "cat", "grep", "mkdir", "touch", "rm", "rmdir",
		"mv", "head", "tail", "history", "jobs", "help", "import", "exit",
	} {
		assert.True(t, IsBuiltin(name), "missing built-in %q", name)
	}

	assert.False(t, IsBuiltin("echo"))
	assert.False(t, IsBuiltin(""))
}

func TestPwdAndCd(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.MkDir("/d")
	require.NoError(t, err)

	out, _, err := runTestBuiltin(s, "", "pwd")
	require.NoError(t, err)
	assert.Equal(t, "/\n", out)

	_, _, err = runTestBuiltin(s, "", "cd", "/d")
	require.NoError(t, err)
	out, _, err = runTestBuiltin(s, "", "pwd")
	require.NoError(t, err)
	assert.Equal(t, "/d\n", out)

	// cd without an operand returns to the root.
	_, _, err = runTestBuiltin(s, "", "cd")
	require.NoError(t, err)
	assert.Equal(t, "/", s.volume.CWDPath())
}

func TestCdErrors(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.CreateFile("/f")
	require.NoError(t, err)

	_, stderr, err := runTestBuiltin(s, "", "cd", "/f")
	assert.Error(t, err)
	assert.Equal(t, "cd: /f: Not a directory\n", stderr)

	_, stderr, err = runTestBuiltin(s, "", "cd", "/nope")
	assert.Error(t, err)
	assert.Equal(t, "cd: /nope: No such file or directory\n", stderr)
}

func TestLsOutput(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.MkDir("/d")
	require.NoError(t, err)
	_, err = s.volume.CreateFile("/a.txt")
	require.NoError(t, err)

	out, _, err := runTestBuiltin(s, "", "ls", "/")
	require.NoError(t, err)

	// Directories carry a trailing slash; entries appear in table order.
	assert.Equal(t, "d/  a.txt  \n", out)
}

func TestCat(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.CreateFile("/f")
	require.NoError(t, err)
	require.NoError(t, s.volume.WriteFile("/f", []byte("raw bytes\nno trailing newline")))

	out, _, err := runTestBuiltin(s, "", "cat", "/f")
	require.NoError(t, err)
	assert.Equal(t, "raw bytes\nno trailing newline", out)
}

func TestCatErrors(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.MkDir("/d")
	require.NoError(t, err)

	_, stderr, err := runTestBuiltin(s, "", "cat", "/d")
	assert.Error(t, err)
	assert.Equal(t, "cat: /d: Is a directory\n", stderr)

	_, stderr, _ = runTestBuiltin(s, "", "cat")
	assert.Equal(t, "cat: missing operand\n", stderr)
}

func TestGrepFile(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.CreateFile("/f")
	require.NoError(t, err)
	require.NoError(t, s.volume.WriteFile("/f", []byte("alpha\nbeta\nalphabet\n")))

	out, _, err := runTestBuiltin(s, "", "grep", "alpha", "/f")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nalphabet\n", out)

	// Substring match only; no pattern syntax.
	out, _, err = runTestBuiltin(s, "", "grep", "a.b", "/f")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGrepStdin(t *testing.T) {
	s := newTestShell(t)

	out, _, err := runTestBuiltin(s, "one\ntwo\ntwenty-one\n", "grep", "one")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwenty-one\n", out)
}

func TestMkdirTouchRm(t *testing.T) {
	s := newTestShell(t)

	_, _, err := runTestBuiltin(s, "", "mkdir", "/d")
	require.NoError(t, err)
	_, _, err = runTestBuiltin(s, "", "touch", "/d/f")
	require.NoError(t, err)

	out, _, err := runTestBuiltin(s, "", "rm", "/d/f")
	require.NoError(t, err)
	assert.Equal(t, "Removed '/d/f' from virtual file system\n", out)

	_, stderr, err := runTestBuiltin(s, "", "rm", "/d")
	assert.Error(t, err)
	assert.Equal(t, "rm: /d: Is a directory\n", stderr)

	out, _, err = runTestBuiltin(s, "", "rmdir", "/d")
	require.NoError(t, err)
	assert.Equal(t, "Removed directory '/d' from virtual file system\n", out)
}

func TestMkdirExists(t *testing.T) {
	s := newTestShell(t)
	_, _, err := runTestBuiltin(s, "", "mkdir", "/d")
	require.NoError(t, err)

	_, stderr, err := runTestBuiltin(s, "", "mkdir", "/d")
	assert.Error(t, err)
	assert.Equal(t, "mkdir: /d: File exists\n", stderr)
}

func TestMv(t *testing.T) {
	s := newTestShell(t)
	_, _, err := runTestBuiltin(s, "", "mkdir", "/d")
	require.NoError(t, err)
	_, _, err = runTestBuiltin(s, "", "touch", "/f")
	require.NoError(t, err)

	out, _, err := runTestBuiltin(s, "", "mv", "/f", "/d")
	require.NoError(t, err)
	assert.Equal(t, "Moved '/f' to '/d'\n", out)

	_, err = s.volume.LookUp("/d/f")
	assert.NoError(t, err)
}

func TestHeadTail(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.CreateFile("/f")
	require.NoError(t, err)
	var lines []string
	for i := 1; i <= 15; i++ {
		lines = append(lines, strings.Repeat("x", i))
	}
	require.NoError(t, s.volume.WriteFile("/f", []byte(strings.Join(lines, "\n")+"\n")))

	out, _, err := runTestBuiltin(s, "", "head", "/f")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines[:10], "\n")+"\n", out)

	out, _, err = runTestBuiltin(s, "", "head", "-n", "3", "/f")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines[:3], "\n")+"\n", out)

	out, _, err = runTestBuiltin(s, "", "tail", "-2", "/f")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines[13:], "\n")+"\n", out)

	// A count of zero or less selects nothing.
	out, _, err = runTestBuiltin(s, "", "head", "-n", "-5", "/f")
	require.NoError(t, err)
	assert.Empty(t, out)

	// A count that is not a number is a usage error.
	_, stderr, err := runTestBuiltin(s, "", "head", "-n", "lots", "/f")
	assert.Error(t, err)
	assert.Contains(t, stderr, "usage")
}

func TestTailNegativeCount(t *testing.T) {
	s := newTestShell(t)
	_, err := s.volume.CreateFile("/f")
	require.NoError(t, err)
	require.NoError(t, s.volume.WriteFile("/f", []byte("a\nb\nc\n")))

	// A negative count selects nothing and must not crash the shell.
	out, _, err := runTestBuiltin(s, "", "tail", "-n", "-1", "/f")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = runTestBuiltin(s, "", "tail", "-3", "/f")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)

	out, _, err = runTestBuiltin(s, "", "tail", "-n", "0", "/f")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHeadTailStdin(t *testing.T) {
	s := newTestShell(t)
	input := "a\nb\nc\nd\n"

	out, _, err := runTestBuiltin(s, input, "head", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)

	out, _, err = runTestBuiltin(s, input, "tail", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, "d\n", out)
}

func TestHistoryBuiltin(t *testing.T) {
	s := newTestShell(t)
	s.history.Add("ls /")
	s.history.Add("cat /readme.txt")

	out, _, err := runTestBuiltin(s, "", "history")
	require.NoError(t, err)
	assert.Equal(t, "   1  ls /\n   2  cat /readme.txt\n", out)
}

func TestJobsPlaceholder(t *testing.T) {
	s := newTestShell(t)

	out, _, err := runTestBuiltin(s, "", "jobs")
	require.NoError(t, err)
	assert.Equal(t, "jobs: no background jobs support\n", out)
}

func TestHelpListsBuiltins(t *testing.T) {
	s := newTestShell(t)

	out, _, err := runTestBuiltin(s, "", "help")
	require.NoError(t, err)
	for _, name := range []string{"cd", "grep", "rmdir", "import"} {
		assert.Contains(t, out, name)
	}
}

func TestImport(t *testing.T) {
	s := newTestShell(t)
	hostFile := filepath.Join(s.rootDir, "notes.txt")
	require.NoError(t, os.WriteFile(hostFile, []byte("host bytes"), 0644))

	out, _, err := runTestBuiltin(s, "", "import", "notes.txt", "/notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced '/notes.txt'")

	data, err := s.volume.ReadFile("/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("host bytes"), data)
}

func TestImportOutsideRootRefused(t *testing.T) {
	s := newTestShell(t)

	_, stderr, err := runTestBuiltin(s, "", "import", "../outside.txt", "/x")
	assert.Error(t, err)
	assert.Contains(t, stderr, "outside the root directory")
}

func TestExitRequestsUnwind(t *testing.T) {
	s := newTestShell(t)

	out, _, err := runTestBuiltin(s, "", "exit")
	assert.ErrorIs(t, err, errExitRequested)
	assert.Contains(t, out, "File system saved to mysh_fs.img")
}
