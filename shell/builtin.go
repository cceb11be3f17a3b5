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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mysh-vfs/mysh/fat"
)

// Env is the world a built-in runs against: the volume, the owning session,
// and the stage's standard streams. Built-ins are functions of this
// environment and their argv; they hold no state of their own.
type Env struct {
	Shell  *Shell
	Volume *fat.Volume
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// BuiltinFunc runs one built-in. A returned error has already been reported
// on env.Stderr; the caller only uses it for status.
type BuiltinFunc func(env *Env, args []string) error

// Returned by exit to unwind the REPL. Inside a multi-stage pipeline the
// request is discarded, matching a forked child exiting on its own.
var errExitRequested = errors.New("exit requested")

var builtins = map[string]BuiltinFunc{}

func init() {
	// Populated here rather than in the var block so help can walk the map
	// without an initialization cycle.
	for name, fn := range map[string]BuiltinFunc{
		"cd":      runCd,
		"pwd":     runPwd,
		"ls":      runLs,
		"cat":     runCat,
		"grep":    runGrep,
		"mkdir":   runMkdir,
		"touch":   runTouch,
		"rm":      runRm,
		"rmdir":   runRmdir,
		"mv":      runMv,
		"head":    runHead,
		"tail":    runTail,
		"history": runHistory,
		"jobs":    runJobs,
		"help":    runHelp,
		"import":  runImport,
		"exit":    runExit,
	} {
		builtins[name] = fn
	}
}

// IsBuiltin reports whether the named command is handled in-process.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// The user-visible reason string for each volume error kind.
func reason(err error) string {
	switch {
	case errors.Is(err, fat.ErrNotExist):
		return "No such file or directory"
	case errors.Is(err, fat.ErrIsDir):
		return "Is a directory"
	case errors.Is(err, fat.ErrNotDir):
		return "Not a directory"
	case errors.Is(err, fat.ErrExist):
		return "File exists"
	case errors.Is(err, fat.ErrNoSpace):
		return "No space left on device"
	case errors.Is(err, fat.ErrNotEmpty):
		return "Directory not empty"
	case errors.Is(err, fat.ErrInvalidName):
		return "Invalid name"
	default:
		return err.Error()
	}
}

// report prints the canonical "<cmd>: <path>: <reason>" error line and hands
// the error back for status.
func report(env *Env, cmd string, path string, err error) error {
	fmt.Fprintf(env.Stderr, "%s: %s: %s\n", cmd, path, reason(err))
	return err
}

func usage(env *Env, text string) error {
	fmt.Fprintln(env.Stderr, text)
	return errors.New(text)
}

////////////////////////////////////////////////////////////////////////
// Namespace built-ins
////////////////////////////////////////////////////////////////////////

func runCd(env *Env, args []string) error {
	path := "/"
	if len(args) > 1 {
		path = args[1]
	}

	if err := env.Volume.ChDir(path); err != nil {
		return report(env, "cd", path, err)
	}

	return nil
}

func runPwd(env *Env, args []string) error {
	fmt.Fprintln(env.Stdout, env.Volume.CWDPath())
	return nil
}

func runLs(env *Env, args []string) error {
	path := ""
	if len(args) > 1 {
		path = args[1]
	}

	children, err := env.Volume.ListDir(path)
	if err != nil {
		return report(env, "ls", path, err)
	}

	var sb strings.Builder
	for _, child := range children {
		sb.WriteString(child.Name)
		if child.IsDir {
			sb.WriteByte('/')
		}
		sb.WriteString("  ")
	}
	sb.WriteByte('\n')
	io.WriteString(env.Stdout, sb.String())

	return nil
}

func runCat(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "cat: missing operand")
	}

	data, err := env.Volume.ReadFile(args[1])
	if err != nil {
		return report(env, "cat", args[1], err)
	}

	env.Stdout.Write(data)

	return nil
}

func runMkdir(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "mkdir: missing operand")
	}

	if _, err := env.Volume.MkDir(args[1]); err != nil {
		return report(env, "mkdir", args[1], err)
	}

	return nil
}

func runTouch(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "touch: missing operand")
	}

	if _, err := env.Volume.CreateFile(args[1]); err != nil {
		return report(env, "touch", args[1], err)
	}

	return nil
}

func runRm(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "rm: missing operand")
	}

	if err := env.Volume.Unlink(args[1]); err != nil {
		return report(env, "rm", args[1], err)
	}

	fmt.Fprintf(env.Stdout, "Removed '%s' from virtual file system\n", args[1])
	env.Shell.syncImage()

	return nil
}

func runRmdir(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "rmdir: missing operand")
	}

	if err := env.Volume.RmDir(args[1]); err != nil {
		return report(env, "rmdir", args[1], err)
	}

	fmt.Fprintf(env.Stdout, "Removed directory '%s' from virtual file system\n", args[1])
	env.Shell.syncImage()

	return nil
}

func runMv(env *Env, args []string) error {
	if len(args) < 3 {
		return usage(env, "mv: usage: mv <src> <dst>")
	}

	if err := env.Volume.Rename(args[1], args[2]); err != nil {
		return report(env, "mv", args[1], err)
	}

	fmt.Fprintf(env.Stdout, "Moved '%s' to '%s'\n", args[1], args[2])
	env.Shell.syncImage()

	return nil
}

////////////////////////////////////////////////////////////////////////
// Content built-ins
////////////////////////////////////////////////////////////////////////

func runGrep(env *Env, args []string) error {
	if len(args) < 2 {
		return usage(env, "grep: usage: grep <pattern> [file]")
	}
	pattern := args[1]

	// Without a file operand (or with "-"), filter the stage's own standard
	// input; this is what makes grep usable on the right side of a pipe.
	if len(args) < 3 || args[2] == "-" {
		scanner := bufio.NewScanner(env.Stdin)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), pattern) {
				fmt.Fprintln(env.Stdout, scanner.Text())
			}
		}
		return scanner.Err()
	}

	data, err := env.Volume.ReadFile(args[2])
	if err != nil {
		return report(env, "grep", args[2], err)
	}

	for _, line := range splitLines(data) {
		if strings.Contains(line, pattern) {
			fmt.Fprintln(env.Stdout, line)
		}
	}

	return nil
}

func runHead(env *Env, args []string) error {
	n, lines, err := lineCountInput(env, "head", args)
	if err != nil {
		return err
	}

	for i, line := range lines {
		if i >= n {
			break
		}
		fmt.Fprintln(env.Stdout, line)
	}

	return nil
}

func runTail(env *Env, args []string) error {
	n, lines, err := lineCountInput(env, "tail", args)
	if err != nil {
		return err
	}

	// A count of zero or less selects nothing; clamp so a negative n cannot
	// push start past the end of the slice.
	start := len(lines)
	if n > 0 && n < len(lines) {
		start = len(lines) - n
	} else if n > 0 {
		start = 0
	}
	for _, line := range lines[start:] {
		fmt.Fprintln(env.Stdout, line)
	}

	return nil
}

// Argument handling shared by head and tail: "[-n N]" or "-N" select the
// line count (default 10); the remaining operand is the file to read, or
// the stage's standard input when absent. A count that does not parse as an
// integer is a usage error; a count of zero or less selects no lines.
func lineCountInput(env *Env, cmd string, args []string) (n int, lines []string, err error) {
	usageText := fmt.Sprintf("%s: usage: %s [-n N] [file]", cmd, cmd)

	n = 10
	rest := args[1:]
	switch {
	case len(rest) > 1 && rest[0] == "-n":
		if n, err = strconv.Atoi(rest[1]); err != nil {
			return 0, nil, usage(env, usageText)
		}
		rest = rest[2:]

	case len(rest) > 0 && strings.HasPrefix(rest[0], "-"):
		if n, err = strconv.Atoi(rest[0][1:]); err != nil {
			return 0, nil, usage(env, usageText)
		}
		rest = rest[1:]
	}

	switch len(rest) {
	case 0:
		scanner := bufio.NewScanner(env.Stdin)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		return n, lines, scanner.Err()

	case 1:
		data, readErr := env.Volume.ReadFile(rest[0])
		if readErr != nil {
			return 0, nil, report(env, cmd, rest[0], readErr)
		}
		return n, splitLines(data), nil
	}

	return 0, nil, usage(env, usageText)
}

// File contents as lines, the way line-oriented built-ins see them: split on
// '\n', with a trailing newline not producing a phantom empty line.
func splitLines(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

////////////////////////////////////////////////////////////////////////
// Session built-ins
////////////////////////////////////////////////////////////////////////

func runHistory(env *Env, args []string) error {
	env.Shell.history.Print(env.Stdout)
	return nil
}

func runJobs(env *Env, args []string) error {
	// Placeholder: background jobs are not supported.
	fmt.Fprintln(env.Stdout, "jobs: no background jobs support")
	return nil
}

func runHelp(env *Env, args []string) error {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(env.Stdout, "Built-in commands (paths refer to the virtual file system):")
	fmt.Fprintf(env.Stdout, "  %s\n", strings.Join(names, "  "))
	fmt.Fprintln(env.Stdout, "Anything else is run as an external program.")
	fmt.Fprintln(env.Stdout, "Redirection: cmd < vfsfile, cmd > vfsfile, cmd >> vfsfile; pipelines with |.")

	return nil
}

// import copies a host file into the VFS. It replaces the original's
// editor-sync heuristic with an explicit command; the host path must stay
// inside the session's root directory.
func runImport(env *Env, args []string) error {
	if len(args) < 3 {
		return usage(env, "import: usage: import <host-path> <vfs-path>")
	}
	hostPath, vfsPath := args[1], args[2]

	resolved := hostPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(env.Shell.rootDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	root := env.Shell.rootDir
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		fmt.Fprintf(env.Stderr, "import: %s: outside the root directory\n", hostPath)
		return errors.New("import: path outside the root directory")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		fmt.Fprintf(env.Stderr, "import: %s: %v\n", hostPath, err)
		return err
	}

	i, err := env.Volume.CreateFile(vfsPath)
	if err != nil {
		return report(env, "import", vfsPath, err)
	}
	if err := env.Volume.WriteFileAt(i, data); err != nil {
		return report(env, "import", vfsPath, err)
	}

	fmt.Fprintf(env.Stdout, "[VFS] Synced '%s' to virtual file system (%d bytes)\n", vfsPath, len(data))

	return nil
}

func runExit(env *Env, args []string) error {
	if err := env.Shell.saveImage(); err != nil {
		fmt.Fprintf(env.Stderr, "exit: saving image: %v\n", err)
	} else {
		fmt.Fprintf(env.Stdout, "File system saved to %s\n", env.Shell.config.ImageName)
	}

	return errExitRequested
}
