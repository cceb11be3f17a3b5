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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mysh-vfs/mysh/internal/logger"
)

// The executor bridges the two worlds a stage can live in: built-ins run in
// this process against the volume, external commands are spawned as child
// processes. Redirection paths always name VFS files: input redirection
// feeds a VFS file's bytes to the stage, output redirection captures the
// stage's stdout and writes it back into the volume.

// Execute runs one parsed pipeline. The returned error is errExitRequested
// when the user asked to leave, or a failure to create the pipeline's pipes;
// per-command failures, including a command that cannot be started, are
// reported on stderr and swallowed, and child exit codes are never
// propagated.
func (s *Shell) Execute(stages []Stage) error {
	switch len(stages) {
	case 0:
		return nil
	case 1:
		return s.runSingle(stages[0])
	default:
		return s.runPipeline(stages)
	}
}

////////////////////////////////////////////////////////////////////////
// Single stage
////////////////////////////////////////////////////////////////////////

func (s *Shell) runSingle(stage Stage) error {
	stdin, err := s.stageInput(stage, os.Stdin)
	if err != nil {
		return nil // reported already; not fatal to the shell
	}

	if IsBuiltin(stage.Argv[0]) {
		var stdout io.Writer = os.Stdout
		var capture bytes.Buffer
		if stage.OutputFile != "" {
			stdout = &capture
		}

		err := s.runBuiltin(stage.Argv, stdin, stdout, os.Stderr)

		if stage.OutputFile != "" {
			s.writeCapture(stage.OutputFile, capture.Bytes(), stage.Append)
		}

		// Built-ins report their own failures; only an exit request needs to
		// reach the REPL.
		if errors.Is(err, errExitRequested) {
			return err
		}
		return nil
	}

	cmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stderr = os.Stderr

	var capture bytes.Buffer
	if stage.OutputFile != "" {
		cmd.Stdout = &capture
	} else {
		cmd.Stdout = os.Stdout
	}

	if err := cmd.Run(); err != nil {
		reportSpawnError(stage.Argv[0], err)
	}

	if stage.OutputFile != "" {
		s.writeCapture(stage.OutputFile, capture.Bytes(), stage.Append)
	}

	return nil
}

////////////////////////////////////////////////////////////////////////
// Multi-stage pipelines
////////////////////////////////////////////////////////////////////////

// One pipe connecting adjacent stages. Each end is owned by exactly one
// stage; whoever owns an end closes it, and nobody else touches it.
type stagePipe struct {
	r *os.File
	w *os.File
}

func (s *Shell) runPipeline(stages []Stage) error {
	k := len(stages)

	pipes := make([]stagePipe, k-1)
	for i := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			for _, p := range pipes[:i] {
				p.r.Close()
				p.w.Close()
			}
			return fmt.Errorf("pipe: %w", err)
		}
		pipes[i] = stagePipe{r: r, w: w}
	}

	var wg sync.WaitGroup
	var externals []*exec.Cmd

	for i, stage := range stages {
		last := i == k-1

		// Standard input: the previous stage's pipe, except for the first
		// stage (the terminal), and a per-stage VFS input redirection wins
		// over both. An overridden pipe end is closed immediately so the
		// upstream writer sees EPIPE instead of blocking forever.
		var stdin io.Reader = os.Stdin
		var stdinFile *os.File
		if i > 0 {
			stdinFile = pipes[i-1].r
			stdin = stdinFile
		}
		if stage.InputFile != "" {
			data, err := s.volume.ReadFile(stage.InputFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "mysh: %s: %s\n", stage.InputFile, reason(err))
				data = nil
			}
			if stdinFile != nil {
				stdinFile.Close()
				stdinFile = nil
			}
			stdin = bytes.NewReader(data)
		}

		// Standard output: the next stage's pipe; the last stage writes to
		// the terminal, or into a capture buffer when it carries an output
		// redirection.
		var stdout io.Writer = os.Stdout
		var stdoutFile *os.File
		var capture *bytes.Buffer
		if !last {
			stdoutFile = pipes[i].w
			stdout = stdoutFile
		} else if stage.OutputFile != "" {
			capture = new(bytes.Buffer)
			stdout = capture
		}

		if IsBuiltin(stage.Argv[0]) {
			wg.Add(1)
			go func(argv []string, stdin io.Reader, stdout io.Writer, rd *os.File, wr *os.File, outFile string, appendOut bool, capture *bytes.Buffer) {
				defer wg.Done()

				// Discard errExitRequested and friends: a built-in inside a
				// pipeline behaves like a child process, and a child's exit
				// does not unwind the shell.
				s.runBuiltin(argv, stdin, stdout, os.Stderr)

				if capture != nil {
					s.writeCapture(outFile, capture.Bytes(), appendOut)
				}

				if rd != nil {
					rd.Close()
				}
				if wr != nil {
					wr.Close()
				}
			}(stage.Argv, stdin, stdout, stdinFile, stdoutFile, stage.OutputFile, stage.Append, capture)

			continue
		}

		cmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			reportSpawnError(stage.Argv[0], err)
			// The stage is dead; release its pipe ends so its neighbours
			// observe EOF / EPIPE and the pipeline drains.
			if stdinFile != nil {
				stdinFile.Close()
			}
			if stdoutFile != nil {
				stdoutFile.Close()
			}
			continue
		}

		// The child holds duplicates now; drop the parent's copies.
		if stdinFile != nil {
			stdinFile.Close()
		}
		if stdoutFile != nil {
			stdoutFile.Close()
		}

		if capture != nil {
			// Wait synchronously-later; remember where the bytes must land.
			captured := capture
			outFile := stage.OutputFile
			appendOut := stage.Append
			c := cmd
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Wait()
				s.writeCapture(outFile, captured.Bytes(), appendOut)
			}()
		} else {
			externals = append(externals, cmd)
		}
	}

	// The user gets no prompt back until every stage is done.
	for _, cmd := range externals {
		if err := cmd.Wait(); err != nil {
			logger.Debugf("pipeline stage %q: %v", cmd.Path, err)
		}
	}
	wg.Wait()

	return nil
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Dispatch to a built-in with the given stdio.
func (s *Shell) runBuiltin(argv []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	env := &Env{
		Shell:  s,
		Volume: s.volume,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}

	return builtins[argv[0]](env, argv)
}

// Resolve a stage's input redirection for the single-stage path. A failed
// resolution is reported and surfaces as a non-nil error so the stage is
// skipped, mirroring a child that dies before exec.
func (s *Shell) stageInput(stage Stage, fallback *os.File) (io.Reader, error) {
	if stage.InputFile == "" {
		return fallback, nil
	}

	data, err := s.volume.ReadFile(stage.InputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysh: %s: %s\n", stage.InputFile, reason(err))
		return nil, err
	}

	return bytes.NewReader(data), nil
}

// writeCapture lands captured stage output in the VFS target, creating the
// file if needed and prefixing the existing contents in append mode.
func (s *Shell) writeCapture(path string, data []byte, appendOut bool) {
	i, err := s.volume.CreateFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysh: %s: %s\n", path, reason(err))
		return
	}

	if appendOut {
		existing, err := s.volume.ReadFileAt(i)
		if err == nil && len(existing) > 0 {
			data = append(existing, data...)
		}
	}

	if err := s.volume.WriteFileAt(i, data); err != nil {
		fmt.Fprintf(os.Stderr, "mysh: %s: %s\n", path, reason(err))
		return
	}

	logger.Debugf("captured %d bytes into %s (append=%t)", len(data), path, appendOut)
}

// The moral equivalent of a child exiting 127 after a failed exec.
func reportSpawnError(name string, err error) {
	if errors.Is(err, exec.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "%s: command not found\n", name)
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Non-zero exit is the child's business; the shell stays quiet.
		logger.Debugf("%s: %v", name, err)
		return
	}

	fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
}
