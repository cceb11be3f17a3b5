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

// Package shell implements the interactive shell on top of the FAT volume:
// line parsing, the built-in command set, the pipeline executor, and the
// session lifecycle (root-directory bootstrap, image and history
// persistence, the REPL itself).
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jacobsa/timeutil"
	"github.com/mysh-vfs/mysh/cfg"
	"github.com/mysh-vfs/mysh/fat"
	"github.com/mysh-vfs/mysh/internal/logger"
)

// The contents of /readme.txt on a freshly created volume.
const readmeContent = "This is a virtual FAT file system.\nWelcome to mysh!\n"

// Shell is one interactive session: a volume, a host root directory holding
// its image and history, and the REPL state.
type Shell struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	config cfg.Config
	volume *fat.Volume

	/////////////////////////
	// Constant data
	/////////////////////////

	// Host directory holding the image and history files. The process
	// chdirs here at startup so external commands and import paths are
	// rooted predictably.
	rootDir string

	/////////////////////////
	// Mutable state
	/////////////////////////

	history History
}

// New bootstraps a session: locate the root directory, load or create the
// volume, and load history. The only fatal condition is a missing root
// directory.
func New(config cfg.Config, clock timeutil.Clock) (s *Shell, err error) {
	rootDir, err := resolveRootDir(config.RootDir)
	if err != nil {
		return
	}

	if err = os.Chdir(rootDir); err != nil {
		err = fmt.Errorf("entering root directory: %w", err)
		return
	}

	s = &Shell{
		config:  config,
		volume:  fat.NewVolume(clock),
		rootDir: rootDir,
	}

	imagePath := s.imagePath()
	if loadErr := s.volume.LoadImage(imagePath); loadErr == nil {
		fmt.Printf("Loaded existing file system from %s\n", config.ImageName)
	} else {
		if !os.IsNotExist(loadErr) {
			logger.Warnf("ignoring unusable image %s: %v", imagePath, loadErr)
		}
		fmt.Println("Creating new file system...")
		s.seedFreshVolume()
		if saveErr := s.volume.SaveImage(imagePath); saveErr != nil {
			logger.Warnf("saving initial image: %v", saveErr)
		}
	}

	if histErr := s.history.Load(s.historyPath()); histErr != nil {
		logger.Warnf("loading history: %v", histErr)
	}

	return
}

// Run is the REPL: prompt, read, parse, execute, until exit or EOF.
func (s *Shell) Run() error {
	fmt.Println("Welcome to MyShell! Type 'help' for available commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		// The prompt puts the working directory on its own line.
		fmt.Printf("mysh:%s\n$ ", s.volume.CWDPath())

		if !scanner.Scan() {
			fmt.Println()
			break
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		s.history.Add(line)

		err := s.Execute(ParsePipeline(line))
		if errors.Is(err, errExitRequested) {
			s.saveHistory()
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "mysh: %v\n", err)
		}
	}

	// EOF: shut down as cleanly as an explicit exit.
	s.saveHistory()
	if err := s.saveImage(); err != nil {
		logger.Warnf("saving image at shutdown: %v", err)
	}

	return scanner.Err()
}

////////////////////////////////////////////////////////////////////////
// Persistence plumbing
////////////////////////////////////////////////////////////////////////

func (s *Shell) imagePath() string {
	return filepath.Join(s.rootDir, s.config.ImageName)
}

func (s *Shell) historyPath() string {
	return filepath.Join(s.rootDir, s.config.HistoryFile)
}

func (s *Shell) saveImage() error {
	return s.volume.SaveImage(s.imagePath())
}

// syncImage is the opportunistic save after destructive built-ins. Failures
// are logged, not surfaced; the volume in memory is still good and a later
// save may succeed.
func (s *Shell) syncImage() {
	if !s.config.SyncOnMutate {
		return
	}

	if err := s.saveImage(); err != nil {
		logger.Warnf("syncing image: %v", err)
	}
}

func (s *Shell) saveHistory() {
	if err := s.history.Save(s.historyPath()); err != nil {
		logger.Warnf("saving history: %v", err)
	}
}

// A fresh volume gets a sample readme so the first ls has something to show.
func (s *Shell) seedFreshVolume() {
	i, err := s.volume.CreateFile("/readme.txt")
	if err == nil {
		err = s.volume.WriteFileAt(i, []byte(readmeContent))
	}
	if err != nil {
		logger.Warnf("seeding readme: %v", err)
	}
}

////////////////////////////////////////////////////////////////////////
// Root directory bootstrap
////////////////////////////////////////////////////////////////////////

// resolveRootDir finds the host directory anchoring the session. An
// explicit configuration wins; otherwise search for an OS_PROJECT directory
// in the working directory and then under HOME.
func resolveRootDir(explicit string) (root string, err error) {
	if explicit != "" {
		root, err = filepath.Abs(explicit)
		if err != nil {
			return
		}

		fi, statErr := os.Stat(root)
		if statErr != nil || !fi.IsDir() {
			err = fmt.Errorf("root directory %s not found", root)
		}
		return
	}

	var candidates []string
	if cwd, cwdErr := os.Getwd(); cwdErr == nil {
		candidates = append(candidates, filepath.Join(cwd, "OS_PROJECT"))
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, "OS_PROJECT"))
	}

	for _, candidate := range candidates {
		if fi, statErr := os.Stat(candidate); statErr == nil && fi.IsDir() {
			return filepath.Abs(candidate)
		}
	}

	err = errors.New("OS_PROJECT folder not found.")
	return
}
