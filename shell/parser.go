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

import "strings"

// Parser limits. Lines with more stages or tokens are truncated, not
// rejected.
const (
	// MaxStages is the most command stages one line may contain.
	MaxStages = 10

	// MaxTokens is the most argv tokens one stage may contain.
	MaxTokens = 63
)

// Stage is one command within a pipeline: an argv plus optional VFS-path
// redirections.
type Stage struct {
	Argv []string

	// VFS path whose contents feed the stage's standard input, or empty.
	InputFile string

	// VFS path receiving the stage's standard output, or empty.
	OutputFile string

	// Whether OutputFile is appended to rather than replaced.
	Append bool
}

// ParsePipeline splits one input line into pipeline stages.
//
// Stages are separated by '|'. Within a stage the token after the rightmost
// ">>" (or, failing that, the first '>') names the output file, and the
// token after the first '<' names the input file; argv is whatever precedes
// the earliest redirection marker, split on runs of spaces and tabs. Stages
// with an empty argv are dropped. There is no quoting, escaping, or
// expansion of any kind.
func ParsePipeline(line string) (stages []Stage) {
	for _, piece := range strings.Split(line, "|") {
		if len(stages) == MaxStages {
			break
		}

		if stage, ok := parseStage(piece); ok {
			stages = append(stages, stage)
		}
	}

	return
}

func parseStage(s string) (stage Stage, ok bool) {
	s = strings.Trim(s, " \t")

	inIdx := strings.IndexByte(s, '<')
	appendIdx := strings.LastIndex(s, ">>")
	outIdx := -1
	if appendIdx < 0 {
		outIdx = strings.IndexByte(s, '>')
	}

	// Everything before the first redirection character is argv text; each
	// chosen marker's following token is sliced out as a redirection path.
	// Extra text after a marker, beyond the marker's own token, is discarded,
	// and surplus markers are unspecified territory.
	argvEnd := strings.IndexAny(s, "<>")
	if argvEnd < 0 {
		argvEnd = len(s)
	}

	if inIdx >= 0 {
		stage.InputFile = firstToken(s[inIdx+1:])
	}

	switch {
	case appendIdx >= 0:
		stage.OutputFile = firstToken(s[appendIdx+2:])
		stage.Append = true

	case outIdx >= 0:
		stage.OutputFile = firstToken(s[outIdx+1:])
	}

	tokens := strings.FieldsFunc(s[:argvEnd], isBlank)
	if len(tokens) > MaxTokens {
		tokens = tokens[:MaxTokens]
	}

	if len(tokens) == 0 {
		return Stage{}, false
	}

	stage.Argv = tokens
	return stage, true
}

// The first blank-delimited token of s, stopping early at another
// redirection marker so that unspaced forms like "grep x</a>b" still split.
func firstToken(s string) string {
	start := 0
	for start < len(s) && isBlank(rune(s[start])) {
		start++
	}

	end := start
	for end < len(s) && !isBlank(rune(s[end])) && s[end] != '<' && s[end] != '>' {
		end++
	}

	return s[start:end]
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}
