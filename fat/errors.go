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

import "errors"

// The closed set of error kinds surfaced by volume operations. Callers
// distinguish them with errors.Is; everything else coming out of this package
// wraps one of these or is an I/O error from image persistence.
var (
	ErrNotExist    = errors.New("no such file or directory")
	ErrExist       = errors.New("file exists")
	ErrIsDir       = errors.New("is a directory")
	ErrNotDir      = errors.New("not a directory")
	ErrNoSpace     = errors.New("no space left on volume")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrBusy        = errors.New("directory in use")
	ErrInvalidName = errors.New("invalid name")
	ErrInvalid     = errors.New("invalid argument")
)
