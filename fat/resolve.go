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

import "strings"

// LookUp translates a textual path into an entry index.
//
// The empty path resolves to the current directory and "/" to the root. An
// absolute path starts traversal at the root, a relative one at the current
// directory; "." segments are skipped and ".." moves to the parent (the
// root's parent is the root, so ".." at "/" is a no-op). The resolver does
// not care whether the result is a file or a directory; callers check that
// themselves.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) LookUp(path string) (i EntryIndex, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.lookUp(path)
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) lookUp(path string) (i EntryIndex, err error) {
	if path == "" {
		return v.currentDir, nil
	}
	if path == "/" {
		return RootEntryIndex, nil
	}

	current := v.currentDir
	if path[0] == '/' {
		current = RootEntryIndex
	}

	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".":
			continue

		case "..":
			current = v.entries[current].parent

		default:
			next, ok := v.findEntry(segment, current)
			if !ok {
				err = ErrNotExist
				return
			}
			current = next
		}
	}

	return current, nil
}

// SplitPath resolves a path that names a (possibly not yet existing) child:
// the returned parent is an existing directory's index and name is the final
// path component. Used by the creation and rename operations.
//
// If the path contains a slash the parent is resolved from the prefix before
// the last slash (an empty prefix meaning the root); otherwise the parent is
// the current directory and the name is the whole path.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) SplitPath(path string) (parent EntryIndex, name string, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.splitPath(path)
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) splitPath(path string) (parent EntryIndex, name string, err error) {
	// Trailing slashes would yield an empty final component; shed them so
	// "mkdir /d/" works the way users expect.
	trimmed := path
	for len(trimmed) > 1 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}

	slash := strings.LastIndexByte(trimmed, '/')
	switch {
	case slash < 0:
		parent = v.currentDir
		name = trimmed

	case slash == 0:
		parent = RootEntryIndex
		name = trimmed[1:]

	default:
		parent, err = v.lookUp(trimmed[:slash])
		if err != nil {
			return
		}
		name = trimmed[slash+1:]
	}

	if err = checkName(name); err != nil {
		return
	}

	if !v.entries[parent].isDir {
		err = ErrNotDir
		return
	}

	return
}
