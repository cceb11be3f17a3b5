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

// Namespace operations: creation, removal, rename, directory listing, and
// the current-directory machinery. Each acquires the volume lock and works
// in terms of the resolver, the entry table, and the block store.

// MkDir creates a directory at the given path. The parent must already
// exist; a used sibling with the same name is ErrExist.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) MkDir(path string) (i EntryIndex, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	parent, name, err := v.splitPath(path)
	if err != nil {
		return
	}

	if _, ok := v.findEntry(name, parent); ok {
		err = ErrExist
		return
	}

	i, err = v.allocEntry()
	if err != nil {
		return
	}

	now := v.clock.Now()
	v.entries[i] = dirEntry{
		name:       name,
		firstBlock: EOC,
		isDir:      true,
		isUsed:     true,
		created:    now,
		modified:   now,
		parent:     parent,
	}

	return
}

// CreateFile creates an empty file at the given path, or refreshes the
// modification time if a file already exists there (touch semantics). An
// existing directory is ErrIsDir.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) CreateFile(path string) (i EntryIndex, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	parent, name, err := v.splitPath(path)
	if err != nil {
		return
	}

	if existing, ok := v.findEntry(name, parent); ok {
		if v.entries[existing].isDir {
			err = ErrIsDir
			return
		}

		v.entries[existing].modified = v.clock.Now()
		return existing, nil
	}

	i, err = v.allocEntry()
	if err != nil {
		return
	}

	now := v.clock.Now()
	v.entries[i] = dirEntry{
		name:       name,
		firstBlock: EOC,
		isDir:      false,
		isUsed:     true,
		created:    now,
		modified:   now,
		parent:     parent,
	}

	return
}

// Unlink removes a file, reclaiming its block chain. Directories are
// rejected with ErrIsDir; use RmDir.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Unlink(path string) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	e := &v.entries[i]
	if e.isDir {
		return ErrIsDir
	}

	if e.firstBlock != EOC {
		v.freeChain(e.firstBlock)
	}

	e.isUsed = false
	e.firstBlock = EOC
	e.size = 0

	return
}

// RmDir removes an empty directory. The root, the current directory, and
// non-empty directories are refused.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) RmDir(path string) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	e := &v.entries[i]
	switch {
	case !e.isDir:
		return ErrNotDir
	case i == RootEntryIndex:
		return ErrBusy
	case i == v.currentDir:
		return ErrBusy
	}

	for j := uint32(0); j < v.numEntries; j++ {
		if v.entries[j].isUsed && v.entries[j].parent == i {
			return ErrNotEmpty
		}
	}

	e.isUsed = false

	return
}

// Rename moves or renames an entry. If dst resolves to an existing directory
// the source is moved into it under its current name; an existing file at
// dst, or a name collision inside the destination directory, is ErrExist.
// The root cannot be moved, and a directory cannot be moved underneath
// itself.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Rename(src string, dst string) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	srcIdx, err := v.lookUp(src)
	if err != nil {
		return
	}
	if srcIdx == RootEntryIndex {
		return ErrBusy
	}

	newParent, newName, err := v.splitPath(dst)
	if err != nil {
		return
	}

	if existing, ok := v.findEntry(newName, newParent); ok {
		if !v.entries[existing].isDir {
			return ErrExist
		}

		// Move into the existing directory, keeping the source's name.
		newParent = existing
		newName = v.entries[srcIdx].name
		if _, ok := v.findEntry(newName, newParent); ok {
			return ErrExist
		}
	}

	// Re-parenting a directory below itself would detach it from the root.
	if v.entries[srcIdx].isDir {
		for cursor := newParent; ; cursor = v.entries[cursor].parent {
			if cursor == srcIdx {
				return ErrInvalid
			}
			if cursor == RootEntryIndex {
				break
			}
		}
	}

	e := &v.entries[srcIdx]
	e.parent = newParent
	e.name = newName
	e.modified = v.clock.Now()

	return
}

// ChDir changes the current directory. The empty path means the root.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) ChDir(path string) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if path == "" {
		v.currentDir = RootEntryIndex
		return
	}

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	if !v.entries[i].isDir {
		return ErrNotDir
	}

	v.currentDir = i

	return
}

// CWD returns the current directory's entry index.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) CWD() EntryIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.currentDir
}

// CWDPath reconstructs the current directory's absolute path by walking
// parent links up to the root.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) CWDPath() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.currentDir == RootEntryIndex {
		return "/"
	}

	var path string
	for i := v.currentDir; i != RootEntryIndex; i = v.entries[i].parent {
		path = "/" + v.entries[i].name + path
	}

	return path
}

// ListDir resolves the path to a directory and returns the public view of
// its used children, in entry-table order. Resolving a file returns just
// that file, matching ls behaviour on a non-directory.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) ListDir(path string) (children []EntryInfo, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	if !v.entries[i].isDir {
		children = []EntryInfo{v.entries[i].info(i)}
		return
	}

	for j := uint32(0); j < v.numEntries; j++ {
		e := &v.entries[j]
		if e.isUsed && e.parent == i && EntryIndex(j) != i {
			children = append(children, e.info(EntryIndex(j)))
		}
	}

	return
}
