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
	"strings"
	"time"
)

// A single record in the directory entry table, representing one file or
// directory. A slot whose isUsed flag is false is a tombstone: it keeps its
// position but is invisible to lookups and eligible for reuse.
type dirEntry struct {
	// Filename only; never contains a slash. The root is the special name "/".
	name string

	// Byte count of file contents. Always zero for directories.
	size uint32

	// Head of the block chain, or EOC for directories and empty files.
	firstBlock uint16

	isDir  bool
	isUsed bool

	created  time.Time
	modified time.Time

	// The slot index of the containing directory. The root is its own parent.
	parent EntryIndex
}

// EntryInfo is the public view of a directory entry, as returned by Stat and
// ListDir.
type EntryInfo struct {
	Index    EntryIndex
	Name     string
	Size     uint32
	IsDir    bool
	Created  time.Time
	Modified time.Time
	Parent   EntryIndex

	// Head of the entry's block chain; EOC for directories and empty files.
	FirstBlock uint16
}

func (e *dirEntry) info(i EntryIndex) EntryInfo {
	return EntryInfo{
		Index:      i,
		Name:       e.name,
		Size:       e.size,
		IsDir:      e.isDir,
		Created:    e.created,
		Modified:   e.modified,
		Parent:     e.parent,
		FirstBlock: e.firstBlock,
	}
}

// Reject names the entry table cannot represent: empty strings, names with
// embedded slashes or NULs, and names longer than MaxNameLen bytes.
func checkName(name string) error {
	switch {
	case name == "":
		return ErrInvalidName
	case len(name) > MaxNameLen:
		return ErrInvalidName
	case strings.ContainsAny(name, "/\x00"):
		return ErrInvalidName
	}

	return nil
}

// Find the first used entry with the given name inside the given directory.
// A linear scan over the populated prefix of the table, like everything else
// here; the table caps at 256 slots so this is not worth indexing.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) findEntry(name string, parent EntryIndex) (i EntryIndex, ok bool) {
	for j := uint32(0); j < v.numEntries; j++ {
		e := &v.entries[j]
		if e.isUsed && e.parent == parent && e.name == name {
			return EntryIndex(j), true
		}
	}

	return 0, false
}

// Claim a slot for a new entry: the lowest tombstone if one exists, otherwise
// the slot at the high-water mark. Returns ErrNoSpace when the table is full.
//
// The tombstone scan keeps long-lived sessions from exhausting the table
// through create/remove churn; numEntries itself never decreases.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) allocEntry() (i EntryIndex, err error) {
	for j := uint32(1); j < v.numEntries; j++ {
		if !v.entries[j].isUsed {
			return EntryIndex(j), nil
		}
	}

	if v.numEntries >= MaxEntries {
		err = ErrNoSpace
		return
	}

	i = EntryIndex(v.numEntries)
	v.numEntries++

	return
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) entryInUse(i EntryIndex) bool {
	return uint32(i) < v.numEntries && v.entries[i].isUsed
}

// Stat returns the public view of the entry in the given slot.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Stat(i EntryIndex) (info EntryInfo, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.entryInUse(i) {
		err = ErrNotExist
		return
	}

	info = v.entries[i].info(i)

	return
}

// NumEntries returns the entry table's high-water mark.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) NumEntries() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.numEntries
}
