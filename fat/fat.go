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

// Package fat implements an in-memory FAT-style volume: a fixed array of data
// blocks threaded into per-file chains by a file allocation table, plus a flat
// table of directory entries. The volume is the unit of state for the shell;
// it is created fresh or loaded from an image file, mutated by namespace and
// file I/O operations, and serialized back out at shutdown.
package fat

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Geometry of the volume. These are fixed; images are only compatible between
// builds using the same values.
const (
	// BlockSize is the size of one data block in bytes.
	BlockSize = 512

	// NumBlocks is the number of data blocks on the volume.
	NumBlocks = 1024

	// MaxEntries is the capacity of the directory entry table.
	MaxEntries = 256

	// MaxNameLen is the longest permitted entry name, in bytes.
	MaxNameLen = 255
)

// Sentinel values for FAT cells. Any other value v means "the successor of
// this block is block v".
const (
	// Free marks an unallocated block.
	Free uint16 = 0x0000

	// EOC (end of chain) marks the final block of a file's chain. It is also
	// used as the firstBlock of empty files and directories, and as the "no
	// block" return from allocation.
	EOC uint16 = 0xFFFF
)

// EntryIndex identifies a slot in the directory entry table.
type EntryIndex uint32

// RootEntryIndex is the slot permanently holding the root directory.
const RootEntryIndex EntryIndex = 0

////////////////////////////////////////////////////////////////////////
// Volume type
////////////////////////////////////////////////////////////////////////

// Volume is a self-contained FAT volume held in memory.
//
// Exported methods are safe for concurrent use: pipeline stages may run
// built-ins against the volume while other stages are in flight, so all
// mutable state below is guarded by mu.
type Volume struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	// A clock used for entry creation and modification times.
	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	// A lock guarding every field below. The invariant check enforces the
	// structural properties documented on each field; enable it with
	// syncutil.EnableInvariantChecking during debugging and tests.
	mu syncutil.InvariantMutex

	// The file allocation table, parallel to blocks.
	//
	// INVARIANT: Every cell is Free, EOC, or a valid block index.
	// INVARIANT: No block is a member of two distinct chains.
	//
	// GUARDED_BY(mu)
	table [NumBlocks]uint16

	// The data blocks.
	//
	// GUARDED_BY(mu)
	blocks [NumBlocks][BlockSize]byte

	// The directory entry table. Slot 0 is always the root directory. Slots in
	// [1, numEntries) are either in use or tombstones; tombstone slots are
	// reused before the table grows.
	//
	// INVARIANT: entries[0] is a used directory named "/" with parent 0.
	// INVARIANT: For each used entry e, e.parent is a used directory and
	//            iterated parent links reach slot 0.
	// INVARIANT: Sibling names within a directory are unique.
	// INVARIANT: For each used file f, chain length == ceil(f.size/BlockSize).
	// INVARIANT: Used directories have size 0 and firstBlock == EOC.
	//
	// GUARDED_BY(mu)
	entries [MaxEntries]dirEntry

	// The high-water mark of the entry table: slots at or beyond numEntries
	// have never been populated. Monotonically non-decreasing.
	//
	// INVARIANT: 1 <= numEntries <= MaxEntries
	//
	// GUARDED_BY(mu)
	numEntries uint32

	// The entry anchoring relative path resolution.
	//
	// INVARIANT: currentDir is a used directory entry.
	//
	// GUARDED_BY(mu)
	currentDir EntryIndex
}

// NewVolume creates a fresh volume containing only the root directory. The
// supplied clock stamps entry creation and modification times.
func NewVolume(clock timeutil.Clock) (v *Volume) {
	v = &Volume{
		clock: clock,
	}

	now := clock.Now()
	v.entries[RootEntryIndex] = dirEntry{
		name:       "/",
		firstBlock: EOC,
		isDir:      true,
		isUsed:     true,
		created:    now,
		modified:   now,
		parent:     RootEntryIndex,
	}
	v.numEntries = 1
	v.currentDir = RootEntryIndex

	// Set up invariant checking.
	v.mu = syncutil.NewInvariantMutex(v.checkInvariants)

	return
}

////////////////////////////////////////////////////////////////////////
// Block store
////////////////////////////////////////////////////////////////////////

// Allocate the lowest-indexed free block, marking it as a chain of length
// one. Returns EOC if the volume is full.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) allocBlock() uint16 {
	for i := uint16(0); i < NumBlocks; i++ {
		if v.table[i] == Free {
			v.table[i] = EOC
			return i
		}
	}

	return EOC
}

// Walk the chain starting at the given block, zeroing each block's data and
// returning its FAT cell to the free state. Out-of-range successors terminate
// the walk defensively.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) freeChain(start uint16) {
	current := start
	for current != EOC && current < NumBlocks {
		next := v.table[current]
		v.table[current] = Free
		v.blocks[current] = [BlockSize]byte{}
		current = next
	}
}

// Count the blocks in the chain starting at the given block. Used by the
// invariant check, so it must tolerate (and bound) malformed chains.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) chainLength(start uint16) (n int) {
	current := start
	for current != EOC && current < NumBlocks && n <= NumBlocks {
		n++
		current = v.table[current]
	}

	return
}

// CountFreeBlocks returns the number of unallocated blocks.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) CountFreeBlocks() (n int) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for i := 0; i < NumBlocks; i++ {
		if v.table[i] == Free {
			n++
		}
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Invariant checking
////////////////////////////////////////////////////////////////////////

func (v *Volume) checkInvariants() {
	// INVARIANT: 1 <= numEntries <= MaxEntries
	if v.numEntries < 1 || v.numEntries > MaxEntries {
		panic(fmt.Sprintf("Illegal numEntries: %d", v.numEntries))
	}

	// INVARIANT: entries[0] is a used directory named "/" with parent 0.
	root := &v.entries[RootEntryIndex]
	if !root.isUsed || !root.isDir || root.name != "/" || root.parent != RootEntryIndex {
		panic(fmt.Sprintf("Malformed root entry: %+v", *root))
	}

	// INVARIANT: currentDir is a used directory entry.
	if uint32(v.currentDir) >= v.numEntries {
		panic(fmt.Sprintf("currentDir out of range: %d", v.currentDir))
	}
	if cd := &v.entries[v.currentDir]; !cd.isUsed || !cd.isDir {
		panic(fmt.Sprintf("currentDir %d is not a used directory", v.currentDir))
	}

	for i := uint32(0); i < v.numEntries; i++ {
		e := &v.entries[i]
		if !e.isUsed {
			continue
		}

		// INVARIANT: For each used entry e, e.parent is a used directory and
		// iterated parent links reach slot 0.
		if uint32(e.parent) >= v.numEntries {
			panic(fmt.Sprintf("Entry %d: parent out of range: %d", i, e.parent))
		}
		if p := &v.entries[e.parent]; !p.isUsed || !p.isDir {
			panic(fmt.Sprintf("Entry %d: parent %d is not a used directory", i, e.parent))
		}

		steps := 0
		for cursor := EntryIndex(i); cursor != RootEntryIndex; cursor = v.entries[cursor].parent {
			steps++
			if steps > MaxEntries {
				panic(fmt.Sprintf("Entry %d: parent links do not reach the root", i))
			}
		}

		// INVARIANT: Used directories have size 0 and firstBlock == EOC.
		if e.isDir {
			if e.size != 0 || e.firstBlock != EOC {
				panic(fmt.Sprintf("Directory entry %d has content: %+v", i, *e))
			}
			continue
		}

		// INVARIANT: For each used file f, chain length == ceil(f.size/BlockSize).
		wantBlocks := int((e.size + BlockSize - 1) / BlockSize)
		if got := v.chainLength(e.firstBlock); got != wantBlocks {
			panic(fmt.Sprintf(
				"Entry %d: chain length %d, size %d wants %d blocks",
				i, got, e.size, wantBlocks))
		}
	}

	// INVARIANT: Sibling names within a directory are unique.
	type sibling struct {
		parent EntryIndex
		name   string
	}
	seen := make(map[sibling]EntryIndex)
	for i := uint32(1); i < v.numEntries; i++ {
		e := &v.entries[i]
		if !e.isUsed {
			continue
		}

		key := sibling{e.parent, e.name}
		if prev, ok := seen[key]; ok {
			panic(fmt.Sprintf(
				"Duplicate name %q in directory %d: entries %d and %d",
				e.name, e.parent, prev, i))
		}
		seen[key] = EntryIndex(i)
	}

	// INVARIANT: No block is a member of two distinct chains, and every cell
	// is Free, EOC, or a valid block index.
	owner := make(map[uint16]EntryIndex)
	for i := uint32(0); i < v.numEntries; i++ {
		e := &v.entries[i]
		if !e.isUsed || e.isDir {
			continue
		}

		current := e.firstBlock
		for current != EOC && current < NumBlocks {
			if prev, ok := owner[current]; ok {
				panic(fmt.Sprintf(
					"Block %d belongs to entries %d and %d", current, prev, i))
			}
			owner[current] = EntryIndex(i)
			current = v.table[current]
		}
	}
	for b := 0; b < NumBlocks; b++ {
		cell := v.table[b]
		if cell != Free && cell != EOC && cell >= NumBlocks {
			panic(fmt.Sprintf("Illegal FAT cell at block %d: %#04x", b, cell))
		}
	}
}
