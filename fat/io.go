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

import "fmt"

// ReadFile resolves the path and returns the file's entire contents as a
// freshly allocated buffer. An empty file yields an empty (non-nil) buffer.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) ReadFile(path string) (data []byte, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	return v.readFile(i)
}

// ReadFileAt is ReadFile for an already resolved entry.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) ReadFileAt(i EntryIndex) (data []byte, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.readFile(i)
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) readFile(i EntryIndex) (data []byte, err error) {
	if !v.entryInUse(i) {
		err = ErrNotExist
		return
	}

	e := &v.entries[i]
	if e.isDir {
		err = ErrIsDir
		return
	}

	data = make([]byte, 0, e.size)
	remaining := e.size
	current := e.firstBlock
	for current != EOC && remaining > 0 {
		n := uint32(BlockSize)
		if remaining < n {
			n = remaining
		}
		data = append(data, v.blocks[current][:n]...)
		remaining -= n
		current = v.table[current]
	}

	return
}

// WriteFile resolves the path and replaces the file's entire contents.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) WriteFile(path string, data []byte) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, err := v.lookUp(path)
	if err != nil {
		return
	}

	return v.writeFile(i, data)
}

// WriteFileAt is WriteFile for an already resolved entry.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) WriteFileAt(i EntryIndex, data []byte) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.writeFile(i, data)
}

// Replace the entry's contents with the given bytes, rebuilding its chain.
// On allocation failure mid-write every block allocated so far is reclaimed
// and ErrNoSpace is returned; a write that cannot possibly fit is rejected
// up front, before the old chain is touched.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) writeFile(i EntryIndex, data []byte) (err error) {
	if !v.entryInUse(i) {
		return ErrNotExist
	}

	e := &v.entries[i]
	if e.isDir {
		return ErrIsDir
	}

	size := len(data)
	blocksNeeded := (size + BlockSize - 1) / BlockSize
	if blocksNeeded > NumBlocks {
		return fmt.Errorf("%d bytes exceed volume capacity: %w", size, ErrNoSpace)
	}

	// Return the old contents' blocks to the pool before allocating, so a
	// same-size rewrite of a maximal file still fits.
	if e.firstBlock != EOC {
		v.freeChain(e.firstBlock)
		e.firstBlock = EOC
		e.size = 0
	}

	if size == 0 {
		e.modified = v.clock.Now()
		return
	}

	first := EOC
	prev := EOC
	for b := 0; b < blocksNeeded; b++ {
		block := v.allocBlock()
		if block == EOC {
			// Out of space: roll back this write's allocations.
			if first != EOC {
				v.freeChain(first)
			}
			return ErrNoSpace
		}

		offset := b * BlockSize
		end := offset + BlockSize
		if end > size {
			end = size
		}
		copy(v.blocks[block][:], data[offset:end])

		if first == EOC {
			first = block
		} else {
			v.table[prev] = block
		}
		prev = block
	}

	e.firstBlock = first
	e.size = uint32(size)
	e.modified = v.clock.Now()

	return
}
