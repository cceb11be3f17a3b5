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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Image layout, in order: FAT cells, directory entry table, block data,
// numEntries, currentDir. All integers are little-endian and fixed-width;
// the name field is 255 bytes plus a terminating NUL; timestamps are signed
// 64-bit seconds since the epoch. The layout is independent of host
// endianness and struct padding, so images travel between platforms.
const (
	nameFieldLen   = MaxNameLen + 1
	entryRecordLen = nameFieldLen + 4 + 2 + 1 + 1 + 8 + 8 + 4

	imageLen = NumBlocks*2 + MaxEntries*entryRecordLen + NumBlocks*BlockSize + 4 + 4
)

// SaveImage serializes the volume to the given path. The blob is written to
// a temporary file in the same directory and renamed over the target, so a
// crash mid-save never leaves a truncated image behind.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) SaveImage(path string) (err error) {
	v.mu.RLock()
	buf := v.encode()
	v.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("CreateTemp: %w", err)
	}

	_, err = tmp.Write(buf)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing image: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("Rename: %w", err)
	}

	return
}

// LoadImage deserializes a volume image from the given path, replacing the
// volume's entire state. A missing, short, or malformed blob is an error and
// leaves the volume untouched; callers fall back to a fresh volume.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) LoadImage(path string) (err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if len(buf) != imageLen {
		return fmt.Errorf("image is %d bytes, want %d", len(buf), imageLen)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.decode(buf)
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) encode() []byte {
	buf := make([]byte, imageLen)
	off := 0

	for b := 0; b < NumBlocks; b++ {
		binary.LittleEndian.PutUint16(buf[off:], v.table[b])
		off += 2
	}

	for i := 0; i < MaxEntries; i++ {
		e := &v.entries[i]

		copy(buf[off:off+MaxNameLen], e.name)
		off += nameFieldLen

		binary.LittleEndian.PutUint32(buf[off:], e.size)
		off += 4
		binary.LittleEndian.PutUint16(buf[off:], e.firstBlock)
		off += 2

		buf[off] = boolByte(e.isDir)
		buf[off+1] = boolByte(e.isUsed)
		off += 2

		binary.LittleEndian.PutUint64(buf[off:], uint64(timeToUnix(e.created)))
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], uint64(timeToUnix(e.modified)))
		off += 8

		binary.LittleEndian.PutUint32(buf[off:], uint32(e.parent))
		off += 4
	}

	for b := 0; b < NumBlocks; b++ {
		copy(buf[off:], v.blocks[b][:])
		off += BlockSize
	}

	binary.LittleEndian.PutUint32(buf[off:], v.numEntries)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(v.currentDir))

	return buf
}

// LOCKS_REQUIRED(v.mu)
func (v *Volume) decode(buf []byte) (err error) {
	var table [NumBlocks]uint16
	var entries [MaxEntries]dirEntry
	var blocks [NumBlocks][BlockSize]byte

	off := 0
	for b := 0; b < NumBlocks; b++ {
		table[b] = binary.LittleEndian.Uint16(buf[off:])
		off += 2
	}

	for i := 0; i < MaxEntries; i++ {
		e := &entries[i]

		nameField := buf[off : off+nameFieldLen]
		off += nameFieldLen
		if nul := bytes.IndexByte(nameField, 0); nul >= 0 {
			nameField = nameField[:nul]
		}
		e.name = string(nameField)

		e.size = binary.LittleEndian.Uint32(buf[off:])
		off += 4
		e.firstBlock = binary.LittleEndian.Uint16(buf[off:])
		off += 2

		e.isDir = buf[off] != 0
		e.isUsed = buf[off+1] != 0
		off += 2

		e.created = time.Unix(int64(binary.LittleEndian.Uint64(buf[off:])), 0)
		off += 8
		e.modified = time.Unix(int64(binary.LittleEndian.Uint64(buf[off:])), 0)
		off += 8

		e.parent = EntryIndex(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	for b := 0; b < NumBlocks; b++ {
		copy(blocks[b][:], buf[off:off+BlockSize])
		off += BlockSize
	}

	numEntries := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	currentDir := EntryIndex(binary.LittleEndian.Uint32(buf[off:]))

	// Sanity-check the metadata before committing any of it.
	if numEntries < 1 || numEntries > MaxEntries {
		return fmt.Errorf("image numEntries %d out of range", numEntries)
	}
	root := &entries[RootEntryIndex]
	if !root.isUsed || !root.isDir || root.name != "/" {
		return fmt.Errorf("image root entry malformed")
	}
	if uint32(currentDir) >= numEntries ||
		!entries[currentDir].isUsed || !entries[currentDir].isDir {
		return fmt.Errorf("image currentDir %d invalid", currentDir)
	}

	v.table = table
	v.entries = entries
	v.blocks = blocks
	v.numEntries = numEntries
	v.currentDir = currentDir

	return
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Image timestamps predate the volume's clock; zero times round-trip as the
// epoch.
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
