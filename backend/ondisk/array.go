// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ondisk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/common"
)

const (
	// ErrFormat is reported when a file does not match the expected layout.
	ErrFormat = common.ConstError("invalid on-disk array format")
	// ErrOutOfBounds is reported for accesses outside the declared extent.
	ErrOutOfBounds = common.ConstError("index out of bounds")
	// ErrFileExists is reported when creating an array over a non-empty file.
	ErrFileExists = common.ConstError("file already exists")
)

// serialVersion is mixed into the magic number of every array file. It needs
// to be changed whenever the internal header layout is modified.
const serialVersion = int32(1)

// InternalHeaderSize is the size of the fixed header at the start of each
// array file: magic, header size, record size and number of records, each
// as a big endian int32 in this order.
const InternalHeaderSize = 4 * 4

const (
	headerPosMagic      = 0
	headerPosHeaderSize = 4
	headerPosRecordSize = 8
	headerPosNumRecords = 12
)

// Array is a file of fixed sized records preceded by a header. The file is
// memory mapped, records are accessed without copying. File layout:
//
//	[magic][headerSize][recordSize][numRecords][extra header][record 0]...[record n-1]
//
// The extra header is reserved for the owner of the array. At any time the
// length of the file equals headerSize + numRecords*recordSize.
//
// A writable array holds an exclusive advisory lock on its file until it is
// closed. Read-only instances take no lock.
//
// All operations are synchronized. Slices returned by RecordBuffer and
// ExtraHeader are views on the current mapping and must not be used after a
// subsequent Resize, EnsureSize or Close. ReadRecord and UpdateRecord provide
// access that is guaranteed to be safe against concurrent resizing.
type Array struct {
	mu sync.RWMutex

	path       string
	file       *os.File
	lock       common.LockFile // only held by writable instances
	data       []byte          // mapping of the entire file
	magic      int32
	headerSize int32
	recordSize int32
	numRecords int32
	writable   bool
	closed     bool
}

// CreateArray creates a new array file at the given path holding initialSize
// zero-filled records. The operation fails if a non-empty file exists at the
// given location. If the creation fails, the file is removed again.
func CreateArray(path string, magic int32, extraHeaderSize, recordSize, initialSize int32) (*Array, error) {
	if extraHeaderSize < 0 || recordSize <= 0 || initialSize < 0 {
		return nil, fmt.Errorf("invalid array parameters: extra header %d, record size %d, initial size %d", extraHeaderSize, recordSize, initialSize)
	}
	headerSize := int64(InternalHeaderSize) + int64(extraHeaderSize)
	if headerSize > int64(maxInt32) {
		return nil, fmt.Errorf("extra header size %d too large", extraHeaderSize)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	lock, err := common.AcquireLockFile(path)
	if err != nil {
		return nil, errors.Join(err, file.Close())
	}

	res := &Array{
		path:       path,
		file:       file,
		lock:       lock,
		magic:      MixMagic(magic, serialVersion),
		headerSize: int32(headerSize),
		recordSize: recordSize,
		numRecords: initialSize,
		writable:   true,
	}

	stats, err := file.Stat()
	if err != nil {
		return nil, errors.Join(err, res.release())
	}
	if stats.Size() > 0 {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrFileExists, path), res.release())
	}

	if err := res.init(); err != nil {
		return nil, errors.Join(err, res.release(), os.Remove(path))
	}
	return res, nil
}

// init writes the header of a freshly created array, sizes the file and
// establishes the mapping. Each header field is checked to land at its
// expected position to detect partial writes immediately.
func (a *Array) init() error {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	fields := []struct {
		value int32
		end   int64
	}{
		{a.magic, headerPosMagic + 4},
		{a.headerSize, headerPosHeaderSize + 4},
		{a.recordSize, headerPosRecordSize + 4},
		{a.numRecords, headerPosNumRecords + 4},
	}
	var buffer [4]byte
	for _, field := range fields {
		binary.BigEndian.PutUint32(buffer[:], uint32(field.value))
		if _, err := a.file.Write(buffer[:]); err != nil {
			return fmt.Errorf("failed to write array header: %w", err)
		}
		pos, err := a.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if pos != field.end {
			return fmt.Errorf("%w: header write ended at offset %d, expected %d", ErrFormat, pos, field.end)
		}
	}
	if err := a.file.Truncate(a.fileSize(a.numRecords)); err != nil {
		return fmt.Errorf("failed to size array file: %w", err)
	}
	return a.remap()
}

// OpenArray opens an existing array file. The header is validated against
// the given magic number, extra header size and record size.
func OpenArray(path string, magic int32, extraHeaderSize, recordSize int32, writable bool) (*Array, error) {
	if recordSize <= 0 {
		return nil, fmt.Errorf("invalid record size %d", recordSize)
	}
	return openArray(path, magic, extraHeaderSize, recordSize, writable)
}

// OpenArrayDiscover opens an existing array file like OpenArray, but takes
// the record size from the file header instead of validating it.
func OpenArrayDiscover(path string, magic int32, extraHeaderSize int32, writable bool) (*Array, error) {
	return openArray(path, magic, extraHeaderSize, 0, writable)
}

// openArray opens an existing file, a recordSize of 0 accepts any record size.
func openArray(path string, magic int32, extraHeaderSize, recordSize int32, writable bool) (*Array, error) {
	if extraHeaderSize < 0 {
		return nil, fmt.Errorf("invalid extra header size %d", extraHeaderSize)
	}
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	file, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	res := &Array{
		path:     path,
		file:     file,
		writable: writable,
	}
	if writable {
		lock, err := common.AcquireLockFile(path)
		if err != nil {
			return nil, errors.Join(err, file.Close())
		}
		res.lock = lock
	}

	if err := res.readHeader(MixMagic(magic, serialVersion), int64(InternalHeaderSize)+int64(extraHeaderSize), recordSize); err != nil {
		return nil, errors.Join(err, res.release())
	}
	if err := res.remap(); err != nil {
		return nil, errors.Join(err, res.release())
	}
	return res, nil
}

func (a *Array) readHeader(magic int32, headerSize int64, recordSize int32) error {
	var buffer [InternalHeaderSize]byte
	if _, err := a.file.ReadAt(buffer[:], 0); err != nil {
		return fmt.Errorf("%w: failed to read header: %v", ErrFormat, err)
	}
	field := func(pos int) int32 {
		return int32(binary.BigEndian.Uint32(buffer[pos : pos+4]))
	}

	if got := field(headerPosMagic); got != magic {
		return fmt.Errorf("%w: magic number mismatch, got 0x%x, wanted 0x%x", ErrFormat, got, magic)
	}
	if got := field(headerPosHeaderSize); int64(got) != headerSize {
		return fmt.Errorf("%w: header size mismatch, got %d, wanted %d", ErrFormat, got, headerSize)
	}
	gotRecordSize := field(headerPosRecordSize)
	if recordSize != 0 && gotRecordSize != recordSize {
		return fmt.Errorf("%w: record size mismatch, got %d, wanted %d", ErrFormat, gotRecordSize, recordSize)
	}
	if gotRecordSize <= 0 {
		return fmt.Errorf("%w: invalid record size %d", ErrFormat, gotRecordSize)
	}
	numRecords := field(headerPosNumRecords)
	if numRecords < 0 {
		return fmt.Errorf("%w: negative number of records %d", ErrFormat, numRecords)
	}

	a.magic = magic
	a.headerSize = int32(headerSize)
	a.recordSize = gotRecordSize
	a.numRecords = numRecords

	stats, err := a.file.Stat()
	if err != nil {
		return err
	}
	if got, want := stats.Size(), a.fileSize(numRecords); got != want {
		return fmt.Errorf("%w: file size mismatch, got %d, wanted %d", ErrFormat, got, want)
	}
	return nil
}

// fileSize computes the length of the file holding the given number of records.
func (a *Array) fileSize(numRecords int32) int64 {
	return int64(a.headerSize) + int64(numRecords)*int64(a.recordSize)
}

// remap replaces the current mapping by a mapping of the entire file.
func (a *Array) remap() error {
	if err := unmapFile(a.data); err != nil {
		return fmt.Errorf("failed to unmap array file: %w", err)
	}
	a.data = nil
	data, err := mapFile(a.file, int(a.fileSize(a.numRecords)), a.writable)
	if err != nil {
		return fmt.Errorf("failed to map array file: %w", err)
	}
	a.data = data
	return nil
}

// release frees all resources held by this array and marks it closed.
func (a *Array) release() error {
	a.closed = true
	a.writable = false
	var unmapErr, unlockErr error
	unmapErr = unmapFile(a.data)
	a.data = nil
	if a.lock != nil {
		unlockErr = a.lock.Release()
		a.lock = nil
	}
	return errors.Join(unmapErr, unlockErr, a.file.Close())
}

func (a *Array) check() error {
	if a.closed {
		return common.ErrClosed
	}
	return nil
}

func (a *Array) checkWritable() error {
	if err := a.check(); err != nil {
		return err
	}
	if !a.writable {
		return common.ErrReadOnly
	}
	return nil
}

// Path returns the location of the underlying file.
func (a *Array) Path() string {
	return a.path
}

// RecordSize returns the size of a single record in bytes.
func (a *Array) RecordSize() int32 {
	return a.recordSize
}

// HeaderSize returns the size of the header including the extra header.
func (a *Array) HeaderSize() int32 {
	return a.headerSize
}

// ExtraHeaderSize returns the size of the caller-defined part of the header.
func (a *Array) ExtraHeaderSize() int32 {
	return a.headerSize - InternalHeaderSize
}

// NumRecords returns the current number of records.
func (a *Array) NumRecords() int32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.numRecords
}

// Writable reports whether this instance was opened for writing and is
// not yet closed.
func (a *Array) Writable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writable
}

// Resize sets the number of records of the array. Shrinking discards trailing
// records, growing appends zero-filled records. If the file can not be
// re-mapped after the resize, the array is closed.
func (a *Array) Resize(numRecords int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkWritable(); err != nil {
		return err
	}
	return a.resize(numRecords)
}

// EnsureSize grows the array to hold at least the given number of records.
// It never shrinks the array.
func (a *Array) EnsureSize(numRecords int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(); err != nil {
		return err
	}
	if numRecords <= a.numRecords {
		return nil
	}
	if !a.writable {
		return common.ErrReadOnly
	}
	return a.resize(numRecords)
}

func (a *Array) resize(numRecords int32) error {
	if numRecords < 0 {
		return fmt.Errorf("%w: invalid number of records %d", ErrOutOfBounds, numRecords)
	}
	if numRecords == a.numRecords {
		return nil
	}
	if err := unmapFile(a.data); err != nil {
		return fmt.Errorf("failed to unmap array file: %w", err)
	}
	a.data = nil

	var buffer [4]byte
	binary.BigEndian.PutUint32(buffer[:], uint32(numRecords))
	if err := a.file.Truncate(a.fileSize(numRecords)); err != nil {
		return errors.Join(fmt.Errorf("failed to resize array file: %w", err), a.release())
	}
	if _, err := a.file.WriteAt(buffer[:], headerPosNumRecords); err != nil {
		return errors.Join(fmt.Errorf("failed to update number of records: %w", err), a.release())
	}
	a.numRecords = numRecords
	if err := a.remap(); err != nil {
		return errors.Join(err, a.release())
	}
	return nil
}

func (a *Array) recordRange(index int32) (int64, int64, error) {
	if index < 0 || index >= a.numRecords {
		return 0, 0, fmt.Errorf("%w: record %d, number of records %d", ErrOutOfBounds, index, a.numRecords)
	}
	from := int64(a.headerSize) + int64(index)*int64(a.recordSize)
	return from, from + int64(a.recordSize), nil
}

// RecordBuffer returns a view on the bytes of the record with the given index.
// The view is invalidated by any subsequent resize or by closing the array.
// The view of a read-only array must not be modified.
func (a *Array) RecordBuffer(index int32) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	from, to, err := a.recordRange(index)
	if err != nil {
		return nil, err
	}
	return a.data[from:to:to], nil
}

// ReadRecord calls the given function with a view on the record with the
// given index. The array can not be resized while the function runs. The
// view must not be modified or retained.
func (a *Array) ReadRecord(index int32, read func([]byte) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.check(); err != nil {
		return err
	}
	from, to, err := a.recordRange(index)
	if err != nil {
		return err
	}
	return read(a.data[from:to:to])
}

// UpdateRecord calls the given function with an exclusive, modifiable view on
// the record with the given index. The view must not be retained.
func (a *Array) UpdateRecord(index int32, update func([]byte) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkWritable(); err != nil {
		return err
	}
	from, to, err := a.recordRange(index)
	if err != nil {
		return err
	}
	return update(a.data[from:to:to])
}

// ExtraHeader returns a view on the caller-defined part of the header. The
// view is invalidated by any subsequent resize or by closing the array.
func (a *Array) ExtraHeader() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.data[InternalHeaderSize:a.headerSize:a.headerSize], nil
}

// ReadExtraHeader calls the given function with a view on the extra header.
func (a *Array) ReadExtraHeader(read func([]byte) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.check(); err != nil {
		return err
	}
	return read(a.data[InternalHeaderSize:a.headerSize:a.headerSize])
}

// UpdateExtraHeader calls the given function with an exclusive, modifiable
// view on the extra header.
func (a *Array) UpdateExtraHeader(update func([]byte) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkWritable(); err != nil {
		return err
	}
	return update(a.data[InternalHeaderSize:a.headerSize:a.headerSize])
}

// Flush writes modifications of the mapped content back to the file.
func (a *Array) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(); err != nil {
		return err
	}
	if !a.writable {
		return nil
	}
	return errors.Join(syncMapping(a.data), a.file.Sync())
}

// Close flushes pending modifications and releases the mapping, the file
// lock and the file handle. Any later operation fails with common.ErrClosed.
func (a *Array) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(); err != nil {
		return err
	}
	var flushErr error
	if a.writable {
		flushErr = syncMapping(a.data)
	}
	return errors.Join(flushErr, a.release())
}

func (a *Array) GetMemoryFootprint() *common.MemoryFootprint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := common.NewMemoryFootprint(unsafe.Sizeof(*a))
	mapping := common.NewMemoryFootprint(uintptr(len(a.data)))
	mapping.SetNote("memory mapped")
	res.AddChild("mapping", mapping)
	return res
}

const maxInt32 = int32(^uint32(0) >> 1)

// MaxRecords is the largest number of records an array can hold.
const MaxRecords = maxInt32
