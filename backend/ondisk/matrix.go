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
	"os"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/common"
	"golang.org/x/exp/constraints"
)

// ErrCapacity is reported for matrix sizes exceeding MaxMatrixSize.
const ErrCapacity = common.ConstError("matrix size out of range")

// MaxMatrixSize is the exclusive upper bound of matrix sizes. It keeps the
// number of cells representable by the record count of the backing array.
const MaxMatrixSize = int32(0xFFFF)

// matrixSerialVersion is mixed with the caller's magic seed.
const matrixSerialVersion = int32(0x55544d31)

// matrixHeaderSize is the part of the array's extra header used by the matrix.
const matrixHeaderSize = 4

// UpperTriangleMatrix stores a symmetric matrix of fixed sized records in an
// Array. Only one triangle including the diagonal is stored, so cells (x,y)
// and (y,x) share the same record. Row r occupies the records
// [T(r), T(r)+r] where T is the triangle number, so growing the matrix
// appends new rows without moving existing cells.
//
// The first four bytes of the array's extra header store the matrix size.
// The remaining extra header bytes belong to the caller.
type UpperTriangleMatrix struct {
	mu         sync.RWMutex
	array      *Array
	matrixSize int32
}

// TriangleSize returns the number of cells of a triangle with n rows,
// including the diagonal.
func TriangleSize(n int32) int64 {
	return int64(n) * (int64(n) + 1) / 2
}

// Offset returns the index of the record storing cell (x,y).
func Offset(x, y int32) int64 {
	lo, hi := minMax(x, y)
	return TriangleSize(hi) + int64(lo)
}

func minMax[T constraints.Ordered](a, b T) (T, T) {
	if a < b {
		return a, b
	}
	return b, a
}

func checkMatrixSize(size int32) error {
	if size < 0 || size >= MaxMatrixSize {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrCapacity, size, MaxMatrixSize)
	}
	return nil
}

func matrixMagic(seed int32) int32 {
	return MixMagic(matrixSerialVersion, seed)
}

// CreateUpperTriangleMatrix creates a new matrix file with the given number
// of rows and columns. All cells are zero-initialized.
func CreateUpperTriangleMatrix(path string, magicSeed int32, extraHeaderSize, recordSize, matrixSize int32) (*UpperTriangleMatrix, error) {
	if err := checkMatrixSize(matrixSize); err != nil {
		return nil, err
	}
	if extraHeaderSize < 0 {
		return nil, fmt.Errorf("invalid extra header size %d", extraHeaderSize)
	}
	array, err := CreateArray(path, matrixMagic(magicSeed), matrixHeaderSize+extraHeaderSize, recordSize, int32(TriangleSize(matrixSize)))
	if err != nil {
		return nil, err
	}
	err = array.UpdateExtraHeader(func(header []byte) error {
		binary.BigEndian.PutUint32(header[0:matrixHeaderSize], uint32(matrixSize))
		return nil
	})
	if err != nil {
		return nil, errors.Join(err, array.Close(), os.Remove(path))
	}
	return &UpperTriangleMatrix{array: array, matrixSize: matrixSize}, nil
}

// OpenUpperTriangleMatrix opens an existing matrix file.
func OpenUpperTriangleMatrix(path string, magicSeed int32, extraHeaderSize, recordSize int32, writable bool) (*UpperTriangleMatrix, error) {
	if extraHeaderSize < 0 {
		return nil, fmt.Errorf("invalid extra header size %d", extraHeaderSize)
	}
	array, err := OpenArray(path, matrixMagic(magicSeed), matrixHeaderSize+extraHeaderSize, recordSize, writable)
	if err != nil {
		return nil, err
	}
	var matrixSize int32
	err = array.ReadExtraHeader(func(header []byte) error {
		matrixSize = int32(binary.BigEndian.Uint32(header[0:matrixHeaderSize]))
		return nil
	})
	if err == nil {
		err = checkMatrixSize(matrixSize)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}
	if err == nil {
		if got, want := int64(array.NumRecords()), TriangleSize(matrixSize); got != want {
			err = fmt.Errorf("%w: matrix of size %d needs %d records, file has %d", ErrFormat, matrixSize, want, got)
		}
	}
	if err != nil {
		return nil, errors.Join(err, array.Close())
	}
	return &UpperTriangleMatrix{array: array, matrixSize: matrixSize}, nil
}

// MatrixSize returns the number of rows (and columns) of the matrix.
func (m *UpperTriangleMatrix) MatrixSize() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matrixSize
}

// RecordSize returns the size of a single cell in bytes.
func (m *UpperTriangleMatrix) RecordSize() int32 {
	return m.array.RecordSize()
}

// Path returns the location of the underlying file.
func (m *UpperTriangleMatrix) Path() string {
	return m.array.Path()
}

// Resize changes the number of rows of the matrix. Cells of retained rows
// keep their content, new cells are zero. Sizes of MaxMatrixSize or more are
// rejected before touching the file.
func (m *UpperTriangleMatrix) Resize(matrixSize int32) error {
	if err := checkMatrixSize(matrixSize); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.array.Resize(int32(TriangleSize(matrixSize))); err != nil {
		return err
	}
	err := m.array.UpdateExtraHeader(func(header []byte) error {
		binary.BigEndian.PutUint32(header[0:matrixHeaderSize], uint32(matrixSize))
		return nil
	})
	if err != nil {
		return err
	}
	m.matrixSize = matrixSize
	return nil
}

func (m *UpperTriangleMatrix) offset(x, y int32) (int32, error) {
	if x < 0 || y < 0 || x >= m.matrixSize || y >= m.matrixSize {
		return 0, fmt.Errorf("%w: cell (%d,%d) in matrix of size %d", ErrOutOfBounds, x, y, m.matrixSize)
	}
	return int32(Offset(x, y)), nil
}

// RecordBuffer returns a view on the record of cell (x,y). Like views of the
// Array, it must not be used after a resize or after closing the matrix.
func (m *UpperTriangleMatrix) RecordBuffer(x, y int32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offset, err := m.offset(x, y)
	if err != nil {
		return nil, err
	}
	return m.array.RecordBuffer(offset)
}

// ReadCell calls the given function with a read-only view on cell (x,y).
func (m *UpperTriangleMatrix) ReadCell(x, y int32, read func([]byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offset, err := m.offset(x, y)
	if err != nil {
		return err
	}
	return m.array.ReadRecord(offset, read)
}

// UpdateCell calls the given function with a modifiable view on cell (x,y).
func (m *UpperTriangleMatrix) UpdateCell(x, y int32, update func([]byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offset, err := m.offset(x, y)
	if err != nil {
		return err
	}
	return m.array.UpdateRecord(offset, update)
}

// ExtraHeaderSize returns the size of the caller-defined header part.
func (m *UpperTriangleMatrix) ExtraHeaderSize() int32 {
	return m.array.ExtraHeaderSize() - matrixHeaderSize
}

// ExtraHeader returns a view on the caller-defined header part.
func (m *UpperTriangleMatrix) ExtraHeader() ([]byte, error) {
	header, err := m.array.ExtraHeader()
	if err != nil {
		return nil, err
	}
	return header[matrixHeaderSize:], nil
}

// UpdateExtraHeader calls the given function with a modifiable view on the
// caller-defined header part.
func (m *UpperTriangleMatrix) UpdateExtraHeader(update func([]byte) error) error {
	return m.array.UpdateExtraHeader(func(header []byte) error {
		return update(header[matrixHeaderSize:])
	})
}

func (m *UpperTriangleMatrix) Flush() error {
	return m.array.Flush()
}

func (m *UpperTriangleMatrix) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.array.Close()
}

func (m *UpperTriangleMatrix) GetMemoryFootprint() *common.MemoryFootprint {
	res := common.NewMemoryFootprint(unsafe.Sizeof(*m))
	res.AddChild("array", m.array.GetMemoryFootprint())
	return res
}
