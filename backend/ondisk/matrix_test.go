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
	"os"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/pagestore/common"
)

const testMatrixSeed = int32(0xd157)

func createTestMatrix(t *testing.T, extraHeaderSize, recordSize, size int32) (*UpperTriangleMatrix, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.dat")
	matrix, err := CreateUpperTriangleMatrix(path, testMatrixSeed, extraHeaderSize, recordSize, size)
	if err != nil {
		t.Fatalf("failed to create matrix: %v", err)
	}
	return matrix, path
}

func TestTriangleSize(t *testing.T) {
	tests := []struct {
		n    int32
		size int64
	}{
		{0, 0}, {1, 1}, {2, 3}, {3, 6}, {6, 21}, {MaxMatrixSize - 1, 2147385345},
	}
	for _, test := range tests {
		if got := TriangleSize(test.n); got != test.size {
			t.Errorf("unexpected triangle size of %d, wanted %d, got %d", test.n, test.size, got)
		}
	}
}

func TestOffset_IsSymmetric(t *testing.T) {
	if Offset(2, 5) != Offset(5, 2) {
		t.Errorf("offsets of (2,5) and (5,2) should match")
	}
	for x := int32(0); x < 20; x++ {
		for y := int32(0); y < 20; y++ {
			if Offset(x, y) != Offset(y, x) {
				t.Errorf("offset of (%d,%d) differs from (%d,%d)", x, y, y, x)
			}
		}
	}
}

func TestOffset_CoversTriangleWithoutCollisions(t *testing.T) {
	const n = 6
	seen := map[int64]bool{}
	for x := int32(0); x < n; x++ {
		for y := int32(0); y <= x; y++ {
			offset := Offset(x, y)
			if seen[offset] {
				t.Errorf("offset %d of (%d,%d) is used twice", offset, x, y)
			}
			seen[offset] = true
		}
	}
	if got, want := int64(len(seen)), TriangleSize(n); got != want {
		t.Errorf("unexpected number of cells, wanted %d, got %d", want, got)
	}
	for i := int64(0); i < TriangleSize(n); i++ {
		if !seen[i] {
			t.Errorf("offset %d is not covered", i)
		}
	}
}

func TestMatrix_BackingArrayHoldsTriangle(t *testing.T) {
	matrix, _ := createTestMatrix(t, 0, 8, 6)
	defer matrix.Close()
	if got, want := int64(matrix.array.NumRecords()), TriangleSize(6); got != want {
		t.Errorf("unexpected number of records, wanted %d, got %d", want, got)
	}
	if got, want := matrix.MatrixSize(), int32(6); got != want {
		t.Errorf("unexpected matrix size, wanted %d, got %d", want, got)
	}
}

func TestMatrix_MirroredCellsShareRecord(t *testing.T) {
	matrix, _ := createTestMatrix(t, 0, 8, 6)
	defer matrix.Close()

	err := matrix.UpdateCell(2, 5, func(data []byte) error {
		binary.BigEndian.PutUint64(data, 42)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update cell: %v", err)
	}
	err = matrix.ReadCell(5, 2, func(data []byte) error {
		if got := binary.BigEndian.Uint64(data); got != 42 {
			t.Errorf("mirrored cell should hold 42, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
}

func TestMatrix_ContentIsPersisted(t *testing.T) {
	matrix, path := createTestMatrix(t, 4, 4, 5)
	for x := int32(0); x < 5; x++ {
		for y := int32(0); y <= x; y++ {
			buffer, err := matrix.RecordBuffer(x, y)
			if err != nil {
				t.Fatalf("failed to fetch cell: %v", err)
			}
			binary.BigEndian.PutUint32(buffer, uint32(x*10+y))
		}
	}
	err := matrix.UpdateExtraHeader(func(header []byte) error {
		copy(header, "dist")
		return nil
	})
	if err != nil {
		t.Fatalf("failed to update header: %v", err)
	}
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close matrix: %v", err)
	}

	matrix, err = OpenUpperTriangleMatrix(path, testMatrixSeed, 4, 4, false)
	if err != nil {
		t.Fatalf("failed to reopen matrix: %v", err)
	}
	defer matrix.Close()
	if got, want := matrix.MatrixSize(), int32(5); got != want {
		t.Fatalf("unexpected matrix size, wanted %d, got %d", want, got)
	}
	for x := int32(0); x < 5; x++ {
		for y := int32(0); y < 5; y++ {
			lo, hi := minMax(x, y)
			buffer, err := matrix.RecordBuffer(x, y)
			if err != nil {
				t.Fatalf("failed to fetch cell: %v", err)
			}
			if got, want := binary.BigEndian.Uint32(buffer), uint32(hi*10+lo); got != want {
				t.Errorf("unexpected value in (%d,%d), wanted %d, got %d", x, y, want, got)
			}
		}
	}
	header, err := matrix.ExtraHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if got, want := string(header), "dist"; got != want {
		t.Errorf("unexpected extra header, wanted %q, got %q", want, got)
	}
	if got, want := matrix.ExtraHeaderSize(), int32(4); got != want {
		t.Errorf("unexpected extra header size, wanted %d, got %d", want, got)
	}
}

func TestMatrix_OpeningWithOtherSeedFails(t *testing.T) {
	matrix, path := createTestMatrix(t, 0, 4, 3)
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close matrix: %v", err)
	}
	if _, err := OpenUpperTriangleMatrix(path, testMatrixSeed+1, 0, 4, false); !errors.Is(err, ErrFormat) {
		t.Errorf("expected format error, got %v", err)
	}
	if _, err := OpenArray(path, testMatrixSeed, matrixHeaderSize, 4, false); !errors.Is(err, ErrFormat) {
		t.Errorf("matrix file should not be accepted as plain array with the same seed, got %v", err)
	}
}

func TestMatrix_InconsistentSizeIsRejected(t *testing.T) {
	matrix, path := createTestMatrix(t, 0, 4, 3)
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close matrix: %v", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	if _, err := file.WriteAt([]byte{0, 0, 0, 4}, InternalHeaderSize); err != nil {
		t.Fatalf("failed to corrupt file: %v", err)
	}
	file.Close()
	if _, err := OpenUpperTriangleMatrix(path, testMatrixSeed, 0, 4, false); !errors.Is(err, ErrFormat) {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestMatrix_OutOfBoundsCellsAreRejected(t *testing.T) {
	matrix, _ := createTestMatrix(t, 0, 4, 3)
	defer matrix.Close()
	cells := [][2]int32{{3, 0}, {0, 3}, {-1, 0}, {0, -1}, {5, 5}}
	for _, cell := range cells {
		if _, err := matrix.RecordBuffer(cell[0], cell[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("access to %v should fail, got %v", cell, err)
		}
	}
}

func TestMatrix_GrowingKeepsExistingCells(t *testing.T) {
	matrix, _ := createTestMatrix(t, 0, 4, 3)
	defer matrix.Close()
	for x := int32(0); x < 3; x++ {
		for y := int32(0); y <= x; y++ {
			err := matrix.UpdateCell(x, y, func(data []byte) error {
				binary.BigEndian.PutUint32(data, uint32(x*10+y+1))
				return nil
			})
			if err != nil {
				t.Fatalf("failed to update cell: %v", err)
			}
		}
	}

	if err := matrix.Resize(5); err != nil {
		t.Fatalf("failed to grow matrix: %v", err)
	}
	if got, want := int64(matrix.array.NumRecords()), TriangleSize(5); got != want {
		t.Errorf("unexpected number of records, wanted %d, got %d", want, got)
	}
	for x := int32(0); x < 5; x++ {
		for y := int32(0); y <= x; y++ {
			want := uint32(0)
			if x < 3 {
				want = uint32(x*10 + y + 1)
			}
			err := matrix.ReadCell(x, y, func(data []byte) error {
				if got := binary.BigEndian.Uint32(data); got != want {
					t.Errorf("unexpected value in (%d,%d), wanted %d, got %d", x, y, want, got)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("failed to read cell: %v", err)
			}
		}
	}

	if err := matrix.Resize(2); err != nil {
		t.Fatalf("failed to shrink matrix: %v", err)
	}
	if _, err := matrix.RecordBuffer(2, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("removed rows should be inaccessible, got %v", err)
	}
}

func TestMatrix_ResizeIsPersisted(t *testing.T) {
	matrix, path := createTestMatrix(t, 0, 4, 3)
	if err := matrix.Resize(7); err != nil {
		t.Fatalf("failed to resize: %v", err)
	}
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	matrix, err := OpenUpperTriangleMatrix(path, testMatrixSeed, 0, 4, true)
	if err != nil {
		t.Fatalf("failed to reopen matrix: %v", err)
	}
	defer matrix.Close()
	if got, want := matrix.MatrixSize(), int32(7); got != want {
		t.Errorf("unexpected matrix size, wanted %d, got %d", want, got)
	}
}

func TestMatrix_CapacityIsCheckedBeforeIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix")
	if _, err := CreateUpperTriangleMatrix(path, testMatrixSeed, 0, 4, MaxMatrixSize); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if _, err := CreateUpperTriangleMatrix(path, testMatrixSeed, 0, 4, -1); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("no file should have been created")
	}

	matrix, _ := createTestMatrix(t, 0, 4, 3)
	defer matrix.Close()
	if err := matrix.Resize(MaxMatrixSize); !errors.Is(err, ErrCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if got, want := matrix.MatrixSize(), int32(3); got != want {
		t.Errorf("failed resize must not change the size, wanted %d, got %d", want, got)
	}
}

func TestMatrix_ReadOnlyMatrixCanNotBeResized(t *testing.T) {
	matrix, path := createTestMatrix(t, 0, 4, 3)
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	matrix, err := OpenUpperTriangleMatrix(path, testMatrixSeed, 0, 4, false)
	if err != nil {
		t.Fatalf("failed to open matrix: %v", err)
	}
	defer matrix.Close()
	if err := matrix.Resize(4); !errors.Is(err, common.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}
	if err := matrix.UpdateCell(0, 0, func([]byte) error { return nil }); !errors.Is(err, common.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}
	if got, want := matrix.MatrixSize(), int32(3); got != want {
		t.Errorf("unexpected matrix size, wanted %d, got %d", want, got)
	}
}

func TestMatrix_OperationsFailAfterClose(t *testing.T) {
	matrix, _ := createTestMatrix(t, 0, 4, 3)
	if err := matrix.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if _, err := matrix.RecordBuffer(0, 0); !errors.Is(err, common.ErrClosed) {
		t.Errorf("unexpected error: %v", err)
	}
	if err := matrix.Resize(4); !errors.Is(err, common.ErrClosed) {
		t.Errorf("unexpected error: %v", err)
	}
	if err := matrix.Close(); !errors.Is(err, common.ErrClosed) {
		t.Errorf("unexpected error: %v", err)
	}
}
