// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package page

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Fantom-foundation/pagestore/common"
)

//go:generate mockgen -source header.go -destination header_mocks.go -package page

// ErrHeaderFormat is reported when serialized header data can not be decoded.
const ErrHeaderFormat = common.ConstError("invalid page header")

// Header describes the layout of a page file. It is consumed by page files
// during their initialization.
type Header interface {
	// Size is the number of bytes of the serialized header.
	Size() int
	// PageSize is the size of the pages described by this header in bytes.
	PageSize() int
	// ReservedPages is the number of pages occupied by the header at the
	// start of a page file.
	ReservedPages() int
	// ToBytes writes exactly Size() bytes into the given buffer.
	ToBytes([]byte) error
	// FromBytes reads a header from the given buffer.
	FromBytes([]byte) error
}

// WriteHeader serializes the given header to the writer.
func WriteHeader(w io.Writer, h Header) error {
	buffer := make([]byte, h.Size())
	if err := h.ToBytes(buffer); err != nil {
		return err
	}
	_, err := w.Write(buffer)
	return err
}

// ReadHeader restores the given header from the reader.
func ReadHeader(r io.Reader, h Header) error {
	buffer := make([]byte, h.Size())
	if _, err := io.ReadFull(r, buffer); err != nil {
		return fmt.Errorf("failed to read page header: %w", err)
	}
	return h.FromBytes(buffer)
}

// defaultHeaderMagic identifies a DefaultHeader in serialized form.
const defaultHeaderMagic = int32(0x50484452)

// DefaultHeaderSize is the serialized size of a DefaultHeader: the magic
// number followed by the page size, both as big endian int32.
const DefaultHeaderSize = 8

// DefaultHeader is the minimal page header, recording only the page size.
type DefaultHeader struct {
	pageSize int
}

// NewDefaultHeader creates a header for pages of the given size.
func NewDefaultHeader(pageSize int) *DefaultHeader {
	return &DefaultHeader{pageSize: pageSize}
}

func (h *DefaultHeader) Size() int {
	return DefaultHeaderSize
}

func (h *DefaultHeader) PageSize() int {
	return h.pageSize
}

func (h *DefaultHeader) ReservedPages() int {
	if h.pageSize <= 0 {
		return 0
	}
	return (h.Size() + h.pageSize - 1) / h.pageSize
}

func (h *DefaultHeader) ToBytes(trg []byte) error {
	if len(trg) < DefaultHeaderSize {
		return fmt.Errorf("%w: buffer of %d bytes too small, need %d", ErrHeaderFormat, len(trg), DefaultHeaderSize)
	}
	binary.BigEndian.PutUint32(trg[0:4], uint32(defaultHeaderMagic))
	binary.BigEndian.PutUint32(trg[4:8], uint32(h.pageSize))
	return nil
}

func (h *DefaultHeader) FromBytes(src []byte) error {
	if len(src) < DefaultHeaderSize {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderFormat, len(src), DefaultHeaderSize)
	}
	if magic := int32(binary.BigEndian.Uint32(src[0:4])); magic != defaultHeaderMagic {
		return fmt.Errorf("%w: magic number mismatch, got 0x%x, wanted 0x%x", ErrHeaderFormat, magic, defaultHeaderMagic)
	}
	pageSize := int32(binary.BigEndian.Uint32(src[4:8]))
	if pageSize <= 0 {
		return fmt.Errorf("%w: invalid page size %d", ErrHeaderFormat, pageSize)
	}
	h.pageSize = int(pageSize)
	return nil
}
