// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pagefile

import (
	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/common"
)

const (
	// ErrNotInitialized is reported by operations on a page file that has
	// not been initialized yet.
	ErrNotInitialized = common.ConstError("page file not initialized")
	// ErrAlreadyInitialized is reported by a repeated initialization.
	ErrAlreadyInitialized = common.ConstError("page file already initialized")
	// ErrInvalidPageID is reported for negative page IDs.
	ErrInvalidPageID = common.ConstError("invalid page id")
	// ErrAlreadyReleased is reported when deleting an ID that is free.
	ErrAlreadyReleased = common.ConstError("page id already released")
	// ErrPageSize is reported when a page or header does not fit the page
	// size of a page file.
	ErrPageSize = common.ConstError("page size mismatch")
)

// PageFile manages the identity and persistence of pages. A page file is
// created uninitialized, becomes usable through Initialize and is retired by
// Close. Operations other than Initialize fail with ErrNotInitialized before
// and with common.ErrClosed after this window.
//
// Implementations are safe for concurrent use.
type PageFile[P page.Page] interface {
	// Initialize prepares the page file for the pages described by the given
	// header and adopts its page size. The result reports whether an existing
	// store was found (true) or a new one was created (false).
	Initialize(header page.Header) (bool, error)

	// SetPageID assigns an ID to the given page if it has none. IDs of
	// deleted pages are reused, most recently deleted first, before new IDs
	// are drawn. Pages that already have an ID keep it.
	SetPageID(p P) (page.ID, error)

	// WritePage stores the given page, assigning an ID first if needed, and
	// returns the ID of the page. After a successful write the page is clean.
	WritePage(p P) (page.ID, error)

	// ReadPage retrieves the page with the given ID. A missing page is not an
	// error, it is reported by a false second result.
	ReadPage(id page.ID) (P, bool, error)

	// DeletePage removes the page with the given ID and makes the ID
	// available for reuse. Deleting an ID that is already free fails with
	// ErrAlreadyReleased.
	DeletePage(id page.ID) error

	// NextPageID returns the smallest ID never handed out so far.
	NextPageID() page.ID

	// SetNextPageID overrides the smallest ID never handed out, e.g. when
	// restoring the state of a page file from a persisted header.
	SetNextPageID(id page.ID) error

	// PageSize returns the page size in bytes adopted from the header.
	PageSize() int

	// Clear removes all pages from this page file.
	Clear() error

	// LogStatistics reports access counters and the number of live pages.
	LogStatistics()

	common.MemoryFootprintProvider

	// Flush persists pending modifications; Close releases all resources.
	// Whether Close discards the content depends on the medium: in-memory
	// page files drop their pages, persistent ones retain them.
	common.FlushAndCloser
}

// State is the life-cycle state of a page file.
type State int

const (
	Uninitialized State = iota
	Initialized
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Check returns an error unless the page file is initialized.
func (s State) Check() error {
	switch s {
	case Initialized:
		return nil
	case Closed:
		return common.ErrClosed
	}
	return ErrNotInitialized
}

// WritePage is the write procedure shared by all page files: the page gets
// its ID assigned before the implementation specific write is invoked, so
// every written page carries a valid ID.
func WritePage[P page.Page](s *Storing, p P, write func(page.ID, P) error) (page.ID, error) {
	if err := s.Check(); err != nil {
		return page.NoID, err
	}
	id := s.AssignID(p)
	if err := write(id, p); err != nil {
		return id, err
	}
	return id, nil
}
