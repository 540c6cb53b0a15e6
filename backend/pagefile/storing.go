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
	"fmt"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"go.uber.org/zap"
)

// Config collects the options shared by all page file implementations.
type Config struct {
	// Statistics enables the read and write counters.
	Statistics bool
	// Logger receives statistics reports; nil disables logging.
	Logger *zap.Logger
}

// Storing is the ID allocation and life-cycle bookkeeping shared by page
// files storing their pages. IDs of deleted pages are kept in a free list
// and handed out again in LIFO order before new IDs are taken from a
// monotonically increasing counter.
//
// Storing is not synchronized; page files embedding it in their state are
// expected to guard it by their own lock.
type Storing struct {
	name       string
	state      State
	pageSize   int
	nextPageID page.ID
	freeList   []page.ID
	free       map[page.ID]struct{}
	stats      *Statistics
	logger     *zap.Logger
}

// NewStoring creates the bookkeeping for a page file with the given
// implementation name. The name is used to label statistics.
func NewStoring(name string, config Config) *Storing {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storing{
		name:   name,
		free:   map[page.ID]struct{}{},
		stats:  NewStatistics(name, config.Statistics),
		logger: logger,
	}
}

func (s *Storing) Name() string {
	return s.name
}

func (s *Storing) State() State {
	return s.state
}

// Check fails unless the page file is initialized.
func (s *Storing) Check() error {
	return s.state.Check()
}

// Initialize adopts the page size of the given header and marks the page
// file initialized. A fresh allocation never finds an existing store, so the
// result is always false.
func (s *Storing) Initialize(header page.Header) (bool, error) {
	switch s.state {
	case Initialized:
		return false, ErrAlreadyInitialized
	case Closed:
		return false, s.state.Check()
	}
	if header.PageSize() <= 0 {
		return false, fmt.Errorf("%w: page size %d", ErrPageSize, header.PageSize())
	}
	s.pageSize = header.PageSize()
	s.state = Initialized
	return false, nil
}

// MarkClosed retires the page file; all further checks fail.
func (s *Storing) MarkClosed() {
	s.state = Closed
}

func (s *Storing) PageSize() int {
	return s.pageSize
}

// AssignID returns the ID of the given page, assigning one first if the page
// has none. Reused IDs are taken from the top of the free list. A page
// keeping a released ID claims it back from the free list.
func (s *Storing) AssignID(p page.Page) page.ID {
	if id, ok := p.PageID(); ok {
		if id >= s.nextPageID {
			s.nextPageID = id + 1
		}
		if _, found := s.free[id]; found {
			s.claim(id)
		}
		return id
	}
	var id page.ID
	if l := len(s.freeList); l > 0 {
		id = s.freeList[l-1]
		s.freeList = s.freeList[:l-1]
		delete(s.free, id)
	} else {
		id = s.nextPageID
		s.nextPageID++
	}
	p.SetPageID(id)
	return id
}

// Release makes the given ID available for reuse. IDs already on the free
// list are rejected, a second release would hand the ID out twice.
func (s *Storing) Release(id page.ID) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	if _, found := s.free[id]; found {
		return fmt.Errorf("%w: %d", ErrAlreadyReleased, id)
	}
	s.freeList = append(s.freeList, id)
	s.free[id] = struct{}{}
	return nil
}

// claim removes the given ID from the free list.
func (s *Storing) claim(id page.ID) {
	delete(s.free, id)
	for i := len(s.freeList) - 1; i >= 0; i-- {
		if s.freeList[i] == id {
			s.freeList = append(s.freeList[:i], s.freeList[i+1:]...)
			return
		}
	}
}

// IsReleased reports whether the given ID is on the free list.
func (s *Storing) IsReleased(id page.ID) bool {
	_, found := s.free[id]
	return found
}

func (s *Storing) NextPageID() page.ID {
	return s.nextPageID
}

func (s *Storing) SetNextPageID(id page.ID) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	s.nextPageID = id
	return nil
}

// FreeIDs returns a copy of the free list, the most recently released ID
// being last.
func (s *Storing) FreeIDs() []page.ID {
	res := make([]page.ID, len(s.freeList))
	copy(res, s.freeList)
	return res
}

// SetFreeIDs replaces the free list; the last ID is reused first. Duplicates
// are dropped.
func (s *Storing) SetFreeIDs(ids []page.ID) {
	s.freeList = s.freeList[:0]
	clear(s.free)
	for _, id := range ids {
		if _, found := s.free[id]; !found {
			s.freeList = append(s.freeList, id)
			s.free[id] = struct{}{}
		}
	}
}

// Reset forgets all handed out IDs.
func (s *Storing) Reset() {
	s.nextPageID = 0
	s.freeList = s.freeList[:0]
	clear(s.free)
}

// LiveCount is the number of IDs handed out and not released again.
func (s *Storing) LiveCount() int {
	return int(s.nextPageID) - len(s.freeList)
}

func (s *Storing) Stats() *Statistics {
	return s.stats
}

// LogStatistics reports the access counters, if enabled, and the number of
// live pages.
func (s *Storing) LogStatistics() {
	live := s.LiveCount()
	s.stats.SetPages(live)
	fields := append(s.stats.Fields(), zap.Int(s.name+".numpages", live))
	s.logger.Info("page file statistics", fields...)
}

// FreeListSize is the memory used by the free list and its index.
func (s *Storing) FreeListSize() uintptr {
	return uintptr(cap(s.freeList))*4 + uintptr(len(s.free))*8
}
