package memory

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
	"golang.org/x/exp/maps"
)

// Name is the implementation name used to label statistics.
const Name = "MemoryPageFile"

// PageFile keeps pages in a map. Pages are stored by reference, reads return
// the instance that was written. Closing the page file discards all pages.
type PageFile[P page.Page] struct {
	mu      sync.Mutex
	storing *pagefile.Storing
	pages   map[page.ID]P
}

// NewPageFile creates an uninitialized in-memory page file.
func NewPageFile[P page.Page](config pagefile.Config) *PageFile[P] {
	return &PageFile[P]{
		storing: pagefile.NewStoring(Name, config),
		pages:   map[page.ID]P{},
	}
}

func (f *PageFile[P]) Initialize(header page.Header) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storing.Initialize(header)
}

func (f *PageFile[P]) SetPageID(p P) (page.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return page.NoID, err
	}
	return f.storing.AssignID(p), nil
}

func (f *PageFile[P]) WritePage(p P) (page.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pagefile.WritePage(f.storing, p, f.write)
}

func (f *PageFile[P]) write(id page.ID, p P) error {
	f.storing.Stats().CountWrite()
	f.pages[id] = p
	p.SetDirty(false)
	return nil
}

func (f *PageFile[P]) ReadPage(id page.ID) (P, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var none P
	if err := f.storing.Check(); err != nil {
		return none, false, err
	}
	f.storing.Stats().CountRead()
	p, found := f.pages[id]
	return p, found, nil
}

func (f *PageFile[P]) DeletePage(id page.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	if err := f.storing.Release(id); err != nil {
		return err
	}
	delete(f.pages, id)
	return nil
}

func (f *PageFile[P]) NextPageID() page.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storing.NextPageID()
}

func (f *PageFile[P]) SetNextPageID(id page.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	return f.storing.SetNextPageID(id)
}

func (f *PageFile[P]) PageSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storing.PageSize()
}

// IDs returns the IDs of all stored pages in ascending order.
func (f *PageFile[P]) IDs() []page.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := maps.Keys(f.pages)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear drops all pages. IDs handed out so far are not reused.
func (f *PageFile[P]) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	maps.Clear(f.pages)
	return nil
}

func (f *PageFile[P]) LogStatistics() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storing.LogStatistics()
}

func (f *PageFile[P]) GetMemoryFootprint() *common.MemoryFootprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		id page.ID
		p  P
	)
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*f))
	mf.AddChild("pages", common.NewMemoryFootprint(uintptr(len(f.pages))*(unsafe.Sizeof(id)+unsafe.Sizeof(p))))
	mf.AddChild("freeList", common.NewMemoryFootprint(f.storing.FreeListSize()))
	return mf
}

// Flush is a no-op, there is nothing to persist.
func (f *PageFile[P]) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storing.Check()
}

// Close drops all pages and retires the page file.
func (f *PageFile[P]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storing.State() == pagefile.Closed {
		return common.ErrClosed
	}
	maps.Clear(f.pages)
	f.storing.MarkClosed()
	return nil
}

var _ pagefile.PageFile[*page.Base] = (*PageFile[*page.Base])(nil)
