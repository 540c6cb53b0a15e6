package file

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/backend/ondisk"
	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
)

// Name is the implementation name used to label statistics.
const Name = "FilePageFile"

// FileName is the name of the array file within the page file directory.
const FileName = "pages.dat"

// fileMagic identifies page files among array files.
const fileMagic = int32(0x50474631)

const (
	recordEmpty  = byte(0)
	recordFilled = byte(1)
)

const minCapacity = 16

// PageFile stores pages in the records of an on-disk array. Each record holds
// a status byte followed by the serialized page. The extra header of the
// array holds the serialized page header followed by the next page ID:
//
//	[page header][nextPageID][status|page 0][status|page 1]...
//
// The free list is not persisted; it is rebuilt on initialization from the
// empty records below the next page ID. IDs assigned but never written are
// therefore reclaimed when reopening the file. The stored next page ID is
// only updated by Flush and Close, so on reopening it is raised past the
// last filled record in case the file was not closed properly.
type PageFile[P page.Serializable] struct {
	mu        sync.Mutex
	storing   *pagefile.Storing
	path      string
	newPage   func() P
	array     *ondisk.Array
	headerLen int
	buffer    []byte
}

// Open creates an uninitialized page file within the given directory. The
// array file is created or opened by Initialize. New page instances to be
// filled on reads are obtained from the given function.
func Open[P page.Serializable](directory string, newPage func() P, config pagefile.Config) (*PageFile[P], error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, err
	}
	return &PageFile[P]{
		storing: pagefile.NewStoring(Name, config),
		path:    filepath.Join(directory, FileName),
		newPage: newPage,
	}, nil
}

// Initialize opens the array file if it exists, in which case the stored
// header is decoded into the given header and true is reported. Otherwise
// a new file is created for the page size of the given header.
func (f *PageFile[P]) Initialize(header page.Header) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.storing.State() {
	case pagefile.Initialized:
		return false, pagefile.ErrAlreadyInitialized
	case pagefile.Closed:
		return false, common.ErrClosed
	}

	stats, err := os.Stat(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err == nil && stats.Size() > 0 {
		return true, f.open(header)
	}
	return false, f.create(header)
}

func (f *PageFile[P]) create(header page.Header) error {
	if header.PageSize() <= 0 {
		return fmt.Errorf("%w: page size %d", pagefile.ErrPageSize, header.PageSize())
	}
	headerLen := header.Size()
	array, err := ondisk.CreateArray(f.path, fileMagic, int32(headerLen+4), int32(header.PageSize()+1), 0)
	if err != nil {
		return err
	}
	err = array.UpdateExtraHeader(func(data []byte) error {
		binary.BigEndian.PutUint32(data[headerLen:], uint32(0))
		return header.ToBytes(data[:headerLen])
	})
	if err == nil {
		_, err = f.storing.Initialize(header)
	}
	if err != nil {
		return errors.Join(err, array.Close(), os.Remove(f.path))
	}
	f.headerLen = headerLen
	f.array = array
	return nil
}

func (f *PageFile[P]) open(header page.Header) error {
	headerLen := header.Size()
	array, err := ondisk.OpenArrayDiscover(f.path, fileMagic, int32(headerLen+4), true)
	if err != nil {
		return err
	}
	var next page.ID
	err = array.ReadExtraHeader(func(data []byte) error {
		next = page.ID(binary.BigEndian.Uint32(data[headerLen:]))
		return header.FromBytes(data[:headerLen])
	})
	if err == nil && int32(header.PageSize()+1) != array.RecordSize() {
		err = fmt.Errorf("%w: header declares %d bytes, records hold %d", pagefile.ErrPageSize, header.PageSize(), array.RecordSize()-1)
	}
	if err == nil && next < 0 {
		err = fmt.Errorf("%w: next page id %d", ondisk.ErrFormat, next)
	}
	if err != nil {
		return errors.Join(err, array.Close())
	}

	var empty []page.ID
	for i := int32(0); i < array.NumRecords(); i++ {
		err := array.ReadRecord(i, func(data []byte) error {
			if data[0] == recordFilled {
				next = max(next, page.ID(i)+1)
			} else {
				empty = append(empty, page.ID(i))
			}
			return nil
		})
		if err != nil {
			return errors.Join(err, array.Close())
		}
	}
	free := []page.ID{}
	for _, id := range empty {
		if id >= next {
			break
		}
		free = append(free, id)
	}
	if _, err := f.storing.Initialize(header); err != nil {
		return errors.Join(err, array.Close())
	}
	f.storing.Reset()
	if err := f.storing.SetNextPageID(next); err != nil {
		return errors.Join(err, array.Close())
	}
	f.storing.SetFreeIDs(free)
	f.headerLen = headerLen
	f.array = array
	return nil
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
	if len(f.buffer) != f.storing.PageSize() {
		f.buffer = make([]byte, f.storing.PageSize())
	}
	clear(f.buffer)
	if err := p.ToBytes(f.buffer); err != nil {
		return err
	}
	if err := f.ensureCapacity(int32(id)); err != nil {
		return err
	}
	err := f.array.UpdateRecord(int32(id), func(data []byte) error {
		data[0] = recordFilled
		copy(data[1:], f.buffer)
		return nil
	})
	if err != nil {
		return err
	}
	p.SetDirty(false)
	return nil
}

// ensureCapacity grows the array geometrically until the given index fits.
func (f *PageFile[P]) ensureCapacity(index int32) error {
	size := f.array.NumRecords()
	if index < size {
		return nil
	}
	target := max(int64(index)+1, int64(size)*2, minCapacity)
	if target > int64(ondisk.MaxRecords) {
		target = int64(ondisk.MaxRecords)
	}
	return f.array.EnsureSize(int32(target))
}

func (f *PageFile[P]) ReadPage(id page.ID) (P, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var none P
	if err := f.storing.Check(); err != nil {
		return none, false, err
	}
	f.storing.Stats().CountRead()
	if id < 0 || int32(id) >= f.array.NumRecords() {
		return none, false, nil
	}
	var (
		res   P
		found bool
	)
	err := f.array.ReadRecord(int32(id), func(data []byte) error {
		if data[0] != recordFilled {
			return nil
		}
		res = f.newPage()
		if err := res.FromBytes(data[1:]); err != nil {
			return err
		}
		res.SetPageID(id)
		res.SetDirty(false)
		found = true
		return nil
	})
	if err != nil {
		return none, false, fmt.Errorf("failed to read page %d: %w", id, err)
	}
	return res, found, nil
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
	if int32(id) >= f.array.NumRecords() {
		return nil
	}
	return f.array.UpdateRecord(int32(id), func(data []byte) error {
		data[0] = recordEmpty
		return nil
	})
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

// Clear truncates the array and forgets all handed out IDs.
func (f *PageFile[P]) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	if err := f.array.Resize(0); err != nil {
		return err
	}
	f.storing.Reset()
	return f.storeNextPageID()
}

func (f *PageFile[P]) LogStatistics() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storing.LogStatistics()
}

func (f *PageFile[P]) GetMemoryFootprint() *common.MemoryFootprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*f))
	if f.array != nil {
		mf.AddChild("array", f.array.GetMemoryFootprint())
	}
	mf.AddChild("buffer", common.NewMemoryFootprint(uintptr(cap(f.buffer))))
	mf.AddChild("freeList", common.NewMemoryFootprint(f.storing.FreeListSize()))
	return mf
}

func (f *PageFile[P]) storeNextPageID() error {
	next := f.storing.NextPageID()
	return f.array.UpdateExtraHeader(func(data []byte) error {
		binary.BigEndian.PutUint32(data[f.headerLen:], uint32(next))
		return nil
	})
}

func (f *PageFile[P]) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	if err := f.storeNextPageID(); err != nil {
		return err
	}
	return f.array.Flush()
}

// Close persists the next page ID and releases the array file. Stored pages
// are retained.
func (f *PageFile[P]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.storing.State() {
	case pagefile.Closed:
		return common.ErrClosed
	case pagefile.Uninitialized:
		f.storing.MarkClosed()
		return nil
	}
	f.storing.MarkClosed()
	return errors.Join(f.storeNextPageID(), f.array.Close())
}
