package ldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Name is the implementation name used to label statistics.
const Name = "LevelDbPageFile"

const (
	// pageSpace prefixes the keys of pages, followed by the big endian ID.
	pageSpace = byte('P')
	// metaSpace is the key of the metadata record.
	metaSpace = byte('M')
)

// Options configures the LevelDB instance backing a page file.
type Options struct {
	// CacheSize is the capacity of the block cache in bytes, 0 selects the
	// LevelDB default.
	CacheSize int
}

// PageFile stores pages as values of a LevelDB instance. The metadata
// record holds the serialized page header, the next page ID and the free
// list. It is written in the same batch as every page write and deletion,
// so the stored allocation state always covers the stored pages:
//
//	[page header][nextPageID][numFree][free ID]...
type PageFile[P page.Serializable] struct {
	mu        sync.Mutex
	storing   *pagefile.Storing
	db        *leveldb.DB
	options   *opt.Options
	newPage   func() P
	header    page.Header
	headerLen int
	buffer    []byte
}

// Open opens or creates the LevelDB instance in the given directory. The
// resulting page file needs to be initialized before use.
func Open[P page.Serializable](directory string, newPage func() P, options Options, config pagefile.Config) (*PageFile[P], error) {
	opts := &opt.Options{BlockCacheCapacity: options.CacheSize}
	db, err := leveldb.OpenFile(directory, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB page file: %w", err)
	}
	return &PageFile[P]{
		storing: pagefile.NewStoring(Name, config),
		db:      db,
		options: opts,
		newPage: newPage,
	}, nil
}

func pageKey(id page.ID) []byte {
	var key [5]byte
	key[0] = pageSpace
	binary.BigEndian.PutUint32(key[1:], uint32(id))
	return key[:]
}

// Initialize restores the metadata of an existing page file, decoding the
// stored header into the given one, and reports true. For a fresh page file
// the metadata is written immediately.
func (f *PageFile[P]) Initialize(header page.Header) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.storing.State() {
	case pagefile.Initialized:
		return false, pagefile.ErrAlreadyInitialized
	case pagefile.Closed:
		return false, common.ErrClosed
	}

	meta, err := f.db.Get([]byte{metaSpace}, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		if _, err := f.storing.Initialize(header); err != nil {
			return false, err
		}
		f.header, f.headerLen = header, header.Size()
		return false, f.storeMetadata(false)
	}
	if err != nil {
		return false, err
	}

	headerLen := header.Size()
	if len(meta) < headerLen+8 {
		return false, fmt.Errorf("%w: metadata of %d bytes", page.ErrHeaderFormat, len(meta))
	}
	if err := header.FromBytes(meta[:headerLen]); err != nil {
		return false, err
	}
	rest := meta[headerLen:]
	next := page.ID(binary.BigEndian.Uint32(rest))
	numFree := int(binary.BigEndian.Uint32(rest[4:]))
	rest = rest[8:]
	if next < 0 || numFree < 0 || len(rest) != numFree*4 {
		return false, fmt.Errorf("%w: corrupted allocation state", page.ErrHeaderFormat)
	}
	free := make([]page.ID, numFree)
	for i := range free {
		free[i] = page.ID(binary.BigEndian.Uint32(rest[i*4:]))
	}

	if _, err := f.storing.Initialize(header); err != nil {
		return false, err
	}
	if err := f.storing.SetNextPageID(next); err != nil {
		return false, err
	}
	f.storing.SetFreeIDs(free)
	f.header, f.headerLen = header, headerLen
	return true, nil
}

func (f *PageFile[P]) metadata() ([]byte, error) {
	free := f.storing.FreeIDs()
	meta := make([]byte, f.headerLen+8+4*len(free))
	if err := f.header.ToBytes(meta[:f.headerLen]); err != nil {
		return nil, err
	}
	rest := meta[f.headerLen:]
	binary.BigEndian.PutUint32(rest, uint32(f.storing.NextPageID()))
	binary.BigEndian.PutUint32(rest[4:], uint32(len(free)))
	for i, id := range free {
		binary.BigEndian.PutUint32(rest[8+i*4:], uint32(id))
	}
	return meta, nil
}

func (f *PageFile[P]) storeMetadata(durable bool) error {
	meta, err := f.metadata()
	if err != nil {
		return err
	}
	return f.db.Put([]byte{metaSpace}, meta, &opt.WriteOptions{Sync: durable})
}

// commit writes the given batch together with the current metadata.
func (f *PageFile[P]) commit(batch *leveldb.Batch) error {
	meta, err := f.metadata()
	if err != nil {
		return err
	}
	batch.Put([]byte{metaSpace}, meta)
	return f.db.Write(batch, nil)
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
	batch := new(leveldb.Batch)
	batch.Put(pageKey(id), f.buffer)
	if err := f.commit(batch); err != nil {
		return fmt.Errorf("failed to write page %d: %w", id, err)
	}
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
	if id < 0 {
		return none, false, nil
	}
	data, err := f.db.Get(pageKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return none, false, nil
	}
	if err != nil {
		return none, false, fmt.Errorf("failed to read page %d: %w", id, err)
	}
	res := f.newPage()
	if err := res.FromBytes(data); err != nil {
		return none, false, fmt.Errorf("failed to decode page %d: %w", id, err)
	}
	res.SetPageID(id)
	res.SetDirty(false)
	return res, true, nil
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
	batch := new(leveldb.Batch)
	batch.Delete(pageKey(id))
	if err := f.commit(batch); err != nil {
		return fmt.Errorf("failed to delete page %d: %w", id, err)
	}
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

// Clear deletes all pages and forgets all handed out IDs.
func (f *PageFile[P]) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	iter := f.db.NewIterator(util.BytesPrefix([]byte{pageSpace}), nil)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	f.storing.Reset()
	return f.commit(batch)
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
	mf.AddChild("buffer", common.NewMemoryFootprint(uintptr(cap(f.buffer))))
	mf.AddChild("freeList", common.NewMemoryFootprint(f.storing.FreeListSize()))
	mf.AddChild("blockCache", common.NewMemoryFootprint(uintptr(f.options.GetBlockCacheCapacity())))
	mf.AddChild("writeBuffer", common.NewMemoryFootprint(uintptr(f.options.GetWriteBuffer())))
	return mf
}

// Flush synchronously persists the allocation state.
func (f *PageFile[P]) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.storing.Check(); err != nil {
		return err
	}
	return f.storeMetadata(true)
}

// Close persists the allocation state and closes the database. Stored pages
// are retained.
func (f *PageFile[P]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	switch f.storing.State() {
	case pagefile.Closed:
		return common.ErrClosed
	case pagefile.Initialized:
		err = f.storeMetadata(true)
	}
	f.storing.MarkClosed()
	return errors.Join(err, f.db.Close())
}
