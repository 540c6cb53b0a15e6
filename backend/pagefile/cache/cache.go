// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cache

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
	"go.uber.org/zap"
)

// Name is the default implementation name used to label statistics.
const Name = "LruPageCache"

// PageFile keeps the most recently used pages of a nested page file in
// memory. Written pages are held back in the cache and only reach the
// nested page file when they are evicted, flushed or the cache is closed.
// Pages read from the nested page file are cached as well.
//
// The number of cached pages is the configured cache size in bytes divided
// by the page size, but at least one. It is fixed when the page file is
// initialized since the page size is only known from then on.
//
// Errors of writes held back by the cache, e.g. pages failing to serialize,
// are reported by the operation that evicts or flushes the page.
type PageFile[P page.Page] struct {
	mu        sync.Mutex
	nested    pagefile.PageFile[P]
	cacheSize int
	pages     *common.LruCache[page.ID, cached[P]] // nil unless initialized
	stats     *pagefile.Statistics
	logger    *zap.Logger
}

type cached[P page.Page] struct {
	page  P
	dirty bool // not written to the nested page file yet
}

// New wraps the given page file by a cache of the given size in bytes. The
// name labels the hit and miss statistics of the cache.
func New[P page.Page](name string, nested pagefile.PageFile[P], cacheSize int, config pagefile.Config) *PageFile[P] {
	return &PageFile[P]{
		nested:    nested,
		cacheSize: cacheSize,
		stats:     pagefile.NewStatistics(name, config.Statistics),
		logger:    common.OrNop(config.Logger),
	}
}

func (c *PageFile[P]) Initialize(header page.Header) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existed, err := c.nested.Initialize(header)
	if err != nil {
		return existed, err
	}
	c.pages = common.NewLruCache[page.ID, cached[P]](c.cacheSize / c.nested.PageSize())
	c.logger.Debug("page cache initialized",
		zap.Int("capacity", c.pages.Capacity()),
		zap.Int("pageSize", c.nested.PageSize()),
	)
	return existed, nil
}

func (c *PageFile[P]) SetPageID(p P) (page.ID, error) {
	return c.nested.SetPageID(p)
}

func (c *PageFile[P]) WritePage(p P) (page.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages == nil {
		return c.nested.WritePage(p)
	}
	id, err := c.nested.SetPageID(p)
	if err != nil {
		return page.NoID, err
	}
	if err := c.put(id, cached[P]{page: p, dirty: true}); err != nil {
		return id, err
	}
	p.SetDirty(false)
	return id, nil
}

// put adds the page to the cache, writing back the least recently used page
// first if the cache is full.
func (c *PageFile[P]) put(id page.ID, entry cached[P]) error {
	if _, found := c.pages.Peek(id); !found && c.pages.Full() {
		if err := c.evict(); err != nil {
			return err
		}
	}
	c.pages.Set(id, entry)
	return nil
}

func (c *PageFile[P]) evict() error {
	id, entry, found := c.pages.Oldest()
	if !found {
		return nil
	}
	if entry.dirty {
		if err := c.writeBack(id, entry.page); err != nil {
			return err
		}
	}
	c.pages.Remove(id)
	return nil
}

func (c *PageFile[P]) writeBack(id page.ID, p P) error {
	if _, err := c.nested.WritePage(p); err != nil {
		return fmt.Errorf("failed to write back page %d: %w", id, err)
	}
	return nil
}

func (c *PageFile[P]) ReadPage(id page.ID) (P, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages == nil {
		return c.nested.ReadPage(id)
	}
	if entry, found := c.pages.Get(id); found {
		c.stats.CountHit()
		return entry.page, true, nil
	}
	c.stats.CountMiss()
	p, found, err := c.nested.ReadPage(id)
	if err != nil || !found {
		return p, found, err
	}
	if err := c.put(id, cached[P]{page: p}); err != nil {
		var none P
		return none, false, err
	}
	return p, true, nil
}

func (c *PageFile[P]) DeletePage(id page.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.nested.DeletePage(id); err != nil {
		return err
	}
	if c.pages != nil {
		c.pages.Remove(id)
	}
	return nil
}

func (c *PageFile[P]) NextPageID() page.ID {
	return c.nested.NextPageID()
}

func (c *PageFile[P]) SetNextPageID(id page.ID) error {
	return c.nested.SetNextPageID(id)
}

func (c *PageFile[P]) PageSize() int {
	return c.nested.PageSize()
}

// Clear drops all cached pages, including those not written back yet, and
// clears the nested page file.
func (c *PageFile[P]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.nested.Clear(); err != nil {
		return err
	}
	if c.pages != nil {
		c.pages.Clear()
	}
	return nil
}

func (c *PageFile[P]) LogStatistics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nested.LogStatistics()
	fields := c.stats.CacheFields()
	if c.pages != nil {
		fields = append(fields,
			zap.Int("cached", c.pages.Len()),
			zap.Int("capacity", c.pages.Capacity()),
		)
	}
	c.logger.Info("page cache statistics", fields...)
}

func (c *PageFile[P]) GetMemoryFootprint() *common.MemoryFootprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*c))
	if c.pages != nil {
		pageSize := uintptr(c.nested.PageSize())
		mf.AddChild("cache", c.pages.GetDynamicMemoryFootprint(func(cached[P]) uintptr {
			return pageSize
		}))
	}
	mf.AddChild("nested", c.nested.GetMemoryFootprint())
	return mf
}

// flush writes back all pages not written to the nested page file yet.
func (c *PageFile[P]) flush() error {
	var errs []error
	c.pages.Iterate(func(id page.ID, entry *cached[P]) bool {
		if !entry.dirty {
			return true
		}
		if err := c.writeBack(id, entry.page); err != nil {
			errs = append(errs, err)
			return true
		}
		entry.dirty = false
		return true
	})
	return errors.Join(errs...)
}

func (c *PageFile[P]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages == nil {
		return c.nested.Flush()
	}
	if err := c.flush(); err != nil {
		return err
	}
	return c.nested.Flush()
}

// Close writes back all pending pages and closes the nested page file.
func (c *PageFile[P]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages == nil {
		return c.nested.Close()
	}
	err := c.flush()
	c.pages = nil
	return errors.Join(err, c.nested.Close())
}
