// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package factory

import (
	"fmt"
	"path/filepath"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/cache"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/file"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/ldb"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/memory"
	"github.com/Fantom-foundation/pagestore/common"
	"go.uber.org/zap"
)

// UnsupportedConfiguration is the error returned if unsupported configuration
// parameters have been specified. The text may contain further details
// regarding the unsupported feature.
const UnsupportedConfiguration = common.ConstError("unsupported configuration")

// DefaultPageSize is the page size in bytes used if none is configured.
const DefaultPageSize = 4000

// Variant selects the medium backing a page file.
type Variant string

const (
	MemoryVariant  Variant = "memory"
	FileVariant    Variant = "file"
	LevelDbVariant Variant = "leveldb"
)

// Variants lists all supported variants.
func Variants() []Variant {
	return []Variant{MemoryVariant, FileVariant, LevelDbVariant}
}

func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown page file variant %q", UnsupportedConfiguration, name)
}

// Parameters struct defining configuration parameters for page files.
type Parameters struct {
	Variant        Variant
	Directory      string      // location of persistent variants
	PageSize       int         // bytes, DefaultPageSize if zero
	CacheSize      int         // bytes, LRU page cache; zero disables caching
	BlockCacheSize int         // bytes, block cache of the leveldb variant
	Statistics     bool        // enables read, write, hit and miss counters
	Logger         *zap.Logger // nil disables logging
}

func (p Parameters) withDefaults() Parameters {
	if p.Variant == "" {
		p.Variant = MemoryVariant
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	p.Logger = common.OrNop(p.Logger)
	return p
}

// Header returns a header describing pages of the configured size.
func (p Parameters) Header() *page.DefaultHeader {
	return page.NewDefaultHeader(p.withDefaults().PageSize)
}

// NewPageFile creates an uninitialized page file of the configured variant,
// wrapped by an LRU page cache if a cache size is configured.
// New page instances are obtained from newPage when pages are decoded by
// persistent variants, which require pages to be page.Serializable. The
// returned page file still needs to be initialized, e.g. using the header
// provided by Parameters.Header.
func NewPageFile[P page.Page](params Parameters, newPage func() P) (pagefile.PageFile[P], error) {
	params = params.withDefaults()
	if params.PageSize < 0 {
		return nil, fmt.Errorf("%w: page size %d", UnsupportedConfiguration, params.PageSize)
	}
	if params.CacheSize < 0 || params.BlockCacheSize < 0 {
		return nil, fmt.Errorf("%w: cache size %d, block cache size %d", UnsupportedConfiguration, params.CacheSize, params.BlockCacheSize)
	}
	config := pagefile.Config{
		Statistics: params.Statistics,
		Logger:     params.Logger,
	}

	var (
		res pagefile.PageFile[P]
		err error
	)
	switch params.Variant {
	case MemoryVariant:
		res = memory.NewPageFile[P](config)
	case FileVariant:
		res, err = newSerialized(params, newPage, func(newPage func() page.Serializable) (pagefile.PageFile[page.Serializable], error) {
			return file.Open(params.Directory, newPage, config)
		})
	case LevelDbVariant:
		res, err = newSerialized(params, newPage, func(newPage func() page.Serializable) (pagefile.PageFile[page.Serializable], error) {
			return ldb.Open(params.Directory, newPage, ldb.Options{CacheSize: params.BlockCacheSize}, config)
		})
	default:
		return nil, fmt.Errorf("%w: unknown page file variant %q", UnsupportedConfiguration, params.Variant)
	}
	if err != nil {
		return nil, err
	}
	if params.CacheSize > 0 {
		res = cache.New[P](CacheName(params.Variant), res, params.CacheSize, config)
	}
	params.Logger.Debug("page file created",
		zap.String("variant", string(params.Variant)),
		zap.String("directory", params.Directory),
		zap.Int("pageSize", params.PageSize),
		zap.Int("cacheSize", params.CacheSize),
	)
	return res, nil
}

func newSerialized[P page.Page](
	params Parameters,
	newPage func() P,
	open func(func() page.Serializable) (pagefile.PageFile[page.Serializable], error),
) (pagefile.PageFile[P], error) {
	if params.Directory == "" {
		return nil, fmt.Errorf("%w: variant %s requires a directory", UnsupportedConfiguration, params.Variant)
	}
	if newPage == nil {
		return nil, fmt.Errorf("%w: variant %s requires a page constructor", UnsupportedConfiguration, params.Variant)
	}
	if _, ok := any(newPage()).(page.Serializable); !ok {
		return nil, fmt.Errorf("%w: variant %s requires serializable pages", UnsupportedConfiguration, params.Variant)
	}
	nested, err := open(func() page.Serializable {
		return any(newPage()).(page.Serializable)
	})
	if err != nil {
		return nil, err
	}
	return &serialized[P]{nested: nested}, nil
}

// CacheName is the name labelling the statistics of page caches wrapping
// page files of the given variant.
func CacheName(v Variant) string {
	return string(v) + "." + cache.Name
}

// DirectoryFor returns a sub-directory of the configured directory for a
// page file of the given name, for clients using multiple page files.
func (p Parameters) DirectoryFor(name string) Parameters {
	p.Directory = filepath.Join(p.Directory, name)
	return p
}
