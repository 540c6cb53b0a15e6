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
	"errors"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/cache"
)

func newTestPage() *pagefile.TestPage {
	return &pagefile.TestPage{}
}

func TestFactory_AllVariantsAreCompliant(t *testing.T) {
	for _, variant := range Variants() {
		variant := variant
		t.Run(string(variant), func(t *testing.T) {
			pagefile.RunPageFileTests(t, pagefile.NamedPageFileFactory{
				ImplementationName: string(variant),
				Open: func(t *testing.T, directory string) (pagefile.PageFile[*pagefile.TestPage], error) {
					return NewPageFile(Parameters{
						Variant:    variant,
						Directory:  directory,
						PageSize:   pagefile.TestPageSize,
						Statistics: true,
					}, newTestPage)
				},
				Persistent: variant != MemoryVariant,
			})
		})
	}
}

func TestFactory_AllCachedVariantsAreCompliant(t *testing.T) {
	for _, variant := range Variants() {
		variant := variant
		t.Run(string(variant), func(t *testing.T) {
			pagefile.RunPageFileTests(t, pagefile.NamedPageFileFactory{
				ImplementationName: "cached " + string(variant),
				Open: func(t *testing.T, directory string) (pagefile.PageFile[*pagefile.TestPage], error) {
					return NewPageFile(Parameters{
						Variant:        variant,
						Directory:      directory,
						PageSize:       pagefile.TestPageSize,
						CacheSize:      2 * pagefile.TestPageSize,
						BlockCacheSize: 1 << 20,
						Statistics:     true,
					}, newTestPage)
				},
				Persistent: variant != MemoryVariant,
			})
		})
	}
}

func TestFactory_CacheSizeSelectsPageCache(t *testing.T) {
	for _, variant := range Variants() {
		params := Parameters{Variant: variant, Directory: t.TempDir(), PageSize: pagefile.TestPageSize}
		plain, err := NewPageFile(params, newTestPage)
		if err != nil {
			t.Fatalf("failed to create page file: %v", err)
		}
		if _, ok := plain.(*cache.PageFile[*pagefile.TestPage]); ok {
			t.Errorf("variant %s without cache size should not be cached", variant)
		}
		plain.Close()

		params.CacheSize = 4 * pagefile.TestPageSize
		params.Directory = t.TempDir()
		cached, err := NewPageFile(params, newTestPage)
		if err != nil {
			t.Fatalf("failed to create page file: %v", err)
		}
		if _, ok := cached.(*cache.PageFile[*pagefile.TestPage]); !ok {
			t.Errorf("variant %s with cache size should be cached, got %T", variant, cached)
		}
		cached.Close()
	}
}

func TestFactory_NegativeCacheSizesAreRejected(t *testing.T) {
	if _, err := NewPageFile(Parameters{CacheSize: -1}, newTestPage); !errors.Is(err, UnsupportedConfiguration) {
		t.Errorf("negative cache size should be rejected, got %v", err)
	}
	if _, err := NewPageFile(Parameters{BlockCacheSize: -1}, newTestPage); !errors.Is(err, UnsupportedConfiguration) {
		t.Errorf("negative block cache size should be rejected, got %v", err)
	}
}

func TestFactory_DefaultsToMemoryVariant(t *testing.T) {
	params := Parameters{}
	f, err := NewPageFile(params, newTestPage)
	if err != nil {
		t.Fatalf("failed to create page file: %v", err)
	}
	defer f.Close()
	existed, err := f.Initialize(params.Header())
	if err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	if existed {
		t.Errorf("memory page files never exist before")
	}
	if got := f.PageSize(); got != DefaultPageSize {
		t.Errorf("unexpected default page size %d", got)
	}
}

func TestFactory_UnknownVariantsAreRejected(t *testing.T) {
	_, err := NewPageFile(Parameters{Variant: "tape"}, newTestPage)
	if !errors.Is(err, UnsupportedConfiguration) {
		t.Errorf("unknown variant should be rejected, got %v", err)
	}
}

func TestFactory_PersistentVariantsRequireDirectory(t *testing.T) {
	for _, variant := range []Variant{FileVariant, LevelDbVariant} {
		_, err := NewPageFile(Parameters{Variant: variant}, newTestPage)
		if !errors.Is(err, UnsupportedConfiguration) {
			t.Errorf("variant %s without directory should be rejected, got %v", variant, err)
		}
	}
}

func TestFactory_PersistentVariantsRequireSerializablePages(t *testing.T) {
	for _, variant := range []Variant{FileVariant, LevelDbVariant} {
		_, err := NewPageFile(Parameters{Variant: variant, Directory: t.TempDir()}, func() *page.Base {
			return &page.Base{}
		})
		if !errors.Is(err, UnsupportedConfiguration) {
			t.Errorf("variant %s with plain pages should be rejected, got %v", variant, err)
		}
	}
}

func TestFactory_MemoryVariantAcceptsPlainPages(t *testing.T) {
	f, err := NewPageFile[*page.Base](Parameters{Variant: MemoryVariant}, nil)
	if err != nil {
		t.Fatalf("failed to create page file: %v", err)
	}
	defer f.Close()
	if _, err := f.Initialize(page.NewDefaultHeader(16)); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	if _, err := f.WritePage(&page.Base{}); err != nil {
		t.Errorf("failed to write plain page: %v", err)
	}
}

func TestFactory_NegativePageSizesAreRejected(t *testing.T) {
	_, err := NewPageFile(Parameters{PageSize: -1}, newTestPage)
	if !errors.Is(err, UnsupportedConfiguration) {
		t.Errorf("negative page size should be rejected, got %v", err)
	}
}

func TestParseVariant(t *testing.T) {
	for _, variant := range Variants() {
		got, err := ParseVariant(string(variant))
		if err != nil || got != variant {
			t.Errorf("failed to parse %s: %v, %v", variant, got, err)
		}
	}
	if _, err := ParseVariant("unknown"); !errors.Is(err, UnsupportedConfiguration) {
		t.Errorf("unknown variant should not parse, got %v", err)
	}
}

func TestParameters_DirectoryFor(t *testing.T) {
	params := Parameters{Directory: "base"}
	if got, want := params.DirectoryFor("tree").Directory, filepath.Join("base", "tree"); got != want {
		t.Errorf("unexpected directory, wanted %s, got %s", want, got)
	}
	if params.Directory != "base" {
		t.Errorf("receiver parameters should not be modified")
	}
}
