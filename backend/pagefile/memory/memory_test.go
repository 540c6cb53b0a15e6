package memory

import (
	"errors"
	"testing"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
)

func TestPageFile_Compliance(t *testing.T) {
	pagefile.RunPageFileTests(t, pagefile.NamedPageFileFactory{
		ImplementationName: "memory",
		Open: func(t *testing.T, _ string) (pagefile.PageFile[*pagefile.TestPage], error) {
			return NewPageFile[*pagefile.TestPage](pagefile.Config{Statistics: true}), nil
		},
	})
}

func newTestFile(t *testing.T) *PageFile[*pagefile.TestPage] {
	t.Helper()
	f := NewPageFile[*pagefile.TestPage](pagefile.Config{Statistics: true})
	if _, err := f.Initialize(page.NewDefaultHeader(pagefile.TestPageSize)); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	return f
}

func TestPageFile_ReadReturnsWrittenInstance(t *testing.T) {
	f := newTestFile(t)
	p := pagefile.NewTestPage("x")
	id, err := f.WritePage(p)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	got, found, err := f.ReadPage(id)
	if err != nil || !found {
		t.Fatalf("failed to read: %t, %v", found, err)
	}
	if got != p {
		t.Errorf("memory page file should return the stored instance")
	}
}

func TestPageFile_CountsReadsAndWrites(t *testing.T) {
	f := newTestFile(t)
	stats := f.storing.Stats()
	reads, writes := stats.Reads(), stats.Writes()
	id, _ := f.WritePage(pagefile.NewTestPage("x"))
	f.ReadPage(id)
	f.ReadPage(id + 1)
	if got := stats.Writes() - writes; got != 1 {
		t.Errorf("unexpected number of writes %d", got)
	}
	if got := stats.Reads() - reads; got != 2 {
		t.Errorf("absent reads should be counted too, got %d reads", got)
	}
}

func TestPageFile_IDsListsStoredPages(t *testing.T) {
	f := newTestFile(t)
	for i := 0; i < 4; i++ {
		f.WritePage(pagefile.NewTestPage("x"))
	}
	f.DeletePage(2)
	ids := f.IDs()
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 1 || ids[2] != 3 {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestPageFile_ClearKeepsAllocation(t *testing.T) {
	f := newTestFile(t)
	f.WritePage(pagefile.NewTestPage("x"))
	f.WritePage(pagefile.NewTestPage("y"))
	if err := f.Clear(); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if got := f.NextPageID(); got != 2 {
		t.Errorf("clear should not reset ids, next is %d", got)
	}
}

func TestPageFile_CloseDiscardsPages(t *testing.T) {
	f := newTestFile(t)
	f.WritePage(pagefile.NewTestPage("x"))
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if len(f.pages) != 0 {
		t.Errorf("close should drop all pages")
	}
	if err := f.Close(); !errors.Is(err, common.ErrClosed) {
		t.Errorf("second close should fail, got %v", err)
	}
}

func TestPageFile_WorksWithPlainPages(t *testing.T) {
	f := NewPageFile[*page.Base](pagefile.Config{})
	if _, err := f.Initialize(page.NewDefaultHeader(8)); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	p := &page.Base{}
	id, err := f.WritePage(p)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, found, _ := f.ReadPage(id); !found {
		t.Errorf("page should be found")
	}
}
