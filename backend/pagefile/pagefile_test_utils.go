package pagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/common"
)

// TestPageSize is the page size used by the compliance tests.
const TestPageSize = 64

// TestPage is a serializable page carrying a length prefixed payload.
type TestPage struct {
	page.Base
	Payload []byte
}

func NewTestPage(payload string) *TestPage {
	return &TestPage{Payload: []byte(payload)}
}

func (p *TestPage) ToBytes(trg []byte) error {
	if len(p.Payload)+2 > len(trg) {
		return fmt.Errorf("%w: payload of %d bytes exceeds page of %d bytes", ErrPageSize, len(p.Payload), len(trg))
	}
	binary.BigEndian.PutUint16(trg, uint16(len(p.Payload)))
	copy(trg[2:], p.Payload)
	return nil
}

func (p *TestPage) FromBytes(src []byte) error {
	if len(src) < 2 {
		return fmt.Errorf("%w: page of %d bytes", ErrPageSize, len(src))
	}
	l := int(binary.BigEndian.Uint16(src))
	if l+2 > len(src) {
		return fmt.Errorf("%w: payload length %d exceeds page", ErrPageSize, l)
	}
	p.Payload = bytes.Clone(src[2 : 2+l])
	return nil
}

type NamedPageFileFactory struct {
	ImplementationName string
	// Open creates an uninitialized page file for the given directory.
	Open func(t *testing.T, directory string) (PageFile[*TestPage], error)
	// Persistent page files retain their content when closed and reopened.
	Persistent bool
}

// RunPageFileTests runs a set of black-box unit tests against a PageFile
// implementation defined by the given factory. It is intended to be used in
// implementation specific test packages to cover the properties imposed by
// the PageFile interface.
func RunPageFileTests(t *testing.T, factory NamedPageFileFactory) {
	wrap := func(test func(*testing.T, NamedPageFileFactory)) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			test(t, factory)
		}
	}
	t.Run("InitializeAdoptsPageSize", wrap(testInitializeAdoptsPageSize))
	t.Run("OperationsRequireInitialization", wrap(testOperationsRequireInitialization))
	t.Run("InitializeCanNotBeRepeated", wrap(testInitializeCanNotBeRepeated))
	t.Run("SetPageIDAssignsFreshIDs", wrap(testSetPageIDAssignsFreshIDs))
	t.Run("SetPageIDKeepsAssignedIDs", wrap(testSetPageIDKeepsAssignedIDs))
	t.Run("DeletedIDsAreReusedInLifoOrder", wrap(testDeletedIDsAreReusedInLifoOrder))
	t.Run("WrittenPagesCanBeRead", wrap(testWrittenPagesCanBeRead))
	t.Run("WritingCleansPages", wrap(testWritingCleansPages))
	t.Run("OverwrittenPagesAreUpdated", wrap(testOverwrittenPagesAreUpdated))
	t.Run("MissingPagesAreAbsent", wrap(testMissingPagesAreAbsent))
	t.Run("DeletedPagesAreAbsent", wrap(testDeletedPagesAreAbsent))
	t.Run("RepeatedDeletionIsRejected", wrap(testRepeatedDeletionIsRejected))
	t.Run("NegativeIDsAreRejected", wrap(testNegativeIDsAreRejected))
	t.Run("NextPageIDCanBeRestored", wrap(testNextPageIDCanBeRestored))
	t.Run("ClearRemovesAllPages", wrap(testClearRemovesAllPages))
	t.Run("ConcurrentWritesUseDistinctIDs", wrap(testConcurrentWritesUseDistinctIDs))
	t.Run("ProvidesMemoryFootprint", wrap(testProvidesMemoryFootprint))
	t.Run("CanLogStatistics", wrap(testCanLogStatistics))
	t.Run("CanBeFlushed", wrap(testCanBeFlushed))
	t.Run("OperationsFailAfterClose", wrap(testOperationsFailAfterClose))
	if factory.Persistent {
		t.Run("CanBeClosedAndReopened", wrap(testCanBeClosedAndReopened))
	}
}

func openInitialized(t *testing.T, factory NamedPageFileFactory, directory string) PageFile[*TestPage] {
	t.Helper()
	file, err := factory.Open(t, directory)
	if err != nil {
		t.Fatalf("failed to open page file: %v", err)
	}
	if _, err := file.Initialize(page.NewDefaultHeader(TestPageSize)); err != nil {
		t.Fatalf("failed to initialize page file: %v", err)
	}
	return file
}

func writePages(t *testing.T, file PageFile[*TestPage], n int) []page.ID {
	t.Helper()
	ids := make([]page.ID, 0, n)
	for i := 0; i < n; i++ {
		id, err := file.WritePage(NewTestPage(fmt.Sprintf("page-%d", i)))
		if err != nil {
			t.Fatalf("failed to write page %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func testInitializeAdoptsPageSize(t *testing.T, factory NamedPageFileFactory) {
	file, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open page file: %v", err)
	}
	defer file.Close()
	existed, err := file.Initialize(page.NewDefaultHeader(TestPageSize))
	if err != nil {
		t.Fatalf("failed to initialize page file: %v", err)
	}
	if existed {
		t.Errorf("fresh page file reported existing content")
	}
	if got, want := file.PageSize(), TestPageSize; got != want {
		t.Errorf("unexpected page size, wanted %d, got %d", want, got)
	}
	if got := file.NextPageID(); got != 0 {
		t.Errorf("fresh page file should start with ID 0, got %d", got)
	}
}

func testOperationsRequireInitialization(t *testing.T, factory NamedPageFileFactory) {
	file, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open page file: %v", err)
	}
	defer file.Close()
	if _, err := file.WritePage(NewTestPage("a")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("write before initialization should fail, got %v", err)
	}
	if _, err := file.SetPageID(NewTestPage("a")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("id assignment before initialization should fail, got %v", err)
	}
	if _, _, err := file.ReadPage(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("read before initialization should fail, got %v", err)
	}
	if err := file.DeletePage(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("delete before initialization should fail, got %v", err)
	}
}

func testInitializeCanNotBeRepeated(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	if _, err := file.Initialize(page.NewDefaultHeader(TestPageSize)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second initialization should fail, got %v", err)
	}
}

func testSetPageIDAssignsFreshIDs(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	seen := map[page.ID]bool{}
	for i := 0; i < 100; i++ {
		p := NewTestPage("")
		id, err := file.SetPageID(p)
		if err != nil {
			t.Fatalf("failed to assign id: %v", err)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
		if got, ok := p.PageID(); !ok || got != id {
			t.Errorf("page should carry assigned id %d, got %d/%t", id, got, ok)
		}
	}
	if got, want := file.NextPageID(), page.ID(100); got != want {
		t.Errorf("unexpected next page id, wanted %d, got %d", want, got)
	}
}

func testSetPageIDKeepsAssignedIDs(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	p := NewTestPage("")
	first, err := file.SetPageID(p)
	if err != nil {
		t.Fatalf("failed to assign id: %v", err)
	}
	second, err := file.SetPageID(p)
	if err != nil {
		t.Fatalf("failed to assign id: %v", err)
	}
	if first != second {
		t.Errorf("assigned id should be stable, got %d and %d", first, second)
	}
	if got, want := file.NextPageID(), page.ID(1); got != want {
		t.Errorf("repeated assignment should not consume ids, next is %d, wanted %d", got, want)
	}
}

func testDeletedIDsAreReusedInLifoOrder(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	writePages(t, file, 8)
	if err := file.DeletePage(5); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if err := file.DeletePage(7); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if got, want := file.NextPageID(), page.ID(8); got != want {
		t.Errorf("deletion should not change the next page id, wanted %d, got %d", want, got)
	}
	for _, want := range []page.ID{7, 5, 8} {
		got, err := file.SetPageID(NewTestPage(""))
		if err != nil {
			t.Fatalf("failed to assign id: %v", err)
		}
		if got != want {
			t.Errorf("unexpected id, wanted %d, got %d", want, got)
		}
	}
}

func testWrittenPagesCanBeRead(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	ids := writePages(t, file, 10)
	for i, id := range ids {
		p, found, err := file.ReadPage(id)
		if err != nil {
			t.Fatalf("failed to read page %d: %v", id, err)
		}
		if !found {
			t.Fatalf("page %d not found", id)
		}
		if got, want := string(p.Payload), fmt.Sprintf("page-%d", i); got != want {
			t.Errorf("unexpected payload of page %d, wanted %s, got %s", id, want, got)
		}
		if got, ok := p.PageID(); !ok || got != id {
			t.Errorf("read page should carry id %d, got %d/%t", id, got, ok)
		}
		if p.IsDirty() {
			t.Errorf("read page %d should be clean", id)
		}
	}
}

func testWritingCleansPages(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	p := NewTestPage("dirty")
	if !p.IsDirty() {
		t.Fatalf("new pages should be dirty")
	}
	if _, err := file.WritePage(p); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
	if p.IsDirty() {
		t.Errorf("written page should be clean")
	}
	if _, ok := p.PageID(); !ok {
		t.Errorf("written page should have an id")
	}
}

func testOverwrittenPagesAreUpdated(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	p := NewTestPage("first")
	id, err := file.WritePage(p)
	if err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
	p.Payload = []byte("second")
	p.SetDirty(true)
	if got, err := file.WritePage(p); err != nil || got != id {
		t.Fatalf("rewrite should keep id %d, got %d, err %v", id, got, err)
	}
	restored, found, err := file.ReadPage(id)
	if err != nil || !found {
		t.Fatalf("failed to read page: %t, %v", found, err)
	}
	if got := string(restored.Payload); got != "second" {
		t.Errorf("unexpected payload, wanted second, got %s", got)
	}
}

func testMissingPagesAreAbsent(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	writePages(t, file, 2)
	for _, id := range []page.ID{2, 10, 1000} {
		if _, found, err := file.ReadPage(id); err != nil || found {
			t.Errorf("page %d should be absent, got %t, err %v", id, found, err)
		}
	}
}

func testDeletedPagesAreAbsent(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	ids := writePages(t, file, 3)
	if err := file.DeletePage(ids[1]); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if _, found, err := file.ReadPage(ids[1]); err != nil || found {
		t.Errorf("deleted page should be absent, got %t, err %v", found, err)
	}
	for _, id := range []page.ID{ids[0], ids[2]} {
		if _, found, err := file.ReadPage(id); err != nil || !found {
			t.Errorf("page %d should be present, got %t, err %v", id, found, err)
		}
	}
}

func testRepeatedDeletionIsRejected(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	ids := writePages(t, file, 3)
	if err := file.DeletePage(ids[1]); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if err := file.DeletePage(ids[1]); !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("deleting a free id should fail, got %v", err)
	}
	first, err := file.WritePage(NewTestPage("a"))
	if err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
	second, err := file.WritePage(NewTestPage("b"))
	if err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
	if first == second {
		t.Errorf("fresh pages share id %d", first)
	}
}

func testNegativeIDsAreRejected(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	if err := file.DeletePage(-2); !errors.Is(err, ErrInvalidPageID) {
		t.Errorf("deleting a negative id should fail, got %v", err)
	}
	if err := file.SetNextPageID(-1); !errors.Is(err, ErrInvalidPageID) {
		t.Errorf("setting a negative next id should fail, got %v", err)
	}
	if _, found, err := file.ReadPage(-1); err != nil || found {
		t.Errorf("negative ids should be absent, got %t, err %v", found, err)
	}
}

func testNextPageIDCanBeRestored(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	if err := file.SetNextPageID(42); err != nil {
		t.Fatalf("failed to set next page id: %v", err)
	}
	if got := file.NextPageID(); got != 42 {
		t.Errorf("unexpected next page id, wanted 42, got %d", got)
	}
	id, err := file.SetPageID(NewTestPage(""))
	if err != nil {
		t.Fatalf("failed to assign id: %v", err)
	}
	if id != 42 {
		t.Errorf("expected id 42 after restore, got %d", id)
	}
}

func testClearRemovesAllPages(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	ids := writePages(t, file, 5)
	if err := file.Clear(); err != nil {
		t.Fatalf("failed to clear page file: %v", err)
	}
	for _, id := range ids {
		if _, found, err := file.ReadPage(id); err != nil || found {
			t.Errorf("page %d should be gone after clear, got %t, err %v", id, found, err)
		}
	}
	if _, err := file.WritePage(NewTestPage("after")); err != nil {
		t.Errorf("page file should remain usable after clear, got %v", err)
	}
}

func testConcurrentWritesUseDistinctIDs(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	const workers, perWorker = 8, 50
	ids := make([][]page.ID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := file.WritePage(NewTestPage(fmt.Sprintf("%d-%d", w, i)))
				if err != nil {
					errs[w] = err
					return
				}
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		t.Fatalf("concurrent writes failed: %v", err)
	}
	seen := map[page.ID]bool{}
	for _, list := range ids {
		for _, id := range list {
			if seen[id] {
				t.Fatalf("id %d assigned twice", id)
			}
			seen[id] = true
		}
	}
	if got, want := len(seen), workers*perWorker; got != want {
		t.Errorf("unexpected number of ids, wanted %d, got %d", want, got)
	}
}

func testProvidesMemoryFootprint(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	writePages(t, file, 10)
	footprint := file.GetMemoryFootprint()
	if footprint == nil {
		t.Fatalf("missing memory footprint")
	}
	if footprint.Total() == 0 {
		t.Errorf("memory footprint should not be empty")
	}
}

func testCanLogStatistics(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	writePages(t, file, 3)
	file.LogStatistics()
}

func testCanBeFlushed(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	defer file.Close()
	writePages(t, file, 3)
	if err := file.Flush(); err != nil {
		t.Errorf("failed to flush page file: %v", err)
	}
}

func testOperationsFailAfterClose(t *testing.T, factory NamedPageFileFactory) {
	file := openInitialized(t, factory, t.TempDir())
	writePages(t, file, 3)
	if err := file.Close(); err != nil {
		t.Fatalf("failed to close page file: %v", err)
	}
	if _, err := file.WritePage(NewTestPage("a")); !errors.Is(err, common.ErrClosed) {
		t.Errorf("write after close should fail, got %v", err)
	}
	if _, _, err := file.ReadPage(0); !errors.Is(err, common.ErrClosed) {
		t.Errorf("read after close should fail, got %v", err)
	}
	if err := file.DeletePage(0); !errors.Is(err, common.ErrClosed) {
		t.Errorf("delete after close should fail, got %v", err)
	}
	if err := file.Clear(); !errors.Is(err, common.ErrClosed) {
		t.Errorf("clear after close should fail, got %v", err)
	}
	if _, err := file.Initialize(page.NewDefaultHeader(TestPageSize)); !errors.Is(err, common.ErrClosed) {
		t.Errorf("initialization after close should fail, got %v", err)
	}
}

func testCanBeClosedAndReopened(t *testing.T, factory NamedPageFileFactory) {
	dir := t.TempDir()
	file := openInitialized(t, factory, dir)
	ids := writePages(t, file, 8)
	if err := file.DeletePage(5); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if err := file.DeletePage(7); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("failed to close page file: %v", err)
	}

	file, err := factory.Open(t, dir)
	if err != nil {
		t.Fatalf("failed to reopen page file: %v", err)
	}
	defer file.Close()
	existed, err := file.Initialize(page.NewDefaultHeader(TestPageSize))
	if err != nil {
		t.Fatalf("failed to initialize reopened page file: %v", err)
	}
	if !existed {
		t.Errorf("reopened page file should report existing content")
	}
	if got, want := file.NextPageID(), page.ID(8); got != want {
		t.Errorf("next page id not restored, wanted %d, got %d", want, got)
	}
	for i, id := range ids {
		p, found, err := file.ReadPage(id)
		if err != nil {
			t.Fatalf("failed to read page %d: %v", id, err)
		}
		if id == 5 || id == 7 {
			if found {
				t.Errorf("deleted page %d should stay absent", id)
			}
			continue
		}
		if !found {
			t.Fatalf("page %d lost on reopen", id)
		}
		if got, want := string(p.Payload), fmt.Sprintf("page-%d", i); got != want {
			t.Errorf("unexpected payload of page %d, wanted %s, got %s", id, want, got)
		}
	}
	for _, want := range []page.ID{7, 5, 8} {
		got, err := file.SetPageID(NewTestPage(""))
		if err != nil {
			t.Fatalf("failed to assign id: %v", err)
		}
		if got != want {
			t.Errorf("unexpected id after reopen, wanted %d, got %d", want, got)
		}
	}
}
