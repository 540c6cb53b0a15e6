// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Fantom-foundation/pagestore/backend/ondisk"
	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/factory"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"pagetool", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestTool_CreateAndInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "array.dat")
	if _, err := run(t, "create", "--magic", "7", "--extra-header", "4", "--record-size", "32", "--records", "10", path); err != nil {
		t.Fatalf("failed to create array: %v", err)
	}
	out, err := run(t, "info", "--magic", "7", "--extra-header", "4", path)
	if err != nil {
		t.Fatalf("failed to print info: %v", err)
	}
	for _, want := range []string{"Header size:  20", "Record size:  32", "Records:      10", "Extra header: 00000000"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestTool_InfoRejectsWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "array.dat")
	if _, err := run(t, "create", "--magic", "7", "--records", "1", path); err != nil {
		t.Fatalf("failed to create array: %v", err)
	}
	if _, err := run(t, "info", "--magic", "8", path); !errors.Is(err, ondisk.ErrFormat) {
		t.Errorf("wrong magic should be reported, got %v", err)
	}
}

func TestTool_Resize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "array.dat")
	if _, err := run(t, "create", "--records", "2", path); err != nil {
		t.Fatalf("failed to create array: %v", err)
	}
	if _, err := run(t, "resize", "--records", "12", path); err != nil {
		t.Fatalf("failed to resize array: %v", err)
	}
	array, err := ondisk.OpenArray(path, 0, 0, 8, false)
	if err != nil {
		t.Fatalf("failed to open array: %v", err)
	}
	defer array.Close()
	if got := array.NumRecords(); got != 12 {
		t.Errorf("unexpected number of records %d", got)
	}
}

func TestTool_MissingArgumentIsReported(t *testing.T) {
	if _, err := run(t, "info"); err == nil {
		t.Errorf("missing file argument should be reported")
	}
}

func TestTool_MatrixCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.dat")
	if _, err := run(t, "matrix-create", "--seed", "3", "--record-size", "4", "--size", "5", path); err != nil {
		t.Fatalf("failed to create matrix: %v", err)
	}
	if _, err := run(t, "matrix-resize", "--seed", "3", "--record-size", "4", "--size", "7", path); err != nil {
		t.Fatalf("failed to resize matrix: %v", err)
	}
	out, err := run(t, "matrix-info", "--seed", "3", "--record-size", "4", path)
	if err != nil {
		t.Fatalf("failed to print matrix info: %v", err)
	}
	for _, want := range []string{"Size:         7", "Cells:        28"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestTool_MatrixResizeChecksCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.dat")
	if _, err := run(t, "matrix-create", "--size", "2", path); err != nil {
		t.Fatalf("failed to create matrix: %v", err)
	}
	if _, err := run(t, "matrix-resize", "--size", "70000", path); !errors.Is(err, ondisk.ErrCapacity) {
		t.Errorf("oversized matrix should be rejected, got %v", err)
	}
}

func TestTool_PagesListsStoredPages(t *testing.T) {
	for _, variant := range []factory.Variant{factory.FileVariant, factory.LevelDbVariant} {
		t.Run(string(variant), func(t *testing.T) {
			dir := t.TempDir()
			params := factory.Parameters{Variant: variant, Directory: dir, PageSize: pagefile.TestPageSize}
			pf, err := factory.NewPageFile(params, func() *pagefile.TestPage { return &pagefile.TestPage{} })
			if err != nil {
				t.Fatalf("failed to create page file: %v", err)
			}
			if _, err := pf.Initialize(params.Header()); err != nil {
				t.Fatalf("failed to initialize: %v", err)
			}
			for i := 0; i < 4; i++ {
				if _, err := pf.WritePage(pagefile.NewTestPage("x")); err != nil {
					t.Fatalf("failed to write page: %v", err)
				}
			}
			if err := pf.DeletePage(1); err != nil {
				t.Fatalf("failed to delete page: %v", err)
			}
			if err := pf.Close(); err != nil {
				t.Fatalf("failed to close: %v", err)
			}

			for _, args := range [][]string{
				{"pages", "--variant", string(variant), dir},
				{"pages", "--variant", string(variant), "--cache-size", "128", dir},
			} {
				out, err := run(t, args...)
				if err != nil {
					t.Fatalf("failed to list pages: %v", err)
				}
				for _, want := range []string{"Page size:    64", "Next page ID: 4", "Stored pages: 3"} {
					if !strings.Contains(out, want) {
						t.Errorf("missing %q in output of %v:\n%s", want, args, out)
					}
				}
			}
		})
	}
}

func TestTool_PagesDoesNotCreatePageFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "pages", dir); err == nil {
		t.Errorf("inspecting an empty directory should fail")
	}
	if err := checkPageFileExists(factory.FileVariant, dir); err == nil {
		t.Errorf("no page file should have been created")
	}
	if _, err := run(t, "pages", "--variant", "memory", dir); err == nil {
		t.Errorf("memory page files can not be inspected")
	}
}

func TestRawPage_KeepsBytes(t *testing.T) {
	p := &rawPage{}
	if err := p.FromBytes([]byte{1, 2, 3}); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	buffer := make([]byte, 4)
	if err := p.ToBytes(buffer); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if !bytes.Equal(buffer, []byte{1, 2, 3, 0}) {
		t.Errorf("unexpected bytes %v", buffer)
	}
	var _ page.Serializable = p
}
