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
	"fmt"
	"os"
	"path/filepath"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/factory"
	"github.com/Fantom-foundation/pagestore/backend/pagefile/file"
	"github.com/urfave/cli/v2"
)

var variantFlag = cli.StringFlag{
	Name:  "variant",
	Usage: "page file variant (file, leveldb)",
	Value: string(factory.FileVariant),
}

var cacheSizeFlag = cli.IntFlag{
	Name:  "cache-size",
	Usage: "size of the page cache in bytes, 0 disables caching",
}

var Pages = cli.Command{
	Action:    pages,
	Name:      "pages",
	Usage:     "lists the pages stored in a page file directory",
	ArgsUsage: "<directory>",
	Flags: []cli.Flag{
		&variantFlag,
		&cacheSizeFlag,
	},
}

// rawPage keeps the stored bytes of a page uninterpreted.
type rawPage struct {
	page.Base
	data []byte
}

func (p *rawPage) ToBytes(trg []byte) error {
	copy(trg, p.data)
	return nil
}

func (p *rawPage) FromBytes(src []byte) error {
	p.data = bytes.Clone(src)
	return nil
}

func pages(context *cli.Context) (err error) {
	dir, err := fileArgument(context)
	if err != nil {
		return err
	}
	variant, err := factory.ParseVariant(context.String(variantFlag.Name))
	if err != nil {
		return err
	}
	if err := checkPageFileExists(variant, dir); err != nil {
		return err
	}
	logger, err := newLogger(context)
	if err != nil {
		return err
	}

	pf, err := factory.NewPageFile(factory.Parameters{
		Variant:    variant,
		Directory:  dir,
		CacheSize:  context.Int(cacheSizeFlag.Name),
		Statistics: true,
		Logger:     logger,
	}, func() *rawPage { return &rawPage{} })
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, pf.Close())
	}()

	header := page.NewDefaultHeader(1)
	existed, err := pf.Initialize(header)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("page file in %s has no metadata", dir)
	}

	out := context.App.Writer
	fmt.Fprintf(out, "Directory %s contains a %s page file with the following properties:\n", dir, variant)
	fmt.Fprintf(out, "\tPage size:    %d\n", pf.PageSize())
	fmt.Fprintf(out, "\tNext page ID: %d\n", pf.NextPageID())
	stored := 0
	for id := page.ID(0); id < pf.NextPageID(); id++ {
		_, found, err := pf.ReadPage(id)
		if err != nil {
			return err
		}
		if found {
			stored++
		}
	}
	fmt.Fprintf(out, "\tStored pages: %d\n", stored)
	pf.LogStatistics()
	return nil
}

// checkPageFileExists makes sure inspecting a directory does not create a
// new page file in it.
func checkPageFileExists(variant factory.Variant, dir string) error {
	var marker string
	switch variant {
	case factory.FileVariant:
		marker = file.FileName
	case factory.LevelDbVariant:
		marker = "CURRENT"
	case factory.MemoryVariant:
		return fmt.Errorf("memory page files can not be inspected")
	default:
		return fmt.Errorf("%w: unknown page file variant %q", factory.UnsupportedConfiguration, variant)
	}
	if _, err := os.Stat(filepath.Join(dir, marker)); err != nil {
		return fmt.Errorf("no %s page file found in %s: %w", variant, dir, err)
	}
	return nil
}
