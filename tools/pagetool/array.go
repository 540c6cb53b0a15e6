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
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/pagestore/backend/ondisk"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	magicFlag = cli.IntFlag{
		Name:  "magic",
		Usage: "format specific magic number of the file",
		Value: 0,
	}
	extraHeaderFlag = cli.IntFlag{
		Name:  "extra-header",
		Usage: "size of the caller defined header in bytes",
		Value: 0,
	}
	recordSizeFlag = cli.IntFlag{
		Name:  "record-size",
		Usage: "size of a single record in bytes",
		Value: 8,
	}
	recordsFlag = cli.IntFlag{
		Name:     "records",
		Usage:    "number of records",
		Required: true,
	}
)

var Info = cli.Command{
	Action:    info,
	Name:      "info",
	Usage:     "prints the header of an on-disk array file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&magicFlag,
		&extraHeaderFlag,
	},
}

var Create = cli.Command{
	Action:    create,
	Name:      "create",
	Usage:     "creates an on-disk array file of zero-filled records",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&magicFlag,
		&extraHeaderFlag,
		&recordSizeFlag,
		&recordsFlag,
	},
}

var Resize = cli.Command{
	Action:    resize,
	Name:      "resize",
	Usage:     "changes the number of records of an on-disk array file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&magicFlag,
		&extraHeaderFlag,
		&recordsFlag,
	},
}

func info(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	array, err := ondisk.OpenArrayDiscover(path,
		int32(context.Int(magicFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		false,
	)
	if err != nil {
		return err
	}
	defer array.Close()

	extra, err := array.ExtraHeader()
	if err != nil {
		return err
	}
	out := context.App.Writer
	fmt.Fprintf(out, "File %s contains an on-disk array with the following properties:\n", path)
	fmt.Fprintf(out, "\tHeader size:  %d\n", array.HeaderSize())
	fmt.Fprintf(out, "\tRecord size:  %d\n", array.RecordSize())
	fmt.Fprintf(out, "\tRecords:      %d\n", array.NumRecords())
	fmt.Fprintf(out, "\tExtra header: %s\n", hex.EncodeToString(extra))
	fmt.Fprintf(out, "\tMemory:       %v\n", array.GetMemoryFootprint().Total())
	return nil
}

func create(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	logger, err := newLogger(context)
	if err != nil {
		return err
	}
	array, err := ondisk.CreateArray(path,
		int32(context.Int(magicFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		int32(context.Int(recordSizeFlag.Name)),
		int32(context.Int(recordsFlag.Name)),
	)
	if err != nil {
		return err
	}
	logger.Info("created array", zap.String("path", path), zap.Int32("records", array.NumRecords()))
	return array.Close()
}

func resize(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	logger, err := newLogger(context)
	if err != nil {
		return err
	}
	array, err := ondisk.OpenArrayDiscover(path,
		int32(context.Int(magicFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		true,
	)
	if err != nil {
		return err
	}
	before := array.NumRecords()
	if err := array.Resize(int32(context.Int(recordsFlag.Name))); err != nil {
		return errors.Join(err, array.Close())
	}
	logger.Info("resized array", zap.String("path", path), zap.Int32("from", before), zap.Int32("to", array.NumRecords()))
	return array.Close()
}
