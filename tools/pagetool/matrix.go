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
	"errors"
	"fmt"

	"github.com/Fantom-foundation/pagestore/backend/ondisk"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	seedFlag = cli.IntFlag{
		Name:  "seed",
		Usage: "magic seed of the matrix file",
		Value: 0,
	}
	sizeFlag = cli.IntFlag{
		Name:     "size",
		Usage:    "number of rows and columns of the matrix",
		Required: true,
	}
)

var MatrixCreate = cli.Command{
	Action:    matrixCreate,
	Name:      "matrix-create",
	Usage:     "creates an upper triangle matrix file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&seedFlag,
		&extraHeaderFlag,
		&recordSizeFlag,
		&sizeFlag,
	},
}

var MatrixInfo = cli.Command{
	Action:    matrixInfo,
	Name:      "matrix-info",
	Usage:     "prints the properties of an upper triangle matrix file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&seedFlag,
		&extraHeaderFlag,
		&recordSizeFlag,
	},
}

var MatrixResize = cli.Command{
	Action:    matrixResize,
	Name:      "matrix-resize",
	Usage:     "changes the size of an upper triangle matrix file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&seedFlag,
		&extraHeaderFlag,
		&recordSizeFlag,
		&sizeFlag,
	},
}

func matrixCreate(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	logger, err := newLogger(context)
	if err != nil {
		return err
	}
	matrix, err := ondisk.CreateUpperTriangleMatrix(path,
		int32(context.Int(seedFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		int32(context.Int(recordSizeFlag.Name)),
		int32(context.Int(sizeFlag.Name)),
	)
	if err != nil {
		return err
	}
	logger.Info("created matrix", zap.String("path", path), zap.Int32("size", matrix.MatrixSize()))
	return matrix.Close()
}

func matrixInfo(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	matrix, err := ondisk.OpenUpperTriangleMatrix(path,
		int32(context.Int(seedFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		int32(context.Int(recordSizeFlag.Name)),
		false,
	)
	if err != nil {
		return err
	}
	defer matrix.Close()

	out := context.App.Writer
	fmt.Fprintf(out, "File %s contains an upper triangle matrix with the following properties:\n", path)
	fmt.Fprintf(out, "\tSize:         %d\n", matrix.MatrixSize())
	fmt.Fprintf(out, "\tCells:        %d\n", ondisk.TriangleSize(matrix.MatrixSize()))
	fmt.Fprintf(out, "\tRecord size:  %d\n", matrix.RecordSize())
	return nil
}

func matrixResize(context *cli.Context) error {
	path, err := fileArgument(context)
	if err != nil {
		return err
	}
	logger, err := newLogger(context)
	if err != nil {
		return err
	}
	matrix, err := ondisk.OpenUpperTriangleMatrix(path,
		int32(context.Int(seedFlag.Name)),
		int32(context.Int(extraHeaderFlag.Name)),
		int32(context.Int(recordSizeFlag.Name)),
		true,
	)
	if err != nil {
		return err
	}
	before := matrix.MatrixSize()
	if err := matrix.Resize(int32(context.Int(sizeFlag.Name))); err != nil {
		return errors.Join(err, matrix.Close())
	}
	logger.Info("resized matrix", zap.String("path", path), zap.Int32("from", before), zap.Int32("to", matrix.MatrixSize()))
	return matrix.Close()
}
