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
	"fmt"
	"os"

	"github.com/Fantom-foundation/pagestore/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Run using
//  go run ./tools/pagetool <command> <flags>

var (
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "minimum level of log messages (debug, info, warn, error)",
		Value: "warn",
	}
	logFormatFlag = cli.StringFlag{
		Name:  "log-format",
		Usage: "format of log messages (json, console)",
		Value: "console",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "pagetool",
		Usage:     "toolbox for page files and on-disk arrays",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: []cli.Flag{
			&logLevelFlag,
			&logFormatFlag,
		},
		Commands: []*cli.Command{
			&Info,
			&Create,
			&Resize,
			&MatrixCreate,
			&MatrixInfo,
			&MatrixResize,
			&Pages,
		},
	}
}

func newLogger(context *cli.Context) (*zap.Logger, error) {
	return common.NewLogger(common.LogConfig{
		Level:  context.String(logLevelFlag.Name),
		Format: context.String(logFormatFlag.Name),
		Output: "stderr",
	})
}

func fileArgument(context *cli.Context) (string, error) {
	if context.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one file argument, got %d", context.Args().Len())
	}
	return context.Args().Get(0), nil
}
