// Command d1c generates typed Go query accessors from the annotated SQL
// files in internal/sqlqueries. It replays the real migration set into a
// throwaway in-memory database to infer result-column shape, so the
// generated code is only ever as stale as the schema itself.
//
// Usage:
//
//	go run ./cmd/d1c [-in DIR] [-out DIR] [-pkg NAME]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pulseward/pulseward/internal/d1c/analyzer"
	"github.com/pulseward/pulseward/internal/d1c/generator"
	"github.com/pulseward/pulseward/internal/d1c/parser"
	"github.com/pulseward/pulseward/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr *os.File) int {
	fs := flag.NewFlagSet("d1c", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inDir := fs.String("in", "internal/sqlqueries", "directory of annotated .sql files")
	outDir := fs.String("out", "internal/store/queries", "directory to write generated Go files into")
	pkgName := fs.String("pkg", "queries", "package name for generated files")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := generateAll(*inDir, *outDir, *pkgName); err != nil {
		fmt.Fprintf(stderr, "d1c: %v\n", err)
		return 1
	}
	return 0
}

func generateAll(inDir, outDir, pkgName string) error {
	ctx := context.Background()

	files, err := readSQLFiles(inDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", inDir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no .sql files found in %s", inDir)
	}

	schema, err := openSchema(ctx)
	if err != nil {
		return fmt.Errorf("open schema: %w", err)
	}
	defer func() { _ = schema.Close() }()

	for name, src := range files {
		f, err := parser.Parse(name, src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}

		analyzed := make([]analyzer.Analyzed, len(f.Queries))
		for i, q := range f.Queries {
			a, err := schema.Analyze(ctx, q)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", name, err)
			}
			analyzed[i] = a
		}

		out, err := generator.Generate(pkgName, f, analyzed)
		if err != nil {
			return fmt.Errorf("generate %s: %w", name, err)
		}

		outPath := filepath.Join(outDir, f.Name+"_gen.go")
		if err := os.WriteFile(outPath, out, 0o644); err != nil { //nolint:gosec // generated source, not sensitive
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(os.Stdout, "d1c: wrote %s (%d queries)\n", outPath, len(f.Queries))
	}
	return nil
}

func readSQLFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = string(data)
	}
	return out, nil
}

func openSchema(ctx context.Context) (*analyzer.Schema, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	migrations, err := store.LoadMigrations()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	schema, err := analyzer.OpenSchema(ctx, db, migrations)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return schema, nil
}
