// Package generator renders analyzed queries into Go source: one row
// struct and one accessor function per query, grouped into a file per
// annotated .sql source. Output is meant to be committed, not built on
// the fly — cmd/d1c is a development-time tool, and the generated code
// it produces has no dependency on d1c itself.
package generator

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/pulseward/pulseward/internal/d1c/analyzer"
	"github.com/pulseward/pulseward/internal/d1c/parser"
)

// Generate renders every analyzed query in f into one Go source file in
// package pkgName. analyzed must be in the same order as f.Queries.
func Generate(pkgName string, f parser.File, analyzed []analyzer.Analyzed) ([]byte, error) {
	if len(analyzed) != len(f.Queries) {
		return nil, fmt.Errorf("generate %s: %d queries but %d analyzed results", f.Name, len(f.Queries), len(analyzed))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by cmd/d1c from %s.sql. DO NOT EDIT.\n\n", f.Name)
	fmt.Fprintf(&buf, "package %s\n\n", pkgName)

	imports := collectImports(analyzed)
	writeImportBlock(&buf, imports)

	for _, a := range analyzed {
		if a.Query.Cardinality == parser.Scalar && len(a.Columns) != 1 {
			return nil, fmt.Errorf("generate %s: query %s is :scalar but projects %d columns, want 1", f.Name, a.Query.Name, len(a.Columns))
		}
		if a.Query.Cardinality == parser.One || a.Query.Cardinality == parser.Many {
			writeRowStruct(&buf, a)
		}
		writeAccessor(&buf, a)
		if a.Query.Stmt {
			writePrepare(&buf, a)
		}
	}

	return buf.Bytes(), nil
}

func collectImports(analyzed []analyzer.Analyzed) []string {
	set := map[string]bool{"context": true}
	for _, a := range analyzed {
		for _, c := range a.Columns {
			if c.ScanImport != "" {
				set[c.ScanImport] = true
			}
		}
		if a.Query.Stmt {
			set["database/sql"] = true
		}
		if !a.Query.Instrument.SkipAll {
			set["log/slog"] = true
			set["time"] = true
		}
	}
	var out []string
	for imp, used := range set {
		if used {
			out = append(out, imp)
		}
	}
	sort.Strings(out)
	return out
}

func writeImportBlock(buf *bytes.Buffer, imports []string) {
	if len(imports) == 0 {
		return
	}
	buf.WriteString("import (\n")
	for _, imp := range imports {
		fmt.Fprintf(buf, "\t%q\n", imp)
	}
	buf.WriteString(")\n\n")
}

func rowTypeName(queryName string) string {
	return queryName + "Row"
}

func writeRowStruct(buf *bytes.Buffer, a analyzer.Analyzed) {
	fmt.Fprintf(buf, "type %s struct {\n", rowTypeName(a.Query.Name))
	for _, c := range a.Columns {
		fmt.Fprintf(buf, "\t%s %s\n", exportedFieldName(c.Name), c.GoType)
	}
	buf.WriteString("}\n\n")
}

func writeAccessor(buf *bytes.Buffer, a analyzer.Analyzed) {
	params := funcParams(a.Binds)
	callArgs := funcCallArgs(a.Binds)

	switch a.Query.Cardinality {
	case parser.One:
		rowType := rowTypeName(a.Query.Name)
		fmt.Fprintf(buf, "func %s(ctx context.Context, db Queryer%s) (%s, error) {\n", a.Query.Name, params, rowType)
		writeInstrumentPrelude(buf, a)
		fmt.Fprintf(buf, "\trow := db.QueryRowContext(ctx, %s%s)\n", sqlConstName(a.Query.Name), callArgs)
		fmt.Fprintf(buf, "\tvar r %s\n", rowType)
		fmt.Fprintf(buf, "\terr := row.Scan(%s)\n", scanArgs(a.Columns))
		buf.WriteString("\treturn r, err\n")
		buf.WriteString("}\n\n")

	case parser.Many:
		rowType := rowTypeName(a.Query.Name)
		fmt.Fprintf(buf, "func %s(ctx context.Context, db Queryer%s) ([]%s, error) {\n", a.Query.Name, params, rowType)
		writeInstrumentPrelude(buf, a)
		fmt.Fprintf(buf, "\trows, err := db.QueryContext(ctx, %s%s)\n", sqlConstName(a.Query.Name), callArgs)
		buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		buf.WriteString("\tdefer func() { _ = rows.Close() }()\n\n")
		fmt.Fprintf(buf, "\tvar out []%s\n", rowType)
		buf.WriteString("\tfor rows.Next() {\n")
		fmt.Fprintf(buf, "\t\tvar r %s\n", rowType)
		fmt.Fprintf(buf, "\t\tif err := rows.Scan(%s); err != nil {\n\t\t\treturn nil, err\n\t\t}\n", scanArgs(a.Columns))
		buf.WriteString("\t\tout = append(out, r)\n")
		buf.WriteString("\t}\n")
		buf.WriteString("\treturn out, rows.Err()\n")
		buf.WriteString("}\n\n")

	case parser.Exec:
		fmt.Fprintf(buf, "func %s(ctx context.Context, db Queryer%s) error {\n", a.Query.Name, params)
		writeInstrumentPrelude(buf, a)
		fmt.Fprintf(buf, "\t_, err := db.ExecContext(ctx, %s%s)\n", sqlConstName(a.Query.Name), callArgs)
		buf.WriteString("\treturn err\n")
		buf.WriteString("}\n\n")

	case parser.Scalar:
		// Generate has already rejected any :scalar query that doesn't
		// project exactly one column.
		scalarType := a.Columns[0].GoType
		fmt.Fprintf(buf, "func %s(ctx context.Context, db Queryer%s) (%s, error) {\n", a.Query.Name, params, scalarType)
		writeInstrumentPrelude(buf, a)
		fmt.Fprintf(buf, "\tvar v %s\n", scalarType)
		fmt.Fprintf(buf, "\terr := db.QueryRowContext(ctx, %s%s).Scan(&v)\n", sqlConstName(a.Query.Name), callArgs)
		buf.WriteString("\treturn v, err\n")
		buf.WriteString("}\n\n")
	}

	fmt.Fprintf(buf, "const %s = `%s`\n\n", sqlConstName(a.Query.Name), a.SQL)
}

// writeInstrumentPrelude emits a deferred slog.Debug call tracing the
// query's duration and bind values, honoring the `-- instrument:`
// header: skip_all disables it entirely, skip(name, ...) omits just
// those bind values from the logged fields (for parameters a caller
// wouldn't want echoed into logs).
func writeInstrumentPrelude(buf *bytes.Buffer, a analyzer.Analyzed) {
	if a.Query.Instrument.SkipAll {
		return
	}
	skip := make(map[string]bool, len(a.Query.Instrument.Skip))
	for _, n := range a.Query.Instrument.Skip {
		skip[n] = true
	}
	var fields strings.Builder
	for _, b := range a.Binds {
		if skip[b.Name] {
			continue
		}
		fmt.Fprintf(&fields, ", %q, %s", b.Name, lowerCamel(b.Name))
	}
	buf.WriteString("\tstart := time.Now()\n")
	fmt.Fprintf(buf, "\tdefer func() { slog.Debug(\"d1c query\", \"query\", %q, \"duration\", time.Since(start)%s) }()\n",
		a.Query.Name, fields.String())
}

func writePrepare(buf *bytes.Buffer, a analyzer.Analyzed) {
	fmt.Fprintf(buf, "// Prepare%s prepares %s for reuse across calls.\n", a.Query.Name, a.Query.Name)
	fmt.Fprintf(buf, "func Prepare%s(ctx context.Context, db *sql.DB) (*sql.Stmt, error) {\n", a.Query.Name)
	fmt.Fprintf(buf, "\treturn db.PrepareContext(ctx, %s)\n", sqlConstName(a.Query.Name))
	buf.WriteString("}\n\n")
}

func sqlConstName(queryName string) string {
	return "sql" + queryName
}

func funcParams(binds []analyzer.Bind) string {
	var b strings.Builder
	for _, bind := range binds {
		fmt.Fprintf(&b, ", %s %s", lowerCamel(bind.Name), bind.GoType)
	}
	return b.String()
}

func funcCallArgs(binds []analyzer.Bind) string {
	var b strings.Builder
	for _, bind := range binds {
		fmt.Fprintf(&b, ", %s", lowerCamel(bind.Name))
	}
	return b.String()
}

func scanArgs(cols []analyzer.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "&r." + exportedFieldName(c.Name)
	}
	return strings.Join(parts, ", ")
}

// exportedFieldName turns a snake_case column name into an exported Go
// identifier, e.g. "org_id" -> "OrgID", "rt_ms" -> "RTMs".
func exportedFieldName(col string) string {
	parts := strings.Split(col, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if up := strings.ToUpper(p); initialisms[up] {
			b.WriteString(up)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		if len(p) > 1 {
			b.WriteString(p[1:])
		}
	}
	return b.String()
}

var initialisms = map[string]bool{
	"ID": true, "URL": true, "RT": true, "AE": true, "TLS": true,
}

func lowerCamel(name string) string {
	exported := exportedFieldName(name)
	if exported == "" {
		return exported
	}
	if up := strings.ToUpper(strings.SplitN(name, "_", 2)[0]); initialisms[up] && strings.HasPrefix(exported, up) {
		return strings.ToLower(up) + exported[len(up):]
	}
	r := []rune(exported)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
