package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseVectorComparison(t *testing.T) {
	q, err := ParseVectorQuery("cell @ age > 1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lookup, ok := q.Source.(*VectorLookup)
	if !ok {
		t.Fatalf("expected VectorLookup source, got %T", q.Source)
	}
	if lookup.Axis.Axis != "cell" {
		t.Errorf("expected axis cell, got %q", lookup.Axis.Axis)
	}
	if got := lookup.Lookup.Property.Names; len(got) != 1 || got[0] != "age" {
		t.Errorf("expected property [age], got %v", got)
	}
	if lookup.Lookup.Cmp == nil || lookup.Lookup.Cmp.Op != CmpGreater || lookup.Lookup.Cmp.Literal != "1" {
		t.Errorf("unexpected comparison: %+v", lookup.Lookup.Cmp)
	}
}

func TestParseMatrixSeparators(t *testing.T) {
	rowMajor, err := ParseMatrixQuery("cell , gene @ UMIs")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rowMajor.Lookup.ColMajor {
		t.Error("',' should request the row-major layout")
	}
	colMajor, err := ParseMatrixQuery("gene ; gene @ weight")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !colMajor.Lookup.ColMajor {
		t.Error("';' should request the column-major layout")
	}
	if colMajor.Lookup.Rows.Axis != "gene" || colMajor.Lookup.Cols.Axis != "gene" {
		t.Errorf("unexpected axes: %+v", colMajor.Lookup)
	}
}

func TestParseChainedLookup(t *testing.T) {
	q, err := ParseVectorQuery("cell @ batch : age")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lookup := q.Source.(*VectorLookup)
	if got := lookup.Lookup.Property.Names; !reflect.DeepEqual(got, []string{"batch", "age"}) {
		t.Errorf("expected chain [batch age], got %v", got)
	}
	if lookup.Lookup.Property.Tolerant {
		t.Error("':' chain should not be tolerant")
	}

	q, err = ParseVectorQuery("cell @ batch ?: age")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !q.Source.(*VectorLookup).Lookup.Property.Tolerant {
		t.Error("'?:' chain should be tolerant")
	}
}

func TestParseSliceAndEntryLookups(t *testing.T) {
	vq, err := ParseVectorQuery("cell = c1 , gene @ UMIs")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	slice, ok := vq.Source.(*MatrixSliceLookup)
	if !ok {
		t.Fatalf("expected MatrixSliceLookup, got %T", vq.Source)
	}
	if !slice.SliceRows || slice.SliceAxis != "cell" || slice.Entry != "c1" || slice.Other.Axis != "gene" {
		t.Errorf("unexpected slice: %+v", slice)
	}

	sq, err := ParseScalarQuery("cell = c1 @ age")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ventry, ok := sq.Source.(*VectorEntryLookup)
	if !ok {
		t.Fatalf("expected VectorEntryLookup, got %T", sq.Source)
	}
	if ventry.Axis != "cell" || ventry.Entry != "c1" {
		t.Errorf("unexpected entry lookup: %+v", ventry)
	}

	sq, err = ParseScalarQuery("cell = c1 , gene = g2 @ UMIs")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	mentry, ok := sq.Source.(*MatrixEntryLookup)
	if !ok {
		t.Fatalf("expected MatrixEntryLookup, got %T", sq.Source)
	}
	if mentry.RowEntry != "c1" || mentry.ColEntry != "g2" || mentry.Name != "UMIs" {
		t.Errorf("unexpected matrix entry lookup: %+v", mentry)
	}
}

func TestParseOperations(t *testing.T) {
	sq, err := ParseScalarQuery("cell @ age % log ; base = 2 , eps = 1e-5 %> mean")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	red, ok := sq.Source.(*VectorReduction)
	if !ok {
		t.Fatalf("expected VectorReduction, got %T", sq.Source)
	}
	if red.Op.Name != "mean" || !red.Op.Reduce {
		t.Errorf("unexpected reduction: %+v", red.Op)
	}
	if len(red.Vector.Ops) != 1 {
		t.Fatalf("expected one element-wise op, got %d", len(red.Vector.Ops))
	}
	log := red.Vector.Ops[0]
	if log.Name != "log" || log.Params["base"] != 2 || log.Params["eps"] != 1e-5 {
		t.Errorf("unexpected log op: %+v", log)
	}

	mq, err := ParseVectorQuery("cell , gene @ UMIs % abs %> sum % sqrt")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	mred, ok := mq.Source.(*MatrixReduction)
	if !ok {
		t.Fatalf("expected MatrixReduction, got %T", mq.Source)
	}
	if len(mred.Matrix.Ops) != 1 || mred.Matrix.Ops[0].Name != "abs" {
		t.Errorf("unexpected matrix ops: %+v", mred.Matrix.Ops)
	}
	if mred.Op.Name != "sum" {
		t.Errorf("expected sum reduction, got %q", mred.Op.Name)
	}
	if len(mq.Ops) != 1 || mq.Ops[0].Name != "sqrt" {
		t.Errorf("unexpected vector ops: %+v", mq.Ops)
	}
}

func TestParseOperationErrors(t *testing.T) {
	cases := []struct {
		query string
		want  error
	}{
		{"cell @ age % nosuch", ErrUnknownOperation},
		{"cell @ age %> log", ErrUnknownOperation},
		{"cell @ age % log ; nope = 1", ErrInvalidParameter},
		{"cell @ age % log ; base = 2 , base = 3", ErrInvalidParameter},
		{"cell @ age % log ; base = x", ErrInvalidParameter},
	}
	for _, tc := range cases {
		_, err := ParseVectorQuery(tc.query)
		if !errors.Is(err, tc.want) {
			t.Errorf("%q: expected %v, got %v", tc.query, tc.want, err)
		}
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	cases := []string{
		"",
		"   # only a comment",
		"cell gene @ x",
		"cell @ @ x",
		"cell , gene @ x %> sum",     // matrix query cannot reduce
		"cell , gene @ x : y",        // matrix name must be a single token
		"cell @ age !",               // dangling operator character
		"cell , gene @ x % log ~ 2",  // malformed parameter list
		"~ cell @ x , gene @ y",      // inversion outside a lookup
	}
	for _, q := range cases {
		if _, err := ParseMatrixQuery(q); err == nil {
			t.Errorf("%q: expected a parse error", q)
		}
	}
	if _, err := ParseMatrixQuery(" \t# nothing\n"); !errors.Is(err, ErrEmptyQuery) {
		t.Error("expected ErrEmptyQuery for comment-only input")
	}
	_, err := ParseVectorQuery("cell gene @ x")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Token != "gene" {
		t.Errorf("expected offending token gene, got %q", pe.Token)
	}
}

func TestCanonicalNormalization(t *testing.T) {
	pairs := [][2]string{
		{"cell@age>1", "  cell @ age   > 1  # trailing comment"},
		{"cell & a > 1 & b > 1 @ x", "cell & b > 1 & a > 1 @ x"},
		{"cell & a > 1 | c @ x", "cell & a > 1 | c @ x"},
		{"cell,gene@UMIs%log;base=2", "cell , gene @ UMIs # layout\n % log ; base = 2"},
	}
	for _, pair := range pairs {
		a, err := ParseVectorQuery(pair[0])
		if err != nil {
			a2, err2 := ParseMatrixQuery(pair[0])
			b2, err3 := ParseMatrixQuery(pair[1])
			if err2 != nil || err3 != nil {
				t.Fatalf("parse failed: %v / %v / %v", err, err2, err3)
			}
			if a2.String() != b2.String() {
				t.Errorf("canonical mismatch: %q vs %q", a2.String(), b2.String())
			}
			continue
		}
		b, err := ParseVectorQuery(pair[1])
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if a.String() != b.String() {
			t.Errorf("canonical mismatch: %q vs %q", a.String(), b.String())
		}
	}
}

func TestCanonicalSortsOnlySameCombinatorRuns(t *testing.T) {
	// & and | runs must not be merged: only same-combinator runs reorder.
	a, err := ParseVectorQuery("cell & b & a | d | c & f & e @ x")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := "cell & a & b | c | d & e & f @ x"
	if a.String() != want {
		t.Errorf("expected %q, got %q", want, a.String())
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	vectorQueries := []string{
		"cell @ age",
		"cell @ age > 1",
		"cell & ~ excluded @ batch : age",
		"cell @ batch ?: age",
		"cell = c1 , gene @ UMIs",
		"gene , cell = c1 @ UMIs",
		"cell , gene @ UMIs % abs %> sum % sqrt",
		"cell & type = T | special ^ age >= 21 @ name ~ B.+",
		"cell @ age % log ; base = 2 , eps = 1e-5",
	}
	for _, raw := range vectorQueries {
		first, err := ParseVectorQuery(raw)
		if err != nil {
			t.Fatalf("%q: parse failed: %v", raw, err)
		}
		second, err := ParseVectorQuery(first.String())
		if err != nil {
			t.Fatalf("%q: canonical %q failed to reparse: %v", raw, first.String(), err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%q: round trip mismatch:\n  first:  %#v\n  second: %#v", raw, first, second)
		}
		if first.String() != second.String() {
			t.Errorf("%q: canonical form unstable: %q vs %q", raw, first.String(), second.String())
		}
	}

	matrixQueries := []string{
		"cell , gene @ UMIs",
		"gene ; gene @ weight",
		"cell & type = T , gene & marker @ UMIs % fraction",
	}
	for _, raw := range matrixQueries {
		first, err := ParseMatrixQuery(raw)
		if err != nil {
			t.Fatalf("%q: parse failed: %v", raw, err)
		}
		second, err := ParseMatrixQuery(first.String())
		if err != nil {
			t.Fatalf("%q: canonical %q failed to reparse: %v", raw, first.String(), err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%q: round trip mismatch", raw)
		}
	}

	scalarQueries := []string{
		"total_umis",
		"cell = c1 @ age",
		"cell = c1 , gene = g2 @ UMIs",
		"cell , gene @ UMIs %> sum %> mean",
		"cell @ age %> quantile ; q = 0.9",
	}
	for _, raw := range scalarQueries {
		first, err := ParseScalarQuery(raw)
		if err != nil {
			t.Fatalf("%q: parse failed: %v", raw, err)
		}
		second, err := ParseScalarQuery(first.String())
		if err != nil {
			t.Fatalf("%q: canonical %q failed to reparse: %v", raw, first.String(), err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%q: round trip mismatch", raw)
		}
	}
}

func TestEscapedTokens(t *testing.T) {
	q, err := ParseVectorQuery(`cell @ weird\:name`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lookup := q.Source.(*VectorLookup)
	if got := lookup.Lookup.Property.Names[0]; got != "weird:name" {
		t.Errorf("expected literal colon in name, got %q", got)
	}
	canonical := q.String()
	if canonical != `cell @ weird\:name` {
		t.Errorf("expected canonical re-escape, got %q", canonical)
	}
	if _, err := ParseVectorQuery(canonical); err != nil {
		t.Errorf("canonical failed to reparse: %v", err)
	}

	q, err = ParseVectorQuery(`cell @ a\#b`)
	if err != nil {
		t.Fatalf("escaped comment character should parse: %v", err)
	}
	if got := q.Source.(*VectorLookup).Lookup.Property.Names[0]; got != "a#b" {
		t.Errorf("expected a#b, got %q", got)
	}
}
