package query

import (
	"sort"
	"strconv"
	"strings"
)

// CmpOp enumerates comparison operators.
type CmpOp int

const (
	CmpLess CmpOp = iota
	CmpLessEqual
	CmpEqual
	CmpNotEqual
	CmpGreaterEqual
	CmpGreater
	CmpMatch
	CmpNotMatch
)

func (op CmpOp) String() string {
	switch op {
	case CmpLess:
		return "<"
	case CmpLessEqual:
		return "<="
	case CmpEqual:
		return "="
	case CmpNotEqual:
		return "!="
	case CmpGreaterEqual:
		return ">="
	case CmpGreater:
		return ">"
	case CmpMatch:
		return "~"
	case CmpNotMatch:
		return "!~"
	}
	return "?"
}

var cmpOps = map[string]CmpOp{
	"<":  CmpLess,
	"<=": CmpLessEqual,
	"=":  CmpEqual,
	"!=": CmpNotEqual,
	">=": CmpGreaterEqual,
	">":  CmpGreater,
	"~":  CmpMatch,
	"!~": CmpNotMatch,
}

// Combinator enumerates boolean mask combinators for axis filters.
type Combinator int

const (
	CombAnd Combinator = iota
	CombOr
	CombXor
)

func (c Combinator) String() string {
	switch c {
	case CombAnd:
		return "&"
	case CombOr:
		return "|"
	case CombXor:
		return "^"
	}
	return "?"
}

// PropertyLookup is a chain of one or more property names. A chain of
// length n looks up the first property on the queried axis, then follows
// each value as an entry name of the axis inferred from the preceding
// property name. Tolerant chains fill missed entries with the property's
// zero value instead of failing.
type PropertyLookup struct {
	Names    []string
	Tolerant bool
}

func (p PropertyLookup) String() string {
	sep := " : "
	if p.Tolerant {
		sep = " ?: "
	}
	escaped := make([]string, len(p.Names))
	for i, name := range p.Names {
		escaped[i] = escapeToken(name)
	}
	return strings.Join(escaped, sep)
}

// PropertyComparison compares each looked-up value against a literal.
type PropertyComparison struct {
	Op      CmpOp
	Literal string
}

func (c PropertyComparison) String() string {
	return c.Op.String() + " " + escapeToken(c.Literal)
}

// AxisLookup resolves to one value per axis entry: either a property chain
// taken as-is, an inverted boolean property (~ prefix), or a comparison of
// the chain against a literal yielding a boolean mask.
type AxisLookup struct {
	Invert   bool
	Property PropertyLookup
	Cmp      *PropertyComparison
}

func (l AxisLookup) String() string {
	var b strings.Builder
	if l.Invert {
		b.WriteString("~ ")
	}
	b.WriteString(l.Property.String())
	if l.Cmp != nil {
		b.WriteString(" ")
		b.WriteString(l.Cmp.String())
	}
	return b.String()
}

// AxisFilter combines one AxisLookup mask into the running axis mask.
type AxisFilter struct {
	Comb   Combinator
	Lookup AxisLookup
}

func (f AxisFilter) String() string {
	return f.Comb.String() + " " + f.Lookup.String()
}

// FilteredAxis names an axis and an ordered list of mask filters.
type FilteredAxis struct {
	Axis    string
	Filters []AxisFilter
}

// String serializes the axis with its filters. Runs of filters sharing a
// combinator are order-independent, so each run is sorted to make the
// serialization canonical.
func (a FilteredAxis) String() string {
	var b strings.Builder
	b.WriteString(escapeToken(a.Axis))
	for _, f := range sortFilterRuns(a.Filters) {
		b.WriteString(" ")
		b.WriteString(f.String())
	}
	return b.String()
}

func sortFilterRuns(filters []AxisFilter) []AxisFilter {
	sorted := make([]AxisFilter, len(filters))
	copy(sorted, filters)
	start := 0
	for start < len(sorted) {
		end := start + 1
		for end < len(sorted) && sorted[end].Comb == sorted[start].Comb {
			end++
		}
		run := sorted[start:end]
		sort.SliceStable(run, func(i, j int) bool {
			return run[i].Lookup.String() < run[j].Lookup.String()
		})
		start = end
	}
	return sorted
}

// MatrixLookup addresses a matrix by rows axis, columns axis, and name.
// ColMajor records whether the query used the ";" separator requesting the
// column-major layout of the result.
type MatrixLookup struct {
	Rows     FilteredAxis
	Cols     FilteredAxis
	ColMajor bool
	Name     string
}

func (m MatrixLookup) String() string {
	sep := " , "
	if m.ColMajor {
		sep = " ; "
	}
	return m.Rows.String() + sep + m.Cols.String() + " @ " + escapeToken(m.Name)
}

// MatrixSliceLookup fixes one matrix axis to a single entry and returns
// the other dimension as a vector. SliceRows records which side of the
// separator held the entry selection.
type MatrixSliceLookup struct {
	SliceAxis string
	Entry     string
	Other     FilteredAxis
	SliceRows bool
	Name      string
}

func (m MatrixSliceLookup) String() string {
	sel := escapeToken(m.SliceAxis) + " = " + escapeToken(m.Entry)
	if m.SliceRows {
		return sel + " , " + m.Other.String() + " @ " + escapeToken(m.Name)
	}
	return m.Other.String() + " , " + sel + " @ " + escapeToken(m.Name)
}

// VectorLookup resolves an AxisLookup over a filtered axis.
type VectorLookup struct {
	Axis   FilteredAxis
	Lookup AxisLookup
}

func (v VectorLookup) String() string {
	return v.Axis.String() + " @ " + v.Lookup.String()
}

// VectorEntryLookup resolves a property chain at a single axis entry.
type VectorEntryLookup struct {
	Axis     string
	Entry    string
	Property PropertyLookup
}

func (v VectorEntryLookup) String() string {
	return escapeToken(v.Axis) + " = " + escapeToken(v.Entry) + " @ " + v.Property.String()
}

// MatrixEntryLookup resolves one matrix cell.
type MatrixEntryLookup struct {
	RowAxis  string
	RowEntry string
	ColAxis  string
	ColEntry string
	Name     string
}

func (m MatrixEntryLookup) String() string {
	return escapeToken(m.RowAxis) + " = " + escapeToken(m.RowEntry) +
		" , " + escapeToken(m.ColAxis) + " = " + escapeToken(m.ColEntry) +
		" @ " + escapeToken(m.Name)
}

// ScalarLookup names a stored scalar.
type ScalarLookup struct {
	Name string
}

func (s ScalarLookup) String() string {
	return escapeToken(s.Name)
}

// Operation is a resolved element-wise or reduction operation. Params holds
// every declared parameter with defaults applied.
type Operation struct {
	Name   string
	Reduce bool
	Params map[string]float64
}

// String serializes the operation, listing only parameters that differ
// from their declared defaults, sorted by name.
func (o Operation) String() string {
	var b strings.Builder
	if o.Reduce {
		b.WriteString("%> ")
	} else {
		b.WriteString("% ")
	}
	b.WriteString(o.Name)
	spec := operations[o.Name]
	var names []string
	for name, value := range o.Params {
		if spec == nil || value != spec.defaultOf(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for i, name := range names {
		if i == 0 {
			b.WriteString(" ; ")
		} else {
			b.WriteString(" , ")
		}
		b.WriteString(name)
		b.WriteString(" = ")
		b.WriteString(strconv.FormatFloat(o.Params[name], 'g', -1, 64))
	}
	return b.String()
}

func opsString(prefix string, ops []Operation) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, op := range ops {
		b.WriteString(" ")
		b.WriteString(op.String())
	}
	return b.String()
}

// MatrixQuery is the typed AST for a matrix-valued query.
type MatrixQuery struct {
	Lookup MatrixLookup
	Ops    []Operation // element-wise only
}

func (q *MatrixQuery) String() string {
	return opsString(q.Lookup.String(), q.Ops)
}

// VectorSource is the closed set of vector query sources.
type VectorSource interface {
	String() string
	vectorSource()
}

// MatrixReduction reduces a matrix query to a vector, collapsing columns
// per row.
type MatrixReduction struct {
	Matrix MatrixQuery
	Op     Operation
}

func (r *MatrixReduction) String() string {
	return r.Matrix.String() + " " + r.Op.String()
}

func (*VectorLookup) vectorSource()      {}
func (*MatrixSliceLookup) vectorSource() {}
func (*MatrixReduction) vectorSource()   {}

// VectorQuery is the typed AST for a vector-valued query.
type VectorQuery struct {
	Source VectorSource
	Ops    []Operation // element-wise only
}

func (q *VectorQuery) String() string {
	return opsString(q.Source.String(), q.Ops)
}

// ScalarSource is the closed set of scalar query sources.
type ScalarSource interface {
	String() string
	scalarSource()
}

// VectorReduction reduces a vector query to a scalar.
type VectorReduction struct {
	Vector VectorQuery
	Op     Operation
}

func (r *VectorReduction) String() string {
	return r.Vector.String() + " " + r.Op.String()
}

func (*ScalarLookup) scalarSource()      {}
func (*VectorEntryLookup) scalarSource() {}
func (*MatrixEntryLookup) scalarSource() {}
func (*VectorReduction) scalarSource()   {}

// ScalarQuery is the typed AST for a scalar-valued query.
type ScalarQuery struct {
	Source ScalarSource
	Ops    []Operation // element-wise only
}

func (q *ScalarQuery) String() string {
	return opsString(q.Source.String(), q.Ops)
}
