package axisdb

import "fmt"

// Kind enumerates the element types a property can hold.
type Kind int

const (
	// KindFloat is a 64-bit floating point element.
	KindFloat Kind = iota
	// KindString is a string element.
	KindString
	// KindBool is a boolean element.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

// Value is a tagged scalar.
type Value struct {
	Kind  Kind
	Float float64
	Str   string
	Bool  bool
}

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case KindString:
		return v.Str
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	}
	return "?"
}

// Vector is a property with one value per axis entry, labeled by the axis
// entry names. Exactly one of Floats, Strs, Bools is populated, selected by
// Kind. Vectors returned from queries are read-only views; callers must
// copy before mutating.
type Vector struct {
	Axis  string
	Names []string
	Kind  Kind

	Floats []float64
	Strs   []string
	Bools  []bool
}

// NewFloatVector builds a float vector. names and values must be the same
// length.
func NewFloatVector(axis string, names []string, values []float64) *Vector {
	return &Vector{Axis: axis, Names: names, Kind: KindFloat, Floats: values}
}

// NewStringVector builds a string vector.
func NewStringVector(axis string, names []string, values []string) *Vector {
	return &Vector{Axis: axis, Names: names, Kind: KindString, Strs: values}
}

// NewBoolVector builds a boolean vector.
func NewBoolVector(axis string, names []string, values []bool) *Vector {
	return &Vector{Axis: axis, Names: names, Kind: KindBool, Bools: values}
}

// Len returns the number of entries.
func (v *Vector) Len() int {
	switch v.Kind {
	case KindFloat:
		return len(v.Floats)
	case KindString:
		return len(v.Strs)
	case KindBool:
		return len(v.Bools)
	}
	return 0
}

// Value returns the element at index i as a tagged scalar.
func (v *Vector) Value(i int) Value {
	switch v.Kind {
	case KindFloat:
		return FloatValue(v.Floats[i])
	case KindString:
		return StringValue(v.Strs[i])
	case KindBool:
		return BoolValue(v.Bools[i])
	}
	return Value{}
}

// subset keeps the entries where mask is true. A nil mask returns the
// vector unchanged.
func (v *Vector) subset(mask []bool) *Vector {
	if mask == nil {
		return v
	}
	out := &Vector{Axis: v.Axis, Kind: v.Kind}
	for i, keep := range mask {
		if !keep {
			continue
		}
		out.Names = append(out.Names, v.Names[i])
		switch v.Kind {
		case KindFloat:
			out.Floats = append(out.Floats, v.Floats[i])
		case KindString:
			out.Strs = append(out.Strs, v.Strs[i])
		case KindBool:
			out.Bools = append(out.Bools, v.Bools[i])
		}
	}
	return out
}

// cloneFloats returns a copy with its own Floats slice, so element-wise
// operations never mutate cached data.
func (v *Vector) cloneFloats() *Vector {
	out := *v
	out.Floats = make([]float64, len(v.Floats))
	copy(out.Floats, v.Floats)
	return &out
}

// Layout tags which matrix dimension is contiguous in Data.
type Layout int

const (
	// RowMajor means each row is contiguous.
	RowMajor Layout = iota
	// ColMajor means each column is contiguous.
	ColMajor
)

func (l Layout) String() string {
	if l == ColMajor {
		return "column-major"
	}
	return "row-major"
}

// Matrix is a property with one float64 value per pair of axis entries,
// labeled along both dimensions. Data holds len(Rows)*len(Cols) values in
// the order given by Layout. Matrices returned from queries are read-only
// views; callers must copy before mutating.
type Matrix struct {
	RowAxis string
	ColAxis string
	Rows    []string
	Cols    []string
	Layout  Layout
	Data    []float64
}

// NewMatrix builds a row-major matrix. len(data) must be
// len(rows)*len(cols).
func NewMatrix(rowAxis, colAxis string, rows, cols []string, data []float64) *Matrix {
	return &Matrix{RowAxis: rowAxis, ColAxis: colAxis, Rows: rows, Cols: cols, Layout: RowMajor, Data: data}
}

// NumRows returns the number of rows.
func (m *Matrix) NumRows() int { return len(m.Rows) }

// NumCols returns the number of columns.
func (m *Matrix) NumCols() int { return len(m.Cols) }

// At returns the value at row r, column c, independent of Layout.
func (m *Matrix) At(r, c int) float64 {
	if m.Layout == RowMajor {
		return m.Data[r*len(m.Cols)+c]
	}
	return m.Data[c*len(m.Rows)+r]
}

// row copies row r into dst, which must have room for NumCols values.
func (m *Matrix) row(r int, dst []float64) []float64 {
	n := len(m.Cols)
	if m.Layout == RowMajor {
		copy(dst[:n], m.Data[r*n:(r+1)*n])
		return dst[:n]
	}
	for c := 0; c < n; c++ {
		dst[c] = m.Data[c*len(m.Rows)+r]
	}
	return dst[:n]
}

// relayout returns a physically transposed copy holding the same logical
// matrix in the opposite layout. The data movement is the expensive step
// the layout cache exists to avoid repeating.
func (m *Matrix) relayout() *Matrix {
	out := &Matrix{RowAxis: m.RowAxis, ColAxis: m.ColAxis, Rows: m.Rows, Cols: m.Cols}
	out.Data = make([]float64, len(m.Data))
	nr, nc := len(m.Rows), len(m.Cols)
	if m.Layout == RowMajor {
		out.Layout = ColMajor
		for r := 0; r < nr; r++ {
			for c := 0; c < nc; c++ {
				out.Data[c*nr+r] = m.Data[r*nc+c]
			}
		}
	} else {
		out.Layout = RowMajor
		for r := 0; r < nr; r++ {
			for c := 0; c < nc; c++ {
				out.Data[r*nc+c] = m.Data[c*nr+r]
			}
		}
	}
	return out
}

// transposedView reinterprets the matrix with rows and columns swapped
// without moving data: a row-major matrix is the column-major form of its
// transpose.
func (m *Matrix) transposedView() *Matrix {
	out := &Matrix{
		RowAxis: m.ColAxis, ColAxis: m.RowAxis,
		Rows: m.Cols, Cols: m.Rows,
		Data: m.Data,
	}
	if m.Layout == RowMajor {
		out.Layout = ColMajor
	} else {
		out.Layout = RowMajor
	}
	return out
}

// clone returns a deep copy of the matrix data.
func (m *Matrix) clone() *Matrix {
	out := *m
	out.Data = make([]float64, len(m.Data))
	copy(out.Data, m.Data)
	return &out
}
