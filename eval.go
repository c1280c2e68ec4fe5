package axisdb

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/axisdb/axisdb/internal/query"
)

// evaluator runs one query under the write lock. It records every entity
// key it reads into deps, and buffers its cache entries and store writes
// so a failed query leaves no trace: the engine flushes the buffers only
// after the whole evaluation succeeds.
type evaluator struct {
	db           *DB
	deps         depSet
	pendingCache map[string]*pendingEntry
	pendingKeys  []string
	pendingStore []pendingMatrixWrite
}

type pendingEntry struct {
	value any
	kind  CacheKind
	deps  depSet
}

type pendingMatrixWrite struct {
	rowAxis, colAxis, name string
	m                      *Matrix
}

func newEvaluator(db *DB) *evaluator {
	return &evaluator{
		db:           db,
		deps:         make(depSet),
		pendingCache: make(map[string]*pendingEntry),
	}
}

// flush commits the buffered store writes and cache entries. Called only
// after the evaluation succeeded.
func (ev *evaluator) flush() error {
	for _, w := range ev.pendingStore {
		if err := ev.db.storage.SetMatrix(w.rowAxis, w.colAxis, w.name, w.m); err != nil {
			return fmt.Errorf("persist relayout of matrix %q: %w", w.name, err)
		}
	}
	for _, key := range ev.pendingKeys {
		e := ev.pendingCache[key]
		ev.db.cache.put(key, e.value, e.kind, e.deps)
	}
	return nil
}

func (ev *evaluator) addPending(key string, value any, kind CacheKind, deps depSet) {
	ev.pendingCache[key] = &pendingEntry{value: value, kind: kind, deps: deps}
	ev.pendingKeys = append(ev.pendingKeys, key)
}

// cached resolves key through the pending buffer, then the shared cache,
// then compute. The computed value is buffered, not committed.
func (ev *evaluator) cached(key string, kind CacheKind, deps depSet, compute func() (any, error)) (any, error) {
	ev.deps.add(key)
	if e, ok := ev.pendingCache[key]; ok {
		return e.value, nil
	}
	if v, ok := ev.db.cache.get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	ev.addPending(key, v, kind, deps)
	return v, nil
}

// Entity reads. Each caches under the entity's own key so repeated queries
// share the store read, and records the dependency edges invalidation
// walks.

func (ev *evaluator) axisEntries(fragment, axis string) ([]string, error) {
	key := axisKey(axis)
	v, err := ev.cached(key, CacheStored, nil, func() (any, error) {
		entries, err := ev.db.storage.AxisEntries(axis)
		if errors.Is(err, ErrMissingProperty) {
			return nil, evalErr(ErrMissingProperty, fragment, key, "axis %q does not exist", axis)
		}
		if err != nil {
			return nil, fmt.Errorf("read axis %q: %w", axis, err)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (ev *evaluator) vectorProp(fragment, axis, name string) (*Vector, error) {
	entries, err := ev.axisEntries(fragment, axis)
	if err != nil {
		return nil, err
	}
	key := vectorKey(axis, name)
	v, err := ev.cached(key, CacheStored, depSet{axisKey(axis): {}}, func() (any, error) {
		vec, err := ev.db.storage.GetVector(axis, name)
		if errors.Is(err, ErrMissingProperty) {
			return nil, evalErr(ErrMissingProperty, fragment, key, "axis %q has no vector %q", axis, name)
		}
		if err != nil {
			return nil, fmt.Errorf("read vector %q of axis %q: %w", name, axis, err)
		}
		if vec.Len() != len(entries) {
			return nil, evalErr(ErrStoreContract, fragment, key,
				"vector %q has %d values for %d entries of axis %q", name, vec.Len(), len(entries), axis)
		}
		view := *vec
		view.Axis = axis
		view.Names = entries
		return &view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Vector), nil
}

func (ev *evaluator) scalarValue(fragment, name string) (Value, error) {
	key := scalarKey(name)
	v, err := ev.cached(key, CacheStored, nil, func() (any, error) {
		val, err := ev.db.storage.GetScalar(name)
		if errors.Is(err, ErrMissingProperty) {
			return nil, evalErr(ErrMissingProperty, fragment, key, "scalar %q does not exist", name)
		}
		if err != nil {
			return nil, fmt.Errorf("read scalar %q: %w", name, err)
		}
		return val, nil
	})
	if err != nil {
		return Value{}, err
	}
	return v.(Value), nil
}

// Axis selections and filter masks.

type axisSelection struct {
	axis    string
	entries []string
	mask    []bool // nil selects every entry
}

func (s *axisSelection) empty() bool {
	if s.mask == nil {
		return false
	}
	for _, keep := range s.mask {
		if keep {
			return false
		}
	}
	return true
}

func (ev *evaluator) evalFilteredAxis(fa query.FilteredAxis) (*axisSelection, error) {
	fragment := fa.String()
	entries, err := ev.axisEntries(fragment, fa.Axis)
	if err != nil {
		return nil, err
	}
	sel := &axisSelection{axis: fa.Axis, entries: entries}
	for _, f := range fa.Filters {
		mvec, err := ev.evalAxisLookup(fa.Axis, entries, f.Lookup)
		if err != nil {
			return nil, err
		}
		if mvec.Kind != KindBool {
			return nil, evalErr(ErrNonBooleanFilter, f.Lookup.String(), axisKey(fa.Axis),
				"filter resolves to a %s property", mvec.Kind)
		}
		if sel.mask == nil {
			sel.mask = make([]bool, len(entries))
			for i := range sel.mask {
				sel.mask[i] = true
			}
		}
		switch f.Comb {
		case query.CombAnd:
			for i := range sel.mask {
				sel.mask[i] = sel.mask[i] && mvec.Bools[i]
			}
		case query.CombOr:
			for i := range sel.mask {
				sel.mask[i] = sel.mask[i] || mvec.Bools[i]
			}
		case query.CombXor:
			for i := range sel.mask {
				sel.mask[i] = sel.mask[i] != mvec.Bools[i]
			}
		}
	}
	return sel, nil
}

// evalAxisLookup resolves a property chain over the axis, optionally
// inverted or compared against a literal.
func (ev *evaluator) evalAxisLookup(axis string, entries []string, l query.AxisLookup) (*Vector, error) {
	fragment := l.String()
	vec, err := ev.chainVector(fragment, axis, l.Property)
	if err != nil {
		return nil, err
	}
	if l.Invert {
		if vec.Kind != KindBool {
			return nil, evalErr(ErrNonBooleanFilter, fragment, "",
				"cannot invert a %s property", vec.Kind)
		}
		inverted := make([]bool, len(vec.Bools))
		for i, b := range vec.Bools {
			inverted[i] = !b
		}
		vec = NewBoolVector(vec.Axis, vec.Names, inverted)
	}
	if l.Cmp == nil {
		return vec, nil
	}
	return compareVector(fragment, vec, *l.Cmp)
}

// chainVector evaluates a property chain: the first property is read on
// the queried axis, then each value names an entry of the axis inferred
// from the preceding property name.
func (ev *evaluator) chainVector(fragment, axis string, pl query.PropertyLookup) (*Vector, error) {
	cur, err := ev.vectorProp(fragment, axis, pl.Names[0])
	if err != nil {
		return nil, err
	}
	prevName := pl.Names[0]
	for _, step := range pl.Names[1:] {
		if cur.Kind != KindString {
			return nil, evalErr(ErrChainedLookupMiss, fragment, "",
				"chain step %q follows a %s property, need string", step, cur.Kind)
		}
		nextAxis, err := ev.inferAxis(prevName)
		if err != nil {
			return nil, err
		}
		nextEntries, err := ev.axisEntries(fragment, nextAxis)
		if err != nil {
			return nil, err
		}
		nextVec, err := ev.vectorProp(fragment, nextAxis, step)
		if err != nil {
			return nil, err
		}
		index := make(map[string]int, len(nextEntries))
		for i, entry := range nextEntries {
			index[entry] = i
		}
		out := &Vector{Axis: cur.Axis, Names: cur.Names, Kind: nextVec.Kind}
		switch nextVec.Kind {
		case KindFloat:
			out.Floats = make([]float64, len(cur.Strs))
		case KindString:
			out.Strs = make([]string, len(cur.Strs))
		case KindBool:
			out.Bools = make([]bool, len(cur.Strs))
		}
		for j, entry := range cur.Strs {
			pos, ok := index[entry]
			if !ok {
				if !pl.Tolerant {
					return nil, evalErr(ErrChainedLookupMiss, fragment, axisKey(nextAxis),
						"value %q is not an entry of axis %q", entry, nextAxis)
				}
				continue // tolerant chains keep the zero value
			}
			switch nextVec.Kind {
			case KindFloat:
				out.Floats[j] = nextVec.Floats[pos]
			case KindString:
				out.Strs[j] = nextVec.Strs[pos]
			case KindBool:
				out.Bools[j] = nextVec.Bools[pos]
			}
		}
		cur = out
		prevName = step
	}
	return cur, nil
}

// inferAxis maps a property name to the axis its values index: the name
// itself when such an axis exists, otherwise the prefix before the first
// dot. The axis set is a dependency because adding an axis can change the
// inference.
func (ev *evaluator) inferAxis(property string) (string, error) {
	ev.deps.add(axesKey)
	has, err := ev.db.storage.HasAxis(property)
	if err != nil {
		return "", fmt.Errorf("list axes: %w", err)
	}
	if has {
		return property, nil
	}
	prefix, _, _ := strings.Cut(property, ".")
	return prefix, nil
}

func compareVector(fragment string, vec *Vector, cmp query.PropertyComparison) (*Vector, error) {
	match := cmp.Op == query.CmpMatch || cmp.Op == query.CmpNotMatch
	out := make([]bool, vec.Len())
	switch vec.Kind {
	case KindFloat:
		if match {
			return nil, evalErr(ErrInvalidPattern, fragment, "",
				"match operator requires a string property, got float")
		}
		lit, err := strconv.ParseFloat(cmp.Literal, 64)
		if err != nil {
			return nil, evalErr(ErrInvalidLiteral, fragment, "",
				"%q is not a number", cmp.Literal)
		}
		for i, v := range vec.Floats {
			out[i] = cmpFloat(cmp.Op, v, lit)
		}
	case KindBool:
		if match {
			return nil, evalErr(ErrInvalidPattern, fragment, "",
				"match operator requires a string property, got bool")
		}
		if cmp.Op != query.CmpEqual && cmp.Op != query.CmpNotEqual {
			return nil, evalErr(ErrInvalidLiteral, fragment, "",
				"boolean properties support = and != only")
		}
		lit, err := strconv.ParseBool(cmp.Literal)
		if err != nil {
			return nil, evalErr(ErrInvalidLiteral, fragment, "",
				"%q is not a boolean", cmp.Literal)
		}
		for i, v := range vec.Bools {
			out[i] = (v == lit) == (cmp.Op == query.CmpEqual)
		}
	case KindString:
		if match {
			re, err := regexp.Compile("^(?:" + cmp.Literal + ")$")
			if err != nil {
				return nil, evalErr(ErrInvalidPattern, fragment, "",
					"pattern %q does not compile: %v", cmp.Literal, err)
			}
			for i, v := range vec.Strs {
				out[i] = re.MatchString(v) == (cmp.Op == query.CmpMatch)
			}
			break
		}
		for i, v := range vec.Strs {
			out[i] = cmpString(cmp.Op, v, cmp.Literal)
		}
	}
	return NewBoolVector(vec.Axis, vec.Names, out), nil
}

func cmpFloat(op query.CmpOp, a, b float64) bool {
	switch op {
	case query.CmpLess:
		return a < b
	case query.CmpLessEqual:
		return a <= b
	case query.CmpEqual:
		return a == b
	case query.CmpNotEqual:
		return a != b
	case query.CmpGreaterEqual:
		return a >= b
	case query.CmpGreater:
		return a > b
	}
	return false
}

func cmpString(op query.CmpOp, a, b string) bool {
	switch op {
	case query.CmpLess:
		return a < b
	case query.CmpLessEqual:
		return a <= b
	case query.CmpEqual:
		return a == b
	case query.CmpNotEqual:
		return a != b
	case query.CmpGreaterEqual:
		return a >= b
	case query.CmpGreater:
		return a > b
	}
	return false
}

// Query sources.

func (ev *evaluator) evalVectorLookup(vl *query.VectorLookup) (*Vector, error) {
	sel, err := ev.evalFilteredAxis(vl.Axis)
	if err != nil {
		return nil, err
	}
	if sel.empty() {
		return nil, nil
	}
	vec, err := ev.evalAxisLookup(vl.Axis.Axis, sel.entries, vl.Lookup)
	if err != nil {
		return nil, err
	}
	return vec.subset(sel.mask), nil
}

func (ev *evaluator) evalMatrixLookup(ml query.MatrixLookup) (*Matrix, error) {
	rsel, err := ev.evalFilteredAxis(ml.Rows)
	if err != nil {
		return nil, err
	}
	csel, err := ev.evalFilteredAxis(ml.Cols)
	if err != nil {
		return nil, err
	}
	if rsel.empty() || csel.empty() {
		return nil, nil
	}
	m, err := ev.matrixForQuery(ml.String(), rsel.axis, csel.axis, ml.Name, ml.ColMajor)
	if err != nil {
		return nil, err
	}
	if rsel.mask == nil && csel.mask == nil {
		return m, nil
	}
	return subsetMatrix(m, rsel.mask, csel.mask), nil
}

// subsetMatrix keeps the masked rows and columns, preserving layout. A nil
// mask keeps the whole dimension.
func subsetMatrix(m *Matrix, rowMask, colMask []bool) *Matrix {
	rows := maskedIndices(rowMask, len(m.Rows))
	cols := maskedIndices(colMask, len(m.Cols))
	out := &Matrix{RowAxis: m.RowAxis, ColAxis: m.ColAxis, Layout: m.Layout}
	out.Rows = make([]string, len(rows))
	for i, r := range rows {
		out.Rows[i] = m.Rows[r]
	}
	out.Cols = make([]string, len(cols))
	for j, c := range cols {
		out.Cols[j] = m.Cols[c]
	}
	out.Data = make([]float64, len(rows)*len(cols))
	for i, r := range rows {
		for j, c := range cols {
			if out.Layout == RowMajor {
				out.Data[i*len(cols)+j] = m.At(r, c)
			} else {
				out.Data[j*len(rows)+i] = m.At(r, c)
			}
		}
	}
	return out
}

func maskedIndices(mask []bool, n int) []int {
	if mask == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	var kept []int
	for i, keep := range mask {
		if keep {
			kept = append(kept, i)
		}
	}
	return kept
}

func (ev *evaluator) evalSliceLookup(sl *query.MatrixSliceLookup) (*Vector, error) {
	fragment := sl.String()
	sliceEntries, err := ev.axisEntries(fragment, sl.SliceAxis)
	if err != nil {
		return nil, err
	}
	idx := indexOf(sliceEntries, sl.Entry)
	if idx < 0 {
		return nil, evalErr(ErrMissingEntry, fragment, axisKey(sl.SliceAxis),
			"axis %q has no entry %q", sl.SliceAxis, sl.Entry)
	}
	osel, err := ev.evalFilteredAxis(sl.Other)
	if err != nil {
		return nil, err
	}
	if osel.empty() {
		return nil, nil
	}
	var m *Matrix
	if sl.SliceRows {
		m, err = ev.matrixView(fragment, sl.SliceAxis, osel.axis, sl.Name)
	} else {
		m, err = ev.matrixView(fragment, osel.axis, sl.SliceAxis, sl.Name)
	}
	if err != nil {
		return nil, err
	}
	kept := maskedIndices(osel.mask, len(osel.entries))
	out := &Vector{Axis: osel.axis, Kind: KindFloat}
	out.Names = make([]string, len(kept))
	out.Floats = make([]float64, len(kept))
	for i, k := range kept {
		out.Names[i] = osel.entries[k]
		if sl.SliceRows {
			out.Floats[i] = m.At(idx, k)
		} else {
			out.Floats[i] = m.At(k, idx)
		}
	}
	return out, nil
}

func (ev *evaluator) evalVectorEntry(vel *query.VectorEntryLookup) (Value, error) {
	fragment := vel.String()
	entries, err := ev.axisEntries(fragment, vel.Axis)
	if err != nil {
		return Value{}, err
	}
	idx := indexOf(entries, vel.Entry)
	if idx < 0 {
		return Value{}, evalErr(ErrMissingEntry, fragment, axisKey(vel.Axis),
			"axis %q has no entry %q", vel.Axis, vel.Entry)
	}
	vec, err := ev.chainVector(fragment, vel.Axis, vel.Property)
	if err != nil {
		return Value{}, err
	}
	return vec.Value(idx), nil
}

func (ev *evaluator) evalMatrixEntry(mel *query.MatrixEntryLookup) (Value, error) {
	fragment := mel.String()
	rows, err := ev.axisEntries(fragment, mel.RowAxis)
	if err != nil {
		return Value{}, err
	}
	r := indexOf(rows, mel.RowEntry)
	if r < 0 {
		return Value{}, evalErr(ErrMissingEntry, fragment, axisKey(mel.RowAxis),
			"axis %q has no entry %q", mel.RowAxis, mel.RowEntry)
	}
	cols, err := ev.axisEntries(fragment, mel.ColAxis)
	if err != nil {
		return Value{}, err
	}
	c := indexOf(cols, mel.ColEntry)
	if c < 0 {
		return Value{}, evalErr(ErrMissingEntry, fragment, axisKey(mel.ColAxis),
			"axis %q has no entry %q", mel.ColAxis, mel.ColEntry)
	}
	m, err := ev.matrixView(fragment, mel.RowAxis, mel.ColAxis, mel.Name)
	if err != nil {
		return Value{}, err
	}
	return FloatValue(m.At(r, c)), nil
}

func indexOf(entries []string, entry string) int {
	for i, e := range entries {
		if e == entry {
			return i
		}
	}
	return -1
}

// Query pipelines.

func (ev *evaluator) evalMatrixQuery(q *query.MatrixQuery) (*Matrix, error) {
	m, err := ev.evalMatrixLookup(q.Lookup)
	if err != nil || m == nil {
		return nil, err
	}
	if len(q.Ops) == 0 {
		return m, nil
	}
	m = m.clone()
	for _, op := range q.Ops {
		applyMatrixOp(op, m)
	}
	return m, nil
}

// applyMatrixOp runs an element-wise operation over each row, so per-slice
// operations like fraction normalize rows.
func applyMatrixOp(op query.Operation, m *Matrix) {
	nr, nc := len(m.Rows), len(m.Cols)
	if m.Layout == RowMajor {
		for r := 0; r < nr; r++ {
			query.Apply(op, m.Data[r*nc:(r+1)*nc])
		}
		return
	}
	buf := make([]float64, nc)
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			buf[c] = m.Data[c*nr+r]
		}
		query.Apply(op, buf)
		for c := 0; c < nc; c++ {
			m.Data[c*nr+r] = buf[c]
		}
	}
}

func (ev *evaluator) evalVectorQuery(q *query.VectorQuery) (*Vector, error) {
	var vec *Vector
	var err error
	switch src := q.Source.(type) {
	case *query.VectorLookup:
		vec, err = ev.evalVectorLookup(src)
	case *query.MatrixSliceLookup:
		vec, err = ev.evalSliceLookup(src)
	case *query.MatrixReduction:
		var m *Matrix
		m, err = ev.evalMatrixQuery(&src.Matrix)
		if err == nil && m != nil {
			vec = reduceMatrix(src.Op, m)
		}
	}
	if err != nil || vec == nil {
		return nil, err
	}
	if len(q.Ops) == 0 {
		return vec, nil
	}
	if vec.Kind != KindFloat {
		return nil, evalErr(ErrNonNumericInput, q.Ops[0].String(), "",
			"cannot apply operations to a %s vector", vec.Kind)
	}
	vec = vec.cloneFloats()
	for _, op := range q.Ops {
		query.Apply(op, vec.Floats)
	}
	return vec, nil
}

// reduceMatrix collapses the columns of each row, yielding a vector over
// the rows axis.
func reduceMatrix(op query.Operation, m *Matrix) *Vector {
	out := &Vector{Axis: m.RowAxis, Names: m.Rows, Kind: KindFloat}
	out.Floats = make([]float64, len(m.Rows))
	buf := make([]float64, len(m.Cols))
	for r := range m.Rows {
		out.Floats[r] = query.ApplyReduce(op, m.row(r, buf))
	}
	return out
}

func (ev *evaluator) evalScalarQuery(q *query.ScalarQuery) (*Value, error) {
	var v Value
	switch src := q.Source.(type) {
	case *query.ScalarLookup:
		val, err := ev.scalarValue(src.String(), src.Name)
		if err != nil {
			return nil, err
		}
		v = val
	case *query.VectorEntryLookup:
		val, err := ev.evalVectorEntry(src)
		if err != nil {
			return nil, err
		}
		v = val
	case *query.MatrixEntryLookup:
		val, err := ev.evalMatrixEntry(src)
		if err != nil {
			return nil, err
		}
		v = val
	case *query.VectorReduction:
		vec, err := ev.evalVectorQuery(&src.Vector)
		if err != nil {
			return nil, err
		}
		if vec == nil {
			return nil, nil
		}
		if vec.Kind != KindFloat {
			return nil, evalErr(ErrNonNumericInput, src.Op.String(), "",
				"cannot reduce a %s vector", vec.Kind)
		}
		v = FloatValue(query.ApplyReduce(src.Op, vec.Floats))
	}
	if len(q.Ops) > 0 {
		if v.Kind != KindFloat {
			return nil, evalErr(ErrNonNumericInput, q.Ops[0].String(), "",
				"cannot apply operations to a %s scalar", v.Kind)
		}
		buf := []float64{v.Float}
		for _, op := range q.Ops {
			query.Apply(op, buf)
		}
		v = FloatValue(buf[0])
	}
	return &v, nil
}
