package axisdb

import (
	"errors"
	"fmt"
)

// Matrix layout resolution. A matrix is stored under exactly one
// orientation, row-major. Queries may address it under either orientation
// and request either layout; resolving the mismatch is either a free
// reinterpretation (transposedView) or a physical transpose (relayout),
// and relayouts are cached and, when the store can hold them, persisted.

// matrixEntity reads the matrix stored under the exact orientation
// (rowAxis, colAxis), caching it under its entity key.
func (ev *evaluator) matrixEntity(fragment, rowAxis, colAxis, name string) (*Matrix, error) {
	rows, err := ev.axisEntries(fragment, rowAxis)
	if err != nil {
		return nil, err
	}
	cols, err := ev.axisEntries(fragment, colAxis)
	if err != nil {
		return nil, err
	}
	key := matrixKey(rowAxis, colAxis, name)
	deps := depSet{axisKey(rowAxis): {}, axisKey(colAxis): {}}
	v, err := ev.cached(key, CacheStored, deps, func() (any, error) {
		m, err := ev.db.storage.GetMatrix(rowAxis, colAxis, name)
		if errors.Is(err, ErrMissingProperty) {
			return nil, evalErr(ErrMissingProperty, fragment, key,
				"no matrix %q for axes %q, %q", name, rowAxis, colAxis)
		}
		if err != nil {
			return nil, fmt.Errorf("read matrix %q of axes %q, %q: %w", name, rowAxis, colAxis, err)
		}
		if len(m.Data) != len(rows)*len(cols) {
			return nil, evalErr(ErrStoreContract, fragment, key,
				"matrix %q has %d values for %d x %d entries", name, len(m.Data), len(rows), len(cols))
		}
		view := &Matrix{RowAxis: rowAxis, ColAxis: colAxis, Rows: rows, Cols: cols, Layout: RowMajor, Data: m.Data}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matrix), nil
}

// storedMatrix finds the matrix under whichever orientation the store
// holds, preferring the queried one. The returned flag reports whether the
// stored orientation matches (rowAxis, colAxis).
func (ev *evaluator) storedMatrix(fragment, rowAxis, colAxis, name string) (*Matrix, bool, error) {
	has, err := ev.db.storage.HasMatrix(rowAxis, colAxis, name)
	if err != nil {
		return nil, false, fmt.Errorf("check matrix %q: %w", name, err)
	}
	if has {
		m, err := ev.matrixEntity(fragment, rowAxis, colAxis, name)
		return m, true, err
	}
	if rowAxis != colAxis {
		has, err = ev.db.storage.HasMatrix(colAxis, rowAxis, name)
		if err != nil {
			return nil, false, fmt.Errorf("check matrix %q: %w", name, err)
		}
		if has {
			m, err := ev.matrixEntity(fragment, colAxis, rowAxis, name)
			return m, false, err
		}
	}
	return nil, false, evalErr(ErrMissingProperty, fragment, matrixKey(rowAxis, colAxis, name),
		"no matrix %q for axes %q, %q in either orientation", name, rowAxis, colAxis)
}

// matrixView returns the matrix in the logical orientation (rowAxis,
// colAxis) without moving data. The layout is whatever falls out of the
// stored orientation; callers address cells through At.
func (ev *evaluator) matrixView(fragment, rowAxis, colAxis, name string) (*Matrix, error) {
	m, oriented, err := ev.storedMatrix(fragment, rowAxis, colAxis, name)
	if err != nil {
		return nil, err
	}
	if oriented {
		return m, nil
	}
	return m.transposedView(), nil
}

// transposedStored materializes the physically transposed copy of a
// stored matrix, returned as the opposite orientation in row-major form.
// The copy is cached under the relayout key; when the two axes differ it
// is also queued for persistence, so the store ends up holding both
// orientations and later queries skip the transpose entirely. A square
// same-axis matrix cannot be stored twice under the same orientation, so
// its transpose stays memory-only.
func (ev *evaluator) transposedStored(src *Matrix, name string) (*Matrix, error) {
	key := relayoutKey(src.RowAxis, src.ColAxis, name)
	ev.deps.add(key)
	if e, ok := ev.pendingCache[key]; ok {
		return e.value.(*Matrix), nil
	}
	if v, ok := ev.db.cache.get(key); ok {
		return v.(*Matrix), nil
	}
	t := src.relayout().transposedView() // (ColAxis, RowAxis), row-major
	kind := CacheMemory
	if src.RowAxis != src.ColAxis {
		ev.pendingStore = append(ev.pendingStore, pendingMatrixWrite{
			rowAxis: t.RowAxis, colAxis: t.ColAxis, name: name, m: t,
		})
		kind = CacheStored
	}
	ev.addPending(key, t, kind, depSet{matrixKey(src.RowAxis, src.ColAxis, name): {}})
	return t, nil
}

// matrixForQuery returns the matrix in the logical orientation (rowAxis,
// colAxis) with the requested physical layout, transposing through the
// relayout cache when the stored layout does not line up.
func (ev *evaluator) matrixForQuery(fragment, rowAxis, colAxis, name string, colMajor bool) (*Matrix, error) {
	m, oriented, err := ev.storedMatrix(fragment, rowAxis, colAxis, name)
	if err != nil {
		return nil, err
	}
	if oriented {
		if !colMajor {
			return m, nil
		}
		t, err := ev.transposedStored(m, name)
		if err != nil {
			return nil, err
		}
		return t.transposedView(), nil
	}
	if colMajor {
		return m.transposedView(), nil
	}
	return ev.transposedStored(m, name)
}
