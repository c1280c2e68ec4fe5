package axisdb

import (
	"fmt"

	"github.com/axisdb/axisdb/internal/query"
)

// DB is the engine handle: a storage backend, the dependency-indexed
// result cache, and the store-wide lock that serializes writes against
// concurrent cached reads.
type DB struct {
	storage Storage
	cache   *queryCache
	config  Config

	lock   upgradableLock
	closed bool
}

// Open builds the storage backend selected by the configuration and wraps
// it in an engine.
func Open(cfg Config) (*DB, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	storage, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	return New(storage, cfg), nil
}

// New wraps an existing storage backend. The engine owns the backend from
// here on: all access must go through the engine, and Close closes the
// backend.
func New(storage Storage, cfg Config) *DB {
	cfg.applyDefaults()
	return &DB{
		storage: storage,
		cache:   newQueryCache(cfg.Cache.MaxEntries),
		config:  cfg,
	}
}

// Close releases the engine and its storage backend. Further calls on the
// engine return ErrClosed.
func (db *DB) Close() error {
	s := db.lock.write()
	defer s.release()
	if db.closed {
		return nil
	}
	db.closed = true
	db.cache.clear(nil)
	return db.storage.Close()
}

// Queries.

// MatrixQuery parses and evaluates a matrix-valued query. A nil matrix
// with a nil error means an axis filter selected no entries.
func (db *DB) MatrixQuery(text string) (*Matrix, error) {
	ast, err := query.ParseMatrixQuery(text)
	if err != nil {
		return nil, err
	}
	return db.evalMatrix(ast)
}

// VectorQuery parses and evaluates a vector-valued query. A nil vector
// with a nil error means an axis filter selected no entries.
func (db *DB) VectorQuery(text string) (*Vector, error) {
	ast, err := query.ParseVectorQuery(text)
	if err != nil {
		return nil, err
	}
	return db.evalVector(ast)
}

// ScalarQuery parses and evaluates a scalar-valued query. A nil value
// with a nil error means an empty selection propagated to the result.
func (db *DB) ScalarQuery(text string) (*Value, error) {
	ast, err := query.ParseScalarQuery(text)
	if err != nil {
		return nil, err
	}
	return db.evalScalar(ast)
}

// NormalizeQuery returns the canonical form of a query: the form results
// are cached under, with comments stripped, whitespace collapsed,
// defaulted operation parameters elided, and order-independent filters
// sorted. Queries of all three result shapes are accepted.
func NormalizeQuery(text string) (string, error) {
	if q, err := query.ParseMatrixQuery(text); err == nil {
		return q.String(), nil
	}
	if q, err := query.ParseVectorQuery(text); err == nil {
		return q.String(), nil
	}
	q, err := query.ParseScalarQuery(text)
	if err != nil {
		return "", err
	}
	return q.String(), nil
}

func (db *DB) evalMatrix(ast *query.MatrixQuery) (*Matrix, error) {
	v, err := db.cachedQuery(matrixQueryKey(ast.String()), func(ev *evaluator) (any, error) {
		return ev.evalMatrixQuery(ast)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matrix), nil
}

func (db *DB) evalVector(ast *query.VectorQuery) (*Vector, error) {
	v, err := db.cachedQuery(vectorQueryKey(ast.String()), func(ev *evaluator) (any, error) {
		return ev.evalVectorQuery(ast)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Vector), nil
}

func (db *DB) evalScalar(ast *query.ScalarQuery) (*Value, error) {
	v, err := db.cachedQuery(scalarQueryKey(ast.String()), func(ev *evaluator) (any, error) {
		return ev.evalScalarQuery(ast)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Value), nil
}

// cachedQuery resolves one query key under the locking protocol: read
// lock for the cache hit path, upgrade on a miss so the computation runs
// under the write lock, re-check after the upgrade because another
// upgrader may have filled the key in the gap. The upgrade mutex inside
// the lock bounds each miss to a single computation.
func (db *DB) cachedQuery(key string, compute func(*evaluator) (any, error)) (any, error) {
	s := db.lock.read()
	if db.closed {
		s.release()
		return nil, ErrClosed
	}
	if v, ok := db.cache.get(key); ok {
		s.release()
		return v, nil
	}
	s.upgradeToWrite()
	defer s.release()
	if db.closed {
		return nil, ErrClosed
	}
	if v, ok := db.cache.peek(key); ok {
		return v, nil
	}
	ev := newEvaluator(db)
	v, err := compute(ev)
	if err != nil {
		return nil, err
	}
	if err := ev.flush(); err != nil {
		return nil, err
	}
	db.cache.put(key, v, CacheMemory, ev.deps)
	return v, nil
}

// Reads. Get methods evaluate through the same cached path as queries, so
// a Get after an equivalent query is a cache hit and vice versa.

// AxisNames lists all axes, sorted.
func (db *DB) AxisNames() ([]string, error) {
	return readLocked(db, db.storage.AxisNames)
}

// HasAxis reports whether an axis exists.
func (db *DB) HasAxis(name string) (bool, error) {
	return readLocked(db, func() (bool, error) { return db.storage.HasAxis(name) })
}

// AxisEntries returns the ordered entry names of an axis.
func (db *DB) AxisEntries(name string) ([]string, error) {
	return readLocked(db, func() ([]string, error) { return db.storage.AxisEntries(name) })
}

// ScalarNames lists all scalars, sorted.
func (db *DB) ScalarNames() ([]string, error) {
	return readLocked(db, db.storage.ScalarNames)
}

// HasScalar reports whether a scalar exists.
func (db *DB) HasScalar(name string) (bool, error) {
	return readLocked(db, func() (bool, error) { return db.storage.HasScalar(name) })
}

// VectorNames lists the vector properties of an axis, sorted.
func (db *DB) VectorNames(axis string) ([]string, error) {
	return readLocked(db, func() ([]string, error) { return db.storage.VectorNames(axis) })
}

// HasVector reports whether an axis has a vector property.
func (db *DB) HasVector(axis, name string) (bool, error) {
	return readLocked(db, func() (bool, error) { return db.storage.HasVector(axis, name) })
}

// HasMatrix reports whether a matrix exists under either orientation of
// the axis pair.
func (db *DB) HasMatrix(rowAxis, colAxis, name string) (bool, error) {
	return readLocked(db, func() (bool, error) {
		has, err := db.storage.HasMatrix(rowAxis, colAxis, name)
		if err != nil || has {
			return has, err
		}
		if rowAxis == colAxis {
			return false, nil
		}
		return db.storage.HasMatrix(colAxis, rowAxis, name)
	})
}

// MatrixNames lists the matrix properties stored under the exact
// orientation (rowAxis, colAxis), sorted.
func (db *DB) MatrixNames(rowAxis, colAxis string) ([]string, error) {
	return readLocked(db, func() ([]string, error) { return db.storage.MatrixNames(rowAxis, colAxis) })
}

func readLocked[T any](db *DB, read func() (T, error)) (T, error) {
	s := db.lock.read()
	defer s.release()
	if db.closed {
		var zero T
		return zero, ErrClosed
	}
	return read()
}

// GetScalar returns a stored scalar, or an error wrapping
// ErrMissingProperty when it does not exist.
func (db *DB) GetScalar(name string) (Value, error) {
	v, err := db.evalScalar(&query.ScalarQuery{Source: &query.ScalarLookup{Name: name}})
	if err != nil {
		return Value{}, err
	}
	return *v, nil
}

// GetVector returns a vector property of an axis, labeled with the axis
// entries.
func (db *DB) GetVector(axis, name string) (*Vector, error) {
	ast := &query.VectorQuery{Source: &query.VectorLookup{
		Axis:   query.FilteredAxis{Axis: axis},
		Lookup: query.AxisLookup{Property: query.PropertyLookup{Names: []string{name}}},
	}}
	return db.evalVector(ast)
}

// GetMatrix returns the matrix addressed by (rowAxis, colAxis, name) in
// row-major layout for that orientation, transposing through the layout
// cache if it is stored the other way around.
func (db *DB) GetMatrix(rowAxis, colAxis, name string) (*Matrix, error) {
	ast := &query.MatrixQuery{Lookup: query.MatrixLookup{
		Rows: query.FilteredAxis{Axis: rowAxis},
		Cols: query.FilteredAxis{Axis: colAxis},
		Name: name,
	}}
	return db.evalMatrix(ast)
}

// Mutations. Every mutator validates, writes through to the store, and
// synchronously invalidates the affected entity keys before releasing the
// write lock, so no later read can see a stale cached result.

// SetAxis creates an axis with the given ordered entries. Axes are
// create-only: redefining the entry list of a live axis would silently
// invalidate every property indexed by it, so an existing name is an
// error. Delete the axis first to rebuild it.
func (db *DB) SetAxis(name string, entries []string) error {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry]; dup {
			return fmt.Errorf("axis %q: duplicate entry %q", name, entry)
		}
		seen[entry] = struct{}{}
	}
	return db.mutate(func() error {
		has, err := db.storage.HasAxis(name)
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("axis %q already exists", name)
		}
		return db.storage.SetAxis(name, entries)
	}, axesKey, axisKey(name))
}

// DeleteAxis removes an axis and every vector and matrix indexed by it.
func (db *DB) DeleteAxis(name string) error {
	return db.mutate(func() error {
		err := db.storage.DeleteAxis(name)
		if err != nil {
			return fmt.Errorf("axis %q: %w", name, err)
		}
		return nil
	}, axesKey, axisKey(name))
}

// SetScalar creates or replaces a scalar.
func (db *DB) SetScalar(name string, v Value) error {
	return db.mutate(func() error {
		return db.storage.SetScalar(name, v)
	}, scalarKey(name))
}

// DeleteScalar removes a scalar.
func (db *DB) DeleteScalar(name string) error {
	return db.mutate(func() error {
		err := db.storage.DeleteScalar(name)
		if err != nil {
			return fmt.Errorf("scalar %q: %w", name, err)
		}
		return nil
	}, scalarKey(name))
}

// SetVector creates or replaces a vector property of an axis. The vector
// must hold one value per axis entry, in axis order.
func (db *DB) SetVector(axis, name string, vec *Vector) error {
	return db.mutate(func() error {
		entries, err := db.storage.AxisEntries(axis)
		if err != nil {
			return fmt.Errorf("axis %q: %w", axis, err)
		}
		if vec.Len() != len(entries) {
			return fmt.Errorf("vector %q: %d values for %d entries of axis %q",
				name, vec.Len(), len(entries), axis)
		}
		return db.storage.SetVector(axis, name, vec)
	}, vectorKey(axis, name))
}

// DeleteVector removes a vector property.
func (db *DB) DeleteVector(axis, name string) error {
	return db.mutate(func() error {
		err := db.storage.DeleteVector(axis, name)
		if err != nil {
			return fmt.Errorf("vector %q of axis %q: %w", name, axis, err)
		}
		return nil
	}, vectorKey(axis, name))
}

// SetMatrix creates or replaces a matrix property for an axis pair. The
// data is normalized to row-major for the given orientation before it is
// stored, and a copy stored under the opposite orientation is removed so
// the store never holds two divergent copies of the same matrix.
func (db *DB) SetMatrix(rowAxis, colAxis, name string, m *Matrix) error {
	return db.mutate(func() error {
		rows, err := db.storage.AxisEntries(rowAxis)
		if err != nil {
			return fmt.Errorf("axis %q: %w", rowAxis, err)
		}
		cols, err := db.storage.AxisEntries(colAxis)
		if err != nil {
			return fmt.Errorf("axis %q: %w", colAxis, err)
		}
		if len(m.Data) != len(rows)*len(cols) {
			return fmt.Errorf("matrix %q: %d values for %d x %d entries",
				name, len(m.Data), len(rows), len(cols))
		}
		stored := m
		if m.Layout == ColMajor {
			stored = m.relayout()
		}
		stored = &Matrix{RowAxis: rowAxis, ColAxis: colAxis, Rows: rows, Cols: cols, Layout: RowMajor, Data: stored.Data}
		if err := db.storage.SetMatrix(rowAxis, colAxis, name, stored); err != nil {
			return err
		}
		if rowAxis != colAxis {
			has, err := db.storage.HasMatrix(colAxis, rowAxis, name)
			if err != nil {
				return err
			}
			if has {
				if err := db.storage.DeleteMatrix(colAxis, rowAxis, name); err != nil {
					return err
				}
			}
		}
		return nil
	}, matrixInvalidationKeys(rowAxis, colAxis, name)...)
}

// DeleteMatrix removes a matrix, whichever orientation it is stored
// under.
func (db *DB) DeleteMatrix(rowAxis, colAxis, name string) error {
	return db.mutate(func() error {
		has, err := db.storage.HasMatrix(rowAxis, colAxis, name)
		if err != nil {
			return err
		}
		if has {
			return db.storage.DeleteMatrix(rowAxis, colAxis, name)
		}
		if rowAxis != colAxis {
			has, err = db.storage.HasMatrix(colAxis, rowAxis, name)
			if err != nil {
				return err
			}
			if has {
				return db.storage.DeleteMatrix(colAxis, rowAxis, name)
			}
		}
		return fmt.Errorf("matrix %q of axes %q, %q: %w", name, rowAxis, colAxis, ErrMissingProperty)
	}, matrixInvalidationKeys(rowAxis, colAxis, name)...)
}

// matrixInvalidationKeys covers both orientations and both relayout
// copies of one logical matrix.
func matrixInvalidationKeys(rowAxis, colAxis, name string) []string {
	keys := []string{
		matrixKey(rowAxis, colAxis, name),
		relayoutKey(rowAxis, colAxis, name),
	}
	if rowAxis != colAxis {
		keys = append(keys,
			matrixKey(colAxis, rowAxis, name),
			relayoutKey(colAxis, rowAxis, name),
		)
	}
	return keys
}

// Relayout persists the (rowAxis, colAxis) orientation of a matrix stored
// the other way around, so both orientations are served without a
// transpose from then on. A matrix over a single axis cannot hold a
// second copy, so relayouting it is an error; the query path still serves
// its transpose from the memory cache.
func (db *DB) Relayout(rowAxis, colAxis, name string) error {
	if rowAxis == colAxis {
		return fmt.Errorf("matrix %q of axis %q: %w", name, rowAxis, ErrSquareRelayout)
	}
	return db.mutate(func() error {
		has, err := db.storage.HasMatrix(rowAxis, colAxis, name)
		if err != nil {
			return err
		}
		if has {
			return nil // already materialized
		}
		has, err = db.storage.HasMatrix(colAxis, rowAxis, name)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("matrix %q of axes %q, %q: %w", name, rowAxis, colAxis, ErrMissingProperty)
		}
		src, err := db.storage.GetMatrix(colAxis, rowAxis, name)
		if err != nil {
			return err
		}
		rows, err := db.storage.AxisEntries(rowAxis)
		if err != nil {
			return err
		}
		cols, err := db.storage.AxisEntries(colAxis)
		if err != nil {
			return err
		}
		view := &Matrix{RowAxis: colAxis, ColAxis: rowAxis, Rows: cols, Cols: rows, Layout: RowMajor, Data: src.Data}
		t := view.relayout().transposedView() // (rowAxis, colAxis), row-major
		return db.storage.SetMatrix(rowAxis, colAxis, name, t)
	}, relayoutKey(colAxis, rowAxis, name))
}

func (db *DB) mutate(fn func() error, invalidate ...string) error {
	s := db.lock.write()
	defer s.release()
	if db.closed {
		return ErrClosed
	}
	if err := fn(); err != nil {
		return err
	}
	for _, key := range invalidate {
		db.cache.invalidate(key)
	}
	return nil
}

// Cache management.

// CacheStats returns the cache counters.
func (db *DB) CacheStats() CacheStats {
	s := db.lock.read()
	defer s.release()
	return db.cache.stats()
}

// ClearCache drops every cached result.
func (db *DB) ClearCache() {
	s := db.lock.write()
	defer s.release()
	db.cache.clear(nil)
}

// ClearCacheKind drops cached results of one kind: CacheStored entries
// cost a re-read to restore, CacheMemory entries a recomputation.
func (db *DB) ClearCacheKind(kind CacheKind) {
	s := db.lock.write()
	defer s.release()
	db.cache.clear(&kind)
}
