package axisdb

import "strings"

// Storage is the persistence contract the engine runs on. Implementations
// hold named axes, scalars, per-axis vectors, and per-axis-pair matrices.
//
// Matrices are stored in a fixed orientation: SetMatrix(rowAxis, colAxis,
// name, m) stores m's data row-major for that orientation, and
// GetMatrix(rowAxis, colAxis, name) only finds matrices stored under that
// exact orientation. The engine, not the store, resolves the other
// orientation through relayout.
//
// Implementations are not required to be safe for concurrent use; the
// engine serializes all access behind its own lock.
type Storage interface {
	// AxisNames lists all axes, sorted.
	AxisNames() ([]string, error)
	// HasAxis reports whether an axis exists.
	HasAxis(name string) (bool, error)
	// AxisEntries returns the ordered entry names of an axis, or
	// ErrMissingProperty.
	AxisEntries(name string) ([]string, error)
	// SetAxis creates or replaces an axis.
	SetAxis(name string, entries []string) error
	// DeleteAxis removes an axis together with every vector and matrix
	// indexed by it.
	DeleteAxis(name string) error

	// ScalarNames lists all scalar names, sorted.
	ScalarNames() ([]string, error)
	HasScalar(name string) (bool, error)
	GetScalar(name string) (Value, error)
	SetScalar(name string, v Value) error
	DeleteScalar(name string) error

	// VectorNames lists the vector property names of an axis, sorted.
	VectorNames(axis string) ([]string, error)
	HasVector(axis, name string) (bool, error)
	GetVector(axis, name string) (*Vector, error)
	SetVector(axis, name string, vec *Vector) error
	DeleteVector(axis, name string) error

	// MatrixNames lists the matrix property names stored under the exact
	// orientation (rowAxis, colAxis), sorted.
	MatrixNames(rowAxis, colAxis string) ([]string, error)
	HasMatrix(rowAxis, colAxis, name string) (bool, error)
	GetMatrix(rowAxis, colAxis, name string) (*Matrix, error)
	SetMatrix(rowAxis, colAxis, name string, m *Matrix) error
	DeleteMatrix(rowAxis, colAxis, name string) error

	Close() error
}

// Entity keys name stored data inside the result cache's dependency index.
// Every cached result records the entity keys it read; mutating an entity
// invalidates the key and, transitively, everything that depends on it.

// axesKey covers the set of axis names. Chained lookups depend on it
// because axis inference consults the set.
const axesKey = "axes"

func axisKey(name string) string { return "axis " + name }

func scalarKey(name string) string { return "scalar " + name }

func vectorKey(axis, name string) string { return "vector " + axis + ":" + name }

func matrixKey(rowAxis, colAxis, name string) string {
	return "matrix " + rowAxis + "," + colAxis + "@" + name
}

// relayoutKey names the physically transposed copy of the stored matrix
// (rowAxis, colAxis, name), materialized row-major for that orientation.
func relayoutKey(rowAxis, colAxis, name string) string {
	return matrixKey(rowAxis, colAxis, name) + " relayout"
}

// Query result keys are prefixed by result shape so a query can never
// collide with an entity key.
func matrixQueryKey(canonical string) string { return "matrix query " + canonical }

func vectorQueryKey(canonical string) string { return "vector query " + canonical }

func scalarQueryKey(canonical string) string { return "scalar query " + canonical }

// pairKey builds the map key for a stored matrix orientation.
func pairKey(rowAxis, colAxis string) string { return rowAxis + "\x00" + colAxis }

func splitPairKey(key string) (rowAxis, colAxis string) {
	rowAxis, colAxis, _ = strings.Cut(key, "\x00")
	return rowAxis, colAxis
}
