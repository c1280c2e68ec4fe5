package axisdb

// CountingStore wraps a Storage and counts every read and write reaching
// the underlying store. It exposes how much work the result cache is
// absorbing: a repeated query should add zero reads.
type CountingStore struct {
	inner Storage

	// Reads counts entity reads (Get and AxisEntries calls).
	Reads int
	// Writes counts entity writes and deletes.
	Writes int
	// Lookups counts existence and name-listing calls.
	Lookups int
}

var _ Storage = (*CountingStore)(nil)

// NewCountingStore wraps an existing store.
func NewCountingStore(inner Storage) *CountingStore {
	return &CountingStore{inner: inner}
}

// Reset zeroes the counters.
func (s *CountingStore) Reset() {
	s.Reads, s.Writes, s.Lookups = 0, 0, 0
}

func (s *CountingStore) AxisNames() ([]string, error) {
	s.Lookups++
	return s.inner.AxisNames()
}

func (s *CountingStore) HasAxis(name string) (bool, error) {
	s.Lookups++
	return s.inner.HasAxis(name)
}

func (s *CountingStore) AxisEntries(name string) ([]string, error) {
	s.Reads++
	return s.inner.AxisEntries(name)
}

func (s *CountingStore) SetAxis(name string, entries []string) error {
	s.Writes++
	return s.inner.SetAxis(name, entries)
}

func (s *CountingStore) DeleteAxis(name string) error {
	s.Writes++
	return s.inner.DeleteAxis(name)
}

func (s *CountingStore) ScalarNames() ([]string, error) {
	s.Lookups++
	return s.inner.ScalarNames()
}

func (s *CountingStore) HasScalar(name string) (bool, error) {
	s.Lookups++
	return s.inner.HasScalar(name)
}

func (s *CountingStore) GetScalar(name string) (Value, error) {
	s.Reads++
	return s.inner.GetScalar(name)
}

func (s *CountingStore) SetScalar(name string, v Value) error {
	s.Writes++
	return s.inner.SetScalar(name, v)
}

func (s *CountingStore) DeleteScalar(name string) error {
	s.Writes++
	return s.inner.DeleteScalar(name)
}

func (s *CountingStore) VectorNames(axis string) ([]string, error) {
	s.Lookups++
	return s.inner.VectorNames(axis)
}

func (s *CountingStore) HasVector(axis, name string) (bool, error) {
	s.Lookups++
	return s.inner.HasVector(axis, name)
}

func (s *CountingStore) GetVector(axis, name string) (*Vector, error) {
	s.Reads++
	return s.inner.GetVector(axis, name)
}

func (s *CountingStore) SetVector(axis, name string, vec *Vector) error {
	s.Writes++
	return s.inner.SetVector(axis, name, vec)
}

func (s *CountingStore) DeleteVector(axis, name string) error {
	s.Writes++
	return s.inner.DeleteVector(axis, name)
}

func (s *CountingStore) MatrixNames(rowAxis, colAxis string) ([]string, error) {
	s.Lookups++
	return s.inner.MatrixNames(rowAxis, colAxis)
}

func (s *CountingStore) HasMatrix(rowAxis, colAxis, name string) (bool, error) {
	s.Lookups++
	return s.inner.HasMatrix(rowAxis, colAxis, name)
}

func (s *CountingStore) GetMatrix(rowAxis, colAxis, name string) (*Matrix, error) {
	s.Reads++
	return s.inner.GetMatrix(rowAxis, colAxis, name)
}

func (s *CountingStore) SetMatrix(rowAxis, colAxis, name string, m *Matrix) error {
	s.Writes++
	return s.inner.SetMatrix(rowAxis, colAxis, name, m)
}

func (s *CountingStore) DeleteMatrix(rowAxis, colAxis, name string) error {
	s.Writes++
	return s.inner.DeleteMatrix(rowAxis, colAxis, name)
}

func (s *CountingStore) Close() error {
	return s.inner.Close()
}
