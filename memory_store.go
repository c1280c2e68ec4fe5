package axisdb

import "sort"

// MemoryStore keeps everything in process memory. It is the default
// backend and the reference implementation of the Storage contract.
type MemoryStore struct {
	axes     map[string][]string
	scalars  map[string]Value
	vectors  map[string]map[string]*Vector // axis -> name -> vector
	matrices map[string]map[string]*Matrix // pairKey(row,col) -> name -> matrix
	closed   bool
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		axes:     make(map[string][]string),
		scalars:  make(map[string]Value),
		vectors:  make(map[string]map[string]*Vector),
		matrices: make(map[string]map[string]*Matrix),
	}
}

func (s *MemoryStore) AxisNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(s.axes))
	for name := range s.axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) HasAxis(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.axes[name]
	return ok, nil
}

func (s *MemoryStore) AxisEntries(name string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	entries, ok := s.axes[name]
	if !ok {
		return nil, ErrMissingProperty
	}
	return entries, nil
}

func (s *MemoryStore) SetAxis(name string, entries []string) error {
	if s.closed {
		return ErrClosed
	}
	s.axes[name] = entries
	return nil
}

func (s *MemoryStore) DeleteAxis(name string) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.axes[name]; !ok {
		return ErrMissingProperty
	}
	delete(s.axes, name)
	delete(s.vectors, name)
	for key := range s.matrices {
		row, col := splitPairKey(key)
		if row == name || col == name {
			delete(s.matrices, key)
		}
	}
	return nil
}

func (s *MemoryStore) ScalarNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(s.scalars))
	for name := range s.scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) HasScalar(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.scalars[name]
	return ok, nil
}

func (s *MemoryStore) GetScalar(name string) (Value, error) {
	if s.closed {
		return Value{}, ErrClosed
	}
	v, ok := s.scalars[name]
	if !ok {
		return Value{}, ErrMissingProperty
	}
	return v, nil
}

func (s *MemoryStore) SetScalar(name string, v Value) error {
	if s.closed {
		return ErrClosed
	}
	s.scalars[name] = v
	return nil
}

func (s *MemoryStore) DeleteScalar(name string) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.scalars[name]; !ok {
		return ErrMissingProperty
	}
	delete(s.scalars, name)
	return nil
}

func (s *MemoryStore) VectorNames(axis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(s.vectors[axis]))
	for name := range s.vectors[axis] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) HasVector(axis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.vectors[axis][name]
	return ok, nil
}

func (s *MemoryStore) GetVector(axis, name string) (*Vector, error) {
	if s.closed {
		return nil, ErrClosed
	}
	vec, ok := s.vectors[axis][name]
	if !ok {
		return nil, ErrMissingProperty
	}
	return vec, nil
}

func (s *MemoryStore) SetVector(axis, name string, vec *Vector) error {
	if s.closed {
		return ErrClosed
	}
	if s.vectors[axis] == nil {
		s.vectors[axis] = make(map[string]*Vector)
	}
	s.vectors[axis][name] = vec
	return nil
}

func (s *MemoryStore) DeleteVector(axis, name string) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.vectors[axis][name]; !ok {
		return ErrMissingProperty
	}
	delete(s.vectors[axis], name)
	return nil
}

func (s *MemoryStore) MatrixNames(rowAxis, colAxis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	pair := pairKey(rowAxis, colAxis)
	names := make([]string, 0, len(s.matrices[pair]))
	for name := range s.matrices[pair] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) HasMatrix(rowAxis, colAxis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.matrices[pairKey(rowAxis, colAxis)][name]
	return ok, nil
}

func (s *MemoryStore) GetMatrix(rowAxis, colAxis, name string) (*Matrix, error) {
	if s.closed {
		return nil, ErrClosed
	}
	m, ok := s.matrices[pairKey(rowAxis, colAxis)][name]
	if !ok {
		return nil, ErrMissingProperty
	}
	return m, nil
}

func (s *MemoryStore) SetMatrix(rowAxis, colAxis, name string, m *Matrix) error {
	if s.closed {
		return ErrClosed
	}
	pair := pairKey(rowAxis, colAxis)
	if s.matrices[pair] == nil {
		s.matrices[pair] = make(map[string]*Matrix)
	}
	s.matrices[pair][name] = m
	return nil
}

func (s *MemoryStore) DeleteMatrix(rowAxis, colAxis, name string) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.matrices[pairKey(rowAxis, colAxis)][name]; !ok {
		return ErrMissingProperty
	}
	delete(s.matrices[pairKey(rowAxis, colAxis)], name)
	return nil
}

func (s *MemoryStore) Close() error {
	s.closed = true
	return nil
}
