package axisdb

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// BlobStore implements Storage over a BlobBackend, one encoded blob per
// entity, run through a codec chain for compression and encryption.
//
// Blob keys are built from query-escaped names, so arbitrary axis and
// property names survive filesystems and object stores:
//
//	axes/<name>
//	scalars/<name>
//	vectors/<axis>/<name>
//	matrices/<rowAxis>,<colAxis>/<name>
type BlobStore struct {
	backend BlobBackend
	codec   Codec
	closed  bool
}

var _ Storage = (*BlobStore)(nil)

// NewBlobStore wraps a blob backend. The store owns the backend and
// closes it on Close.
func NewBlobStore(backend BlobBackend, codec Codec) (*BlobStore, error) {
	if codec == nil {
		codec = rawCodec{}
	}
	return &BlobStore{backend: backend, codec: codec}, nil
}

// NewFilesStore opens a directory-backed store, one file per entity.
func NewFilesStore(root string, codec Codec) (*BlobStore, error) {
	backend, err := NewFileBlobBackend(root)
	if err != nil {
		return nil, err
	}
	return NewBlobStore(backend, codec)
}

func escapeSeg(s string) string { return url.QueryEscape(s) }

func unescapeSeg(s string) (string, error) { return url.QueryUnescape(s) }

func axisBlobKey(name string) string { return "axes/" + escapeSeg(name) }

func scalarBlobKey(name string) string { return "scalars/" + escapeSeg(name) }

func vectorBlobKey(axis, name string) string {
	return "vectors/" + escapeSeg(axis) + "/" + escapeSeg(name)
}

func matrixBlobDir(rowAxis, colAxis string) string {
	return "matrices/" + escapeSeg(rowAxis) + "," + escapeSeg(colAxis) + "/"
}

func matrixBlobKey(rowAxis, colAxis, name string) string {
	return matrixBlobDir(rowAxis, colAxis) + escapeSeg(name)
}

func (s *BlobStore) get(key string) ([]byte, error) {
	data, err := s.backend.Get(key)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(data)
}

func (s *BlobStore) put(key string, data []byte) error {
	encoded, err := s.codec.Encode(data)
	if err != nil {
		return err
	}
	return s.backend.Put(key, encoded)
}

func (s *BlobStore) has(key string) (bool, error) {
	_, err := s.backend.Get(key)
	if errors.Is(err, ErrMissingProperty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// lastSegNames lists the unescaped final key segment of every blob under
// prefix, sorted.
func (s *BlobStore) lastSegNames(prefix string) ([]string, error) {
	keys, err := s.backend.List(prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		seg := key[strings.LastIndex(key, "/")+1:]
		name, err := unescapeSeg(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed blob key %q", ErrStoreContract, key)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *BlobStore) AxisNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.lastSegNames("axes/")
}

func (s *BlobStore) HasAxis(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.has(axisBlobKey(name))
}

func (s *BlobStore) AxisEntries(name string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.get(axisBlobKey(name))
	if err != nil {
		return nil, err
	}
	return decodeStrings(data)
}

func (s *BlobStore) SetAxis(name string, entries []string) error {
	if s.closed {
		return ErrClosed
	}
	return s.put(axisBlobKey(name), encodeStrings(entries))
}

func (s *BlobStore) DeleteAxis(name string) error {
	if s.closed {
		return ErrClosed
	}
	has, err := s.has(axisBlobKey(name))
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("axis %q: %w", name, ErrMissingProperty)
	}
	vectors, err := s.backend.List("vectors/" + escapeSeg(name) + "/")
	if err != nil {
		return err
	}
	matrices, err := s.backend.List("matrices/")
	if err != nil {
		return err
	}
	escaped := escapeSeg(name)
	for _, key := range matrices {
		pair := strings.TrimPrefix(key, "matrices/")
		pair = pair[:strings.Index(pair, "/")]
		row, col, _ := strings.Cut(pair, ",")
		if row == escaped || col == escaped {
			vectors = append(vectors, key)
		}
	}
	for _, key := range vectors {
		if err := s.backend.Delete(key); err != nil {
			return err
		}
	}
	return s.backend.Delete(axisBlobKey(name))
}

func (s *BlobStore) ScalarNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.lastSegNames("scalars/")
}

func (s *BlobStore) HasScalar(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.has(scalarBlobKey(name))
}

func (s *BlobStore) GetScalar(name string) (Value, error) {
	if s.closed {
		return Value{}, ErrClosed
	}
	data, err := s.get(scalarBlobKey(name))
	if err != nil {
		return Value{}, err
	}
	return decodeScalar(data)
}

func (s *BlobStore) SetScalar(name string, v Value) error {
	if s.closed {
		return ErrClosed
	}
	return s.put(scalarBlobKey(name), encodeScalar(v))
}

func (s *BlobStore) DeleteScalar(name string) error {
	if s.closed {
		return ErrClosed
	}
	has, err := s.has(scalarBlobKey(name))
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("scalar %q: %w", name, ErrMissingProperty)
	}
	return s.backend.Delete(scalarBlobKey(name))
}

func (s *BlobStore) VectorNames(axis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.lastSegNames("vectors/" + escapeSeg(axis) + "/")
}

func (s *BlobStore) HasVector(axis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.has(vectorBlobKey(axis, name))
}

func (s *BlobStore) GetVector(axis, name string) (*Vector, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.get(vectorBlobKey(axis, name))
	if err != nil {
		return nil, err
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, err
	}
	vec.Axis = axis
	return vec, nil
}

func (s *BlobStore) SetVector(axis, name string, vec *Vector) error {
	if s.closed {
		return ErrClosed
	}
	return s.put(vectorBlobKey(axis, name), encodeVector(vec))
}

func (s *BlobStore) DeleteVector(axis, name string) error {
	if s.closed {
		return ErrClosed
	}
	has, err := s.has(vectorBlobKey(axis, name))
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("vector %q of axis %q: %w", name, axis, ErrMissingProperty)
	}
	return s.backend.Delete(vectorBlobKey(axis, name))
}

func (s *BlobStore) MatrixNames(rowAxis, colAxis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.lastSegNames(matrixBlobDir(rowAxis, colAxis))
}

func (s *BlobStore) HasMatrix(rowAxis, colAxis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.has(matrixBlobKey(rowAxis, colAxis, name))
}

func (s *BlobStore) GetMatrix(rowAxis, colAxis, name string) (*Matrix, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.get(matrixBlobKey(rowAxis, colAxis, name))
	if err != nil {
		return nil, err
	}
	m, err := decodeMatrix(data)
	if err != nil {
		return nil, err
	}
	m.RowAxis, m.ColAxis = rowAxis, colAxis
	return m, nil
}

func (s *BlobStore) SetMatrix(rowAxis, colAxis, name string, m *Matrix) error {
	if s.closed {
		return ErrClosed
	}
	return s.put(matrixBlobKey(rowAxis, colAxis, name), encodeMatrix(m))
}

func (s *BlobStore) DeleteMatrix(rowAxis, colAxis, name string) error {
	if s.closed {
		return ErrClosed
	}
	has, err := s.has(matrixBlobKey(rowAxis, colAxis, name))
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("matrix %q of axes %q, %q: %w", name, rowAxis, colAxis, ErrMissingProperty)
	}
	return s.backend.Delete(matrixBlobKey(rowAxis, colAxis, name))
}

func (s *BlobStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
