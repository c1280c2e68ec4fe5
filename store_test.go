package axisdb

import (
	"errors"
	"testing"

	"github.com/axisdb/axisdb/internal/testutil"
)

// testStorageContract exercises one Storage implementation against the
// behavior the engine relies on.
func testStorageContract(t *testing.T, open func(t *testing.T) Storage) {
	t.Helper()
	s := open(t)
	t.Cleanup(func() { _ = s.Close() })

	// Axes.
	must(t, s.SetAxis("cell", []string{"A", "B", "C"}))
	must(t, s.SetAxis("gene", []string{"g1", "g2"}))
	names, err := s.AxisNames()
	must(t, err)
	if !testutil.StringsEqual(names, []string{"cell", "gene"}) {
		t.Fatalf("axes = %v", names)
	}
	entries, err := s.AxisEntries("cell")
	must(t, err)
	if !testutil.StringsEqual(entries, []string{"A", "B", "C"}) {
		t.Fatalf("entries = %v", entries)
	}
	has, err := s.HasAxis("cell")
	must(t, err)
	if !has {
		t.Fatal("HasAxis(cell) = false")
	}
	if _, err := s.AxisEntries("nosuch"); !errors.Is(err, ErrMissingProperty) {
		t.Fatalf("missing axis err = %v", err)
	}

	// Scalars of every kind.
	must(t, s.SetScalar("f", FloatValue(2.5)))
	must(t, s.SetScalar("s", StringValue("hello")))
	must(t, s.SetScalar("b", BoolValue(true)))
	for name, want := range map[string]Value{
		"f": FloatValue(2.5), "s": StringValue("hello"), "b": BoolValue(true),
	} {
		got, err := s.GetScalar(name)
		must(t, err)
		if got != want {
			t.Errorf("scalar %q = %v, want %v", name, got, want)
		}
	}
	snames, err := s.ScalarNames()
	must(t, err)
	if !testutil.StringsEqual(snames, []string{"b", "f", "s"}) {
		t.Errorf("scalars = %v", snames)
	}
	if _, err := s.GetScalar("nosuch"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("missing scalar err = %v", err)
	}

	// Vectors of every kind.
	must(t, s.SetVector("cell", "age", NewFloatVector("cell", nil, []float64{1, 2, 3})))
	must(t, s.SetVector("cell", "type", NewStringVector("cell", nil, []string{"T", "B", "T"})))
	must(t, s.SetVector("cell", "ok", NewBoolVector("cell", nil, []bool{true, false, true})))
	vec, err := s.GetVector("cell", "age")
	must(t, err)
	if vec.Kind != KindFloat || !testutil.FloatsEqual(vec.Floats, []float64{1, 2, 3}) {
		t.Errorf("age = %v", vec.Floats)
	}
	vec, err = s.GetVector("cell", "type")
	must(t, err)
	if !testutil.StringsEqual(vec.Strs, []string{"T", "B", "T"}) {
		t.Errorf("type = %v", vec.Strs)
	}
	vec, err = s.GetVector("cell", "ok")
	must(t, err)
	if !testutil.BoolsEqual(vec.Bools, []bool{true, false, true}) {
		t.Errorf("ok = %v", vec.Bools)
	}
	vnames, err := s.VectorNames("cell")
	must(t, err)
	if !testutil.StringsEqual(vnames, []string{"age", "ok", "type"}) {
		t.Errorf("vectors = %v", vnames)
	}
	if _, err := s.GetVector("cell", "nosuch"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("missing vector err = %v", err)
	}

	// Matrices.
	must(t, s.SetMatrix("cell", "gene", "expr",
		NewMatrix("cell", "gene", []string{"A", "B", "C"}, []string{"g1", "g2"}, []float64{1, 2, 3, 4, 5, 6})))
	m, err := s.GetMatrix("cell", "gene", "expr")
	must(t, err)
	if !testutil.FloatsEqual(m.Data, []float64{1, 2, 3, 4, 5, 6}) {
		t.Errorf("matrix data = %v", m.Data)
	}
	if len(m.Rows) != 3 || len(m.Cols) != 2 {
		t.Errorf("matrix dims = %dx%d, want 3x2", len(m.Rows), len(m.Cols))
	}
	// Orientation is exact: the transposed key does not exist.
	has, err = s.HasMatrix("gene", "cell", "expr")
	must(t, err)
	if has {
		t.Error("HasMatrix must not match the opposite orientation")
	}
	mnames, err := s.MatrixNames("cell", "gene")
	must(t, err)
	if !testutil.StringsEqual(mnames, []string{"expr"}) {
		t.Errorf("matrices = %v", mnames)
	}

	// Deletes.
	must(t, s.DeleteScalar("b"))
	if _, err := s.GetScalar("b"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("deleted scalar err = %v", err)
	}
	if err := s.DeleteScalar("b"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("double delete err = %v", err)
	}
	must(t, s.DeleteVector("cell", "ok"))
	if _, err := s.GetVector("cell", "ok"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("deleted vector err = %v", err)
	}

	// Axis deletion cascades to its vectors and matrices.
	must(t, s.DeleteAxis("cell"))
	if _, err := s.AxisEntries("cell"); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("deleted axis err = %v", err)
	}
	has, err = s.HasVector("cell", "age")
	must(t, err)
	if has {
		t.Error("axis deletion must remove its vectors")
	}
	has, err = s.HasMatrix("cell", "gene", "expr")
	must(t, err)
	if has {
		t.Error("axis deletion must remove its matrices")
	}
	has, err = s.HasAxis("gene")
	must(t, err)
	if !has {
		t.Error("unrelated axis must survive")
	}
}

func TestMemoryStoreContract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		return NewMemoryStore()
	})
}

func TestFilesStoreContract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewFilesStore(t.TempDir(), snappyCodec{})
		must(t, err)
		return s
	})
}

func TestFilesStoreEncryptedContract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		codec, err := newEncryptionCodec(snappyCodec{}, "secret")
		must(t, err)
		s, err := NewFilesStore(t.TempDir(), codec)
		must(t, err)
		return s
	})
}

func TestBlobStoreMemoryContract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewBlobStore(NewMemoryBlobBackend(), nil)
		must(t, err)
		return s
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		_, path := testutil.TempDBPath(t)
		s, err := NewSQLiteStore(path)
		must(t, err)
		return s
	})
}

func TestFilesStorePersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFilesStore(dir, snappyCodec{})
	must(t, err)
	must(t, s.SetAxis("weird/axis name", []string{"e1", "e2"}))
	must(t, s.SetVector("weird/axis name", "v+x", NewFloatVector("", nil, []float64{1, 2})))
	must(t, s.Close())

	// Reopen and read back, including names that need key escaping.
	s2, err := NewFilesStore(dir, snappyCodec{})
	must(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	entries, err := s2.AxisEntries("weird/axis name")
	must(t, err)
	if !testutil.StringsEqual(entries, []string{"e1", "e2"}) {
		t.Errorf("entries = %v", entries)
	}
	names, err := s2.AxisNames()
	must(t, err)
	if !testutil.StringsEqual(names, []string{"weird/axis name"}) {
		t.Errorf("axes = %v", names)
	}
	vec, err := s2.GetVector("weird/axis name", "v+x")
	must(t, err)
	if !testutil.FloatsEqual(vec.Floats, []float64{1, 2}) {
		t.Errorf("vector = %v", vec.Floats)
	}
}

func TestSQLiteStorePersistence(t *testing.T) {
	_, path := testutil.TempDBPath(t)
	s, err := NewSQLiteStore(path)
	must(t, err)
	must(t, s.SetAxis("cell", []string{"A", "B"}))
	must(t, s.SetMatrix("cell", "cell", "dist",
		NewMatrix("cell", "cell", nil, nil, []float64{0, 1, 1, 0})))
	must(t, s.Close())

	s2, err := NewSQLiteStore(path)
	must(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	m, err := s2.GetMatrix("cell", "cell", "dist")
	must(t, err)
	if !testutil.FloatsEqual(m.Data, []float64{0, 1, 1, 0}) {
		t.Errorf("matrix = %v", m.Data)
	}
}

func TestCopyStorage(t *testing.T) {
	src := NewMemoryStore()
	db := New(src, DefaultConfig())
	fillTestData(t, db)

	dst, err := NewFilesStore(t.TempDir(), snappyCodec{})
	must(t, err)
	t.Cleanup(func() { _ = dst.Close() })
	must(t, CopyStorage(dst, src))

	entries, err := dst.AxisEntries("cell")
	must(t, err)
	if !testutil.StringsEqual(entries, []string{"A", "B", "C"}) {
		t.Errorf("entries = %v", entries)
	}
	vec, err := dst.GetVector("cell", "age")
	must(t, err)
	if !testutil.FloatsEqual(vec.Floats, []float64{0.5, 1.5, 2.5}) {
		t.Errorf("age = %v", vec.Floats)
	}
	m, err := dst.GetMatrix("cell", "gene", "expr")
	must(t, err)
	if !testutil.FloatsEqual(m.Data, []float64{1, 2, 3, 4, 5, 6}) {
		t.Errorf("expr = %v", m.Data)
	}
	v, err := dst.GetScalar("version")
	must(t, err)
	if v.Str != "v1" {
		t.Errorf("version = %v", v)
	}

	// A second engine over the copy answers the same queries.
	db2 := New(dst, DefaultConfig())
	got, err := db2.ScalarQuery("cell @ age %> sum")
	must(t, err)
	if got.Float != 4.5 {
		t.Errorf("sum over the copy = %v, want 4.5", got.Float)
	}
}
