package axisdb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entities in a single SQLite database file, one row
// per entity with the same blob encoding the files backend uses. The data
// stays inspectable with standard SQLite tools.
type SQLiteStore struct {
	db     *sql.DB
	closed bool
}

var _ Storage = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS axes (
	name TEXT PRIMARY KEY,
	entries BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS scalars (
	name TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS vectors (
	axis TEXT NOT NULL,
	name TEXT NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (axis, name)
);
CREATE TABLE IF NOT EXISTS matrices (
	row_axis TEXT NOT NULL,
	col_axis TEXT NOT NULL,
	name TEXT NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (row_axis, col_axis, name)
);
`

// NewSQLiteStore opens or creates the database file.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// The engine serializes access; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) names(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) blob(query string, args ...any) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMissingProperty
	}
	return data, err
}

func (s *SQLiteStore) exists(query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) AxisNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.names(`SELECT name FROM axes ORDER BY name`)
}

func (s *SQLiteStore) HasAxis(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.exists(`SELECT 1 FROM axes WHERE name = ?`, name)
}

func (s *SQLiteStore) AxisEntries(name string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.blob(`SELECT entries FROM axes WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	return decodeStrings(data)
}

func (s *SQLiteStore) SetAxis(name string, entries []string) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`INSERT INTO axes (name, entries) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET entries = excluded.entries`,
		name, encodeStrings(entries))
	return err
}

func (s *SQLiteStore) DeleteAxis(name string) error {
	if s.closed {
		return ErrClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.Exec(`DELETE FROM axes WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("axis %q: %w", name, ErrMissingProperty)
	}
	if _, err := tx.Exec(`DELETE FROM vectors WHERE axis = ?`, name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM matrices WHERE row_axis = ? OR col_axis = ?`, name, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ScalarNames() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.names(`SELECT name FROM scalars ORDER BY name`)
}

func (s *SQLiteStore) HasScalar(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.exists(`SELECT 1 FROM scalars WHERE name = ?`, name)
}

func (s *SQLiteStore) GetScalar(name string) (Value, error) {
	if s.closed {
		return Value{}, ErrClosed
	}
	data, err := s.blob(`SELECT value FROM scalars WHERE name = ?`, name)
	if err != nil {
		return Value{}, err
	}
	return decodeScalar(data)
}

func (s *SQLiteStore) SetScalar(name string, v Value) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`INSERT INTO scalars (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, encodeScalar(v))
	return err
}

func (s *SQLiteStore) DeleteScalar(name string) error {
	if s.closed {
		return ErrClosed
	}
	res, err := s.db.Exec(`DELETE FROM scalars WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return requireAffected(res, "scalar %q", name)
}

func (s *SQLiteStore) VectorNames(axis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.names(`SELECT name FROM vectors WHERE axis = ? ORDER BY name`, axis)
}

func (s *SQLiteStore) HasVector(axis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.exists(`SELECT 1 FROM vectors WHERE axis = ? AND name = ?`, axis, name)
}

func (s *SQLiteStore) GetVector(axis, name string) (*Vector, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.blob(`SELECT data FROM vectors WHERE axis = ? AND name = ?`, axis, name)
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

func (s *SQLiteStore) SetVector(axis, name string, vec *Vector) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`INSERT INTO vectors (axis, name, data) VALUES (?, ?, ?)
		ON CONFLICT(axis, name) DO UPDATE SET data = excluded.data`,
		axis, name, encodeVector(vec))
	return err
}

func (s *SQLiteStore) DeleteVector(axis, name string) error {
	if s.closed {
		return ErrClosed
	}
	res, err := s.db.Exec(`DELETE FROM vectors WHERE axis = ? AND name = ?`, axis, name)
	if err != nil {
		return err
	}
	return requireAffected(res, "vector %q", name)
}

func (s *SQLiteStore) MatrixNames(rowAxis, colAxis string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.names(`SELECT name FROM matrices WHERE row_axis = ? AND col_axis = ? ORDER BY name`,
		rowAxis, colAxis)
}

func (s *SQLiteStore) HasMatrix(rowAxis, colAxis, name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	return s.exists(`SELECT 1 FROM matrices WHERE row_axis = ? AND col_axis = ? AND name = ?`,
		rowAxis, colAxis, name)
}

func (s *SQLiteStore) GetMatrix(rowAxis, colAxis, name string) (*Matrix, error) {
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.blob(`SELECT data FROM matrices WHERE row_axis = ? AND col_axis = ? AND name = ?`,
		rowAxis, colAxis, name)
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

func (s *SQLiteStore) SetMatrix(rowAxis, colAxis, name string, m *Matrix) error {
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`INSERT INTO matrices (row_axis, col_axis, name, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(row_axis, col_axis, name) DO UPDATE SET data = excluded.data`,
		rowAxis, colAxis, name, encodeMatrix(m))
	return err
}

func (s *SQLiteStore) DeleteMatrix(rowAxis, colAxis, name string) error {
	if s.closed {
		return ErrClosed
	}
	res, err := s.db.Exec(`DELETE FROM matrices WHERE row_axis = ? AND col_axis = ? AND name = ?`,
		rowAxis, colAxis, name)
	if err != nil {
		return err
	}
	return requireAffected(res, "matrix %q", name)
}

func requireAffected(res sql.Result, format, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", name, ErrMissingProperty)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
