package axisdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

// Compression codec names for FilesConfig.Compression.
const (
	CompressionSnappy = "snappy"
	CompressionNone   = "none"
)

// Codec transforms encoded entity blobs before they hit the blob backend
// and back on the way out. Codecs stack: compression first, encryption on
// the outside.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

type rawCodec struct{}

func (rawCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (rawCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type snappyCodec struct{}

func (snappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	return out, nil
}

// Entity wire format. Every blob starts with a format byte so a decoder
// can reject blobs written by a different entity type or a future format
// revision.
const (
	blobFormatStrings byte = 1 // axis entry lists
	blobFormatScalar  byte = 2
	blobFormatVector  byte = 3
	blobFormatMatrix  byte = 4
)

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeFloat(buf *bytes.Buffer, f float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	buf.Write(tmp[:])
}

type blobReader struct {
	data []byte
	pos  int
}

func (r *blobReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated varint", ErrStoreContract)
	}
	r.pos += n
	return v, nil
}

func (r *blobReader) str() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", fmt.Errorf("%w: truncated string", ErrStoreContract)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *blobReader) float() (float64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("%w: truncated float", ErrStoreContract)
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *blobReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated blob", ErrStoreContract)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func encodeStrings(values []string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(blobFormatStrings)
	writeUvarint(buf, uint64(len(values)))
	for _, v := range values {
		writeString(buf, v)
	}
	return buf.Bytes()
}

func decodeStrings(data []byte) ([]string, error) {
	r := &blobReader{data: data}
	format, err := r.byte()
	if err != nil {
		return nil, err
	}
	if format != blobFormatStrings {
		return nil, fmt.Errorf("%w: blob format %d, want string list", ErrStoreContract, format)
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = r.str(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeScalar(v Value) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(blobFormatScalar)
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindFloat:
		writeFloat(buf, v.Float)
	case KindString:
		writeString(buf, v.Str)
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func decodeScalar(data []byte) (Value, error) {
	r := &blobReader{data: data}
	format, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	if format != blobFormatScalar {
		return Value{}, fmt.Errorf("%w: blob format %d, want scalar", ErrStoreContract, format)
	}
	kind, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	switch Kind(kind) {
	case KindFloat:
		f, err := r.float()
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case KindString:
		s, err := r.str()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case KindBool:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b != 0), nil
	}
	return Value{}, fmt.Errorf("%w: unknown scalar kind %d", ErrStoreContract, kind)
}

func encodeVector(vec *Vector) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(blobFormatVector)
	buf.WriteByte(byte(vec.Kind))
	writeUvarint(buf, uint64(vec.Len()))
	switch vec.Kind {
	case KindFloat:
		for _, v := range vec.Floats {
			writeFloat(buf, v)
		}
	case KindString:
		for _, v := range vec.Strs {
			writeString(buf, v)
		}
	case KindBool:
		for _, v := range vec.Bools {
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	}
	return buf.Bytes()
}

func decodeVector(data []byte) (*Vector, error) {
	r := &blobReader{data: data}
	format, err := r.byte()
	if err != nil {
		return nil, err
	}
	if format != blobFormatVector {
		return nil, fmt.Errorf("%w: blob format %d, want vector", ErrStoreContract, format)
	}
	kind, err := r.byte()
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	vec := &Vector{Kind: Kind(kind)}
	switch vec.Kind {
	case KindFloat:
		vec.Floats = make([]float64, n)
		for i := range vec.Floats {
			if vec.Floats[i], err = r.float(); err != nil {
				return nil, err
			}
		}
	case KindString:
		vec.Strs = make([]string, n)
		for i := range vec.Strs {
			if vec.Strs[i], err = r.str(); err != nil {
				return nil, err
			}
		}
	case KindBool:
		vec.Bools = make([]bool, n)
		for i := range vec.Bools {
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			vec.Bools[i] = b != 0
		}
	default:
		return nil, fmt.Errorf("%w: unknown vector kind %d", ErrStoreContract, kind)
	}
	return vec, nil
}

// encodeMatrix writes the row-major data with its dimensions. Labels are
// not stored; they are the axis entry lists.
func encodeMatrix(m *Matrix) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(blobFormatMatrix)
	writeUvarint(buf, uint64(len(m.Rows)))
	writeUvarint(buf, uint64(len(m.Cols)))
	for _, v := range m.Data {
		writeFloat(buf, v)
	}
	return buf.Bytes()
}

func decodeMatrix(data []byte) (*Matrix, error) {
	r := &blobReader{data: data}
	format, err := r.byte()
	if err != nil {
		return nil, err
	}
	if format != blobFormatMatrix {
		return nil, fmt.Errorf("%w: blob format %d, want matrix", ErrStoreContract, format)
	}
	nr, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	nc, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	m := &Matrix{Layout: RowMajor, Data: make([]float64, nr*nc)}
	m.Rows = make([]string, nr)
	m.Cols = make([]string, nc)
	for i := range m.Data {
		if m.Data[i], err = r.float(); err != nil {
			return nil, err
		}
	}
	return m, nil
}
