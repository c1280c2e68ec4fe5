package axisdb

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/axisdb/axisdb/internal/testutil"
)

func TestSnappyCodecRoundTrip(t *testing.T) {
	codec := snappyCodec{}
	data := bytes.Repeat([]byte("axisdb"), 100)
	enc, err := codec.Encode(data)
	must(t, err)
	if len(enc) >= len(data) {
		t.Errorf("repetitive data did not compress: %d -> %d", len(data), len(enc))
	}
	dec, err := codec.Decode(enc)
	must(t, err)
	if !bytes.Equal(dec, data) {
		t.Error("round trip mismatch")
	}
	if _, err := codec.Decode([]byte("not snappy")); err == nil {
		t.Error("garbage decoded without error")
	}
}

func TestEncryptionCodecRoundTrip(t *testing.T) {
	codec, err := newEncryptionCodec(rawCodec{}, "secret")
	must(t, err)
	data := []byte("the plaintext")
	enc, err := codec.Encode(data)
	must(t, err)
	if bytes.Contains(enc, data) {
		t.Error("ciphertext contains the plaintext")
	}
	dec, err := codec.Decode(enc)
	must(t, err)
	if !bytes.Equal(dec, data) {
		t.Error("round trip mismatch")
	}

	// Two encodings of the same data differ because each blob gets a
	// fresh nonce.
	enc2, err := codec.Encode(data)
	must(t, err)
	if bytes.Equal(enc, enc2) {
		t.Error("nonce was reused")
	}

	// A codec with a different salt but the same passphrase still reads
	// the blob.
	other, err := newEncryptionCodec(rawCodec{}, "secret")
	must(t, err)
	dec, err = other.Decode(enc)
	must(t, err)
	if !bytes.Equal(dec, data) {
		t.Error("cross-instance decode mismatch")
	}
}

func TestEncryptionCodecWrongPassphrase(t *testing.T) {
	codec, err := newEncryptionCodec(rawCodec{}, "secret")
	must(t, err)
	enc, err := codec.Encode([]byte("payload"))
	must(t, err)

	wrong, err := newEncryptionCodec(rawCodec{}, "not secret")
	must(t, err)
	if _, err := wrong.Decode(enc); err == nil {
		t.Error("wrong passphrase decoded the blob")
	}

	// Tampering breaks authentication.
	enc[len(enc)-1] ^= 0xff
	if _, err := codec.Decode(enc); err == nil {
		t.Error("tampered blob decoded")
	}
	if _, err := codec.Decode([]byte("short")); !errors.Is(err, ErrStoreContract) {
		t.Errorf("short blob err = %v", err)
	}
}

func TestEntityBlobRoundTrips(t *testing.T) {
	entries := []string{"A", "", "with spaces", "uniçode"}
	got, err := decodeStrings(encodeStrings(entries))
	must(t, err)
	if !testutil.StringsEqual(got, entries) {
		t.Errorf("strings = %v", got)
	}

	for _, v := range []Value{
		FloatValue(2.5),
		FloatValue(math.Inf(1)),
		StringValue("hello"),
		BoolValue(true),
		BoolValue(false),
	} {
		dec, err := decodeScalar(encodeScalar(v))
		must(t, err)
		if dec != v {
			t.Errorf("scalar %v round-tripped to %v", v, dec)
		}
	}

	vec := NewFloatVector("cell", nil, []float64{1, math.NaN(), -3})
	decVec, err := decodeVector(encodeVector(vec))
	must(t, err)
	if decVec.Kind != KindFloat || !testutil.FloatsEqual(decVec.Floats, vec.Floats) {
		t.Errorf("float vector = %v", decVec.Floats)
	}
	decVec, err = decodeVector(encodeVector(NewBoolVector("cell", nil, []bool{true, false})))
	must(t, err)
	if !testutil.BoolsEqual(decVec.Bools, []bool{true, false}) {
		t.Errorf("bool vector = %v", decVec.Bools)
	}

	m := NewMatrix("r", "c", []string{"a", "b"}, []string{"x", "y", "z"}, []float64{1, 2, 3, 4, 5, 6})
	decM, err := decodeMatrix(encodeMatrix(m))
	must(t, err)
	if len(decM.Rows) != 2 || len(decM.Cols) != 3 {
		t.Errorf("matrix dims = %dx%d", len(decM.Rows), len(decM.Cols))
	}
	if decM.Layout != RowMajor || !testutil.FloatsEqual(decM.Data, m.Data) {
		t.Errorf("matrix data = %v", decM.Data)
	}
}

func TestBlobFormatMismatch(t *testing.T) {
	if _, err := decodeScalar(encodeStrings([]string{"a"})); !errors.Is(err, ErrStoreContract) {
		t.Errorf("scalar from string blob err = %v", err)
	}
	if _, err := decodeVector(encodeScalar(FloatValue(1))); !errors.Is(err, ErrStoreContract) {
		t.Errorf("vector from scalar blob err = %v", err)
	}
	if _, err := decodeMatrix(nil); !errors.Is(err, ErrStoreContract) {
		t.Errorf("matrix from empty blob err = %v", err)
	}
	if _, err := decodeStrings([]byte{blobFormatStrings, 0xff}); !errors.Is(err, ErrStoreContract) {
		t.Errorf("truncated blob err = %v", err)
	}
}
