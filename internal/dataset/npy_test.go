package dataset

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// buildNPY assembles a raw NPY byte stream with an arbitrary header dict,
// so tests can exercise malformed and legacy layouts the writer never
// produces.
func buildNPY(version byte, dict string, payload []byte) []byte {
	raw := append([]byte{}, npyMagic...)
	raw = append(raw, version, 0)
	if version == 1 {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(len(dict)))
	} else {
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(dict)))
	}
	raw = append(raw, dict...)
	return append(raw, payload...)
}

func TestNPYRoundTrip(t *testing.T) {
	shapes := [][]int{{5}, {2, 3}, {2, 3, 4}}
	for _, shape := range shapes {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(i) - 0.5
		}

		raw, err := WriteNPY(shape, data)
		if err != nil {
			t.Fatalf("WriteNPY(%v): %v", shape, err)
		}
		got, gotShape, err := ReadNPY(raw)
		if err != nil {
			t.Fatalf("ReadNPY(%v): %v", shape, err)
		}
		if len(gotShape) != len(shape) {
			t.Fatalf("shape %v came back as %v", shape, gotShape)
		}
		for i := range shape {
			if gotShape[i] != shape[i] {
				t.Fatalf("shape %v came back as %v", shape, gotShape)
			}
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("element %d = %v, want %v", i, got[i], data[i])
			}
		}
	}
}

func TestWriteNPYAlignsPayload(t *testing.T) {
	raw, err := WriteNPY([]int{3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	headerEnd := len(raw) - 3*8
	if headerEnd%64 != 0 {
		t.Errorf("payload starts at offset %d, want a multiple of 64", headerEnd)
	}
	if raw[headerEnd-1] != '\n' {
		t.Errorf("header does not end with newline")
	}
}

func TestReadNPYFloat32(t *testing.T) {
	want := []float64{1.5, -2.25, 0, 100}
	payload := make([]byte, 0, 4*len(want))
	for _, v := range want {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(float32(v)))
	}
	raw := buildNPY(1, "{'descr': '<f4', 'fortran_order': False, 'shape': (4,), }\n", payload)

	got, shape, err := ReadNPY(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(shape) != 1 || shape[0] != 4 {
		t.Fatalf("shape = %v, want (4,)", shape)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadNPYVersion2(t *testing.T) {
	payload := binary.LittleEndian.AppendUint64(nil, math.Float64bits(42))
	raw := buildNPY(2, "{'descr': '<f8', 'fortran_order': False, 'shape': (1,), }\n", payload)

	got, _, err := ReadNPY(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 42 {
		t.Errorf("element 0 = %v, want 42", got[0])
	}
}

func TestReadNPYKeyOrderInsensitive(t *testing.T) {
	payload := binary.LittleEndian.AppendUint64(nil, math.Float64bits(-1))
	raw := buildNPY(1, "{'shape': (1,), 'fortran_order': False, 'descr': '<f8'}\n", payload)
	if _, _, err := ReadNPY(raw); err != nil {
		t.Fatalf("reordered header rejected: %v", err)
	}
}

func TestReadNPYErrors(t *testing.T) {
	f8 := func(vs ...float64) []byte {
		var b []byte
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
		}
		return b
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"short file", []byte{0x93, 'N', 'U'}},
		{"bad magic", buildNPY(1, "{'descr': '<f8', 'fortran_order': False, 'shape': (1,)}", f8(1))[2:]},
		{"unsupported version", buildNPY(9, "{'descr': '<f8', 'fortran_order': False, 'shape': (1,)}", f8(1))},
		{"fortran order", buildNPY(1, "{'descr': '<f8', 'fortran_order': True, 'shape': (1,)}", f8(1))},
		{"object dtype", buildNPY(1, "{'descr': '|O', 'fortran_order': False, 'shape': (1,)}", f8(1))},
		{"big endian dtype", buildNPY(1, "{'descr': '>f8', 'fortran_order': False, 'shape': (1,)}", f8(1))},
		{"missing shape", buildNPY(1, "{'descr': '<f8', 'fortran_order': False}", f8(1))},
		{"short payload", buildNPY(1, "{'descr': '<f8', 'fortran_order': False, 'shape': (3,)}", f8(1))},
		{"long payload", buildNPY(1, "{'descr': '<f8', 'fortran_order': False, 'shape': (1,)}", f8(1, 2))},
		{"negative dim", buildNPY(1, "{'descr': '<f8', 'fortran_order': False, 'shape': (-1,)}", f8(1))},
	}
	for _, tc := range cases {
		if _, _, err := ReadNPY(tc.raw); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestWriteNPYShapeMismatch(t *testing.T) {
	if _, err := WriteNPY([]int{2, 2}, []float64{1, 2, 3}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}
