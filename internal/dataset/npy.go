package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// NPY is the NumPy array file format. Estimators export ground-truth
// poses, hypothesis poses and confidence scores as .npy files, so the
// loader only needs little-endian float arrays in C order.
//
// Layout: 6-byte magic, 2 version bytes, a little-endian header length
// (uint16 for version 1.x, uint32 for 2.x and 3.x), an ASCII Python dict
// describing dtype and shape, then the raw element bytes.

var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

const (
	maxNPYHeaderLen = 1 << 20
	maxNPYElements  = 1 << 31
)

// ReadNPYFile reads and parses the NPY file at path.
func ReadNPYFile(path string) ([]float64, []int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read npy: %w", err)
	}
	data, shape, err := ReadNPY(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, shape, nil
}

// ReadNPY parses a NumPy array from raw bytes. Elements are returned in
// C (row-major) order as float64 regardless of the on-disk precision.
// Only little-endian '<f4' and '<f8' arrays are supported.
func ReadNPY(raw []byte) ([]float64, []int, error) {
	if len(raw) < len(npyMagic)+4 {
		return nil, nil, fmt.Errorf("%w: npy file too short (%d bytes)", ErrInvalidInput, len(raw))
	}
	for i, b := range npyMagic {
		if raw[i] != b {
			return nil, nil, fmt.Errorf("%w: bad npy magic", ErrInvalidInput)
		}
	}
	major, minor := raw[6], raw[7]

	var headerLen, headerStart int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(raw[8:10]))
		headerStart = 10
	case 2, 3:
		if len(raw) < 12 {
			return nil, nil, fmt.Errorf("%w: npy file too short for v%d header", ErrInvalidInput, major)
		}
		headerLen = int(binary.LittleEndian.Uint32(raw[8:12]))
		headerStart = 12
	default:
		return nil, nil, fmt.Errorf("%w: unsupported npy version %d.%d", ErrInvalidInput, major, minor)
	}
	if headerLen > maxNPYHeaderLen {
		return nil, nil, fmt.Errorf("%w: npy header length %d exceeds limit", ErrInvalidInput, headerLen)
	}
	if len(raw) < headerStart+headerLen {
		return nil, nil, fmt.Errorf("%w: truncated npy header", ErrInvalidInput)
	}

	descr, fortran, shape, err := parseNPYHeader(string(raw[headerStart : headerStart+headerLen]))
	if err != nil {
		return nil, nil, err
	}
	if fortran {
		return nil, nil, fmt.Errorf("%w: fortran_order npy arrays are not supported", ErrInvalidInput)
	}

	var elemSize int
	switch descr {
	case "<f4":
		elemSize = 4
	case "<f8":
		elemSize = 8
	default:
		return nil, nil, fmt.Errorf("%w: unsupported npy dtype %q", ErrInvalidInput, descr)
	}

	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, nil, fmt.Errorf("%w: negative npy dimension %d", ErrInvalidInput, d)
		}
		n *= d
		if n > maxNPYElements {
			return nil, nil, fmt.Errorf("%w: npy array of %v elements exceeds limit", ErrInvalidInput, shape)
		}
	}

	payload := raw[headerStart+headerLen:]
	if len(payload) != n*elemSize {
		return nil, nil, fmt.Errorf("%w: npy payload is %d bytes, want %d for shape %v",
			ErrInvalidInput, len(payload), n*elemSize, shape)
	}

	data := make([]float64, n)
	switch elemSize {
	case 4:
		for i := range data {
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
		}
	case 8:
		for i := range data {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
		}
	}
	return data, shape, nil
}

// parseNPYHeader extracts descr, fortran_order and shape from the ASCII
// dict literal NumPy writes. Key order in the dict is not assumed.
func parseNPYHeader(header string) (descr string, fortran bool, shape []int, err error) {
	descr, err = npyHeaderValue(header, "descr")
	if err != nil {
		return "", false, nil, err
	}
	descr = strings.Trim(descr, `'"`)

	order, err := npyHeaderValue(header, "fortran_order")
	if err != nil {
		return "", false, nil, err
	}
	switch order {
	case "True":
		fortran = true
	case "False":
		fortran = false
	default:
		return "", false, nil, fmt.Errorf("%w: bad fortran_order value %q", ErrInvalidInput, order)
	}

	tuple, err := npyHeaderValue(header, "shape")
	if err != nil {
		return "", false, nil, err
	}
	if !strings.HasPrefix(tuple, "(") || !strings.HasSuffix(tuple, ")") {
		return "", false, nil, fmt.Errorf("%w: bad npy shape %q", ErrInvalidInput, tuple)
	}
	for _, part := range strings.Split(tuple[1:len(tuple)-1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, convErr := strconv.Atoi(part)
		if convErr != nil {
			return "", false, nil, fmt.Errorf("%w: bad npy shape %q", ErrInvalidInput, tuple)
		}
		shape = append(shape, d)
	}
	return descr, fortran, shape, nil
}

// npyHeaderValue returns the raw value text for one dict key, up to the
// next top-level comma or the closing brace. Tuples keep their parens.
func npyHeaderValue(header, key string) (string, error) {
	idx := strings.Index(header, "'"+key+"'")
	if idx < 0 {
		return "", fmt.Errorf("%w: npy header missing %q", ErrInvalidInput, key)
	}
	rest := header[idx+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", fmt.Errorf("%w: npy header missing value for %q", ErrInvalidInput, key)
	}
	rest = rest[colon+1:]

	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',', '}':
			if depth == 0 {
				return strings.TrimSpace(rest[:i]), nil
			}
		}
	}
	return strings.TrimSpace(rest), nil
}

// WriteNPYFile writes data as a version 1.0 '<f8' NPY file at path.
func WriteNPYFile(path string, shape []int, data []float64) error {
	raw, err := WriteNPY(shape, data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write npy: %w", err)
	}
	return nil
}

// WriteNPY encodes data as a version 1.0 little-endian float64 NPY array
// in C order. The header is padded so the payload starts on a 64-byte
// boundary, matching what NumPy itself emits.
func WriteNPY(shape []int, data []float64) ([]byte, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative npy dimension %d", ErrInvalidInput, d)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v wants %d elements, have %d", ErrInvalidInput, shape, n, len(data))
	}

	dict := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': %s, }", npyShapeTuple(shape))
	unpadded := len(npyMagic) + 4 + len(dict) + 1
	padding := (64 - unpadded%64) % 64
	headerLen := len(dict) + padding + 1

	buf := make([]byte, 0, len(npyMagic)+4+headerLen+8*len(data))
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(headerLen))
	buf = append(buf, dict...)
	for i := 0; i < padding; i++ {
		buf = append(buf, ' ')
	}
	buf = append(buf, '\n')
	for _, v := range data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf, nil
}

func npyShapeTuple(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
