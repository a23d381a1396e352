package store

import (
	"fmt"
	"reflect"
)

// ReadScalarString opens the array at path and reads it as a single string.
func ReadScalarString(st Store, path string) (string, error) {
	a, err := st.Array(path)
	if err != nil {
		return "", err
	}
	defer a.Close()

	v, err := readFirst(a)
	if err != nil {
		return "", err
	}
	s, ok := AsString(v)
	if !ok {
		return "", fmt.Errorf("store: %s is not a string", path)
	}
	return s, nil
}

// ReadScalarFloat opens the array at path and reads it as a single float64.
func ReadScalarFloat(st Store, path string) (float64, error) {
	a, err := st.Array(path)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	v, err := readFirst(a)
	if err != nil {
		return 0, err
	}
	f, ok := AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("store: %s is not numeric", path)
	}
	return f, nil
}

// ReadScalarInt opens the array at path and reads it as a single int.
func ReadScalarInt(st Store, path string) (int, error) {
	f, err := ReadScalarFloat(st, path)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ReadFloats1D opens the rank-1 array at path and reads all of it as
// float64 values.
func ReadFloats1D(st Store, path string) ([]float64, error) {
	a, err := st.Array(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if a.Rank() != 1 {
		return nil, fmt.Errorf("store: %s has rank %d, want 1", path, a.Rank())
	}
	n := a.Shape()[0]
	if n == 0 {
		return nil, fmt.Errorf("store: %s is empty", path)
	}
	v, err := a.Read([]int{0}, []int{n})
	if err != nil {
		return nil, err
	}
	fs, ok := AsFloats(v)
	if !ok {
		return nil, fmt.Errorf("store: %s is not numeric", path)
	}
	return fs, nil
}

// readFirst reads the first element of an array of any rank, or the value
// itself for rank-0 scalars.
func readFirst(a Array) (interface{}, error) {
	rank := a.Rank()
	if rank == 0 {
		return a.Read(nil, nil)
	}
	offset := make([]int, rank)
	count := make([]int, rank)
	for i := range count {
		count[i] = 1
	}
	v, err := a.Read(offset, count)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		return rv.Index(0).Interface(), nil
	}
	return v, nil
}

// AsString coerces a scalar attribute or element value to a string.
func AsString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []string:
		if len(s) == 1 {
			return s[0], true
		}
	case []byte:
		return string(s), true
	}
	return "", false
}

// AsFloat coerces a scalar numeric value of any width to float64.
func AsFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		if rv.Len() != 1 {
			return 0, false
		}
		rv = rv.Index(0)
	}
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return float64(rv.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// AsFloats coerces a flat numeric slice of any width to []float64.
func AsFloats(v interface{}) ([]float64, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		f, ok := AsFloat(v)
		if !ok {
			return nil, false
		}
		return []float64{f}, true
	}
	out := make([]float64, rv.Len())
	for i := range out {
		f, ok := AsFloat(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
