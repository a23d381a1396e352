package store

import (
	"reflect"
	"testing"
)

func TestMemStoreHyperslab(t *testing.T) {
	s := NewMemStore()
	data := make([]float32, 12)
	for i := range data {
		data[i] = float32(i)
	}
	s.PutArray("/grids/image", data, []int{3, 4})

	a, err := s.Array("/grids/image")
	if err != nil {
		t.Fatalf("Array: %v", err)
	}
	defer a.Close()

	if a.Rank() != 2 {
		t.Errorf("rank = %d, want 2", a.Rank())
	}

	v, err := a.Read([]int{1, 1}, []int{2, 2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got := v.([]float32)
	want := []float32{5, 6, 9, 10}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read = %v, want %v", got, want)
	}

	if _, err := a.Read([]int{2, 2}, []int{2, 3}); err == nil {
		t.Errorf("out of range selection did not fail")
	}
}

func TestMemStoreWalkOrder(t *testing.T) {
	s := NewMemStore()
	s.PutArray("/science/b", []int16{1, 2}, []int{2})
	s.PutArray("/science/a", []int16{1, 2}, []int{2})
	s.PutArray("/other/c", []int16{1}, []int{1})

	var paths []string
	err := s.Walk(func(a Array) error {
		paths = append(paths, a.Path())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{"/science/b", "/science/a", "/other/c"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Walk order = %v, want %v", paths, want)
	}
}

func TestReadHelpers(t *testing.T) {
	s := NewMemStore()
	s.PutArray("/id/productType", []string{"GSLC"}, []int{1})
	s.PutArray("/grid/epsg", []int32{32611}, []int{1})
	s.PutArray("/grid/xCoordinates", []float64{100, 110, 120}, []int{3})

	str, err := ReadScalarString(s, "/id/productType")
	if err != nil || str != "GSLC" {
		t.Errorf("ReadScalarString = %q, %v", str, err)
	}

	epsg, err := ReadScalarInt(s, "/grid/epsg")
	if err != nil || epsg != 32611 {
		t.Errorf("ReadScalarInt = %d, %v", epsg, err)
	}

	xs, err := ReadFloats1D(s, "/grid/xCoordinates")
	if err != nil || !reflect.DeepEqual(xs, []float64{100, 110, 120}) {
		t.Errorf("ReadFloats1D = %v, %v", xs, err)
	}

	if _, err := ReadScalarFloat(s, "/grid/missing"); err == nil {
		t.Errorf("missing path did not fail")
	}
}
