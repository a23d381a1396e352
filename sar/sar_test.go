package sar

import (
	"testing"

	"github.com/nci/gsar/store"
)

// countingStore counts array opens so tests can assert cache hits.
type countingStore struct {
	*store.MemStore
	reads int
}

func (c *countingStore) Array(path string) (store.Array, error) {
	c.reads++
	return c.MemStore.Array(path)
}

// newGriddedStore builds a synthetic 10x10 gridded (GSLC) product whose
// pixel values are byte(row*10+col). Coordinate centers start at x=500,
// y=200 with spacings +10/-10.
func newGriddedStore() *store.MemStore {
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GSLC"}, []int{1})

	img := make([]uint8, 100)
	for i := range img {
		img[i] = uint8(i)
	}
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/HH", img, []int{10, 10})

	xs := make([]float64, 10)
	ys := make([]float64, 10)
	for i := 0; i < 10; i++ {
		xs[i] = 500 + float64(i)*10
		ys[i] = 200 - float64(i)*10
	}
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/xCoordinates", xs, []int{10})
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/yCoordinates", ys, []int{10})
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/projection", []int32{0}, []int{1}).
		SetAttr("epsg_code", int32(32611))
	return s
}

func TestClassifyExplicit(t *testing.T) {
	tests := []struct {
		productType string
		level       Level
	}{
		{"GSLC", LevelGridded},
		{"GCOV", LevelGridded},
		{"RSLC", LevelSwath},
		{"RUNW", LevelSwath},
		{"XYZ", LevelUnknown},
	}
	for _, tc := range tests {
		s := store.NewMemStore()
		s.PutArray("/science/LSAR/identification/productType", []string{tc.productType}, []int{1})
		ident := classify(s)
		if ident.Instrument != "LSAR" || ident.ProductType != tc.productType || ident.Level != tc.level {
			t.Errorf("classify(%s) = %+v", tc.productType, ident)
		}
	}
}

func TestClassifyFallbackProbe(t *testing.T) {
	s := store.NewMemStore()
	s.PutGroup("/science/LSAR/RSLC/swaths")
	ident := classify(s)
	if ident.ProductType != "RSLC" || ident.Level != LevelSwath {
		t.Errorf("classify = %+v, want RSLC swath", ident)
	}
}

func TestClassifyUnknownStillOpens(t *testing.T) {
	s := store.NewMemStore()
	s.PutGroup("/science/LSAR/other")
	p, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Identity().Level != LevelUnknown {
		t.Errorf("level = %v, want unknown", p.Identity().Level)
	}
}

func TestDiscoveryFilter(t *testing.T) {
	s := newGriddedStore()
	// rank 1 under the root and rank 3 outside the root must both be skipped
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/azimuthVector", []float32{1, 2, 3}, []int{3})
	s.PutArray("/extras/cube", make([]float32, 8), []int{2, 2, 2})

	p, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := p.Subdatasets()
	if err != nil {
		t.Fatalf("Subdatasets: %v", err)
	}

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	if len(entries) != 1 || entries[0].Path != "/science/LSAR/GSLC/grids/frequencyA/HH" {
		t.Fatalf("catalog = %v", paths)
	}
	want := "[10x10] /science/LSAR/GSLC/grids/frequencyA/HH (uint8)"
	if got := entries[0].Description(); got != want {
		t.Errorf("Description = %q, want %q", got, want)
	}
}

func TestDescriptionComplex(t *testing.T) {
	e := SubdatasetEntry{
		Path:     "/science/LSAR/RSLC/swaths/frequencyA/HH",
		Shape:    []int{720, 748},
		TypeName: "float32",
		Complex:  true,
	}
	want := "[720x748] /science/LSAR/RSLC/swaths/frequencyA/HH (complex, float32)"
	if got := e.Description(); got != want {
		t.Errorf("Description = %q, want %q", got, want)
	}
}

func TestParseDatasetName(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		array string
	}{
		{"GSAR:product.h5:/science/LSAR/GSLC/grids/frequencyA/HH", "product.h5", "/science/LSAR/GSLC/grids/frequencyA/HH"},
		{"GSAR:s3://bucket/product.h5:/science/LSAR/RSLC/swaths/frequencyA/HH", "s3://bucket/product.h5", "/science/LSAR/RSLC/swaths/frequencyA/HH"},
		{"product.h5", "product.h5", ""},
		{"GSAR:product.h5", "product.h5", ""},
	}
	for _, tc := range tests {
		file, array := ParseDatasetName(tc.name)
		if file != tc.file || array != tc.array {
			t.Errorf("ParseDatasetName(%q) = %q, %q", tc.name, file, array)
		}
	}
}
