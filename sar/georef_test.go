package sar

import (
	"errors"
	"testing"

	"github.com/nci/gsar/store"
)

func TestGeoTransformFromCoordinates(t *testing.T) {
	cs := &countingStore{MemStore: newGriddedStore()}
	p, err := New(cs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	gt, err := r.GetGeoTransform()
	if err != nil {
		t.Fatalf("GetGeoTransform: %v", err)
	}

	// centers start at 500 with step 10: pixel size 10, corner origin 495
	want := GeoTransform{495, 10, 0, 205, 0, -10}
	if gt != want {
		t.Errorf("GetGeoTransform = %v, want %v", gt, want)
	}

	// mapping pixel (0,0) reproduces the corner origin exactly
	x, y := gt.Apply(0, 0)
	if x != 495 || y != 205 {
		t.Errorf("Apply(0,0) = %v,%v, want 495,205", x, y)
	}

	// second call is a cache hit: bit-identical result, no store I/O
	before := cs.reads
	gt2, err := r.GetGeoTransform()
	if err != nil {
		t.Fatalf("GetGeoTransform #2: %v", err)
	}
	if gt2 != gt {
		t.Errorf("cached transform %v != %v", gt2, gt)
	}
	if cs.reads != before {
		t.Errorf("second GetGeoTransform opened %d arrays", cs.reads-before)
	}

	// a gridded raster has a transform, never control points
	if _, err := r.GetGCPs(); !errors.Is(err, ErrGeorefUnavailable) {
		t.Errorf("GetGCPs on gridded raster = %v", err)
	}
}

func TestGeoTransformAttributeWins(t *testing.T) {
	s := newGriddedStore()
	a, err := s.Array("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatal(err)
	}
	a.(*store.MemArray).SetAttr("GeoTransform", []float64{1, 2, 3, 4, 5, 6})

	p, _ := New(s)
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	gt, err := r.GetGeoTransform()
	if err != nil {
		t.Fatalf("GetGeoTransform: %v", err)
	}
	if gt != (GeoTransform{1, 2, 3, 4, 5, 6}) {
		t.Errorf("GetGeoTransform = %v, want the attribute verbatim", gt)
	}
}

func TestCoordinateRootAscent(t *testing.T) {
	// a nested calibration cube shares coordinate arrays with an ancestor
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GCOV"}, []int{1})
	s.PutArray("/science/LSAR/GCOV/grids/frequencyA/xCoordinates", []float64{0, 1, 2, 3}, []int{4})
	s.PutArray("/science/LSAR/GCOV/grids/frequencyA/yCoordinates", []float64{3, 2, 1, 0}, []int{4})
	s.PutArray("/science/LSAR/GCOV/grids/frequencyA/calibration/noise/power", make([]float32, 16), []int{4, 4})

	p, _ := New(s)
	r, err := p.OpenRaster("/science/LSAR/GCOV/grids/frequencyA/calibration/noise/power")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	gt, err := r.GetGeoTransform()
	if err != nil {
		t.Fatalf("GetGeoTransform: %v", err)
	}
	if gt[1] != 1 || gt[0] != -0.5 {
		t.Errorf("GetGeoTransform = %v", gt)
	}
}

func TestGeorefUnavailableWithoutCoordinates(t *testing.T) {
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GSLC"}, []int{1})
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/HH", make([]float32, 16), []int{4, 4})

	p, _ := New(s)
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	// the raster stays usable, only georeferencing is lost
	if _, err := r.GetGeoTransform(); !errors.Is(err, ErrGeorefUnavailable) {
		t.Errorf("GetGeoTransform = %v, want ErrGeorefUnavailable", err)
	}
	if _, err := r.ReadTile(0, 0, 0, 4, 4); err != nil {
		t.Errorf("ReadTile after georef failure: %v", err)
	}
}

func TestSpatialRef(t *testing.T) {
	p, _ := New(newGriddedStore())
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	srs, err := r.SpatialRef()
	if err != nil {
		t.Fatalf("SpatialRef: %v", err)
	}
	if srs.EPSG != 32611 {
		t.Errorf("EPSG = %d, want 32611", srs.EPSG)
	}
}
