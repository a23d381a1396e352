package sar

import (
	"errors"
	"math"
	"testing"

	"github.com/nci/gsar/store"
)

// newSwathStore builds a synthetic RSLC product with a 3x4 geolocation
// cube, PRF 100 Hz and 5 m range spacing.
func newSwathStore() *store.MemStore {
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"RSLC"}, []int{1})
	s.PutArray("/science/LSAR/identification/zeroDopplerStartTime",
		[]string{"2023-07-01T12:00:00.000000"}, []int{1})

	const azimuth, ranges = 3, 4
	geoloc := "/science/LSAR/RSLC/metadata/geolocationGrid"
	s.PutArray(geoloc+"/epsg", []int32{4326}, []int{1})

	cx := make([]float64, azimuth*ranges)
	cy := make([]float64, azimuth*ranges)
	for i := 0; i < azimuth; i++ {
		for j := 0; j < ranges; j++ {
			cx[i*ranges+j] = 130 + float64(j)*0.01
			cy[i*ranges+j] = -33 - float64(i)*0.01
		}
	}
	s.PutArray(geoloc+"/coordinateX", cx, []int{1, azimuth, ranges})
	s.PutArray(geoloc+"/coordinateY", cy, []int{1, azimuth, ranges})

	slantRange := []float64{800000, 800050, 800100, 800150}
	s.PutArray(geoloc+"/slantRange", slantRange, []int{ranges})

	s.PutArray(geoloc+"/zeroDopplerTime", []float64{43200, 43201, 43202}, []int{azimuth}).
		SetAttr("units", "seconds since 2023-07-01T00:00:00")

	swath := "/science/LSAR/RSLC/swaths/frequencyA"
	s.PutArray(swath+"/slantRange", []float64{800000, 800005}, []int{2})
	s.PutArray(swath+"/slantRangeSpacing", []float64{5}, []int{1})
	s.PutArray(swath+"/nominalAcquisitionPRF", []float64{100}, []int{1})

	img := make([]complex64, 16)
	s.PutArray(swath+"/HH", img, []int{4, 4})
	return s
}

func TestGCPGeneration(t *testing.T) {
	p, _ := New(newSwathStore())
	r, err := p.OpenRaster("/science/LSAR/RSLC/swaths/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	grid, err := r.GetGCPs()
	if err != nil {
		t.Fatalf("GetGCPs: %v", err)
	}
	if grid.EPSG != 4326 {
		t.Errorf("EPSG = %d, want 4326", grid.EPSG)
	}

	// exactly azimuth x range points, row-major by azimuth
	if len(grid.Points) != 12 {
		t.Fatalf("GCP count = %d, want 12", len(grid.Points))
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			gcp := grid.Points[i*4+j]

			// pixel = (slantRange - startingRange)/spacing + 0.5
			wantPixel := float64(j)*10 + 0.5
			if math.Abs(gcp.Pixel-wantPixel) > 1e-9 {
				t.Errorf("point (%d,%d) pixel = %v, want %v", i, j, gcp.Pixel, wantPixel)
			}

			// zero-Doppler times are 43200+i s after midnight, the scene
			// starts at noon: line = i seconds * 100 Hz + 0.5
			wantLine := float64(i)*100 + 0.5
			if math.Abs(gcp.Line-wantLine) > 1e-6 {
				t.Errorf("point (%d,%d) line = %v, want %v", i, j, gcp.Line, wantLine)
			}

			if gcp.X != 130+float64(j)*0.01 || gcp.Y != -33-float64(i)*0.01 {
				t.Errorf("point (%d,%d) map = %v,%v", i, j, gcp.X, gcp.Y)
			}
		}
	}

	// a swath raster has control points, never an affine transform
	if _, err := r.GetGeoTransform(); !errors.Is(err, ErrGeorefUnavailable) {
		t.Errorf("GetGeoTransform on swath raster = %v", err)
	}
}

func TestGCPsAllOrNothing(t *testing.T) {
	// removing any one timing input must fail the whole grid
	paths := []string{
		"/science/LSAR/RSLC/metadata/geolocationGrid/epsg",
		"/science/LSAR/RSLC/swaths/frequencyA/nominalAcquisitionPRF",
		"/science/LSAR/identification/zeroDopplerStartTime",
	}
	for _, missing := range paths {
		s := newSwathStore()
		broken := store.NewMemStore()
		s.Walk(func(a store.Array) error {
			if a.Path() == missing {
				return nil
			}
			// rebuild everything else
			v, err := a.Read(zeros(a.Rank()), a.Shape())
			if err != nil {
				t.Fatalf("copy %s: %v", a.Path(), err)
			}
			na := broken.PutArray(a.Path(), v, a.Shape())
			for _, name := range a.AttrNames() {
				if attr, ok := a.Attr(name); ok {
					na.SetAttr(name, attr)
				}
			}
			return nil
		})

		p, _ := New(broken)
		r, err := p.OpenRaster("/science/LSAR/RSLC/swaths/frequencyA/HH")
		if err != nil {
			t.Fatalf("OpenRaster without %s: %v", missing, err)
		}
		if _, err := r.GetGCPs(); !errors.Is(err, ErrGeorefUnavailable) {
			t.Errorf("GetGCPs without %s = %v, want ErrGeorefUnavailable", missing, err)
		}
		r.Close()
	}
}

func TestParseTimestamps(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2023-07-01T12:00:00", true},
		{"2023-07-01T12:00:00.000000", true},
		{"2023-07-01T12:00:00Z", true},
		{"2023-07-01T12:00:00.5Z", true},
		{"noon-ish", false},
	}
	for _, tc := range tests {
		_, err := parseTimestamp(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("parseTimestamp(%q) err = %v", tc.in, err)
		}
	}

	epoch, err := parseEpoch("seconds since 2023-07-01T00:00:00")
	if err != nil {
		t.Fatalf("parseEpoch: %v", err)
	}
	if epoch.Hour() != 0 || epoch.Day() != 1 {
		t.Errorf("epoch = %v", epoch)
	}
	if _, err := parseEpoch("days since 2023-07-01"); err == nil {
		t.Errorf("non-second units accepted")
	}
}

func zeros(n int) []int { return make([]int, n) }
