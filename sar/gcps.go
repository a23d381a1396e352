package sar

import (
	"fmt"
	"strings"
	"time"

	"github.com/nci/gsar/store"
)

// generateGCPs builds the control-point grid of a swath product from its
// geolocation cube and scene timing parameters. Generation is all or
// nothing: any missing or malformed input fails the whole grid and no
// partial grid is ever published.
func generateGCPs(st store.Store, ident ProductIdentity) (*GCPGrid, error) {
	base := "/science/" + ident.Instrument + "/" + ident.ProductType
	geoloc := base + "/metadata/geolocationGrid"

	epsg, err := store.ReadScalarInt(st, geoloc+"/epsg")
	if err != nil {
		return nil, fmt.Errorf("geolocation epsg: %v", err)
	}

	xs, azimuth, ranges, err := readGeolocationSlice(st, geoloc+"/coordinateX")
	if err != nil {
		return nil, err
	}
	ys, ya, yr, err := readGeolocationSlice(st, geoloc+"/coordinateY")
	if err != nil {
		return nil, err
	}
	if ya != azimuth || yr != ranges {
		return nil, fmt.Errorf("coordinate cubes disagree: %dx%d vs %dx%d", azimuth, ranges, ya, yr)
	}

	slantRange, err := store.ReadFloats1D(st, geoloc+"/slantRange")
	if err != nil {
		return nil, fmt.Errorf("geolocation slantRange: %v", err)
	}
	if len(slantRange) != ranges {
		return nil, fmt.Errorf("slantRange has %d samples, cube has %d", len(slantRange), ranges)
	}

	zdt, epoch, err := readZeroDopplerTimes(st, geoloc+"/zeroDopplerTime")
	if err != nil {
		return nil, err
	}
	if len(zdt) != azimuth {
		return nil, fmt.Errorf("zeroDopplerTime has %d samples, cube has %d", len(zdt), azimuth)
	}

	swath := base + "/swaths/frequencyA"
	startingRange, err := firstValue(st, swath+"/slantRange")
	if err != nil {
		return nil, fmt.Errorf("starting range: %v", err)
	}
	rangeSpacing, err := store.ReadScalarFloat(st, swath+"/slantRangeSpacing")
	if err != nil {
		return nil, fmt.Errorf("slant range spacing: %v", err)
	}
	if rangeSpacing == 0 {
		return nil, fmt.Errorf("slant range spacing is zero")
	}
	prf, err := store.ReadScalarFloat(st, swath+"/nominalAcquisitionPRF")
	if err != nil {
		return nil, fmt.Errorf("acquisition PRF: %v", err)
	}

	startStr, err := store.ReadScalarString(st, "/science/"+ident.Instrument+"/identification/zeroDopplerStartTime")
	if err != nil {
		return nil, fmt.Errorf("scene start time: %v", err)
	}
	sceneStart, err := parseTimestamp(startStr)
	if err != nil {
		return nil, fmt.Errorf("scene start time %q: %v", startStr, err)
	}

	points := make([]GCP, 0, azimuth*ranges)
	for i := 0; i < azimuth; i++ {
		abs := epoch.Add(time.Duration(zdt[i] * float64(time.Second)))
		line := abs.Sub(sceneStart).Seconds()*prf + 0.5
		for j := 0; j < ranges; j++ {
			points = append(points, GCP{
				Pixel: (slantRange[j]-startingRange)/rangeSpacing + 0.5,
				Line:  line,
				X:     xs[i*ranges+j],
				Y:     ys[i*ranges+j],
			})
		}
	}
	return &GCPGrid{EPSG: epsg, Points: points}, nil
}

// readGeolocationSlice reads the first height layer of a
// [height, azimuth, range] coordinate cube as a flat azimuth-major slice.
// A rank-2 cube is taken as a single layer.
func readGeolocationSlice(st store.Store, path string) ([]float64, int, int, error) {
	a, err := st.Array(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("geolocation %s: %v", path, err)
	}
	defer a.Close()

	shape := a.Shape()
	var offset, count []int
	switch len(shape) {
	case 3:
		offset = []int{0, 0, 0}
		count = []int{1, shape[1], shape[2]}
	case 2:
		offset = []int{0, 0}
		count = []int{shape[0], shape[1]}
	default:
		return nil, 0, 0, &ShapeError{Path: path, Shape: shape}
	}
	azimuth := count[len(count)-2]
	ranges := count[len(count)-1]
	if azimuth == 0 || ranges == 0 {
		return nil, 0, 0, &ShapeError{Path: path, Shape: shape}
	}

	v, err := a.Read(offset, count)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("geolocation %s: %v", path, err)
	}
	vals, ok := store.AsFloats(v)
	if !ok {
		return nil, 0, 0, fmt.Errorf("geolocation %s is not numeric", path)
	}
	return vals, azimuth, ranges, nil
}

// readZeroDopplerTimes reads the azimuth-time vector and the epoch parsed
// from its units attribute, "seconds since <ISO timestamp>".
func readZeroDopplerTimes(st store.Store, path string) ([]float64, time.Time, error) {
	a, err := st.Array(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("geolocation %s: %v", path, err)
	}
	units := ""
	if v, ok := a.Attr("units"); ok {
		units, _ = store.AsString(v)
	}
	a.Close()

	epoch, err := parseEpoch(units)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s units %q: %v", path, units, err)
	}

	zdt, err := store.ReadFloats1D(st, path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("geolocation %s: %v", path, err)
	}
	return zdt, epoch, nil
}

// firstValue reads the first element of a 1-D array.
func firstValue(st store.Store, path string) (float64, error) {
	a, err := st.Array(path)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	if a.Rank() != 1 || a.Shape()[0] == 0 {
		return 0, &ShapeError{Path: path, Shape: a.Shape()}
	}
	v, err := a.Read([]int{0}, []int{1})
	if err != nil {
		return 0, err
	}
	f, ok := store.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s is not numeric", path)
	}
	return f, nil
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp parses the ISO timestamps found in product identification
// records, with or without fractional seconds and zone suffix.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp")
}

// parseEpoch extracts the epoch from a "seconds since <ISO timestamp>"
// units string.
func parseEpoch(units string) (time.Time, error) {
	const prefix = "seconds since "
	if !strings.HasPrefix(units, prefix) {
		return time.Time{}, fmt.Errorf("expected %q prefix", prefix)
	}
	return parseTimestamp(units[len(prefix):])
}
