package sar

import (
	"fmt"
	"log"

	"github.com/nci/gsar/store"
)

// deriveGeoTransform computes the affine transform of a gridded raster. An
// explicit GeoTransform attribute on the array is authoritative; otherwise
// the transform comes from the sibling coordinate arrays at the nearest
// ancestor group that carries both.
func deriveGeoTransform(st store.Store, arr store.Array) (GeoTransform, error) {
	if v, ok := arr.Attr("GeoTransform"); ok {
		vals, ok := store.AsFloats(v)
		if !ok || len(vals) != 6 {
			return GeoTransform{}, fmt.Errorf("malformed GeoTransform attribute on %s", arr.Path())
		}
		var gt GeoTransform
		copy(gt[:], vals)
		return gt, nil
	}

	root, ok := findCoordinateRoot(st, arr.Path())
	if !ok {
		return GeoTransform{}, fmt.Errorf("no coordinate arrays found above %s", arr.Path())
	}

	x0, xN, nx, err := coordinateSpan(st, root+"/xCoordinates")
	if err != nil {
		return GeoTransform{}, err
	}
	y0, yN, ny, err := coordinateSpan(st, root+"/yCoordinates")
	if err != nil {
		return GeoTransform{}, err
	}

	// resolution comes from the array span; coordinate arrays are
	// authoritative over any stored spacing value
	px := (xN - x0) / float64(nx-1)
	py := (yN - y0) / float64(ny-1)
	if py > 0 {
		log.Printf("sar: %s: positive Y pixel size %g, expected north-up (negative)", arr.Path(), py)
	}

	// coordinates are pixel centers; shift to the corner origin
	return GeoTransform{x0 - 0.5*px, px, 0, y0 - 0.5*py, 0, py}, nil
}

// findCoordinateRoot walks upward from the array's parent group looking for
// sibling 1-D xCoordinates/yCoordinates arrays. The loop is bounded by the
// tree depth; not finding a coordinate root is an ordinary miss, not an
// error.
func findCoordinateRoot(st store.Store, arrayPath string) (string, bool) {
	group := store.ParentPath(arrayPath)
	for depth := store.PathDepth(arrayPath); depth > 0 && group != ""; depth-- {
		if has1D(st, group+"/xCoordinates") && has1D(st, group+"/yCoordinates") {
			return group, true
		}
		group = store.ParentPath(group)
	}
	return "", false
}

func has1D(st store.Store, path string) bool {
	a, err := st.Array(path)
	if err != nil {
		return false
	}
	defer a.Close()
	return a.Rank() == 1 && a.Shape()[0] >= 2
}

// coordinateSpan reads the first and last center coordinates and the sample
// count of a 1-D coordinate array.
func coordinateSpan(st store.Store, path string) (first, last float64, n int, err error) {
	a, err := st.Array(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer a.Close()

	if a.Rank() != 1 {
		return 0, 0, 0, &ShapeError{Path: path, Shape: a.Shape()}
	}
	n = a.Shape()[0]
	if n < 2 {
		return 0, 0, 0, &ShapeError{Path: path, Shape: a.Shape()}
	}

	v, err := a.Read([]int{0}, []int{1})
	if err != nil {
		return 0, 0, 0, err
	}
	first, ok := store.AsFloat(v)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%s is not numeric", path)
	}

	v, err = a.Read([]int{n - 1}, []int{1})
	if err != nil {
		return 0, 0, 0, err
	}
	last, ok = store.AsFloat(v)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%s is not numeric", path)
	}
	return first, last, n, nil
}

// resolveSpatialRef reads the projection dataset that shares a group with
// the coordinate arrays. An epsg_code attribute wins over spatial_ref WKT.
func resolveSpatialRef(st store.Store, arrayPath string) (SpatialRef, error) {
	root, ok := findCoordinateRoot(st, arrayPath)
	if !ok {
		return SpatialRef{}, fmt.Errorf("%w: no coordinate root above %s", ErrGeorefUnavailable, arrayPath)
	}

	a, err := st.Array(root + "/projection")
	if err != nil {
		return SpatialRef{}, fmt.Errorf("%w: no projection dataset under %s", ErrGeorefUnavailable, root)
	}
	defer a.Close()

	if v, ok := a.Attr("epsg_code"); ok {
		if code, ok := store.AsFloat(v); ok && code > 0 {
			return SpatialRef{EPSG: int(code)}, nil
		}
	}
	if v, ok := a.Attr("spatial_ref"); ok {
		if wkt, ok := store.AsString(v); ok && wkt != "" {
			return SpatialRef{WKT: wkt}, nil
		}
	}
	return SpatialRef{}, fmt.Errorf("%w: projection dataset under %s has no epsg_code or spatial_ref", ErrGeorefUnavailable, root)
}
