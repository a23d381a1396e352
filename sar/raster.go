package sar

import (
	"fmt"
	"log"

	"github.com/nci/gsar/store"
)

// GeoTransform maps pixel (col,row) to map (x,y):
// [originX, pixelW, rotX, originY, rotY, pixelH].
type GeoTransform [6]float64

// Apply maps a pixel coordinate through the transform.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return
}

// GCP ties a pixel/line coordinate to a map coordinate.
type GCP struct {
	Pixel float64 `json:"pixel"`
	Line  float64 `json:"line"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// GCPGrid is a dense control-point grid in row-major azimuth-then-range
// order. It is built once and never mutated.
type GCPGrid struct {
	EPSG   int   `json:"epsg"`
	Points []GCP `json:"points"`
}

// Georeferencing is the single georeferencing mode of a raster: an affine
// transform for gridded products, a control-point grid for swath products.
// A raster holds exactly one mode or none.
type Georeferencing interface {
	georeferencing()
}

type TransformGeoref struct {
	Transform GeoTransform
}

type GCPGeoref struct {
	Grid *GCPGrid
}

func (*TransformGeoref) georeferencing() {}
func (*GCPGeoref) georeferencing()       {}

// SpatialRef describes the coordinate reference of a gridded raster. EPSG is
// zero when only WKT is known, and vice versa.
type SpatialRef struct {
	EPSG int    `json:"epsg"`
	WKT  string `json:"wkt,omitempty"`
}

const defaultBlockSize = 512

// Raster is one open raster array of a product. Tile and mask reads use
// independently opened store handles, so concurrent reads against the same
// raster are safe as long as the store backend permits them.
type Raster struct {
	st    store.Store
	arr   store.Array
	ident ProductIdentity

	width  int
	height int
	bands  int
	blockW int
	blockH int
	typ    store.Type

	maskPath   string
	maskFamily MaskFamily

	geo cached[Georeferencing]
	srs cached[SpatialRef]
}

// OpenRaster resolves one array of the product as a raster. Georeferencing
// failures degrade the raster rather than failing the open; an undecodable
// mask family is a configuration fault and fails it.
func (p *Product) OpenRaster(arrayPath string) (*Raster, error) {
	a, err := p.st.Array(arrayPath)
	if err != nil {
		return nil, fmt.Errorf("open array %s: %v", arrayPath, err)
	}

	shape := a.Shape()
	if len(shape) < 2 || shape[len(shape)-1] == 0 || shape[len(shape)-2] == 0 {
		a.Close()
		return nil, &ShapeError{Path: arrayPath, Shape: shape}
	}

	r := &Raster{
		st:     p.st,
		arr:    a,
		ident:  p.ident,
		width:  shape[len(shape)-1],
		height: shape[len(shape)-2],
		bands:  1,
		typ:    a.Type(),
	}
	if len(shape) > 2 {
		r.bands = shape[0]
	}

	r.blockW, r.blockH = blockSize(a, r.width, r.height)

	maskPath := store.ParentPath(arrayPath) + "/mask"
	if m, err := p.st.Array(maskPath); err == nil {
		m.Close()
		family, ok := maskFamilyForType(p.ident.ProductType)
		if !ok {
			a.Close()
			return nil, fmt.Errorf("product type %q carries a mask with no decode rule", p.ident.ProductType)
		}
		r.maskPath = maskPath
		r.maskFamily = family
	}

	if _, err := r.georeference(); err != nil {
		log.Printf("sar: %s: %v", arrayPath, err)
	}
	return r, nil
}

// blockSize takes the chunk shape when the array is chunked, else the
// conventional default clamped to the raster extent.
func blockSize(a store.Array, width, height int) (w, h int) {
	if chunk := a.ChunkShape(); len(chunk) >= 2 {
		w = chunk[len(chunk)-1]
		h = chunk[len(chunk)-2]
		if w > 0 && h > 0 {
			return w, h
		}
	}
	w, h = defaultBlockSize, defaultBlockSize
	if width < w {
		w = width
	}
	if height < h {
		h = height
	}
	return w, h
}

func (r *Raster) Width() int       { return r.width }
func (r *Raster) Height() int      { return r.height }
func (r *Raster) Bands() int       { return r.bands }
func (r *Raster) Type() store.Type { return r.typ }

func (r *Raster) BlockSize() (w, h int) { return r.blockW, r.blockH }

// HasMask reports whether the raster has a decodable validity mask.
func (r *Raster) HasMask() bool { return r.maskPath != "" }

// NoDataValue follows the convention that masked rasters treat zero as
// missing data.
func (r *Raster) NoDataValue() (float64, bool) {
	if r.HasMask() {
		return 0, true
	}
	return 0, false
}

// Metadata returns the raster array's attributes rendered as strings.
func (r *Raster) Metadata() map[string]string {
	md := make(map[string]string)
	for _, name := range r.arr.AttrNames() {
		if v, ok := r.arr.Attr(name); ok {
			md[name] = fmt.Sprintf("%v", v)
		}
	}
	return md
}

// Close releases the raster's array handle. The product's store stays open.
func (r *Raster) Close() {
	r.arr.Close()
}

// georeference computes the raster's single georeferencing mode, once. Both
// the derived value and a derivation failure are cached, so repeated calls
// touch no store state.
func (r *Raster) georeference() (Georeferencing, error) {
	return r.geo.get(func() (Georeferencing, error) {
		switch r.ident.Level {
		case LevelGridded:
			gt, err := deriveGeoTransform(r.st, r.arr)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGeorefUnavailable, err)
			}
			return &TransformGeoref{Transform: gt}, nil
		case LevelSwath:
			grid, err := generateGCPs(r.st, r.ident)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGeorefUnavailable, err)
			}
			return &GCPGeoref{Grid: grid}, nil
		}
		return nil, ErrGeorefUnavailable
	})
}

// GetGeoTransform returns the affine transform of a gridded raster.
func (r *Raster) GetGeoTransform() (GeoTransform, error) {
	g, err := r.georeference()
	if err != nil {
		return GeoTransform{}, err
	}
	if t, ok := g.(*TransformGeoref); ok {
		return t.Transform, nil
	}
	return GeoTransform{}, ErrGeorefUnavailable
}

// GetGCPs returns the control-point grid of a swath raster.
func (r *Raster) GetGCPs() (*GCPGrid, error) {
	g, err := r.georeference()
	if err != nil {
		return nil, err
	}
	if c, ok := g.(*GCPGeoref); ok {
		return c.Grid, nil
	}
	return nil, ErrGeorefUnavailable
}

// SpatialRef resolves the coordinate reference of a gridded raster from the
// projection dataset near its coordinate root.
func (r *Raster) SpatialRef() (SpatialRef, error) {
	return r.srs.get(func() (SpatialRef, error) {
		if r.ident.Level != LevelGridded {
			return SpatialRef{}, ErrGeorefUnavailable
		}
		return resolveSpatialRef(r.st, r.arr.Path())
	})
}
