// Package sar reads satellite SAR products stored as hierarchical HDF5-style
// array stores and exposes them as georeferenced rasters. Gridded (map
// projected) products carry an affine transform derived from coordinate
// arrays; swath products carry a ground-control-point grid generated from
// the product's geolocation cube.
package sar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nci/gsar/s3io"
	"github.com/nci/gsar/store"
)

// DriverName prefixes composite dataset names, GSAR:<file>:<array>.
const DriverName = "GSAR"

var (
	ErrGeorefUnavailable = errors.New("georeferencing unavailable")
	ErrNoMask            = errors.New("no validity mask for this product")
)

// ShapeError reports an array whose rank or dimensions cannot back a raster.
type ShapeError struct {
	Path  string
	Shape []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("array %s has unusable shape %v", e.Path, e.Shape)
}

type Level int

const (
	LevelUnknown Level = iota
	LevelSwath
	LevelGridded
)

func (l Level) String() string {
	switch l {
	case LevelSwath:
		return "swath"
	case LevelGridded:
		return "gridded"
	}
	return "unknown"
}

// ProductIdentity is derived once per open and is immutable afterwards. It
// gates which georeferencing path runs.
type ProductIdentity struct {
	Instrument  string
	ProductType string
	Level       Level
}

var instruments = []string{"LSAR", "SSAR"}

var griddedTypes = map[string]bool{
	"GSLC": true,
	"GUNW": true,
	"GOFF": true,
	"GCOV": true,
}

var swathTypes = map[string]bool{
	"RSLC": true,
	"RIFG": true,
	"RUNW": true,
}

// probeOrder is the fallback when the identification record is absent: the
// first of these groups found under the instrument root names the product.
var probeOrder = []string{"RSLC", "GSLC", "GCOV"}

// S3PageSize overrides the ranged-read page size for s3:// products; zero
// keeps the s3io default.
var S3PageSize int64

// cached is a populate-once value guarded by a mutex. The outcome, value or
// error, is computed on first use and returned unchanged afterwards, so a
// second call performs no store I/O.
type cached[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
}

func (c *cached[T]) get(compute func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.val, c.err = compute()
		c.done = true
	}
	return c.val, c.err
}

// Product is an open SAR product file.
type Product struct {
	st      store.Store
	source  string
	ident   ProductIdentity
	catalog cached[[]SubdatasetEntry]
}

// ParseDatasetName splits a composite GSAR:<file>:<array> dataset name. The
// array part is optional; a bare file path passes through unchanged.
func ParseDatasetName(name string) (file, arrayPath string) {
	rest := strings.TrimPrefix(name, DriverName+":")
	if i := strings.LastIndex(rest, ":"); i >= 0 && strings.HasPrefix(rest[i+1:], "/") {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}

// DatasetName builds the composite name for one array of a product file.
func DatasetName(file, arrayPath string) string {
	return fmt.Sprintf("%s:%s:%s", DriverName, file, arrayPath)
}

// Open opens a product file, local or s3://, and classifies it. A product
// that cannot be classified still opens; only georeferencing is lost.
func Open(path string) (*Product, error) {
	file, _ := ParseDatasetName(path)
	st, err := openStore(file)
	if err != nil {
		return nil, err
	}
	p, err := New(st)
	if err != nil {
		st.Close()
		return nil, err
	}
	p.source = file
	return p, nil
}

// New wraps an already opened store. The product takes ownership and closes
// the store on Close.
func New(st store.Store) (*Product, error) {
	p := &Product{st: st}
	p.ident = classify(st)
	if p.ident.Level == LevelUnknown {
		log.Printf("sar: product level unknown, georeferencing unavailable")
	}
	return p, nil
}

func openStore(file string) (store.Store, error) {
	if strings.HasPrefix(file, "s3://") {
		obj, err := s3io.OpenWithPageSize(context.Background(), file, S3PageSize)
		if err != nil {
			return nil, fmt.Errorf("open %s: %v", file, err)
		}
		st, err := store.NewFileStore(obj)
		if err != nil {
			obj.Close()
			return nil, err
		}
		return st, nil
	}
	return store.OpenFile(file)
}

func (p *Product) Identity() ProductIdentity { return p.ident }

func (p *Product) Source() string { return p.source }

func (p *Product) Close() error { return p.st.Close() }

// classify reads the identification record, falling back to probing for
// well-known product groups under the instrument root.
func classify(st store.Store) ProductIdentity {
	var ident ProductIdentity
	for _, ins := range instruments {
		if st.HasGroup("/science/" + ins) {
			ident.Instrument = ins
			break
		}
	}
	if ident.Instrument == "" {
		return ident
	}

	root := "/science/" + ident.Instrument
	ptype, err := store.ReadScalarString(st, root+"/identification/productType")
	if err == nil {
		ident.ProductType = strings.TrimSpace(ptype)
		ident.Level = levelFor(ident.ProductType)
		if ident.Level == LevelUnknown {
			log.Printf("sar: unrecognised product type %q", ident.ProductType)
		}
		return ident
	}
	log.Printf("sar: no product type record (%v), probing groups", err)

	for _, name := range probeOrder {
		if st.HasGroup(root + "/" + name) {
			ident.ProductType = name
			ident.Level = levelFor(name)
			return ident
		}
	}
	return ident
}

func levelFor(productType string) Level {
	switch {
	case griddedTypes[productType]:
		return LevelGridded
	case swathTypes[productType]:
		return LevelSwath
	}
	return LevelUnknown
}
