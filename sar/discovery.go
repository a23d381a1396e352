package sar

import (
	"fmt"
	"strings"

	"github.com/nci/gsar/store"
)

// SubdatasetEntry describes one openable raster candidate found during
// discovery.
type SubdatasetEntry struct {
	Path     string `json:"path"`
	Shape    []int  `json:"shape"`
	TypeName string `json:"type"`
	Complex  bool   `json:"complex"`
}

// Description renders the catalog line for the entry, for example
// "[720x748] /science/LSAR/RSLC/swaths/frequencyA/HH (complex, float32)".
func (e SubdatasetEntry) Description() string {
	dims := make([]string, len(e.Shape))
	for i, d := range e.Shape {
		dims[i] = fmt.Sprintf("%d", d)
	}
	typ := e.TypeName
	if e.Complex {
		typ = "complex, " + e.TypeName
	}
	return fmt.Sprintf("[%s] %s (%s)", strings.Join(dims, "x"), e.Path, typ)
}

// Name builds the composite dataset name for the entry within file.
func (e SubdatasetEntry) Name(file string) string {
	return DatasetName(file, e.Path)
}

// Subdatasets walks the store once and returns the ordered raster catalog.
// The walk keeps the store's native visitation order. An empty catalog means
// the product holds no raster-shaped arrays, which is not an error.
func (p *Product) Subdatasets() ([]SubdatasetEntry, error) {
	return p.catalog.get(func() ([]SubdatasetEntry, error) {
		return discover(p.st, p.ident.Instrument)
	})
}

func discover(st store.Store, instrument string) ([]SubdatasetEntry, error) {
	if instrument == "" {
		return nil, nil
	}
	prefix := "/science/" + instrument + "/"

	var entries []SubdatasetEntry
	err := st.Walk(func(a store.Array) error {
		defer a.Close()
		if !strings.HasPrefix(a.Path(), prefix) {
			return nil
		}
		if a.Rank() < 2 {
			return nil
		}
		t := a.Type()
		entries = append(entries, SubdatasetEntry{
			Path:     a.Path(),
			Shape:    append([]int(nil), a.Shape()...),
			TypeName: t.Name(),
			Complex:  t.Complex,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subdataset walk: %v", err)
	}
	return entries, nil
}
