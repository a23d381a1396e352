package extractor

import (
	"fmt"
	"log"
	"math"
	"os"
	"path"
	"time"

	"github.com/nci/gsar/sar"
	"github.com/nci/gsar/store"
)

// ExtractSARInfo opens a SAR product file, local or s3://, and describes
// every raster array in it as one metadata record.
func ExtractSARInfo(filePath string) (*GeoFile, error) {
	p, err := sar.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	geoFile, err := extractProduct(p, filePath)
	if err != nil {
		return nil, err
	}

	if fStat, err := os.Lstat(filePath); err == nil {
		geoFile.PosixInfo = GetPosixInfo(filePath, fStat)
	}
	return geoFile, nil
}

func extractProduct(p *sar.Product, filePath string) (*GeoFile, error) {
	entries, err := p.Subdatasets()
	if err != nil {
		return nil, fmt.Errorf("subdataset discovery failed for %s: %v", filePath, err)
	}

	ruleSet, nameFields, timeStamp := parseName(filePath)

	geoFile := &GeoFile{FileName: filePath, Driver: sar.DriverName}
	for _, entry := range entries {
		r, err := p.OpenRaster(entry.Path)
		if err != nil {
			log.Printf("skipping %s: %v", entry.Path, err)
			continue
		}

		ds := describeRaster(p, r, entry.Path, filePath)
		ds.NameSpace = resolveNameSpace(ruleSet, nameFields, entry.Path)
		if !timeStamp.IsZero() {
			ds.TimeStamps = []time.Time{timeStamp}
		}
		r.Close()

		geoFile.DataSets = append(geoFile.DataSets, ds)
	}
	return geoFile, nil
}

func describeRaster(p *sar.Product, r *sar.Raster, arrayPath, filePath string) *GeoMetaData {
	ident := p.Identity()
	ds := &GeoMetaData{
		DataSetName: sar.DatasetName(filePath, arrayPath),
		ProductType: ident.ProductType,
		Level:       ident.Level.String(),
		Type:        rasterTypeName(r.Type()),
		RasterCount: int32(r.Bands()),
		XSize:       int32(r.Width()),
		YSize:       int32(r.Height()),
		HasMask:     r.HasMask(),
	}
	if md := r.Metadata(); len(md) > 0 {
		ds.Metadata = md
	}

	if nd, ok := r.NoDataValue(); ok {
		ds.NoData = nd
	}

	if gt, err := r.GetGeoTransform(); err == nil {
		ds.GeoTransform = gt[:]
		ds.Polygon = getGeometryWKT(gt, r.Width(), r.Height())
		if srs, err := r.SpatialRef(); err == nil {
			ds.EPSG = srs.EPSG
			ds.ProjWKT = srs.WKT
		}
	} else if grid, err := r.GetGCPs(); err == nil {
		ds.NumGCPs = len(grid.Points)
		ds.EPSG = grid.EPSG
		ds.Polygon = getGCPBoundsWKT(grid)
	}

	return ds
}

func resolveNameSpace(ruleSet *RuleSet, nameFields map[string]string, arrayPath string) string {
	nsDataset := path.Base(arrayPath)
	if ruleSet == nil {
		return nsDataset
	}

	nsPath := nameFields["namespace"]
	switch ruleSet.NameSpace {
	case NSCombine:
		return fmt.Sprintf("%s:%s", nsPath, nsDataset)
	case NSPath:
		return nsPath
	case NSDataset:
		return nsDataset
	}
	return nsDataset
}

// rasterTypeName names array types the way raster tooling expects them.
func rasterTypeName(t store.Type) string {
	if t.Complex {
		if t.Size == 8 {
			return "CFloat64"
		}
		return "CFloat32"
	}
	switch t.Class {
	case store.TypeFloat:
		if t.Size == 8 {
			return "Float64"
		}
		return "Float32"
	case store.TypeUint:
		switch t.Size {
		case 1:
			return "Byte"
		case 2:
			return "UInt16"
		default:
			return "UInt32"
		}
	case store.TypeInt:
		switch t.Size {
		case 1:
			return "Int8"
		case 2:
			return "Int16"
		default:
			return "Int32"
		}
	}
	return "Unknown"
}

func getGeometryWKT(geot sar.GeoTransform, xSize, ySize int) string {
	ulX, ulY := geot.Apply(0, 0)
	lrX, lrY := geot.Apply(float64(xSize), float64(ySize))
	return fmt.Sprintf("POLYGON ((%f %f,%f %f,%f %f,%f %f,%f %f))", ulX, ulY, ulX, lrY, lrX, lrY, lrX, ulY, ulX, ulY)
}

func getGCPBoundsWKT(grid *sar.GCPGrid) string {
	if len(grid.Points) == 0 {
		return ""
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, gcp := range grid.Points {
		minX = math.Min(minX, gcp.X)
		maxX = math.Max(maxX, gcp.X)
		minY = math.Min(minY, gcp.Y)
		maxY = math.Max(maxY, gcp.Y)
	}
	return fmt.Sprintf("POLYGON ((%f %f,%f %f,%f %f,%f %f,%f %f))", minX, maxY, minX, minY, maxX, minY, maxX, maxY, minX, maxY)
}
