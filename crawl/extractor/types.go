package extractor

import "time"

type GeoMetaData struct {
	DataSetName  string            `json:"ds_name"`
	NameSpace    string            `json:"namespace,omitempty"`
	ProductType  string            `json:"product_type,omitempty"`
	Level        string            `json:"level,omitempty"`
	Type         string            `json:"array_type"`
	RasterCount  int32             `json:"raster_count"`
	TimeStamps   []time.Time       `json:"timestamps,omitempty"`
	XSize        int32             `json:"x_size"`
	YSize        int32             `json:"y_size"`
	GeoTransform []float64         `json:"geotransform,omitempty"`
	NumGCPs      int               `json:"num_gcps,omitempty"`
	Polygon      string            `json:"polygon,omitempty"`
	ProjWKT      string            `json:"proj_wkt,omitempty"`
	EPSG         int               `json:"epsg,omitempty"`
	NoData       float64           `json:"nodata,omitempty"`
	HasMask      bool              `json:"has_mask,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type GeoFile struct {
	FileName  string         `json:"filename,omitempty"`
	Driver    string         `json:"file_type"`
	DataSets  []*GeoMetaData `json:"geo_metadata"`
	PosixInfo *PosixInfo     `json:"posix_info,omitempty"`
}

type PosixInfo struct {
	FilePath string    `json:"file_path"`
	INode    uint64    `json:"inode"`
	Size     int64     `json:"size"`
	MTime    time.Time `json:"mtime"`
	CTime    time.Time `json:"ctime"`
	ID       string    `json:"id"`
}
