package main

/* gsar is a web server publishing satellite SAR products stored in
   HDF5 files. It discovers the raster arrays inside each published
   product, derives their georeferencing and serves pixel tiles and
   validity masks over HTTP. Configuration of the server is specified
   in config.json files, one per namespace, where collections of
   product files are defined. Metadata queries can be delegated to a
   companion index API backed by the crawler harvest. */

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nci/gsar/metrics"
	"github.com/nci/gsar/sar"
	"github.com/nci/gsar/utils"

	_ "net/http/pprof"

	"github.com/CloudyKit/jet"
	reuseport "github.com/kavu/go_reuseport"
	geo "github.com/nci/geometry"
	"golang.org/x/net/netutil"
)

// Global variable to hold the values specified
// on the config.json documents.
var configMap map[string]*utils.Config

var (
	port            = flag.Int("p", 8080, "Server listening port.")
	serverDataDir   = flag.String("data_dir", utils.DataDir, "Server data directory.")
	serverConfigDir = flag.String("conf_dir", utils.EtcDir, "Server config directory.")
	serverLogDir    = flag.String("log_dir", "", "Server log directory.")
	validateConfig  = flag.Bool("check_conf", false, "Validate server config files.")
	verbose         = flag.Bool("v", false, "Verbose mode for more server outputs.")
)

var (
	Error *log.Logger
	Info  *log.Logger
)

var metricsLogger metrics.Logger

// productCache keeps published products open across requests. Products are
// read-only so one handle is shared by all rasters of a collection.
type productCache struct {
	mu       sync.Mutex
	products map[string]*sar.Product
}

func (c *productCache) get(path string) (*sar.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[path]; ok {
		return p, nil
	}
	p, err := sar.Open(path)
	if err != nil {
		return nil, err
	}
	c.products[path] = p
	return p, nil
}

var products = &productCache{products: make(map[string]*sar.Product)}

// init initialises the loggers, loads the config files and sets up the
// metrics logger. This is the first function to be called in main.
func init() {
	Error = log.New(os.Stderr, "GSAR: ", log.Ldate|log.Ltime|log.Lshortfile)
	Info = log.New(os.Stdout, "GSAR: ", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Parse()

	utils.DataDir = *serverDataDir
	utils.EtcDir = *serverConfigDir

	confMap, err := utils.LoadAllConfigFiles(utils.EtcDir)
	if err != nil {
		Error.Printf("Error in loading config files: %v\n", err)
		panic(err)
	}

	if *validateConfig {
		os.Exit(0)
	}

	configMap = confMap

	if config, ok := configMap["."]; ok && config.ServiceConfig.S3PageSize > 0 {
		sar.S3PageSize = int64(config.ServiceConfig.S3PageSize)
	}

	utils.WatchConfig(Info, Error, &configMap)

	if len(*serverLogDir) > 0 {
		if *serverLogDir == "-" {
			metricsLogger = metrics.NewStdoutLogger()
		} else {
			maxLogFileSize := int64(0)
			if val, ok := os.LookupEnv("GSAR_MAX_LOG_FILE_SIZE"); ok {
				valInt, e := strconv.ParseInt(val, 10, 64)
				if e == nil {
					maxLogFileSize = valInt
				} else {
					Error.Printf("invalid GSAR_MAX_LOG_FILE_SIZE: %v", e)
				}
			}

			maxLogFiles := -1
			if val, ok := os.LookupEnv("GSAR_MAX_LOG_FILES"); ok {
				valInt, e := strconv.ParseInt(val, 10, 32)
				if e == nil {
					maxLogFiles = int(valInt)
				} else {
					Error.Printf("invalid GSAR_MAX_LOG_FILES: %v", e)
				}
			}

			metricsLogger = metrics.NewFileLogger(*serverLogDir, maxLogFileSize, maxLogFiles, *verbose)
		}
	}
}

func httpJSONError(w http.ResponseWriter, err error, status int, metricsCollector *metrics.MetricsCollector) {
	metricsCollector.Info.HTTPStatus = status
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, fmt.Sprintf(`{ "error": %q }`, err.Error()), status)
}

func writeJSON(w http.ResponseWriter, v interface{}, metricsCollector *metrics.MetricsCollector) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Error.Printf("response encoding error: %v", err)
		metricsCollector.Info.HTTPStatus = 500
	}
}

// openCollection resolves a ?collection= parameter against the namespace
// config and returns the open product.
func openCollection(conf *utils.Config, query url.Values) (*utils.Collection, *sar.Product, error) {
	name := query.Get("collection")
	if len(name) == 0 {
		return nil, nil, fmt.Errorf("request does not contain a 'collection' parameter")
	}

	var col *utils.Collection
	for i := range conf.Collections {
		if conf.Collections[i].Name == name {
			col = &conf.Collections[i]
			break
		}
	}
	if col == nil {
		return nil, nil, fmt.Errorf("collection %s not found", name)
	}

	p, err := products.get(col.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("collection %s failed to open: %v", name, err)
	}
	return col, p, nil
}

func resolveArray(col *utils.Collection, query url.Values) (string, error) {
	arrayPath := query.Get("array")
	if len(arrayPath) == 0 {
		arrayPath = col.DefaultArray
	}
	if len(arrayPath) == 0 {
		return "", fmt.Errorf("collection %s has no default array and the request has no 'array' parameter", col.Name)
	}
	return arrayPath, nil
}

func serveSubdatasets(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	col, p, err := openCollection(conf, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	entries, err := p.Subdatasets()
	if err != nil {
		httpJSONError(w, err, 500, metricsCollector)
		return
	}

	type subdataset struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Path        string `json:"path"`
	}
	out := struct {
		Collection  string       `json:"collection"`
		ProductType string       `json:"product_type"`
		Level       string       `json:"level"`
		Subdatasets []subdataset `json:"subdatasets"`
	}{
		Collection:  col.Name,
		ProductType: p.Identity().ProductType,
		Level:       p.Identity().Level.String(),
		Subdatasets: []subdataset{},
	}
	for _, entry := range entries {
		out.Subdatasets = append(out.Subdatasets, subdataset{
			Name:        entry.Name(col.Path),
			Description: entry.Description(),
			Path:        entry.Path,
		})
	}
	writeJSON(w, &out, metricsCollector)
}

func serveGeoTransform(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	col, p, err := openCollection(conf, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	arrayPath, err := resolveArray(col, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	r, err := p.OpenRaster(arrayPath)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	defer r.Close()

	gt, err := r.GetGeoTransform()
	if err != nil {
		httpJSONError(w, err, 404, metricsCollector)
		return
	}

	out := struct {
		GeoTransform []float64 `json:"geotransform"`
		EPSG         int       `json:"epsg,omitempty"`
		WKT          string    `json:"wkt,omitempty"`
		XSize        int       `json:"x_size"`
		YSize        int       `json:"y_size"`
	}{GeoTransform: gt[:], XSize: r.Width(), YSize: r.Height()}

	if srs, err := r.SpatialRef(); err == nil {
		out.EPSG = srs.EPSG
		out.WKT = srs.WKT
	}
	writeJSON(w, &out, metricsCollector)
}

func serveGCPs(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	col, p, err := openCollection(conf, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	arrayPath, err := resolveArray(col, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	r, err := p.OpenRaster(arrayPath)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	defer r.Close()

	grid, err := r.GetGCPs()
	if err != nil {
		httpJSONError(w, err, 404, metricsCollector)
		return
	}
	writeJSON(w, grid, metricsCollector)
}

type tileGeometry struct {
	band   int
	col    int
	row    int
	width  int
	height int
}

func parseTileGeometry(r *sar.Raster, query url.Values) (tileGeometry, error) {
	blockW, blockH := r.BlockSize()
	geom := tileGeometry{width: blockW, height: blockH}

	fields := []struct {
		name string
		dst  *int
	}{
		{"band", &geom.band},
		{"col", &geom.col},
		{"row", &geom.row},
		{"width", &geom.width},
		{"height", &geom.height},
	}
	for _, field := range fields {
		val := query.Get(field.name)
		if len(val) == 0 {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return geom, fmt.Errorf("invalid '%s' parameter: %v", field.name, err)
		}
		*field.dst = n
	}
	return geom, nil
}

func serveTile(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	col, p, err := openCollection(conf, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	arrayPath, err := resolveArray(col, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	r, err := p.OpenRaster(arrayPath)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	defer r.Close()

	geom, err := parseTileGeometry(r, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	t0 := time.Now()
	buf, err := r.ReadTile(geom.band, geom.col, geom.row, geom.width, geom.height)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	metricsCollector.Info.Tile.Collection = col.Name
	metricsCollector.Info.Tile.Array = arrayPath
	metricsCollector.Info.Tile.Band = geom.band
	metricsCollector.Info.Tile.Col = geom.col
	metricsCollector.Info.Tile.Row = geom.row
	metricsCollector.Info.Tile.BytesRead = int64(len(buf))
	metricsCollector.Info.Tile.Duration = time.Since(t0)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Array-Type", r.Type().Name())
	w.Write(buf)
}

func serveMaskTile(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	col, p, err := openCollection(conf, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	arrayPath, err := resolveArray(col, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	r, err := p.OpenRaster(arrayPath)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}
	defer r.Close()

	geom, err := parseTileGeometry(r, query)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	t0 := time.Now()
	buf, err := r.ReadMaskTile(geom.col, geom.row, geom.width, geom.height)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	metricsCollector.Info.Tile.Collection = col.Name
	metricsCollector.Info.Tile.Array = arrayPath
	metricsCollector.Info.Tile.Col = geom.col
	metricsCollector.Info.Tile.Row = geom.row
	metricsCollector.Info.Tile.BytesRead = int64(len(buf))
	metricsCollector.Info.Tile.Duration = time.Since(t0)

	asPNG := col.MaskPNG || query.Get("format") == "png"
	if asPNG {
		img := &image.Gray{Pix: buf, Stride: geom.width, Rect: image.Rect(0, 0, geom.width, geom.height)}
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, img); err != nil {
			Error.Printf("png encoding error: %v", err)
			metricsCollector.Info.HTTPStatus = 500
		}
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(buf)
}

func serveCatalog(conf *utils.Config, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	templateDir := conf.ServiceConfig.TemplateDir
	if len(templateDir) == 0 {
		templateDir = filepath.Join(utils.DataDir, "templates")
	}

	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), templateDir, "/")

	template, err := view.GetTemplate("catalog.xml")
	if err != nil {
		httpJSONError(w, fmt.Errorf("catalog template error: %v", err), 500, metricsCollector)
		return
	}

	var buf bytes.Buffer
	vars := make(jet.VarMap)
	vars.Set("hostname", conf.ServiceConfig.GSARHostname)
	if err := template.Execute(&buf, vars, conf.Collections); err != nil {
		httpJSONError(w, fmt.Errorf("catalog template error: %v", err), 500, metricsCollector)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.Write(buf.Bytes())
}

// serveSearch forwards metadata queries to the companion index API.
func serveSearch(conf *utils.Config, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	masAddress := conf.ServiceConfig.MASAddress
	if len(masAddress) == 0 {
		httpJSONError(w, fmt.Errorf("no mas_address configured for this namespace"), 400, metricsCollector)
		return
	}

	resp, err := http.Get(fmt.Sprintf("http://%s%s?%s", masAddress, r.URL.Path, r.URL.RawQuery))
	if err != nil {
		httpJSONError(w, err, 502, metricsCollector)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	metricsCollector.Info.HTTPStatus = resp.StatusCode
	io.Copy(w, resp.Body)
}

func geometryBounds(geom geo.Geometry) (minX, minY, maxX, maxY float64, err error) {
	raw, err := json.Marshal(geom)
	if err != nil {
		return
	}

	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	extend := func(x, y float64) {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}

	switch geom.(type) {
	case *geo.Point:
		var g struct {
			Coordinates []float64 `json:"coordinates"`
		}
		if err = json.Unmarshal(raw, &g); err != nil {
			return
		}
		if len(g.Coordinates) < 2 {
			err = fmt.Errorf("point geometry has no coordinates")
			return
		}
		extend(g.Coordinates[0], g.Coordinates[1])

	case *geo.Polygon:
		var g struct {
			Coordinates [][][]float64 `json:"coordinates"`
		}
		if err = json.Unmarshal(raw, &g); err != nil {
			return
		}
		for _, ring := range g.Coordinates {
			for _, coord := range ring {
				if len(coord) >= 2 {
					extend(coord[0], coord[1])
				}
			}
		}

	case *geo.MultiPolygon:
		var g struct {
			Coordinates [][][][]float64 `json:"coordinates"`
		}
		if err = json.Unmarshal(raw, &g); err != nil {
			return
		}
		for _, poly := range g.Coordinates {
			for _, ring := range poly {
				for _, coord := range ring {
					if len(coord) >= 2 {
						extend(coord[0], coord[1])
					}
				}
			}
		}

	default:
		err = fmt.Errorf("geometry not supported; only Point, Polygon and MultiPolygon are available")
	}

	if err == nil && minX > maxX {
		err = fmt.Errorf("geometry has no coordinates")
	}
	return
}

func rasterBounds(r *sar.Raster) (minX, minY, maxX, maxY float64, err error) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	extend := func(x, y float64) {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}

	if gt, gtErr := r.GetGeoTransform(); gtErr == nil {
		fw, fh := float64(r.Width()), float64(r.Height())
		for _, corner := range [][2]float64{{0, 0}, {fw, 0}, {0, fh}, {fw, fh}} {
			x, y := gt.Apply(corner[0], corner[1])
			extend(x, y)
		}
		return
	}

	grid, err := r.GetGCPs()
	if err != nil {
		return
	}
	for _, gcp := range grid.Points {
		extend(gcp.X, gcp.Y)
	}
	return
}

// serveIntersects filters the published collections down to those whose
// footprint intersects the bounding box of a GeoJSON feature.
func serveIntersects(conf *utils.Config, query url.Values, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	featStr := query.Get("feature")
	if len(featStr) == 0 {
		httpJSONError(w, fmt.Errorf("request does not contain a 'feature' parameter"), 400, metricsCollector)
		return
	}

	var feat geo.Feature
	if err := json.Unmarshal([]byte(featStr), &feat); err != nil {
		httpJSONError(w, fmt.Errorf("problem unmarshalling feature: %v", err), 400, metricsCollector)
		return
	}

	fMinX, fMinY, fMaxX, fMaxY, err := geometryBounds(feat.Geometry)
	if err != nil {
		httpJSONError(w, err, 400, metricsCollector)
		return
	}

	type hit struct {
		Collection  string `json:"collection"`
		DataSetName string `json:"ds_name"`
	}
	hits := []hit{}

	for i := range conf.Collections {
		col := &conf.Collections[i]
		p, err := products.get(col.Path)
		if err != nil {
			Error.Printf("collection %s failed to open: %v", col.Name, err)
			continue
		}
		if len(col.DefaultArray) == 0 {
			continue
		}
		r, err := p.OpenRaster(col.DefaultArray)
		if err != nil {
			Error.Printf("collection %s: %v", col.Name, err)
			continue
		}
		minX, minY, maxX, maxY, err := rasterBounds(r)
		r.Close()
		if err != nil {
			continue
		}

		if fMinX <= maxX && fMaxX >= minX && fMinY <= maxY && fMaxY >= minY {
			hits = append(hits, hit{
				Collection:  col.Name,
				DataSetName: sar.DatasetName(col.Path, col.DefaultArray),
			})
		}
	}
	writeJSON(w, &hits, metricsCollector)
}

// generalHandler dispatches every request received on /gsar
func generalHandler(conf *utils.Config, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	if *verbose {
		Info.Printf("%s\n", r.URL.String())
	}

	metricsCollector := metrics.NewMetricsCollector(metricsLogger)
	defer metricsCollector.Log()

	t0 := time.Now()
	metricsCollector.Info.ReqTime = t0.Format(utils.ISOFormat)
	defer func() { metricsCollector.Info.ReqDuration = time.Since(t0) }()

	reqURL, e := url.QueryUnescape(r.URL.String())
	if e == nil {
		metricsCollector.Info.URL.RawURL = reqURL
	} else {
		metricsCollector.Info.URL.RawURL = r.URL.String()
	}

	metricsCollector.Info.RemoteAddr = utils.ParseRemoteAddr(r)
	metricsCollector.Info.HTTPStatus = 200

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		httpJSONError(w, fmt.Errorf("failed to parse query: %v", err), 400, metricsCollector)
		return
	}

	switch {
	case query.Has("subdatasets"):
		serveSubdatasets(conf, query, w, metricsCollector)
	case query.Has("geotransform"):
		serveGeoTransform(conf, query, w, metricsCollector)
	case query.Has("gcps"):
		serveGCPs(conf, query, w, metricsCollector)
	case query.Has("tile"):
		serveTile(conf, query, w, metricsCollector)
	case query.Has("masktile"):
		serveMaskTile(conf, query, w, metricsCollector)
	case query.Has("catalog"):
		serveCatalog(conf, w, metricsCollector)
	case query.Has("search"):
		serveSearch(conf, r, w, metricsCollector)
	case query.Has("intersects"):
		serveIntersects(conf, query, w, metricsCollector)
	default:
		httpJSONError(w, fmt.Errorf("unknown operation; currently supported: ?subdatasets ?geotransform ?gcps ?tile ?masktile ?catalog ?search ?intersects"), 400, metricsCollector)
	}
}

func gsarHandler(w http.ResponseWriter, r *http.Request) {
	namespace := "."
	if len(r.URL.Path) > len("/gsar/") {
		namespace = r.URL.Path[len("/gsar/"):]
	}
	config, ok := configMap[namespace]
	if !ok {
		Info.Printf("Invalid dataset namespace: %v for url: %v\n", namespace, r.URL.Path)
		http.Error(w, fmt.Sprintf("Invalid dataset namespace: %v\n", namespace), 404)
		return
	}
	generalHandler(config, w, r)
}

func main() {
	http.HandleFunc("/gsar", gsarHandler)
	http.HandleFunc("/gsar/", gsarHandler)

	maxConns := utils.DefaultMaxConns
	if config, ok := configMap["."]; ok && config.ServiceConfig.MaxConns > 0 {
		maxConns = config.ServiceConfig.MaxConns
	}

	listener, err := reuseport.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	if err != nil {
		log.Fatal(err)
	}
	listener = netutil.LimitListener(listener, maxConns)

	Info.Printf("GSAR is ready")
	log.Fatal(http.Serve(listener, nil))
}
