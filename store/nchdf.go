package store

import (
	"fmt"
	"log"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// FileStore adapts an HDF5/NetCDF4 file opened by the go-native-netcdf
// reader to the Store interface. Group and array handles returned by a
// FileStore share the root file handle; only FileStore.Close releases it.
type FileStore struct {
	nc api.Group
}

// OpenFile opens a local product file.
func OpenFile(path string) (*FileStore, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %v", path, err)
	}
	return &FileStore{nc: nc}, nil
}

// NewFileStore wraps an already opened byte stream, e.g. a ranged S3 object
// reader.
func NewFileStore(r api.ReadSeekerCloser) (*FileStore, error) {
	nc, err := netcdf.New(r)
	if err != nil {
		return nil, fmt.Errorf("store: open stream: %v", err)
	}
	return &FileStore{nc: nc}, nil
}

func (s *FileStore) Close() error {
	s.nc.Close()
	return nil
}

func (s *FileStore) openGroup(path string) (api.Group, error) {
	g := s.nc
	for _, name := range splitPath(path) {
		child, err := g.GetGroup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		g = child
	}
	return g, nil
}

func (s *FileStore) Group(path string) (Group, error) {
	g, err := s.openGroup(path)
	if err != nil {
		return nil, err
	}
	return &fileGroup{path: path, g: g}, nil
}

func (s *FileStore) HasGroup(path string) bool {
	_, err := s.openGroup(path)
	return err == nil
}

func (s *FileStore) Array(path string) (Array, error) {
	g, err := s.openGroup(ParentPath(path))
	if err != nil {
		return nil, err
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	vg, err := g.GetVarGetter(parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return newFileArray(path, vg)
}

func (s *FileStore) Walk(visit func(a Array) error) error {
	return s.walk(s.nc, "/", visit)
}

func (s *FileStore) walk(g api.Group, path string, visit func(a Array) error) error {
	for _, name := range g.ListVariables() {
		apath := joinPath(path, name)
		vg, err := g.GetVarGetter(name)
		if err != nil {
			log.Printf("store: skipping %s: %v", apath, err)
			continue
		}
		a, err := newFileArray(apath, vg)
		if err != nil {
			log.Printf("store: skipping %s: %v", apath, err)
			continue
		}
		if err := visit(a); err != nil {
			return err
		}
	}
	for _, name := range g.ListSubgroups() {
		child, err := g.GetGroup(name)
		if err != nil {
			log.Printf("store: skipping group %s: %v", joinPath(path, name), err)
			continue
		}
		if err := s.walk(child, joinPath(path, name), visit); err != nil {
			return err
		}
	}
	return nil
}

type fileGroup struct {
	path string
	g    api.Group
}

func (g *fileGroup) Path() string     { return g.path }
func (g *fileGroup) Arrays() []string { return g.g.ListVariables() }
func (g *fileGroup) Groups() []string { return g.g.ListSubgroups() }

func (g *fileGroup) Attr(name string) (interface{}, bool) {
	return g.g.Attributes().Get(name)
}

func (g *fileGroup) AttrNames() []string { return g.g.Attributes().Keys() }

func (g *fileGroup) Close() {}

type fileArray struct {
	path    string
	vg      api.VarGetter
	shape   []int
	srcElem reflect.Type // element type as decoded by the reader
	outElem reflect.Type // element type handed to callers
	typ     Type
}

// newFileArray derives the array shape and element type. The reader exposes
// only the outer length directly, so inner dimensions come from sampling the
// first row.
func newFileArray(path string, vg api.VarGetter) (*fileArray, error) {
	n := vg.Len()

	var sample interface{}
	var err error
	if n > 1 {
		sample, err = vg.GetSlice(0, 1)
	} else {
		sample, err = vg.Values()
	}
	if err != nil {
		return nil, fmt.Errorf("store: inspect %s: %v", path, err)
	}

	shape, srcElem := shapeOf(sample)
	if len(shape) > 0 {
		shape[0] = int(n)
	}

	typ, outElem, err := typeFor(srcElem)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %v", path, err)
	}

	return &fileArray{
		path:    path,
		vg:      vg,
		shape:   shape,
		srcElem: srcElem,
		outElem: outElem,
		typ:     typ,
	}, nil
}

// shapeOf walks nested slices down to the element type. A zero-length
// dimension ends the value walk; remaining dimensions report zero.
func shapeOf(v interface{}) ([]int, reflect.Type) {
	var shape []int
	t := reflect.TypeOf(v)
	rv := reflect.ValueOf(v)
	for t.Kind() == reflect.Slice {
		if rv.IsValid() && rv.Kind() == reflect.Slice {
			shape = append(shape, rv.Len())
			if rv.Len() > 0 {
				rv = rv.Index(0)
			} else {
				rv = reflect.Value{}
			}
		} else {
			shape = append(shape, 0)
		}
		t = t.Elem()
	}
	return shape, t
}

// typeFor maps a decoded Go element type to a store Type. Two-field float
// compounds are the on-disk representation of complex samples.
func typeFor(t reflect.Type) (Type, reflect.Type, error) {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Type{Class: TypeInt, Size: int(t.Size())}, t, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Type{Class: TypeUint, Size: int(t.Size())}, t, nil
	case reflect.Float32, reflect.Float64:
		return Type{Class: TypeFloat, Size: int(t.Size())}, t, nil
	case reflect.Complex64:
		return Type{Class: TypeFloat, Size: 4, Complex: true}, t, nil
	case reflect.Complex128:
		return Type{Class: TypeFloat, Size: 8, Complex: true}, t, nil
	case reflect.String:
		return Type{Class: TypeString}, t, nil
	case reflect.Struct:
		if t.NumField() == 2 {
			f0, f1 := t.Field(0).Type.Kind(), t.Field(1).Type.Kind()
			if f0 == f1 && f0 == reflect.Float32 {
				return Type{Class: TypeFloat, Size: 4, Complex: true}, reflect.TypeOf(complex64(0)), nil
			}
			if f0 == f1 && f0 == reflect.Float64 {
				return Type{Class: TypeFloat, Size: 8, Complex: true}, reflect.TypeOf(complex128(0)), nil
			}
		}
	}
	return Type{}, nil, fmt.Errorf("unsupported element type %v", t)
}

func (a *fileArray) Path() string      { return a.path }
func (a *fileArray) Rank() int         { return len(a.shape) }
func (a *fileArray) Shape() []int      { return a.shape }
func (a *fileArray) ChunkShape() []int { return nil }
func (a *fileArray) Type() Type        { return a.typ }

func (a *fileArray) Attr(name string) (interface{}, bool) {
	return a.vg.Attributes().Get(name)
}

func (a *fileArray) AttrNames() []string { return a.vg.Attributes().Keys() }

func (a *fileArray) Close() {}

// Read slices the outer dimension through the reader, then clips the inner
// dimensions in memory while flattening into a fresh slice.
func (a *fileArray) Read(offset, count []int) (interface{}, error) {
	if len(a.shape) == 0 {
		v, err := a.vg.Values()
		if err != nil {
			return nil, fmt.Errorf("store: read %s: %v", a.path, err)
		}
		out := reflect.MakeSlice(reflect.SliceOf(a.outElem), 1, 1)
		if err := setElem(out.Index(0), reflect.ValueOf(v)); err != nil {
			return nil, fmt.Errorf("store: read %s: %v", a.path, err)
		}
		return out.Interface(), nil
	}

	if len(offset) != len(a.shape) || len(count) != len(a.shape) {
		return nil, fmt.Errorf("store: %s: selection rank %d, array rank %d",
			a.path, len(offset), len(a.shape))
	}
	total := 1
	for i := range count {
		if count[i] <= 0 {
			return nil, fmt.Errorf("store: %s: non-positive count %v", a.path, count)
		}
		if offset[i] < 0 || offset[i]+count[i] > a.shape[i] {
			return nil, fmt.Errorf("store: %s: selection %v+%v outside shape %v",
				a.path, offset, count, a.shape)
		}
		total *= count[i]
	}

	rows, err := a.vg.GetSlice(int64(offset[0]), int64(offset[0]+count[0]))
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %v", a.path, err)
	}

	out := reflect.MakeSlice(reflect.SliceOf(a.outElem), total, total)
	pos := 0

	var descend func(v reflect.Value, dim int) error
	descend = func(v reflect.Value, dim int) error {
		if dim == len(a.shape) {
			if err := setElem(out.Index(pos), v); err != nil {
				return err
			}
			pos++
			return nil
		}
		if v.Kind() != reflect.Slice || v.Len() < offset[dim]+count[dim] {
			return fmt.Errorf("store: %s: ragged dimension %d", a.path, dim)
		}
		for j := offset[dim]; j < offset[dim]+count[dim]; j++ {
			if err := descend(v.Index(j), dim+1); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(rows)
	if rv.Kind() != reflect.Slice || rv.Len() < count[0] {
		return nil, fmt.Errorf("store: %s: short outer read", a.path)
	}
	for i := 0; i < count[0]; i++ {
		if err := descend(rv.Index(i), 1); err != nil {
			return nil, err
		}
	}
	return out.Interface(), nil
}

func setElem(dst, src reflect.Value) error {
	switch {
	case src.Kind() == reflect.Struct:
		re := src.Field(0).Float()
		im := src.Field(1).Float()
		dst.SetComplex(complex(re, im))
	case src.Type() == dst.Type():
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	return nil
}
