package store

import (
	"fmt"
	"reflect"
	"strings"
)

// MemStore is an in-memory Store. It backs synthetic products in tests and
// tools that assemble product trees programmatically.
type MemStore struct {
	root *MemGroup
}

func NewMemStore() *MemStore {
	return &MemStore{root: &MemGroup{path: "/", attrs: map[string]interface{}{}}}
}

type MemGroup struct {
	path      string
	order     []string
	groups    map[string]*MemGroup
	arrays    map[string]*MemArray
	attrs     map[string]interface{}
	attrOrder []string
}

type MemArray struct {
	path      string
	shape     []int
	chunk     []int
	typ       Type
	attrs     map[string]interface{}
	attrOrder []string
	data      interface{}
}

// PutGroup creates all groups along path and returns the deepest one.
func (s *MemStore) PutGroup(path string) *MemGroup {
	g := s.root
	for _, name := range splitPath(path) {
		if g.groups == nil {
			g.groups = map[string]*MemGroup{}
		}
		child, ok := g.groups[name]
		if !ok {
			child = &MemGroup{path: joinPath(g.path, name), attrs: map[string]interface{}{}}
			g.groups[name] = child
			g.order = append(g.order, name)
		}
		g = child
	}
	return g
}

// PutArray stores a flat data slice under path with the given shape. The
// element type is inferred from the slice type. Panics on malformed input;
// MemStore is construction-side tooling, not a decoding boundary.
func (s *MemStore) PutArray(path string, data interface{}, shape []int) *MemArray {
	n := 1
	for _, d := range shape {
		n *= d
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice {
		panic(fmt.Sprintf("memstore: %s: data must be a slice", path))
	}
	if rv.Len() != n {
		panic(fmt.Sprintf("memstore: %s: %d elements for shape %v", path, rv.Len(), shape))
	}
	parent := s.PutGroup(ParentPath(path))
	name := path[strings.LastIndex(path, "/")+1:]
	a := &MemArray{
		path:  path,
		shape: append([]int(nil), shape...),
		typ:   typeOf(rv.Type().Elem()),
		attrs: map[string]interface{}{},
		data:  data,
	}
	if parent.arrays == nil {
		parent.arrays = map[string]*MemArray{}
	}
	parent.arrays[name] = a
	parent.order = append(parent.order, name)
	return a
}

func (a *MemArray) SetAttr(name string, v interface{}) *MemArray {
	if _, ok := a.attrs[name]; !ok {
		a.attrOrder = append(a.attrOrder, name)
	}
	a.attrs[name] = v
	return a
}

func (a *MemArray) SetChunk(chunk []int) *MemArray {
	a.chunk = append([]int(nil), chunk...)
	return a
}

func (g *MemGroup) SetAttr(name string, v interface{}) *MemGroup {
	if _, ok := g.attrs[name]; !ok {
		g.attrOrder = append(g.attrOrder, name)
	}
	g.attrs[name] = v
	return g
}

func typeOf(t reflect.Type) Type {
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Type{Class: TypeUint, Size: int(t.Size())}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Type{Class: TypeInt, Size: int(t.Size())}
	case reflect.Float32, reflect.Float64:
		return Type{Class: TypeFloat, Size: int(t.Size())}
	case reflect.Complex64:
		return Type{Class: TypeFloat, Size: 4, Complex: true}
	case reflect.Complex128:
		return Type{Class: TypeFloat, Size: 8, Complex: true}
	case reflect.String:
		return Type{Class: TypeString}
	}
	panic(fmt.Sprintf("memstore: unsupported element type %v", t))
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (s *MemStore) group(path string) (*MemGroup, bool) {
	g := s.root
	for _, name := range splitPath(path) {
		child, ok := g.groups[name]
		if !ok {
			return nil, false
		}
		g = child
	}
	return g, true
}

func (s *MemStore) Array(path string) (Array, error) {
	g, ok := s.group(ParentPath(path))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	name := path[strings.LastIndex(path, "/")+1:]
	a, ok := g.arrays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return a, nil
}

func (s *MemStore) Group(path string) (Group, error) {
	g, ok := s.group(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return g, nil
}

func (s *MemStore) HasGroup(path string) bool {
	_, ok := s.group(path)
	return ok
}

func (s *MemStore) Walk(visit func(a Array) error) error {
	return s.root.walk(visit)
}

func (s *MemStore) Close() error { return nil }

func (g *MemGroup) walk(visit func(a Array) error) error {
	for _, name := range g.order {
		if a, ok := g.arrays[name]; ok {
			if err := visit(a); err != nil {
				return err
			}
			continue
		}
		if child, ok := g.groups[name]; ok {
			if err := child.walk(visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *MemGroup) Path() string { return g.path }

func (g *MemGroup) Arrays() []string {
	var names []string
	for _, name := range g.order {
		if _, ok := g.arrays[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (g *MemGroup) Groups() []string {
	var names []string
	for _, name := range g.order {
		if _, ok := g.groups[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (g *MemGroup) Attr(name string) (interface{}, bool) {
	v, ok := g.attrs[name]
	return v, ok
}

func (g *MemGroup) AttrNames() []string { return g.attrOrder }

func (g *MemGroup) Close() {}

func (a *MemArray) Path() string      { return a.path }
func (a *MemArray) Rank() int         { return len(a.shape) }
func (a *MemArray) Shape() []int      { return a.shape }
func (a *MemArray) ChunkShape() []int { return a.chunk }
func (a *MemArray) Type() Type        { return a.typ }

func (a *MemArray) Attr(name string) (interface{}, bool) {
	v, ok := a.attrs[name]
	return v, ok
}

func (a *MemArray) AttrNames() []string { return a.attrOrder }

func (a *MemArray) Close() {}

// Read performs a strided copy of the requested hyperslab out of the flat
// backing slice.
func (a *MemArray) Read(offset, count []int) (interface{}, error) {
	if len(offset) != len(a.shape) || len(count) != len(a.shape) {
		return nil, fmt.Errorf("memstore: %s: selection rank %d, array rank %d",
			a.path, len(offset), len(a.shape))
	}
	if len(a.shape) == 0 {
		src := reflect.ValueOf(a.data)
		dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		reflect.Copy(dst, src)
		return dst.Interface(), nil
	}
	n := 1
	for i := range count {
		if count[i] <= 0 {
			return nil, fmt.Errorf("memstore: %s: non-positive count %v", a.path, count)
		}
		if offset[i] < 0 || offset[i]+count[i] > a.shape[i] {
			return nil, fmt.Errorf("memstore: %s: selection %v+%v outside shape %v",
				a.path, offset, count, a.shape)
		}
		n *= count[i]
	}

	src := reflect.ValueOf(a.data)
	dst := reflect.MakeSlice(src.Type(), n, n)

	strides := make([]int, len(a.shape))
	stride := 1
	for i := len(a.shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= a.shape[i]
	}

	idx := make([]int, len(a.shape))
	out := 0
	for {
		base := 0
		for i := range idx {
			base += (offset[i] + idx[i]) * strides[i]
		}
		// copy one contiguous run along the last dimension
		run := count[len(count)-1]
		reflect.Copy(dst.Slice(out, out+run), src.Slice(base, base+run))
		out += run

		// advance all but the last dimension
		i := len(idx) - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < count[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return dst.Interface(), nil
}
