// Package store provides read-only access to hierarchical array containers
// such as HDF5 product files. A Store is a tree of groups holding named,
// typed, N-dimensional arrays with attributes.
package store

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("store: object not found")

type TypeClass int

const (
	TypeInt TypeClass = iota
	TypeUint
	TypeFloat
	TypeString
)

// Type describes the element type of an array. Size is the width in bytes of
// one component; a complex type has two components of the same class and
// size.
type Type struct {
	Class   TypeClass
	Size    int
	Complex bool
}

// ElemSize returns the total width of one element in bytes.
func (t Type) ElemSize() int {
	if t.Complex {
		return 2 * t.Size
	}
	return t.Size
}

// Name returns the component type name, e.g. "float32".
func (t Type) Name() string {
	switch t.Class {
	case TypeFloat:
		return fmt.Sprintf("float%d", t.Size*8)
	case TypeUint:
		return fmt.Sprintf("uint%d", t.Size*8)
	case TypeString:
		return "string"
	}
	return fmt.Sprintf("int%d", t.Size*8)
}

// Store is a read-only hierarchical array container. Implementations must
// support concurrent reads on independently opened arrays.
type Store interface {
	// Array opens the array at an absolute slash-separated path. The caller
	// owns the returned handle and must Close it.
	Array(path string) (Array, error)

	// Group opens the group at an absolute path; "/" is the root.
	Group(path string) (Group, error)

	// HasGroup reports whether a group exists at path.
	HasGroup(path string) bool

	// Walk visits every array in the store, depth first, in the store's
	// native iteration order. Arrays that cannot be opened are logged and
	// skipped. Returning an error from visit aborts the walk.
	Walk(visit func(a Array) error) error

	Close() error
}

type Group interface {
	Path() string

	// Arrays and Groups list immediate children in native order.
	Arrays() []string
	Groups() []string

	Attr(name string) (interface{}, bool)
	AttrNames() []string

	Close()
}

type Array interface {
	Path() string
	Rank() int
	Shape() []int

	// ChunkShape returns the on-disk chunk dimensions, or nil when the
	// array is not chunked or the layout is unknown.
	ChunkShape() []int

	Type() Type

	Attr(name string) (interface{}, bool)
	AttrNames() []string

	// Read copies count elements starting at offset into a newly allocated
	// flat slice of the array's native Go element type. len(offset) and
	// len(count) must equal the array rank.
	Read(offset, count []int) (interface{}, error)

	Close()
}

// ParentPath returns the enclosing group path, or "" above the root.
func ParentPath(path string) string {
	if path == "/" || path == "" {
		return ""
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// PathDepth counts the segments of an absolute path.
func PathDepth(path string) int {
	path = strings.Trim(path, "/")
	if path == "" {
		return 0
	}
	return strings.Count(path, "/") + 1
}

func joinPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}
