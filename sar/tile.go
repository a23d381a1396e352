package sar

import (
	"fmt"
	"unsafe"
)

// ReadTile fills a tile of width x height pixels whose origin is
// (col*width, row*height) in pixel space, returning the samples in the
// array's native on-disk type, little-endian host layout. A tile entirely
// outside the raster extent comes back zero filled, not as an error; tiles
// straddling the right or bottom edge are zero padded past the in-bounds
// region. The read against the store happens as a single hyperslab.
func (r *Raster) ReadTile(band, col, row, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", width, height)
	}
	if band < 0 || band >= r.bands {
		return nil, fmt.Errorf("band %d out of range [0,%d)", band, r.bands)
	}

	elem := r.typ.ElemSize()
	if elem == 0 {
		return nil, fmt.Errorf("array %s is not raster typed", r.arr.Path())
	}
	buf := make([]byte, width*height*elem)

	xOff := col * width
	yOff := row * height
	if xOff >= r.width || yOff >= r.height || xOff+width <= 0 || yOff+height <= 0 {
		return buf, nil
	}

	actualW := width
	if xOff+actualW > r.width {
		actualW = r.width - xOff
	}
	actualH := height
	if yOff+actualH > r.height {
		actualH = r.height - yOff
	}

	rank := r.arr.Rank()
	offset := make([]int, rank)
	count := make([]int, rank)
	for i := 0; i < rank-2; i++ {
		count[i] = 1
	}
	if rank > 2 {
		offset[0] = band
	}
	offset[rank-2], count[rank-2] = yOff, actualH
	offset[rank-1], count[rank-1] = xOff, actualW

	data, err := r.arr.Read(offset, count)
	if err != nil {
		return nil, fmt.Errorf("read tile (%d,%d) of %s: %v", col, row, r.arr.Path(), err)
	}
	src, err := asBytes(data)
	if err != nil {
		return nil, fmt.Errorf("read tile (%d,%d) of %s: %v", col, row, r.arr.Path(), err)
	}
	if len(src) != actualW*actualH*elem {
		return nil, fmt.Errorf("read tile (%d,%d) of %s: got %d bytes, want %d",
			col, row, r.arr.Path(), len(src), actualW*actualH*elem)
	}

	rowBytes := actualW * elem
	for y := 0; y < actualH; y++ {
		copy(buf[y*width*elem:y*width*elem+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
	}
	return buf, nil
}

// asBytes views a flat typed sample slice as raw bytes without copying.
func asBytes(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case []int8:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)), nil
	case []int16:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*2), nil
	case []uint16:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*2), nil
	case []int32:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4), nil
	case []uint32:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4), nil
	case []int64:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8), nil
	case []uint64:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8), nil
	case []float32:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4), nil
	case []float64:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8), nil
	case []complex64:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8), nil
	case []complex128:
		if len(v) == 0 {
			return nil, nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*16), nil
	}
	return nil, fmt.Errorf("unsupported sample slice %T", data)
}
