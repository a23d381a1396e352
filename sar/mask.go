package sar

import (
	"fmt"
)

// MaskFamily selects the decode rule for a product's packed validity mask.
// The set is closed: a product that carries a mask dataset but maps to no
// family here fails at raster open.
type MaskFamily int

const (
	maskNone MaskFamily = iota

	// MaskRangeChecked marks raw values 1..5 valid, everything else
	// (including the 0 and 255 fill values) invalid.
	MaskRangeChecked

	// MaskDigitPacked packs two sub-swath indices as base-10 digits; a
	// pixel is valid only when both digits are non-zero. 255 is fill.
	MaskDigitPacked
)

func maskFamilyForType(productType string) (MaskFamily, bool) {
	switch productType {
	case "GCOV":
		return MaskRangeChecked, true
	case "RSLC":
		return MaskDigitPacked, true
	}
	return maskNone, false
}

// decodeMask normalizes one raw mask byte to 255 (valid) or 0 (invalid).
func decodeMask(family MaskFamily, raw byte) byte {
	switch family {
	case MaskRangeChecked:
		if raw >= 1 && raw <= 5 {
			return 255
		}
		return 0
	case MaskDigitPacked:
		if raw == 255 {
			return 0
		}
		if raw/10 != 0 && raw%10 != 0 {
			return 255
		}
		return 0
	}
	return 0
}

// ReadMaskTile reads a tile of the raster's validity mask with the same
// tiling and edge semantics as ReadTile, one byte per pixel, decoded to
// 255 = valid / 0 = invalid.
func (r *Raster) ReadMaskTile(col, row, width, height int) ([]byte, error) {
	if !r.HasMask() {
		return nil, ErrNoMask
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", width, height)
	}

	buf := make([]byte, width*height)

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

	m, err := r.st.Array(r.maskPath)
	if err != nil {
		return nil, fmt.Errorf("open mask %s: %v", r.maskPath, err)
	}
	defer m.Close()

	rank := m.Rank()
	if rank < 2 {
		return nil, &ShapeError{Path: r.maskPath, Shape: m.Shape()}
	}
	offset := make([]int, rank)
	count := make([]int, rank)
	for i := 0; i < rank-2; i++ {
		count[i] = 1
	}
	offset[rank-2], count[rank-2] = yOff, actualH
	offset[rank-1], count[rank-1] = xOff, actualW

	data, err := m.Read(offset, count)
	if err != nil {
		return nil, fmt.Errorf("read mask tile (%d,%d): %v", col, row, err)
	}
	raw, ok := data.([]byte)
	if !ok {
		if signed, oks := data.([]int8); oks {
			raw = make([]byte, len(signed))
			for i, v := range signed {
				raw[i] = byte(v)
			}
		} else {
			return nil, fmt.Errorf("mask %s has non-byte type %T", r.maskPath, data)
		}
	}
	if len(raw) != actualW*actualH {
		return nil, fmt.Errorf("read mask tile (%d,%d): got %d bytes, want %d",
			col, row, len(raw), actualW*actualH)
	}

	for y := 0; y < actualH; y++ {
		for x := 0; x < actualW; x++ {
			buf[y*width+x] = decodeMask(r.maskFamily, raw[y*actualW+x])
		}
	}
	return buf, nil
}
