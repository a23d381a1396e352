package sar

import (
	"errors"
	"testing"

	"github.com/nci/gsar/store"
)

func TestDecodeRangeChecked(t *testing.T) {
	tests := []struct {
		raw  byte
		want byte
	}{
		{0, 0},
		{1, 255},
		{3, 255},
		{5, 255},
		{6, 0},
		{255, 0},
	}
	for _, tc := range tests {
		if got := decodeMask(MaskRangeChecked, tc.raw); got != tc.want {
			t.Errorf("decodeMask(range-checked, %d) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestDecodeDigitPacked(t *testing.T) {
	tests := []struct {
		raw  byte
		want byte
	}{
		{0, 0},     // both digits zero
		{255, 0},   // fill sentinel
		{23, 255},  // digits 2 and 3
		{20, 0},    // ones digit zero
		{3, 0},     // tens digit zero
		{11, 255},  // digits 1 and 1
	}
	for _, tc := range tests {
		if got := decodeMask(MaskDigitPacked, tc.raw); got != tc.want {
			t.Errorf("decodeMask(digit-packed, %d) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

// newMaskedStore builds a 4x4 GCOV product with a range-checked mask.
func newMaskedStore() *store.MemStore {
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GCOV"}, []int{1})
	s.PutArray("/science/LSAR/GCOV/grids/frequencyA/HHHH", make([]float32, 16), []int{4, 4})
	mask := []uint8{
		1, 2, 3, 4,
		5, 0, 255, 6,
		1, 1, 0, 0,
		255, 5, 4, 2,
	}
	s.PutArray("/science/LSAR/GCOV/grids/frequencyA/mask", mask, []int{4, 4})
	return s
}

func TestReadMaskTile(t *testing.T) {
	p, _ := New(newMaskedStore())
	r, err := p.OpenRaster("/science/LSAR/GCOV/grids/frequencyA/HHHH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	if !r.HasMask() {
		t.Fatalf("HasMask = false")
	}
	if nd, ok := r.NoDataValue(); !ok || nd != 0 {
		t.Errorf("NoDataValue = %v,%v, want 0,true", nd, ok)
	}

	buf, err := r.ReadMaskTile(0, 0, 4, 4)
	if err != nil {
		t.Fatalf("ReadMaskTile: %v", err)
	}
	want := []byte{
		255, 255, 255, 255,
		255, 0, 0, 0,
		255, 255, 0, 0,
		0, 255, 255, 255,
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("mask[%d] = %d, want %d", i, buf[i], want[i])
		}
	}
}

func TestReadMaskTileEdges(t *testing.T) {
	p, _ := New(newMaskedStore())
	r, err := p.OpenRaster("/science/LSAR/GCOV/grids/frequencyA/HHHH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	// partial tile: only the top-left 1x1 corner is in bounds
	buf, err := r.ReadMaskTile(1, 1, 3, 3)
	if err != nil {
		t.Fatalf("ReadMaskTile: %v", err)
	}
	if buf[0] != 255 { // raw value 2 at (3,3) is valid
		t.Errorf("in-bounds corner = %d, want 255", buf[0])
	}
	for i := 1; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Errorf("padding[%d] = %d, want 0", i, buf[i])
		}
	}

	// fully out of bounds is a zero-filled success
	buf, err = r.ReadMaskTile(5, 5, 3, 3)
	if err != nil {
		t.Fatalf("ReadMaskTile out of bounds: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("oob mask[%d] = %d", i, b)
		}
	}
}

func TestMaskWithoutDecodeRuleFailsOpen(t *testing.T) {
	// GUNW defines no mask family; a mask sibling makes the open a
	// configuration fault
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GUNW"}, []int{1})
	s.PutArray("/science/LSAR/GUNW/grids/frequencyA/coherence", make([]float32, 16), []int{4, 4})
	s.PutArray("/science/LSAR/GUNW/grids/frequencyA/mask", make([]uint8, 16), []int{4, 4})

	p, _ := New(s)
	if _, err := p.OpenRaster("/science/LSAR/GUNW/grids/frequencyA/coherence"); err == nil {
		t.Errorf("raster with undecodable mask family opened")
	}
}

func TestNoMask(t *testing.T) {
	p, _ := New(newGriddedStore())
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadMaskTile(0, 0, 4, 4); !errors.Is(err, ErrNoMask) {
		t.Errorf("ReadMaskTile = %v, want ErrNoMask", err)
	}
}
