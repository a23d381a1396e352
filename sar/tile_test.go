package sar

import (
	"testing"

	"github.com/nci/gsar/store"
)

func openGriddedRaster(t *testing.T) *Raster {
	t.Helper()
	p, err := New(newGriddedStore())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	return r
}

func TestTileEdgePadding(t *testing.T) {
	r := openGriddedRaster(t)
	defer r.Close()

	// 10x10 raster, 8x8 tiles: tile (1,1) starts at pixel (8,8) and only
	// its 2x2 corner is in bounds
	buf, err := r.ReadTile(0, 1, 1, 8, 8)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if len(buf) != 64 {
		t.Fatalf("len(buf) = %d, want 64", len(buf))
	}

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			got := buf[y*8+x]
			var want uint8
			if y < 2 && x < 2 {
				want = uint8((y+8)*10 + (x + 8))
			}
			if got != want {
				t.Errorf("buf[%d,%d] = %d, want %d", y, x, got, want)
			}
		}
	}
}

func TestTileInterior(t *testing.T) {
	r := openGriddedRaster(t)
	defer r.Close()

	buf, err := r.ReadTile(0, 1, 0, 4, 4)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := uint8(y*10 + x + 4)
			if buf[y*4+x] != want {
				t.Errorf("buf[%d,%d] = %d, want %d", y, x, buf[y*4+x], want)
			}
		}
	}
}

func TestTileOutOfBounds(t *testing.T) {
	r := openGriddedRaster(t)
	defer r.Close()

	buf, err := r.ReadTile(0, 2, 2, 8, 8)
	if err != nil {
		t.Fatalf("ReadTile out of bounds: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want all zeros", i, b)
		}
	}
}

func TestTileInvalidGeometry(t *testing.T) {
	r := openGriddedRaster(t)
	defer r.Close()

	if _, err := r.ReadTile(0, 0, 0, -8, 8); err == nil {
		t.Errorf("negative tile width accepted")
	}
	if _, err := r.ReadTile(1, 0, 0, 8, 8); err == nil {
		t.Errorf("band out of range accepted")
	}
}

func TestTileBandSelection(t *testing.T) {
	s := store.NewMemStore()
	s.PutArray("/science/LSAR/identification/productType", []string{"GSLC"}, []int{1})
	cube := make([]int16, 2*4*4)
	for i := range cube {
		cube[i] = int16(i)
	}
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/layers", cube, []int{2, 4, 4})

	p, _ := New(s)
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/layers")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	if r.Bands() != 2 {
		t.Fatalf("Bands = %d, want 2", r.Bands())
	}

	buf, err := r.ReadTile(1, 0, 0, 4, 4)
	if err != nil {
		t.Fatalf("ReadTile band 1: %v", err)
	}
	// int16 host layout: first sample of band 1 is 16
	if got := int16(buf[0]) | int16(buf[1])<<8; got != 16 {
		t.Errorf("band 1 first sample = %d, want 16", got)
	}
}

func TestBlockSizeDefaults(t *testing.T) {
	r := openGriddedRaster(t)
	defer r.Close()

	// unchunked arrays clamp the default block to the raster extent
	w, h := r.BlockSize()
	if w != 10 || h != 10 {
		t.Errorf("BlockSize = %dx%d, want 10x10", w, h)
	}
}

func TestBlockSizeFromChunks(t *testing.T) {
	s := newGriddedStore()
	a, _ := s.Array("/science/LSAR/GSLC/grids/frequencyA/HH")
	a.(*store.MemArray).SetChunk([]int{4, 6})

	p, _ := New(s)
	r, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/HH")
	if err != nil {
		t.Fatalf("OpenRaster: %v", err)
	}
	defer r.Close()

	w, h := r.BlockSize()
	if w != 6 || h != 4 {
		t.Errorf("BlockSize = %dx%d, want 6x4", w, h)
	}
}

func TestOpenRasterBadShapes(t *testing.T) {
	s := newGriddedStore()
	s.PutArray("/science/LSAR/GSLC/grids/frequencyA/vector", []float32{1, 2}, []int{2})

	p, _ := New(s)
	if _, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/vector"); err == nil {
		t.Errorf("rank-1 array opened as raster")
	}
	if _, err := p.OpenRaster("/science/LSAR/GSLC/grids/frequencyA/missing"); err == nil {
		t.Errorf("missing array opened as raster")
	}
}
