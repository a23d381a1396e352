package s3io

import (
	"bytes"
	"io"
	"testing"
)

func newTestObject(size, pageSize int64) (*Object, *int) {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	fetches := 0
	fetch := func(start, end int64) ([]byte, error) {
		fetches++
		return data[start:end], nil
	}
	return newObject(size, pageSize, fetch), &fetches
}

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://products/nisar/scene.h5")
	if err != nil || bucket != "products" || key != "nisar/scene.h5" {
		t.Errorf("ParseURI = %q, %q, %v", bucket, key, err)
	}
	for _, bad := range []string{"http://x/y", "s3://", "s3://bucket", "not a uri"} {
		if _, _, err := ParseURI(bad); err == nil {
			t.Errorf("ParseURI(%q) accepted", bad)
		}
	}
}

func TestReadAcrossPages(t *testing.T) {
	o, _ := newTestObject(1000, 256)

	got, err := io.ReadAll(o)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1000 {
		t.Fatalf("read %d bytes, want 1000", len(got))
	}
	for i, b := range got {
		if b != byte(i%251) {
			t.Fatalf("byte %d = %d", i, b)
		}
	}
}

func TestPageReuse(t *testing.T) {
	o, fetches := newTestObject(1000, 256)

	buf := make([]byte, 16)
	for i := 0; i < 10; i++ {
		if _, err := o.Seek(int64(i*16), io.SeekStart); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		if _, err := io.ReadFull(o, buf); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	// all reads land in the first page
	if *fetches != 1 {
		t.Errorf("fetches = %d, want 1", *fetches)
	}
}

func TestSeekSemantics(t *testing.T) {
	o, _ := newTestObject(100, 256)

	if pos, _ := o.Seek(-10, io.SeekEnd); pos != 90 {
		t.Errorf("SeekEnd = %d, want 90", pos)
	}
	got, err := io.ReadAll(o)
	if err != nil || len(got) != 10 {
		t.Errorf("tail read = %d bytes, %v", len(got), err)
	}
	if !bytes.Equal(got, []byte{90, 91, 92, 93, 94, 95, 96, 97, 98, 99}) {
		t.Errorf("tail = %v", got)
	}

	if _, err := o.Seek(-1, io.SeekStart); err == nil {
		t.Errorf("negative seek accepted")
	}

	if _, err := o.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read at end = %v, want EOF", err)
	}
}
