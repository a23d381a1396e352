// Package s3io reads single S3 objects through ranged GETs with page
// buffering, so large product files can be opened in place without local
// staging.
package s3io

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPageSize balances request count against transfer waste for the
// scattered small reads an HDF5 reader issues.
const DefaultPageSize = 4 << 20

// Object is a read-only io.ReadSeekCloser over one S3 object. It keeps a
// single page buffer; sequential and clustered reads hit the buffer,
// anything else triggers one ranged GET. Object is not safe for concurrent
// use; open one per reader.
type Object struct {
	size     int64
	off      int64
	pageSize int64

	pageOff int64 // -1 when the buffer is empty
	page    []byte

	fetch func(start, end int64) ([]byte, error)
}

// ParseURI splits an s3://bucket/key URI.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" || len(u.Path) < 2 {
		return "", "", fmt.Errorf("s3io: invalid object URI %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Open resolves the object size and returns a reader over it using the
// default page size. Credentials come from the default AWS chain;
// GSAR_S3_ENDPOINT overrides the endpoint for S3-compatible object stores.
func Open(ctx context.Context, uri string) (*Object, error) {
	return OpenWithPageSize(ctx, uri, DefaultPageSize)
}

// OpenWithPageSize is Open with an explicit page size; zero or negative
// falls back to the default.
func OpenWithPageSize(ctx context.Context, uri string, pageSize int64) (*Object, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3io: load aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("GSAR_S3_ENDPOINT"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	})

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("s3io: head %s: %v", uri, err)
	}
	size := int64(0)
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	fetch := func(start, end int64) ([]byte, error) {
		rng := fmt.Sprintf("bytes=%d-%d", start, end-1)
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &bucket,
			Key:    &key,
			Range:  &rng,
		})
		if err != nil {
			return nil, fmt.Errorf("s3io: get %s %s: %v", uri, rng, err)
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	}

	return newObject(size, pageSize, fetch), nil
}

func newObject(size, pageSize int64, fetch func(start, end int64) ([]byte, error)) *Object {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Object{size: size, pageSize: pageSize, pageOff: -1, fetch: fetch}
}

func (o *Object) Size() int64 { return o.size }

func (o *Object) Read(p []byte) (int, error) {
	if o.off >= o.size {
		return 0, io.EOF
	}
	total := 0
	for len(p) > 0 && o.off < o.size {
		if err := o.fill(o.off); err != nil {
			return total, err
		}
		n := copy(p, o.page[o.off-o.pageOff:])
		total += n
		o.off += int64(n)
		p = p[n:]
	}
	return total, nil
}

// fill ensures the page buffer covers offset.
func (o *Object) fill(offset int64) error {
	if o.pageOff >= 0 && offset >= o.pageOff && offset < o.pageOff+int64(len(o.page)) {
		return nil
	}
	start := (offset / o.pageSize) * o.pageSize
	end := start + o.pageSize
	if end > o.size {
		end = o.size
	}
	page, err := o.fetch(start, end)
	if err != nil {
		return err
	}
	if int64(len(page)) != end-start {
		return fmt.Errorf("s3io: short range read: got %d bytes, want %d", len(page), end-start)
	}
	o.pageOff = start
	o.page = page
	return nil
}

func (o *Object) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = o.off + offset
	case io.SeekEnd:
		next = o.size + offset
	default:
		return 0, fmt.Errorf("s3io: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("s3io: negative seek offset")
	}
	o.off = next
	return next, nil
}

func (o *Object) Close() error {
	o.page = nil
	o.pageOff = -1
	return nil
}
