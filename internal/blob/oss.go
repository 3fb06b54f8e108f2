package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSS stores media in an Aliyun OSS bucket.
type OSS struct {
	bucket     *oss.Bucket
	bucketName string
	endpoint   string
	publicBase string
}

// NewOSS connects to the bucket. publicBase, when set, prefixes object URLs
// (a CDN domain); otherwise the virtual-hosted bucket URL is used.
func NewOSS(endpoint, accessKeyID, accessKeySecret, bucketName, publicBase string) (*OSS, error) {
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("oss bucket %s: %w", bucketName, err)
	}
	return &OSS{
		bucket:     bucket,
		bucketName: bucketName,
		endpoint:   endpoint,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Put uploads the object with inline disposition.
func (o *OSS) Put(ctx context.Context, up Upload) (Object, error) {
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(up.ContentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	if up.Progress != nil {
		opts = append(opts, oss.Progress(&ossProgress{fn: up.Progress, last: -1}))
	}
	if err := o.bucket.PutObject(up.Path, up.Body, opts...); err != nil {
		return Object{}, ossError(ctx, fmt.Errorf("oss put %s: %w", up.Path, err))
	}
	return Object{Path: up.Path, URL: o.PublicURL(up.Path)}, nil
}

// Delete removes the object. OSS treats deleting a missing key as success.
func (o *OSS) Delete(ctx context.Context, path string) error {
	if err := o.bucket.DeleteObject(path, oss.WithContext(ctx)); err != nil {
		return ossError(ctx, fmt.Errorf("oss delete %s: %w", path, err))
	}
	return nil
}

// PublicURL returns the URL an object is served from.
func (o *OSS) PublicURL(key string) string {
	if o.publicBase != "" {
		return o.publicBase + "/" + key
	}
	end := strings.TrimPrefix(strings.TrimPrefix(o.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", o.bucketName, end, key)
}

func ossError(ctx context.Context, err error) error {
	var se oss.ServiceError
	if errors.As(err, &se) {
		return storageError(ctx, se.StatusCode, err)
	}
	return storageError(ctx, 0, err)
}

type ossProgress struct {
	fn   func(int)
	last int
}

func (p *ossProgress) ProgressChanged(event *oss.ProgressEvent) {
	switch event.EventType {
	case oss.TransferStartedEvent:
		p.report(0)
	case oss.TransferDataEvent:
		if event.TotalBytes > 0 {
			p.report(int(event.ConsumedBytes * 100 / event.TotalBytes))
		}
	case oss.TransferCompletedEvent:
		p.report(100)
	}
}

func (p *ossProgress) report(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.fn(pct)
	}
}
