// Package blob is dispatchd's file-bytes persistence layer (C10's blob
// half): an S3-compatible object store, grounded on SPEC_FULL.md's
// OmarEhab007-RemedyIQ-sourced S3 wiring and the `/msg/{provider}/{fileUUID}`
// key convention spec.md §4.10 names.
package blob

import (
	"bytes"
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/geoffjay/dispatchd/core/config"
)

// Store wraps an S3 client bound to a single bucket.
type Store struct {
	cfg    config.BlobConfig
	client *s3.Client
}

// New builds a Store bound to cfg. Open must be called before use.
func New(cfg config.BlobConfig) *Store {
	return &Store{cfg: cfg}
}

// Open loads the AWS SDK's default credential chain, scoped to the
// configured region, and constructs the S3 client (optionally pointed at
// a non-AWS S3-compatible endpoint for local development).
func (s *Store) Open(ctx context.Context) error {
	opts := []func(*awsconfig.LoadOptions) error{}
	if s.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = &s.cfg.Endpoint
			o.UsePathStyle = true
		}
	})
	return nil
}

// Close is a no-op; the S3 client holds no long-lived connection to
// release (kept for symmetry with Store.Open and C9's open/close
// composition).
func (s *Store) Close(ctx context.Context) error { return nil }

// Key returns the canonical blob key for a file attached to a message
// from provider, matching spec.md §4.10's `/msg/{provider}/{fileUUID}`.
func Key(provider, fileUUID string) string {
	return fmt.Sprintf("/msg/%s/%s", provider, fileUUID)
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

// Get downloads the bytes stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
