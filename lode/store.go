package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Backend is one of fs, s3 or memory.
	Backend string
	// Path is the root directory (fs) or "bucket/prefix" (s3).
	Path string
	// Region is the AWS region for s3 (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing for S3-compatible providers.
	UsePathStyle bool
}

// Validate checks the backend selection.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendFS, BackendS3:
		if c.Path == "" {
			return fmt.Errorf("storage path is required for %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend: %q (must be fs, s3 or memory)", c.Backend)
	}
	return nil
}

// NewStoreFactory returns a Lode store factory for the configured backend.
// The fs root is created if missing.
func NewStoreFactory(ctx context.Context, cfg StoreConfig) (lode.StoreFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendFS:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, WrapInitError(err, cfg.Path)
		}
		return lode.NewFSFactory(cfg.Path), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(cfg.Path)
		return NewS3StoreFactory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
	default:
		store := NewMemoryStore()
		return func() (lode.Store, error) { return store, nil }, nil
	}
}

// OpenStore builds the configured store.
func OpenStore(ctx context.Context, cfg StoreConfig) (lode.Store, error) {
	factory, err := NewStoreFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := factory()
	if err != nil {
		return nil, WrapInitError(err, cfg.Path)
	}
	return store, nil
}

// S3Config holds configuration for S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL (e.g. MinIO, R2).
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(path, "s3://"), "/")
	return bucket, strings.TrimSuffix(prefix, "/")
}

// NewS3StoreFactory creates a factory of S3Store on an S3 bucket.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3StoreFactory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to load AWS config: %w", err), s3cfg.Bucket)
	}

	s3Client := s3.NewFromConfig(awsConfig, s3ClientOptions(s3cfg)...)

	return func() (lode.Store, error) {
		store, err := NewS3Store(s3Client, s3cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}, nil
}

// s3ClientOptions returns endpoint and addressing overrides.
func s3ClientOptions(s3cfg S3Config) []func(*s3.Options) {
	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3Opts
}
