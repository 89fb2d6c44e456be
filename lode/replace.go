package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// ErrReplaceNotSupported is returned when a store cannot overwrite an object.
var ErrReplaceNotSupported = errors.New("store cannot replace objects")

// Replacer overwrites an object in a single operation. A concurrent reader
// sees the previous object or the new one, never a missing key.
//
// Lode stores are write-once, so Put alone cannot swap a published object.
type Replacer interface {
	Replace(ctx context.Context, path string, r io.Reader) error
}

// ReplacerOf returns the Replacer of store. Decorators exposing Unwrap only
// count when the store they wrap can replace too.
func ReplacerOf(store lode.Store) (Replacer, bool) {
	if w, ok := store.(interface{ Unwrap() lode.Store }); ok {
		if _, ok := ReplacerOf(w.Unwrap()); !ok {
			return nil, false
		}
	}
	r, ok := store.(Replacer)
	return r, ok
}

// MemoryStore is an in-memory Lode store with an atomic Replace.
// Readers going through it never observe a replaced key as absent.
type MemoryStore struct {
	lode.Store
	mu sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Store: lode.NewMemory()}
}

// Get implements lode.Store.
func (m *MemoryStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Store.Get(ctx, p)
}

// Exists implements lode.Store.
func (m *MemoryStore) Exists(ctx context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Store.Exists(ctx, p)
}

// List implements lode.Store.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Store.List(ctx, prefix)
}

// ReadRange implements lode.Store.
func (m *MemoryStore) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Store.ReadRange(ctx, p, offset, length)
}

// Replace implements Replacer. The source is drained before the swap, so a
// failing source leaves the previous object in place.
func (m *MemoryStore) Replace(ctx context.Context, p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Delete rejects the same invalid paths Put does, so Put cannot fail here.
	if err := m.Store.Delete(ctx, p); err != nil {
		return err
	}
	return m.Store.Put(ctx, p, bytes.NewReader(data))
}

// s3PutAPI is the part of the S3 client Replace needs.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store is a Lode S3 store whose Replace issues an unconditional
// PutObject. S3 swaps the object for readers when the upload completes.
type S3Store struct {
	*lodes3.Store
	client     s3PutAPI
	bucket     string
	prefix     string
	createTemp func() (*os.File, error)
}

// NewS3Store creates an S3Store over client.
func NewS3Store(client *s3.Client, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := lodes3.New(client, lodes3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	if err != nil {
		return nil, err
	}
	return newS3Store(store, client, cfg), nil
}

func newS3Store(store *lodes3.Store, client s3PutAPI, cfg S3Config) *S3Store {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		Store:      store,
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		createTemp: func() (*os.File, error) { return os.CreateTemp("", "catalogfeed-s3-*") },
	}
}

// objectKey maps a store path to the bucket key the Lode S3 store uses.
func (s *S3Store) objectKey(p string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean(p), "/")
	if p == "" || cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", lode.ErrInvalidPath
	}
	return s.prefix + cleaned, nil
}

// Replace implements Replacer. The body is spooled to a temp file so the
// upload has a known length and can be retried by the SDK.
func (s *S3Store) Replace(ctx context.Context, p string, r io.Reader) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}

	tmp, err := s.createTemp()
	if err != nil {
		return fmt.Errorf("spool %s: %w", key, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("spool %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	})
	return err
}

var (
	_ Replacer   = (*MemoryStore)(nil)
	_ Replacer   = (*S3Store)(nil)
	_ lode.Store = (*S3Store)(nil)
)
