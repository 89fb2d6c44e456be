package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/metrics"
)

const (
	headerObject   = "header"
	manifestObject = "_SEALED"
	partPrefix     = "part-"
)

// Manifest is the seal record of an object-store staging artifact.
type Manifest struct {
	Feed     string    `json:"feed"`
	Name     string    `json:"name"`
	Parts    []string  `json:"parts"`
	SealedAt time.Time `json:"sealed_at"`
	// PublishedAt is set once the canonical object holds this artifact.
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Store stages a feed as one object per batch in a Lode store and publishes
// it with a single Replace of the canonical key. The store must implement
// lode.Replacer; Lode stores on their own are write-once.
//
// Layout:
//
//	staging/<feed>/header
//	staging/<feed>/part-<batch:08d>
//	staging/<feed>/_SEALED
//	feeds/<feed>/<name>
type Store struct {
	store     lodelibrary.Store
	replacer  lode.Replacer
	feed      string
	name      string
	collector *metrics.Collector
	now       func() time.Time
}

// NewStore creates an object-store backend over a store that can replace
// objects, such as lode.MemoryStore or lode.S3Store. Wrap it with
// lode.NewInstrumentedStore to count writes; collector here counts publishes.
func NewStore(store lodelibrary.Store, feed, name string, collector *metrics.Collector) (*Store, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if feed == "" || strings.Contains(feed, "/") {
		return nil, fmt.Errorf("invalid feed name %q", feed)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	replacer, ok := lode.ReplacerOf(store)
	if !ok {
		return nil, fmt.Errorf("%w: %T", lode.ErrReplaceNotSupported, store)
	}
	return &Store{store: store, replacer: replacer, feed: feed, name: name, collector: collector, now: time.Now}, nil
}

// Location implements Backend.
func (s *Store) Location() string {
	return "feeds/" + s.feed + "/" + s.name
}

func (s *Store) stagingPrefix() string {
	return "staging/" + s.feed + "/"
}

func (s *Store) key(object string) string {
	return s.stagingPrefix() + object
}

func partObject(batchIndex int) string {
	return fmt.Sprintf("%s%08d", partPrefix, batchIndex)
}

// Open implements StagingWriter by deleting every leftover staging object.
func (s *Store) Open(ctx context.Context) error {
	if err := s.clearStaging(ctx, ""); err != nil {
		return err
	}
	// The header object marks the staging artifact as existing.
	return s.replace(ctx, s.key(headerObject), nil)
}

// WriteHeader implements StagingWriter.
func (s *Store) WriteHeader(ctx context.Context, header []byte) error {
	if err := s.checkWritable(ctx); err != nil {
		return err
	}
	return s.replace(ctx, s.key(headerObject), header)
}

// Append implements StagingWriter. Each batch is its own object, so a retry
// of the same index overwrites whatever a failed attempt left behind.
func (s *Store) Append(ctx context.Context, batchIndex int, payload []byte) error {
	if batchIndex < 0 {
		return fmt.Errorf("negative batch index %d", batchIndex)
	}
	if err := s.checkWritable(ctx); err != nil {
		return err
	}
	if err := s.replace(ctx, s.key(partObject(batchIndex)), payload); err != nil {
		return fmt.Errorf("append batch %d: %w", batchIndex, err)
	}
	return nil
}

// Close implements StagingWriter. Parts must be contiguous from batch 0.
func (s *Store) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// A published artifact keeps only its manifest.
	if ok, err := s.exists(ctx, s.key(manifestObject)); err != nil {
		return err
	} else if ok {
		return nil
	}
	if ok, err := s.exists(ctx, s.key(headerObject)); err != nil {
		return err
	} else if !ok {
		return ErrNoStaging
	}

	parts, err := s.listParts(ctx)
	if err != nil {
		return err
	}
	for i, part := range parts {
		if part != partObject(i) {
			return fmt.Errorf("staging parts are not contiguous: expected %s, found %s", partObject(i), part)
		}
	}

	data, err := json.Marshal(Manifest{Feed: s.feed, Name: s.name, Parts: parts, SealedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.replace(ctx, s.key(manifestObject), data)
}

// Publish implements Publisher. Header and parts are streamed into a single
// Replace of the canonical key. The manifest is then marked published and the
// other staging objects are removed, so publishing the same artifact again is
// a no-op.
func (s *Store) Publish(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	manifest, err := s.readManifest(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if manifest.PublishedAt != nil {
		return nil
	}

	keys := make([]string, 0, len(manifest.Parts)+1)
	keys = append(keys, s.key(headerObject))
	for _, part := range manifest.Parts {
		keys = append(keys, s.key(part))
	}

	if err := s.putCanonical(ctx, keys); err != nil {
		s.collector.IncPublishFailure()
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	s.collector.IncPublishSuccess()

	// Without the mark a repeated Publish copies the same artifact again.
	publishedAt := s.now().UTC()
	manifest.PublishedAt = &publishedAt
	data, err := json.Marshal(manifest)
	if err == nil {
		err = s.replace(ctx, s.key(manifestObject), data)
	}
	if err == nil {
		// Leftovers are harmless: the next Open discards them.
		_ = s.clearStaging(ctx, manifestObject)
	}
	return nil
}

// putCanonical streams header and parts into one Replace. Readers of the
// canonical key see the previous feed until the new one is complete.
func (s *Store) putCanonical(ctx context.Context, keys []string) error {
	canonical := s.Location()
	r := &partsReader{ctx: ctx, store: s.store, keys: keys}
	defer func() { _ = r.Close() }()
	if err := s.replacer.Replace(ctx, canonical, r); err != nil {
		if r.err != nil {
			return r.err
		}
		return lode.WrapWriteError(err, canonical)
	}
	return nil
}

func (s *Store) readManifest(ctx context.Context) (*Manifest, error) {
	key := s.key(manifestObject)
	ok, err := s.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		header, err := s.exists(ctx, s.key(headerObject))
		if err != nil {
			return nil, err
		}
		if !header {
			return nil, ErrNoStaging
		}
		return nil, ErrNotSealed
	}

	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, lode.WrapReadError(err, key)
	}
	defer func() { _ = rc.Close() }()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	if m.Feed != s.feed || m.Name != s.name {
		return nil, fmt.Errorf("manifest %s belongs to %s/%s", key, m.Feed, m.Name)
	}
	return &m, nil
}

func (s *Store) checkWritable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header, err := s.exists(ctx, s.key(headerObject))
	if err != nil {
		return err
	}
	if !header {
		return ErrNoStaging
	}
	sealed, err := s.exists(ctx, s.key(manifestObject))
	if err != nil {
		return err
	}
	if sealed {
		return ErrSealed
	}
	return nil
}

// replace writes data at key, overwriting any previous object.
func (s *Store) replace(ctx context.Context, key string, data []byte) error {
	if err := s.replacer.Replace(ctx, key, bytes.NewReader(data)); err != nil {
		return lode.WrapWriteError(err, key)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return false, lode.WrapReadError(err, key)
	}
	return ok, nil
}

// stagingObjects lists object names (without prefix) under the staging prefix.
func (s *Store) stagingObjects(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, s.stagingPrefix())
	if err != nil {
		return nil, lode.WrapReadError(err, s.stagingPrefix())
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, path.Base(k))
	}
	return names, nil
}

func (s *Store) listParts(ctx context.Context) ([]string, error) {
	names, err := s.stagingObjects(ctx)
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, name := range names {
		if !strings.HasPrefix(name, partPrefix) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(name, partPrefix)); err != nil {
			continue
		}
		parts = append(parts, name)
	}
	// Zero padding makes lexical order numeric order.
	sort.Strings(parts)
	return parts, nil
}

// clearStaging deletes staging objects other than keep.
func (s *Store) clearStaging(ctx context.Context, keep string) error {
	names, err := s.stagingObjects(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == keep {
			continue
		}
		key := s.key(name)
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(lode.WrapDeleteError(err, key), lode.ErrNotFound) {
			return lode.WrapDeleteError(err, key)
		}
	}
	return nil
}

// partsReader concatenates objects, opening each one only when reached.
type partsReader struct {
	ctx   context.Context
	store lodelibrary.Store
	keys  []string
	cur   io.ReadCloser
	err   error
}

func (r *partsReader) Read(p []byte) (int, error) {
	for {
		if r.err != nil {
			return 0, r.err
		}
		if r.cur == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			key := r.keys[0]
			rc, err := r.store.Get(r.ctx, key)
			if err != nil {
				r.err = lode.WrapReadError(err, key)
				return 0, r.err
			}
			r.keys = r.keys[1:]
			r.cur = rc
		}

		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			_ = r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.err = err
		}
		return n, err
	}
}

func (r *partsReader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

var _ Backend = (*Store)(nil)
