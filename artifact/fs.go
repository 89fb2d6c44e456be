package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/justapithecus/catalogfeed/iox"
	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/metrics"
)

// FS stages and publishes a feed file in a local directory.
//
// The staging file is a hidden sibling of the canonical file so publishing
// is a same-directory rename. Hidden sidecars record where each batch starts
// and, once sealed, the sealed size.
type FS struct {
	dir       string
	name      string
	perm      os.FileMode
	collector *metrics.Collector
}

// FSOption configures an FS backend.
type FSOption func(*FS)

// WithFileMode sets the permission of the staged and published file.
func WithFileMode(perm os.FileMode) FSOption {
	return func(f *FS) { f.perm = perm }
}

// WithCollector counts every staging write on collector.
func WithCollector(c *metrics.Collector) FSOption {
	return func(f *FS) { f.collector = c }
}

// NewFS creates a filesystem backend publishing dir/name.
func NewFS(dir, name string, opts ...FSOption) (*FS, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.New("feed directory is required")
	}
	f := &FS{dir: dir, name: name, perm: 0o644}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Location implements Backend.
func (f *FS) Location() string {
	return filepath.Join(f.dir, f.name)
}

// StagingPath returns the staging file path.
func (f *FS) StagingPath() string {
	return filepath.Join(f.dir, "."+f.name+".staging")
}

func (f *FS) sealPath() string {
	return filepath.Join(f.dir, "."+f.name+".sealed")
}

func (f *FS) offsetsPath() string {
	return filepath.Join(f.dir, "."+f.name+".batches")
}

// Open implements StagingWriter.
func (f *FS) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return lode.WrapInitError(err, f.dir)
	}
	for _, sidecar := range []string{f.sealPath(), f.offsetsPath()} {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return lode.WrapDeleteError(err, sidecar)
		}
	}

	staging, err := os.OpenFile(f.StagingPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.perm)
	if err != nil {
		return lode.WrapWriteError(err, f.StagingPath())
	}
	if err := staging.Sync(); err != nil {
		_ = staging.Close()
		return lode.WrapWriteError(err, f.StagingPath())
	}
	return lode.WrapWriteError(staging.Close(), f.StagingPath())
}

// headerIndex keys the header in the batch offsets sidecar.
const headerIndex = -1

// WriteHeader implements StagingWriter. Writing the header again discards
// everything staged after it.
func (f *FS) WriteHeader(ctx context.Context, header []byte) error {
	return f.write(ctx, headerIndex, header)
}

// Append implements StagingWriter. The file is reopened in append mode on
// every call. The start offset of each batch is kept in a sidecar, so
// appending an index again first truncates back to where that batch began;
// on failure the file is truncated back as well.
func (f *FS) Append(ctx context.Context, batchIndex int, payload []byte) error {
	if batchIndex < 0 {
		return fmt.Errorf("negative batch index %d", batchIndex)
	}
	if err := f.write(ctx, batchIndex, payload); err != nil {
		return fmt.Errorf("append batch %d: %w", batchIndex, err)
	}
	return nil
}

func (f *FS) write(ctx context.Context, index int, payload []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrSealed) && !errors.Is(err, ErrNoStaging) {
			f.collector.IncStorageWriteFailure()
		}
	}()

	if _, err := os.Stat(f.sealPath()); err == nil {
		return ErrSealed
	}

	staging, err := os.OpenFile(f.StagingPath(), os.O_WRONLY|os.O_APPEND, f.perm)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoStaging
	}
	if err != nil {
		return lode.WrapWriteError(err, f.StagingPath())
	}

	info, err := staging.Stat()
	if err != nil {
		_ = staging.Close()
		return lode.WrapReadError(err, f.StagingPath())
	}
	offsets, err := f.readOffsets()
	if err != nil {
		_ = staging.Close()
		return err
	}

	start, rewrite := offsets[index]
	switch {
	case !rewrite:
		start = info.Size()
	case start > info.Size():
		_ = staging.Close()
		return fmt.Errorf("staging is %d bytes but index %d starts at %d", info.Size(), index, start)
	}
	for i := range offsets {
		if i >= index {
			delete(offsets, i)
		}
	}
	offsets[index] = start
	// The offset is durable before any byte of the batch lands.
	if err := f.writeOffsets(offsets); err != nil {
		_ = staging.Close()
		return err
	}
	if rewrite && start < info.Size() {
		if err := staging.Truncate(start); err != nil {
			_ = staging.Close()
			return lode.WrapWriteError(err, f.StagingPath())
		}
	}

	if _, err := staging.Write(payload); err != nil {
		return f.rollback(staging, start, err)
	}
	if err := staging.Sync(); err != nil {
		return f.rollback(staging, start, err)
	}
	if err := staging.Close(); err != nil {
		if truncErr := os.Truncate(f.StagingPath(), start); truncErr != nil {
			return fmt.Errorf("%w (rollback: %v)", lode.WrapWriteError(err, f.StagingPath()), truncErr)
		}
		return lode.WrapWriteError(err, f.StagingPath())
	}

	f.collector.IncStorageWriteSuccess()
	return nil
}

// readOffsets loads the start offset of every staged index.
func (f *FS) readOffsets() (map[int]int64, error) {
	offsets := make(map[int]int64)
	data, err := os.ReadFile(f.offsetsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return offsets, nil
	}
	if err != nil {
		return nil, lode.WrapReadError(err, f.offsetsPath())
	}
	for line := range strings.Lines(string(data)) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("corrupt batch offsets %s: %q", f.offsetsPath(), line)
		}
		index, err1 := strconv.Atoi(fields[0])
		start, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 != nil || err2 != nil || start < 0 {
			return nil, fmt.Errorf("corrupt batch offsets %s: %q", f.offsetsPath(), line)
		}
		offsets[index] = start
	}
	return offsets, nil
}

func (f *FS) writeOffsets(offsets map[int]int64) error {
	indexes := make([]int, 0, len(offsets))
	for i := range offsets {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	var b strings.Builder
	for _, i := range indexes {
		fmt.Fprintf(&b, "%d %d\n", i, offsets[i])
	}
	if err := iox.WriteFileAtomic(f.offsetsPath(), []byte(b.String()), f.perm); err != nil {
		return lode.WrapWriteError(err, f.offsetsPath())
	}
	return nil
}

// rollback truncates the staging file to size and closes it.
func (f *FS) rollback(staging *os.File, size int64, cause error) error {
	truncErr := staging.Truncate(size)
	_ = staging.Close()
	if truncErr != nil {
		return fmt.Errorf("%w (rollback: %v)", lode.WrapWriteError(cause, f.StagingPath()), truncErr)
	}
	return lode.WrapWriteError(cause, f.StagingPath())
}

// Close implements StagingWriter. Sealing is idempotent.
func (f *FS) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	staging, err := os.OpenFile(f.StagingPath(), os.O_RDONLY, 0)
	if errors.Is(err, fs.ErrNotExist) {
		if f.published() {
			return nil
		}
		return ErrNoStaging
	}
	if err != nil {
		return lode.WrapReadError(err, f.StagingPath())
	}
	defer iox.DiscardClose(staging)

	if err := staging.Sync(); err != nil {
		return lode.WrapWriteError(err, f.StagingPath())
	}
	info, err := staging.Stat()
	if err != nil {
		return lode.WrapReadError(err, f.StagingPath())
	}

	marker := []byte(strconv.FormatInt(info.Size(), 10))
	if err := os.WriteFile(f.sealPath(), marker, f.perm); err != nil {
		return lode.WrapWriteError(err, f.sealPath())
	}
	return nil
}

// published reports whether the sealed staging file was already renamed into
// place: staging is gone while the seal marker matches the canonical size.
func (f *FS) published() bool {
	marker, err := os.ReadFile(f.sealPath())
	if err != nil {
		return false
	}
	sealed, err := strconv.ParseInt(strings.TrimSpace(string(marker)), 10, 64)
	if err != nil {
		return false
	}
	info, err := os.Stat(f.Location())
	return err == nil && info.Size() == sealed
}

// Publish implements Publisher with a same-directory rename. Publishing a
// run that already went through is a no-op.
func (f *FS) Publish(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	info, err := os.Stat(f.StagingPath())
	if errors.Is(err, fs.ErrNotExist) {
		if f.published() {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrPublish, ErrNoStaging)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, lode.WrapReadError(err, f.StagingPath()))
	}

	marker, err := os.ReadFile(f.sealPath())
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrPublish, ErrNotSealed)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, lode.WrapReadError(err, f.sealPath()))
	}
	sealed, err := strconv.ParseInt(strings.TrimSpace(string(marker)), 10, 64)
	if err != nil || sealed != info.Size() {
		return fmt.Errorf("%w: %w: staging is %d bytes, sealed at %s", ErrPublish, ErrNotSealed, info.Size(), marker)
	}

	if err := os.Rename(f.StagingPath(), f.Location()); err != nil {
		f.collector.IncPublishFailure()
		return fmt.Errorf("%w: %w", ErrPublish, lode.WrapWriteError(err, f.Location()))
	}

	// The seal marker stays until the next Open so a repeated Close or
	// Publish of this run can tell it already went through.
	_ = os.Remove(f.offsetsPath())
	_ = iox.SyncDir(f.dir)
	f.collector.IncPublishSuccess()
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid feed file name %q", name)
	}
	return nil
}

var _ Backend = (*FS)(nil)
