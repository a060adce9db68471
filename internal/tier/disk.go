package tier

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tiercache/internal/compress"
	"github.com/hupe1980/tiercache/internal/entry"
	"github.com/hupe1980/tiercache/internal/fs"
	"github.com/hupe1980/tiercache/internal/keygen"
	"github.com/hupe1980/tiercache/internal/resource"
)

const (
	tmpMarker       = ".tmp-"
	numKeyLocks     = 64
	defaultScanJobs = 8
	dirPerm         = 0o755
	filePerm        = 0o644
)

// DiskConfig configures a disk-backed tier.
type DiskConfig struct {
	Kind         Kind
	Dir          string
	MaxSizeBytes int64
	TTL          time.Duration
	// Compressor is applied to the entry frame before it is written. Nil stores frames as is.
	Compressor compress.Compressor
	FS         fs.FileSystem
	Resource   *resource.Controller
	Listener   Listener
	Clock      Clock
	// ScanJobs bounds the parallelism of the startup scan.
	ScanJobs int
}

// Recovery summarizes the startup scan of a disk tier.
type Recovery struct {
	Loaded    int
	Expired   int
	Corrupted int
	TempFiles int
	Evicted   int
}

type diskItem struct {
	key       string
	path      string
	size      int64
	queryText string
	expiresAt time.Time
}

// DiskTier is a file-per-entry store with oldest-first eviction.
type DiskTier struct {
	cfg DiskConfig

	mu    sync.Mutex
	items map[string]*list.Element // key -> *diskItem, ordered by write time (front is oldest)
	order *list.List
	size  int64

	keyLocks [numKeyLocks]sync.Mutex
	seed     maphash.Seed

	recovery Recovery
	bytesIn  atomic.Int64

	counters
}

var _ Tier = (*DiskTier)(nil)

// OpenDisk opens (or creates) a disk tier and rebuilds its index from disk.
func OpenDisk(ctx context.Context, cfg DiskConfig) (*DiskTier, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%s tier: directory is required", cfg.Kind)
	}
	if cfg.MaxSizeBytes <= 0 || cfg.TTL <= 0 {
		return nil, fmt.Errorf("%s tier: MaxSizeBytes and TTL must be positive", cfg.Kind)
	}
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	if cfg.Listener == nil {
		cfg.Listener = noopListener{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ScanJobs <= 0 {
		cfg.ScanJobs = defaultScanJobs
	}

	if err := cfg.FS.MkdirAll(cfg.Dir, dirPerm); err != nil {
		return nil, fmt.Errorf("%s tier: create %s: %w", cfg.Kind, cfg.Dir, err)
	}

	d := &DiskTier{
		cfg:   cfg,
		items: make(map[string]*list.Element),
		order: list.New(),
		seed:  maphash.MakeSeed(),
	}

	if err := d.scan(ctx); err != nil {
		return nil, fmt.Errorf("%s tier: scan %s: %w", cfg.Kind, cfg.Dir, err)
	}
	return d, nil
}

func (d *DiskTier) Kind() Kind         { return d.cfg.Kind }
func (d *DiskTier) TTL() time.Duration { return d.cfg.TTL }

// Dir returns the root directory of the tier.
func (d *DiskTier) Dir() string { return d.cfg.Dir }

// Recovery returns what the startup scan found.
func (d *DiskTier) Recovery() Recovery { return d.recovery }

// Path returns the file that holds key.
func (d *DiskTier) Path(key string) string {
	return filepath.Join(d.cfg.Dir, keygen.Bucket(key), key)
}

// Get reads key from disk. A missing file is a miss; an unreadable frame is
// removed and reported as a miss; any other filesystem error is returned.
func (d *DiskTier) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	d.mu.Lock()
	el, ok := d.items[key]
	var it diskItem
	if ok {
		it = *el.Value.(*diskItem)
	}
	d.mu.Unlock()

	if !ok {
		d.misses.Add(1)
		return nil, false, nil
	}

	if !d.cfg.Clock().Before(it.expiresAt) {
		d.drop(key, el, Expired)
		d.expirations.Add(1)
		d.misses.Add(1)
		return nil, false, nil
	}

	e, err := d.read(ctx, it.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		d.forget(key, el)
		d.misses.Add(1)
		return nil, false, nil
	case errors.Is(err, entry.ErrCorrupt), errors.Is(err, compress.ErrCorrupt):
		d.drop(key, el, Corrupted)
		d.corruptions.Add(1)
		d.misses.Add(1)
		return nil, false, nil
	default:
		d.readErrors.Add(1)
		d.misses.Add(1)
		return nil, false, fmt.Errorf("%s tier: read %s: %w", d.cfg.Kind, key, err)
	}

	if e.Key != key {
		d.drop(key, el, Corrupted)
		d.corruptions.Add(1)
		d.misses.Add(1)
		return nil, false, nil
	}
	if e.Expired(d.cfg.Clock()) {
		d.drop(key, el, Expired)
		d.expirations.Add(1)
		d.misses.Add(1)
		return nil, false, nil
	}

	d.hits.Add(1)
	return e, true, nil
}

// Peek reads key without counting, and leaves bad files for Get to clean up.
func (d *DiskTier) Peek(ctx context.Context, key string) (*entry.Entry, bool) {
	d.mu.Lock()
	el, ok := d.items[key]
	var path string
	if ok {
		path = el.Value.(*diskItem).path
	}
	d.mu.Unlock()

	if !ok {
		return nil, false
	}
	e, err := d.read(ctx, path)
	if err != nil || e.Key != key || e.Expired(d.cfg.Clock()) {
		return nil, false
	}
	return e, true
}

// Set writes e to its bucket file and evicts the oldest files while the tier
// is over budget.
func (d *DiskTier) Set(ctx context.Context, e *entry.Entry) error {
	data, err := d.encode(e)
	if err != nil {
		d.writeErrors.Add(1)
		return fmt.Errorf("%s tier: encode %s: %w", d.cfg.Kind, e.Key, err)
	}
	if int64(len(data)) > d.cfg.MaxSizeBytes {
		return fmt.Errorf("%s tier: %w: %d > %d bytes", d.cfg.Kind, ErrTooLarge, len(data), d.cfg.MaxSizeBytes)
	}

	kl := d.keyLock(e.Key)
	kl.Lock()
	defer kl.Unlock()

	release, err := d.cfg.Resource.AcquireIO(ctx, len(data))
	if err != nil {
		d.writeErrors.Add(1)
		return fmt.Errorf("%s tier: acquire io: %w", d.cfg.Kind, err)
	}

	path := d.Path(e.Key)
	err = d.cfg.FS.MkdirAll(filepath.Dir(path), dirPerm)
	if err == nil {
		err = fs.WriteFileAtomic(d.cfg.FS, path, path+tmpMarker+uuid.NewString(), data, filePerm)
	}
	release()
	if err != nil {
		d.writeErrors.Add(1)
		return fmt.Errorf("%s tier: write %s: %w", d.cfg.Kind, e.Key, err)
	}
	d.bytesIn.Add(int64(len(data)))

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.items[e.Key]; ok {
		d.size -= old.Value.(*diskItem).size
		d.order.Remove(old)
		delete(d.items, e.Key)
	}
	d.items[e.Key] = d.order.PushBack(&diskItem{
		key:       e.Key,
		path:      path,
		size:      int64(len(data)),
		queryText: e.QueryText,
		expiresAt: e.ExpiresAt,
	})
	d.size += int64(len(data))
	d.cfg.Listener.Stored(d.cfg.Kind, e.Key, e.QueryText, e.ExpiresAt)

	d.evictLocked()
	return nil
}

// Delete removes key from the tier.
func (d *DiskTier) Delete(_ context.Context, key string) (bool, error) {
	kl := d.keyLock(key)
	kl.Lock()
	defer kl.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.items[key]
	if !ok {
		return false, nil
	}
	it := el.Value.(*diskItem)
	if err := d.cfg.FS.Remove(it.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%s tier: delete %s: %w", d.cfg.Kind, key, err)
	}
	d.unlinkLocked(el)
	d.cfg.Listener.Removed(d.cfg.Kind, key, Deleted)
	return true, nil
}

// Clear removes every file under the tier directory. It waits for writes in
// flight, so no file lands after the directory is emptied.
func (d *DiskTier) Clear(_ context.Context) error {
	for i := range d.keyLocks {
		d.keyLocks[i].Lock()
	}
	defer func() {
		for i := range d.keyLocks {
			d.keyLocks[i].Unlock()
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.items = make(map[string]*list.Element)
	d.order.Init()
	d.size = 0
	d.cfg.Listener.Cleared(d.cfg.Kind)

	if err := d.cfg.FS.RemoveAll(d.cfg.Dir); err != nil {
		return fmt.Errorf("%s tier: clear %s: %w", d.cfg.Kind, d.cfg.Dir, err)
	}
	if err := d.cfg.FS.MkdirAll(d.cfg.Dir, dirPerm); err != nil {
		return fmt.Errorf("%s tier: recreate %s: %w", d.cfg.Kind, d.cfg.Dir, err)
	}
	return nil
}

func (d *DiskTier) Stats() Snapshot {
	s := d.snapshot()

	d.mu.Lock()
	s.Entries = int64(len(d.items))
	s.SizeBytes = d.size
	d.mu.Unlock()

	s.CapacityBytes = d.cfg.MaxSizeBytes
	s.BytesWritten = d.bytesIn.Load()
	return s
}

func (d *DiskTier) encode(e *entry.Entry) ([]byte, error) {
	data, err := entry.Marshal(e)
	if err != nil {
		return nil, err
	}
	if d.cfg.Compressor == nil {
		return data, nil
	}
	return d.cfg.Compressor.Compress(data)
}

func (d *DiskTier) decode(data []byte) (*entry.Entry, error) {
	if d.cfg.Compressor != nil {
		raw, err := d.cfg.Compressor.Decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return entry.Unmarshal(data)
}

func (d *DiskTier) read(ctx context.Context, path string) (*entry.Entry, error) {
	release, err := d.cfg.Resource.AcquireIO(ctx, 0)
	if err != nil {
		return nil, err
	}
	data, err := d.cfg.FS.ReadFile(path)
	release()
	if err != nil {
		return nil, err
	}
	return d.decode(data)
}

// drop removes the file behind el (if el is still current) and reports it.
func (d *DiskTier) drop(key string, el *list.Element, reason RemovalReason) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.items[key]; !ok || cur != el {
		return
	}
	_ = d.cfg.FS.Remove(el.Value.(*diskItem).path)
	d.unlinkLocked(el)
	d.cfg.Listener.Removed(d.cfg.Kind, key, reason)
}

// forget drops the index entry for a file that vanished underneath us.
func (d *DiskTier) forget(key string, el *list.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.items[key]; ok && cur == el {
		d.unlinkLocked(el)
		d.cfg.Listener.Removed(d.cfg.Kind, key, Deleted)
	}
}

func (d *DiskTier) evictLocked() int {
	n := 0
	for d.size > d.cfg.MaxSizeBytes && d.order.Len() > 0 {
		el := d.order.Front()
		it := el.Value.(*diskItem)
		_ = d.cfg.FS.Remove(it.path) // best effort; the budget is tracked by the index
		d.unlinkLocked(el)
		d.evictions.Add(1)
		d.cfg.Listener.Removed(d.cfg.Kind, it.key, Evicted)
		n++
	}
	return n
}

func (d *DiskTier) unlinkLocked(el *list.Element) {
	it := el.Value.(*diskItem)
	d.order.Remove(el)
	delete(d.items, it.key)
	d.size -= it.size
}

func (d *DiskTier) keyLock(key string) *sync.Mutex {
	return &d.keyLocks[maphash.String(d.seed, key)%numKeyLocks]
}

type scanned struct {
	item    diskItem
	written time.Time
}

// scan walks <dir>/<bucket>/<key>, decoding every file in parallel.
func (d *DiskTier) scan(ctx context.Context) error {
	buckets, err := d.cfg.FS.ReadDir(d.cfg.Dir)
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		found []scanned
		rec   Recovery
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.ScanJobs)

	now := d.cfg.Clock()
	for _, b := range buckets {
		if !b.IsDir() {
			continue
		}
		bucketDir := filepath.Join(d.cfg.Dir, b.Name())
		files, err := d.cfg.FS.ReadDir(bucketDir)
		if err != nil {
			return err
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name, path := f.Name(), filepath.Join(bucketDir, f.Name())

			if strings.Contains(name, tmpMarker) || !keygen.Valid(name) || keygen.Bucket(name) != b.Name() {
				_ = d.cfg.FS.Remove(path)
				mu.Lock()
				rec.TempFiles++
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				info, err := f.Info()
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return nil
					}
					return err
				}

				e, err := d.read(gctx, path)
				switch {
				case err == nil && e.Key == name:
				case err == nil, errors.Is(err, entry.ErrCorrupt), errors.Is(err, compress.ErrCorrupt):
					_ = d.cfg.FS.Remove(path)
					mu.Lock()
					rec.Corrupted++
					mu.Unlock()
					d.corruptions.Add(1)
					return nil
				case errors.Is(err, os.ErrNotExist):
					return nil
				default:
					return err
				}

				if e.Expired(now) {
					_ = d.cfg.FS.Remove(path)
					mu.Lock()
					rec.Expired++
					mu.Unlock()
					d.expirations.Add(1)
					return nil
				}

				mu.Lock()
				found = append(found, scanned{
					item: diskItem{
						key:       e.Key,
						path:      path,
						size:      info.Size(),
						queryText: e.QueryText,
						expiresAt: e.ExpiresAt,
					},
					written: info.ModTime(),
				})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slices.SortFunc(found, func(a, b scanned) int {
		if c := a.written.Compare(b.written); c != 0 {
			return c
		}
		return strings.Compare(a.item.key, b.item.key)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range found {
		it := found[i].item
		d.items[it.key] = d.order.PushBack(&it)
		d.size += it.size
	}
	rec.Evicted = d.evictLocked()
	for el := d.order.Front(); el != nil; el = el.Next() {
		it := el.Value.(*diskItem)
		d.cfg.Listener.Stored(d.cfg.Kind, it.key, it.queryText, it.expiresAt)
	}
	rec.Loaded = len(d.items)
	d.recovery = rec
	return nil
}
