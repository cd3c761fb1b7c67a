// Package cache implements the ArtifactCache: a content-addressed,
// file-based store with TTL, with an on-disk layout of
// <workspace>/.state/cache/<phase>-<key>.bin with a sidecar <phase>-<key>.meta.json.
// Writes are atomic (write-to-temp + rename); failures degrade to a
// cache-miss and are reported through a log callback rather than returned as
// fatal errors.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/pkg/model"
)

// meta is the sidecar JSON written alongside each artifact blob.
type meta struct {
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	TokenCount     int64         `json:"token_count"`
	SourceProvider string        `json:"source_provider"`
	SourceModel    string        `json:"source_model"`
}

// Logger receives a degraded-operation notice; callers typically wire this to
// EventBus.Emit(model.EventLog, ...).
type Logger func(msg string, err error)

// Cache is a per-project (or global, per Scope) content-addressed artifact
// store rooted at <root>/.state/cache.
type Cache struct {
	root   string
	scope  model.IncrementalMode
	logger Logger
}

// New returns a Cache rooted at root's .state/cache directory. scope records
// whether this instance backs a per-project or global cache; it is the
// caller's responsibility to choose which root corresponds to each.
func New(root string, scope model.IncrementalMode, logger Logger) *Cache {
	if logger == nil {
		logger = func(string, error) {}
	}
	return &Cache{root: filepath.Join(root, ".state", "cache"), scope: scope, logger: logger}
}

// Key computes the stable content-address for a cache entry from its phase
// and normalized inputs: (phase, normalized_inputs_hash, model_fingerprint).
// Identical normalized inputs always yield identical keys.
func Key(phase model.BudgetPhase, normalizedInputs, modelFingerprint string) string {
	sum := sha256.Sum256([]byte(string(phase) + "\x00" + normalizedInputs + "\x00" + modelFingerprint))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) blobPath(phase model.BudgetPhase, key string) string {
	return filepath.Join(c.root, fmt.Sprintf("%s-%s.bin", phase, key))
}

func (c *Cache) metaPath(phase model.BudgetPhase, key string) string {
	return filepath.Join(c.root, fmt.Sprintf("%s-%s.meta.json", phase, key))
}

// Get returns the artifact for key if present and unexpired. On any I/O
// failure it logs the condition and returns (nil, false) — a cache failure
// never fails the caller.
func (c *Cache) Get(phase model.BudgetPhase, key string) (*model.Artifact, bool) {
	data, err := os.ReadFile(c.blobPath(phase, key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger("cache read failed, treating as miss", fmt.Errorf("%w: %v", ferrors.ErrCacheIO, err))
		}
		return nil, false
	}

	rawMeta, err := os.ReadFile(c.metaPath(phase, key))
	if err != nil {
		c.logger("cache meta read failed, treating as miss", fmt.Errorf("%w: %v", ferrors.ErrCacheIO, err))
		return nil, false
	}

	var m meta
	if err := json.Unmarshal(rawMeta, &m); err != nil {
		c.logger("cache meta corrupt, treating as miss", fmt.Errorf("%w: %v", ferrors.ErrCacheIO, err))
		return nil, false
	}

	artifact := &model.Artifact{
		Key:            key,
		Phase:          phase,
		Data:           data,
		CreatedAt:      m.CreatedAt,
		TTL:            m.TTL,
		TokenCount:     m.TokenCount,
		SourceProvider: m.SourceProvider,
		SourceModel:    m.SourceModel,
	}

	if artifact.Expired(time.Now()) {
		return nil, false
	}
	return artifact, true
}

// Put atomically stores artifact under key, overwriting any prior value.
// Atomicity is achieved by writing to a temp file in the same directory and
// renaming over the target.
func (c *Cache) Put(phase model.BudgetPhase, key string, artifact model.Artifact) error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		c.logger("cache directory create failed", err)
		return fmt.Errorf("%w: mkdir cache root: %v", ferrors.ErrCacheIO, err)
	}

	if err := atomicWrite(c.blobPath(phase, key), artifact.Data); err != nil {
		c.logger("cache blob write failed", err)
		return fmt.Errorf("%w: write blob: %v", ferrors.ErrCacheIO, err)
	}

	m := meta{
		CreatedAt:      artifact.CreatedAt,
		TTL:            artifact.TTL,
		TokenCount:     artifact.TokenCount,
		SourceProvider: artifact.SourceProvider,
		SourceModel:    artifact.SourceModel,
	}
	rawMeta, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: marshal meta: %v", ferrors.ErrCacheIO, err)
	}
	if err := atomicWrite(c.metaPath(phase, key), rawMeta); err != nil {
		c.logger("cache meta write failed", err)
		return fmt.Errorf("%w: write meta: %v", ferrors.ErrCacheIO, err)
	}

	return nil
}

// Sweep removes expired entries from the cache directory. Sweep failures are
// logged and otherwise ignored — a failed sweep degrades to "stale entries
// linger," never a fatal condition.
func (c *Cache) Sweep() {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger("cache sweep readdir failed", err)
		}
		return
	}

	now := time.Now()
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.root, name))
		if err != nil {
			continue
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if m.TTL <= 0 || now.Before(m.CreatedAt.Add(m.TTL)) {
			continue
		}

		base := strings.TrimSuffix(name, ".meta.json")
		_ = os.Remove(filepath.Join(c.root, name))
		_ = os.Remove(filepath.Join(c.root, base+".bin"))
	}
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
