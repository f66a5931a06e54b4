package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"plaza/store"
)

var bustParam = regexp.MustCompile(`[?&](cache|nocache)=[^&]*`)

var imageFile = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp)$`)

// Freshen appends a cache-busting query parameter derived from the current
// time and a short random token, so image caches keyed by URL cannot serve a
// stale bitmap after an update. Any previous cache/nocache parameter is
// stripped first: re-decorating replaces, never accumulates.
func Freshen(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	clean := bustParam.ReplaceAllString(rawURL, "")
	clean = strings.TrimRight(clean, "?&")

	sep := "?"
	if strings.Contains(clean, "?") {
		sep = "&"
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
	return fmt.Sprintf("%s%snocache=%d-%s", clean, sep, time.Now().UnixMilli(), token)
}

// Cache is the invalidation layer over the local binary scratch directory and
// the persisted key-value entries that hold cached photo/profile data.
type Cache struct {
	kv         store.KV
	scratchDir string
}

func New(kv store.KV, scratchDir string) *Cache {
	return &Cache{kv: kv, scratchDir: scratchDir}
}

// PurgeAll removes everything that could serve a stale render: temporary
// image files from the upload scratch dir and key-value entries whose key
// suggests cached photo/profile/image data. Each sub-purge is best-effort and
// independent; a failure in one never aborts the others.
func (c *Cache) PurgeAll(ctx context.Context, uid string) {
	c.purgeScratchFiles()
	c.purgeKVEntries(ctx, uid)
}

func (c *Cache) purgeScratchFiles() {
	if c.scratchDir == "" {
		return
	}

	entries, err := os.ReadDir(c.scratchDir)
	if err != nil {
		logrus.WithError(err).Debug("scratch dir purge skipped")
		return
	}

	for _, e := range entries {
		if e.IsDir() || !imageFile.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.scratchDir, e.Name())); err != nil {
			logrus.WithError(err).WithField("file", e.Name()).Debug("scratch file purge failed")
		}
	}
}

func (c *Cache) purgeKVEntries(ctx context.Context, uid string) {
	keys, err := c.kv.ListKeys(ctx)
	if err != nil {
		logrus.WithError(err).Warn("cache key listing failed, skipping KV purge")
		return
	}

	sessionKey := store.SessionKey(uid)

	for _, key := range keys {
		if strings.HasPrefix(key, "userData:") {
			// Canonical session entries are never deleted by the heuristic
			// purge, not even other users'. The purging user's own entry
			// stays too, minus its cached photo.
			if key == sessionKey {
				c.nullSessionPhoto(ctx, sessionKey)
			}
			continue
		}
		if !looksCached(key) {
			continue
		}
		if err := c.kv.Remove(ctx, key); err != nil {
			logrus.WithError(err).WithField("key", key).Debug("cache key purge failed")
		}
	}
}

func looksCached(key string) bool {
	return strings.HasPrefix(key, "imageCache_") ||
		strings.Contains(key, "photo") ||
		strings.Contains(key, "image") ||
		strings.Contains(key, "profile") ||
		strings.Contains(key, "userData")
}

func (c *Cache) nullSessionPhoto(ctx context.Context, key string) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil || !ok {
		return
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return
	}
	if _, has := data["photoUrl"]; !has {
		return
	}

	delete(data, "photoUrl")
	out, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, key, string(out)); err != nil {
		logrus.WithError(err).Debug("session photo null-out failed")
	}
}
