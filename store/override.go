package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

const overrideKeyPrefix = "auth_overrides:"

// Overrides are client-side truth overrides that take precedence over a
// possibly-stale upstream value. ForcePhotoAbsent means the identity
// provider's photo must be presented as absent until the flag is cleared.
type Overrides struct {
	ForcePhotoAbsent bool  `json:"forcePhotoAbsent"`
	LastUpdated      int64 `json:"lastUpdated"`
}

type OverrideStore struct {
	kv KV
}

func NewOverrideStore(kv KV) *OverrideStore {
	return &OverrideStore{kv: kv}
}

func overrideKey(uid string) string { return overrideKeyPrefix + uid }

// SetForcePhotoAbsent records the photo-removal override for a user.
func (s *OverrideStore) SetForcePhotoAbsent(ctx context.Context, uid string) error {
	o := s.load(ctx, uid)
	o.ForcePhotoAbsent = true
	o.LastUpdated = time.Now().UnixMilli()

	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, overrideKey(uid), string(raw))
}

// ForcePhotoAbsent reports whether the override is active. Read failures
// degrade to "no override": a missing flag only delays convergence, it never
// corrupts it.
func (s *OverrideStore) ForcePhotoAbsent(ctx context.Context, uid string) bool {
	return s.load(ctx, uid).ForcePhotoAbsent
}

// Clear removes all overrides for the user.
func (s *OverrideStore) Clear(ctx context.Context, uid string) error {
	return s.kv.Remove(ctx, overrideKey(uid))
}

func (s *OverrideStore) load(ctx context.Context, uid string) Overrides {
	var o Overrides
	raw, ok, err := s.kv.Get(ctx, overrideKey(uid))
	if err != nil {
		logrus.WithError(err).WithField("uid", uid).Warn("override read failed")
		return o
	}
	if !ok {
		return o
	}
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		logrus.WithError(err).WithField("uid", uid).Warn("override entry corrupted, ignoring")
		return Overrides{}
	}
	return o
}
