package engine

import (
	"context"
	"encoding/json"
	neturl "net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"plaza/cache"
	"plaza/identity"
	"plaza/models"
	"plaza/store"
)

// IdentitySync keeps displayName and photoUrl consistent across the identity
// record, the profile document, and every denormalized copy embedded in the
// user's posts.
type IdentitySync struct {
	provider  identity.Provider
	profiles  ProfileStore
	posts     PostStore
	overrides *store.OverrideStore
	cache     *cache.Cache
	session   *Session
	kv        store.KV

	// refresh coalesces concurrent RefreshIdentity passes for the same user:
	// interleaved steps could leave the override flag and the two backing
	// stores contradicting each other.
	refresh singleflight.Group

	// propLocks serializes propagations per user. Chunks within one
	// propagation may run concurrently; two propagations for the same user
	// may not.
	propLocks sync.Map

	verifyDelay time.Duration
	verifyWG    sync.WaitGroup

	chunkSize int
	propLimit int
}

func NewIdentitySync(provider identity.Provider, profiles ProfileStore, posts PostStore,
	overrides *store.OverrideStore, c *cache.Cache, session *Session, kv store.KV) *IdentitySync {
	return &IdentitySync{
		provider:    provider,
		profiles:    profiles,
		posts:       posts,
		overrides:   overrides,
		cache:       c,
		session:     session,
		kv:          kv,
		verifyDelay: time.Second,
		chunkSize:   500,
		propLimit:   4,
	}
}

// SetVerifyDelay adjusts the deferred-verification delay. Tests set it to
// zero and drive the verification with WaitVerifications.
func (e *IdentitySync) SetVerifyDelay(d time.Duration) { e.verifyDelay = d }

// WaitVerifications blocks until all scheduled deferred verifications have
// finished.
func (e *IdentitySync) WaitVerifications() { e.verifyWG.Wait() }

// Run consumes the ordered identity-change stream and serializes
// reconciliation passes. It is the only consumer of the stream. Returns when
// ctx is cancelled or the stream closes.
func (e *IdentitySync) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.provider.Changes():
			if !ok {
				return
			}
			// Sign-in/out handling must finish even during shutdown.
			bg := context.WithoutCancel(ctx)
			if ev.Identity == nil {
				e.session.Clear(ev.UID)
				if err := e.kv.Remove(bg, store.SessionKey(ev.UID)); err != nil {
					logrus.WithError(err).WithField("uid", ev.UID).Warn("session entry removal failed")
				}
				continue
			}
			if err := e.ReconcileOnAuthChange(bg, ev.Identity); err != nil {
				logrus.WithError(err).WithField("uid", ev.UID).Error("auth-change reconciliation failed")
			}
		}
	}
}

// ReconcileOnAuthChange runs when an identity session starts or its token is
// refreshed. A missing display name is backfilled from the profile document
// into the identity record. An identity photo with no profile-document photo
// is a stale-cache condition: the override flag is set rather than trusting
// the record.
func (e *IdentitySync) ReconcileOnAuthChange(ctx context.Context, ident *identity.Identity) error {
	profile, err := e.profiles.Get(ctx, ident.UID)
	if err != nil {
		return &NetworkError{Op: "load profile", Err: err}
	}

	if profile == nil {
		// First sign-in: create the profile document from the identity
		// record, photo included. A photo-less profile here would make the
		// next reconcile misread the provider's legitimate photo as stale.
		profile = &models.User{
			ID:          ident.UID,
			DisplayName: ident.DisplayName,
			Email:       ident.Email,
			PhoneNumber: ident.PhoneNumber,
			CreatedAt:   time.Now(),
		}
		if ident.PhotoURL != "" {
			profile.PhotoURL = cache.Freshen(ident.PhotoURL)
		}
		if err := e.profiles.Upsert(ctx, profile); err != nil {
			return &NetworkError{Op: "create profile", Err: err}
		}
	} else {
		switch {
		case ident.DisplayName == "" && profile.DisplayName != "":
			if err := e.provider.Update(ctx, ident.UID, identity.Update{DisplayName: &profile.DisplayName}); err != nil {
				return &NetworkError{Op: "backfill display name", Err: err}
			}
			ident.DisplayName = profile.DisplayName
		case ident.DisplayName != "" && profile.DisplayName != ident.DisplayName:
			if err := e.profiles.SetFields(ctx, ident.UID,
				map[string]interface{}{"displayName": ident.DisplayName}, nil); err != nil {
				return &NetworkError{Op: "sync display name", Err: err}
			}
			profile.DisplayName = ident.DisplayName
		}

		if ident.PhotoURL != "" && profile.PhotoURL == "" {
			if err := e.overrides.SetForcePhotoAbsent(ctx, ident.UID); err != nil {
				return &NetworkError{Op: "set photo override", Err: err}
			}
		}
	}

	e.publish(ctx, e.merge(ctx, profile, ident))
	return nil
}

// RefreshIdentity is the full reconciliation pass, invoked on profile-view
// entry. Concurrent calls for the same user are coalesced onto one pass.
func (e *IdentitySync) RefreshIdentity(ctx context.Context, uid string) (*models.User, error) {
	v, err, _ := e.refresh.Do(uid, func() (interface{}, error) {
		return e.refreshOne(ctx, uid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

func (e *IdentitySync) refreshOne(ctx context.Context, uid string) (*models.User, error) {
	// 1. Purge local caches so a stale render cannot survive the pass.
	e.cache.PurgeAll(ctx, uid)

	// 2. Re-fetch the profile document.
	profile, err := e.profiles.Get(ctx, uid)
	if err != nil {
		return nil, &NetworkError{Op: "load profile", Err: err}
	}

	// 3. Force-reload the identity record, bypassing the provider cache.
	ident, err := e.provider.Reload(ctx, uid)
	if err != nil {
		return nil, &NetworkError{Op: "reload identity", Err: err}
	}

	// 4. Photo-presence divergence resolves toward the profile document.
	profHas := profile != nil && profile.PhotoURL != ""
	if profHas != (ident.PhotoURL != "") {
		upd := identity.Update{PhotoURL: identity.Str("")}
		if profHas {
			upd.PhotoURL = identity.Str(cache.Freshen(profile.PhotoURL))
		}
		if err := e.provider.Update(ctx, uid, upd); err != nil {
			return nil, &NetworkError{Op: "correct identity photo", Err: err}
		}
	}

	// 5. Re-read the corrected record, apply the override, publish.
	ident, err = e.provider.Reload(ctx, uid)
	if err != nil {
		return nil, &NetworkError{Op: "reload identity", Err: err}
	}

	// The override is re-verified on every pass: once both stores are
	// confirmed photo-free the flag has done its job and is cleared.
	if !profHas && ident.PhotoURL == "" && e.overrides.ForcePhotoAbsent(ctx, uid) {
		if err := e.overrides.Clear(ctx, uid); err != nil {
			logrus.WithError(err).WithField("uid", uid).Warn("override clear failed")
		}
	}

	user := e.merge(ctx, profile, ident)
	e.publish(ctx, user)

	// 6. Deferred verification guards against a write that raced step 4.
	e.scheduleVerify(uid)

	return user, nil
}

// scheduleVerify runs the bounded corrective check: after verifyDelay, if the
// identity record still reports a photo the profile document does not have,
// both leftovers are cleared. One retry, then give up until the next refresh.
func (e *IdentitySync) scheduleVerify(uid string) {
	e.verifyWG.Add(1)
	go func() {
		defer e.verifyWG.Done()
		ctx := context.Background()
		for attempt := 0; attempt < 2; attempt++ {
			time.Sleep(e.verifyDelay)
			if e.verifyOnce(ctx, uid) {
				return
			}
		}
		logrus.WithField("uid", uid).Warn("deferred photo verification did not converge")
	}()
}

func (e *IdentitySync) verifyOnce(ctx context.Context, uid string) bool {
	ident, err := e.provider.Reload(ctx, uid)
	if err != nil {
		return false
	}
	profile, err := e.profiles.Get(ctx, uid)
	if err != nil {
		return false
	}

	profHas := profile != nil && profile.PhotoURL != ""
	if ident.PhotoURL != "" && !profHas {
		if err := e.provider.Update(ctx, uid, identity.Update{PhotoURL: identity.Str("")}); err != nil {
			return false
		}
		if err := e.profiles.SetFields(ctx, uid, nil, []string{"photoUrl"}); err != nil {
			return false
		}
		ident, err = e.provider.Reload(ctx, uid)
		if err != nil {
			return false
		}
	}
	return (ident.PhotoURL != "") == profHas
}

// SetDisplayName is the authoritative display-name mutation: identity record,
// profile document, then denormalized copies on every post.
func (e *IdentitySync) SetDisplayName(ctx context.Context, uid, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "displayName", Reason: "must not be empty"}
	}

	// Writes complete even if the caller navigates away mid-request.
	ctx = context.WithoutCancel(ctx)

	if err := e.provider.Update(ctx, uid, identity.Update{DisplayName: &name}); err != nil {
		return &NetworkError{Op: "update identity name", Err: err}
	}
	if err := e.profiles.SetFields(ctx, uid,
		map[string]interface{}{"displayName": name, "updatedAt": time.Now()}, nil); err != nil {
		return &NetworkError{Op: "update profile name", Err: err}
	}

	if u := e.session.User(uid); u != nil {
		copied := *u
		copied.DisplayName = name
		e.publish(ctx, &copied)
	}

	return e.propagate(ctx, uid, map[string]interface{}{"username": name}, nil)
}

// SetPhotoURL is the authoritative photo mutation. An empty url removes the
// photo: the override flag is set before any write and cleared only after
// both the identity record and the profile document confirm absence, closing
// the window where a reload could resurrect a cached value.
func (e *IdentitySync) SetPhotoURL(ctx context.Context, uid, url string) error {
	if url != "" {
		parsed, err := neturl.Parse(url)
		if err != nil || !parsed.IsAbs() {
			return &ValidationError{Field: "photoUrl", Reason: "must be an absolute URL"}
		}
	}

	ctx = context.WithoutCancel(ctx)
	e.cache.PurgeAll(ctx, uid)

	if url == "" {
		return e.removePhoto(ctx, uid)
	}

	decorated := cache.Freshen(url)
	if err := e.provider.Update(ctx, uid, identity.Update{PhotoURL: &decorated}); err != nil {
		return &NetworkError{Op: "update identity photo", Err: err}
	}
	if err := e.profiles.SetFields(ctx, uid,
		map[string]interface{}{"photoUrl": decorated, "updatedAt": time.Now()}, nil); err != nil {
		return &NetworkError{Op: "update profile photo", Err: err}
	}

	// A confirmed new photo supersedes any pending removal override.
	if err := e.overrides.Clear(ctx, uid); err != nil {
		logrus.WithError(err).WithField("uid", uid).Warn("override clear failed")
	}

	e.publishPhoto(ctx, uid, decorated)

	err := e.propagate(ctx, uid, map[string]interface{}{"userProfileImage": decorated}, nil)
	e.cache.PurgeAll(ctx, uid)
	return err
}

func (e *IdentitySync) removePhoto(ctx context.Context, uid string) error {
	if err := e.overrides.SetForcePhotoAbsent(ctx, uid); err != nil {
		return &NetworkError{Op: "set photo override", Err: err}
	}

	if err := e.provider.Update(ctx, uid, identity.Update{PhotoURL: identity.Str("")}); err != nil {
		return &NetworkError{Op: "clear identity photo", Err: err}
	}
	if err := e.profiles.SetFields(ctx, uid, nil, []string{"photoUrl"}); err != nil {
		return &NetworkError{Op: "clear profile photo", Err: err}
	}

	// Confirm both stores before dropping the override. One immediate retry
	// for a provider that still serves the stale value.
	ident, err := e.provider.Reload(ctx, uid)
	if err == nil && ident.PhotoURL != "" {
		if err := e.provider.Update(ctx, uid, identity.Update{PhotoURL: identity.Str("")}); err == nil {
			ident, err = e.provider.Reload(ctx, uid)
		}
	}
	if err == nil && ident.PhotoURL == "" {
		if err := e.overrides.Clear(ctx, uid); err != nil {
			logrus.WithError(err).WithField("uid", uid).Warn("override clear failed")
		}
	}

	e.publishPhoto(ctx, uid, "")

	// Removal propagates "field absent", not a literal null.
	err = e.propagate(ctx, uid, nil, []string{"userProfileImage"})
	e.cache.PurgeAll(ctx, uid)
	return err
}

// Profile reads the profile document without reconciling anything; used for
// viewing other users. Returns (nil, nil) when no document exists.
func (e *IdentitySync) Profile(ctx context.Context, uid string) (*models.User, error) {
	profile, err := e.profiles.Get(ctx, uid)
	if err != nil {
		return nil, &NetworkError{Op: "load profile", Err: err}
	}
	return profile, nil
}

// ProfileUpdate is the general profile mutation: any subset of the fields.
// Email changes require a recent sign-in.
type ProfileUpdate struct {
	DisplayName     *string
	PhoneNumber     *string
	Email           *string
	Reauthenticated bool
}

func (e *IdentitySync) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error {
	ctx = context.WithoutCancel(ctx)

	set := map[string]interface{}{}
	if upd.PhoneNumber != nil {
		set["phoneNumber"] = *upd.PhoneNumber
	}

	if upd.Email != nil && *upd.Email != "" {
		if !upd.Reauthenticated {
			return &PermissionError{Op: "update email", RequiresReauth: true}
		}
		if err := e.provider.Update(ctx, uid, identity.Update{Email: upd.Email}); err != nil {
			return &NetworkError{Op: "update identity email", Err: err}
		}
		set["email"] = *upd.Email
	}

	if len(set) > 0 {
		set["updatedAt"] = time.Now()
		if err := e.profiles.SetFields(ctx, uid, set, nil); err != nil {
			return &NetworkError{Op: "update profile", Err: err}
		}
	}

	// The name goes last: its post propagation may report partial success,
	// and by then everything else is already committed.
	if upd.DisplayName != nil {
		return e.SetDisplayName(ctx, uid, *upd.DisplayName)
	}
	return nil
}

// propagate pushes new denormalized values into every post by the author:
// bulk, chunked, at-least-once. Chunk failures are independent; survivors are
// not rolled back and failures surface as a partial-success error.
func (e *IdentitySync) propagate(ctx context.Context, uid string, set map[string]interface{}, unset []string) error {
	muVal, _ := e.propLocks.LoadOrStore(uid, &sync.Mutex{})
	mu := muVal.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	ids, err := e.posts.IDsByAuthor(ctx, uid)
	if err != nil {
		return &NetworkError{Op: "enumerate posts", Err: err}
	}
	if len(ids) == 0 {
		return nil
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}

	var (
		resMu    sync.Mutex
		failed   []int
		firstErr error
	)

	var g errgroup.Group
	g.SetLimit(e.propLimit)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := e.posts.UpdateAuthorFields(ctx, chunk, set, unset); err != nil {
				resMu.Lock()
				failed = append(failed, i)
				if firstErr == nil {
					firstErr = err
				}
				resMu.Unlock()
				logrus.WithError(err).WithFields(logrus.Fields{
					"uid": uid, "chunk": i, "size": len(chunk),
				}).Error("propagation chunk failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Ints(failed)
		return &PartialPropagationError{
			Succeeded:    len(chunks) - len(failed),
			Failed:       len(failed),
			FailedChunks: failed,
			Err:          firstErr,
		}
	}
	return nil
}

// merge builds the published user view from the profile document and the
// identity record, profile document winning, override applied last.
func (e *IdentitySync) merge(ctx context.Context, profile *models.User, ident *identity.Identity) *models.User {
	u := &models.User{ID: ident.UID, Email: ident.Email}

	u.DisplayName = ident.DisplayName
	u.PhoneNumber = ident.PhoneNumber
	if profile != nil {
		u.CreatedAt = profile.CreatedAt
		u.UpdatedAt = profile.UpdatedAt
		if u.DisplayName == "" {
			u.DisplayName = profile.DisplayName
		}
		if profile.PhoneNumber != "" {
			u.PhoneNumber = profile.PhoneNumber
		}
		if profile.Email != "" {
			u.Email = profile.Email
		}
	}

	if profile != nil && profile.PhotoURL != "" {
		u.PhotoURL = cache.Freshen(profile.PhotoURL)
	} else {
		u.PhotoURL = ident.PhotoURL
	}

	if e.overrides.ForcePhotoAbsent(ctx, ident.UID) {
		u.PhotoURL = ""
	}
	return u
}

// publish stores the merged view in the session and the canonical session
// entry. The KV write is best-effort.
func (e *IdentitySync) publish(ctx context.Context, u *models.User) {
	e.session.SetUser(u)

	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := e.kv.Set(ctx, store.SessionKey(u.ID), string(raw)); err != nil {
		logrus.WithError(err).WithField("uid", u.ID).Warn("session entry write failed")
	}
}

func (e *IdentitySync) publishPhoto(ctx context.Context, uid, photoURL string) {
	if u := e.session.User(uid); u != nil {
		copied := *u
		copied.PhotoURL = photoURL
		e.publish(ctx, &copied)
	}
}
