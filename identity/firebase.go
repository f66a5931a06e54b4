package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Firebase implements Provider and Verifier on top of the Firebase Admin SDK.
//
// Current serves records from a short-lived local cache, which is exactly the
// staleness the sync engine has to cope with; Reload always fetches from the
// provider and refreshes the cache.
type Firebase struct {
	client   *auth.Client
	cacheTTL time.Duration

	mu     sync.Mutex
	cached map[string]cachedIdentity

	events chan Event
}

type cachedIdentity struct {
	identity  *Identity
	fetchedAt time.Time
}

func NewFirebase(ctx context.Context, projectID, credentialsPath string) (*Firebase, error) {
	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase Auth client: %w", err)
	}

	logrus.WithField("projectId", projectID).Info("Firebase Auth client initialized")

	return &Firebase{
		client:   client,
		cacheTTL: 5 * time.Minute,
		cached:   make(map[string]cachedIdentity),
		events:   make(chan Event, 16),
	}, nil
}

func fromRecord(rec *auth.UserRecord) *Identity {
	return &Identity{
		UID:         rec.UID,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		PhoneNumber: rec.PhoneNumber,
		Email:       rec.Email,
	}
}

func (f *Firebase) Current(ctx context.Context, uid string) (*Identity, error) {
	f.mu.Lock()
	if c, ok := f.cached[uid]; ok && time.Since(c.fetchedAt) < f.cacheTTL {
		ident := *c.identity
		f.mu.Unlock()
		return &ident, nil
	}
	f.mu.Unlock()

	return f.Reload(ctx, uid)
}

func (f *Firebase) Reload(ctx context.Context, uid string) (*Identity, error) {
	rec, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity %s: %w", uid, err)
	}

	ident := fromRecord(rec)

	f.mu.Lock()
	f.cached[uid] = cachedIdentity{identity: ident, fetchedAt: time.Now()}
	f.mu.Unlock()

	out := *ident
	return &out, nil
}

func (f *Firebase) Update(ctx context.Context, uid string, upd Update) error {
	params := &auth.UserToUpdate{}
	if upd.DisplayName != nil {
		// Empty string deletes the field in the Admin SDK.
		params = params.DisplayName(*upd.DisplayName)
	}
	if upd.PhotoURL != nil {
		params = params.PhotoURL(*upd.PhotoURL)
	}
	if upd.Email != nil && *upd.Email != "" {
		params = params.Email(*upd.Email)
	}

	if _, err := f.client.UpdateUser(ctx, uid, params); err != nil {
		return fmt.Errorf("failed to update identity %s: %w", uid, err)
	}

	// The cached record is out of date now; drop it rather than patch it.
	f.mu.Lock()
	delete(f.cached, uid)
	f.mu.Unlock()

	return nil
}

func (f *Firebase) Verify(ctx context.Context, idToken string) (*Identity, error) {
	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	return f.Reload(ctx, token.UID)
}

func (f *Firebase) Changes() <-chan Event {
	return f.events
}

// Announce feeds the identity-change stream. Called by the auth handlers on
// sign-in (with the verified identity) and sign-out (with nil).
func (f *Firebase) Announce(ev Event) {
	select {
	case f.events <- ev:
	default:
		logrus.WithField("uid", ev.UID).Warn("identity event stream full, dropping event")
	}
}
