package identity

import "context"

// Identity is the auth provider's view of a user. PhotoURL empty means the
// provider reports no photo.
type Identity struct {
	UID         string
	DisplayName string
	PhotoURL    string
	PhoneNumber string
	Email       string
}

// Update describes a partial write to the identity record. A nil field is
// left untouched; a pointer to the empty string deletes the field.
type Update struct {
	DisplayName *string
	PhotoURL    *string
	Email       *string
}

// Event is one entry in the ordered identity-change stream. Identity is nil
// on sign-out.
type Event struct {
	UID      string
	Identity *Identity
}

// Provider is the identity-provider contract the engines rely on.
//
// Current may serve a locally cached record; Reload must go back to the
// provider and bypass any cache. Changes returns the single ordered stream of
// identity-or-null events consumed by the reconciliation coordinator.
type Provider interface {
	Current(ctx context.Context, uid string) (*Identity, error)
	Reload(ctx context.Context, uid string) (*Identity, error)
	Update(ctx context.Context, uid string, upd Update) error
	Changes() <-chan Event
}

// Verifier checks a client-presented ID token and resolves it to an identity.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// Announcer feeds the identity-change stream.
type Announcer interface {
	Announce(ev Event)
}

func Str(s string) *string { return &s }
