package engine

import (
	"context"

	"plaza/models"
)

// ProfileStore is the document-store surface the engines need for profile
// documents. Get returns (nil, nil) when no document exists. SetFields writes
// a partial update; names in unset are deleted from the document rather than
// set to a null value, so readers that test for key presence behave correctly.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
	SetFields(ctx context.Context, uid string, set map[string]interface{}, unset []string) error
}

// PostStore is the document-store surface for posts.
//
// SetLiked must be a commutative, idempotent set-membership update combined
// with the counter change in one atomic server-side operation, never a
// read-modify-write, so concurrent likers cannot lose an increment.
// UpdateAuthorFields commits one propagation chunk atomically.
type PostStore interface {
	Get(ctx context.Context, postID string) (*models.Post, error)
	Create(ctx context.Context, p *models.Post) error
	Update(ctx context.Context, postID string, set map[string]interface{}) error
	Delete(ctx context.Context, postID string) error

	ListFeed(ctx context.Context) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error)
	IDsByAuthor(ctx context.Context, authorID string) ([]string, error)

	UpdateAuthorFields(ctx context.Context, postIDs []string, set map[string]interface{}, unset []string) error
	SetLiked(ctx context.Context, postID, userID string, liked bool) error
}
