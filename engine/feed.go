package engine

import (
	"context"

	"plaza/models"
)

// Feed is the read-only projection over posts: creation-time descending, no
// caching of its own, every record passed through unmodified except for
// defaulting of optional fields.
type Feed struct {
	posts PostStore
}

func NewFeed(posts PostStore) *Feed {
	return &Feed{posts: posts}
}

func (f *Feed) List(ctx context.Context) ([]models.Post, error) {
	posts, err := f.posts.ListFeed(ctx)
	if err != nil {
		return nil, &NetworkError{Op: "list feed", Err: err}
	}
	return normalize(posts), nil
}

func (f *Feed) ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	posts, err := f.posts.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, &NetworkError{Op: "list posts by author", Err: err}
	}
	return normalize(posts), nil
}

func normalize(posts []models.Post) []models.Post {
	for i := range posts {
		if posts[i].LikedBy == nil {
			posts[i].LikedBy = []string{}
		}
		if posts[i].Likes < 0 {
			posts[i].Likes = 0
		}
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts
}
