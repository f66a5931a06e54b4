package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"plaza/models"
)

// LikeEngine toggles the like state of a (user, post) pair with an optimistic
// local update and an atomic, idempotent server mutation. There is no
// client-side serialization: correctness under concurrent toggles rests on
// the store's commutative set-membership primitive.
type LikeEngine struct {
	posts   PostStore
	session *Session
}

func NewLikeEngine(posts PostStore, session *Session) *LikeEngine {
	return &LikeEngine{posts: posts, session: session}
}

// Toggle flips the like state and returns the new intended state. The
// session's override map is updated before the store call so the caller sees
// the change with zero latency; on store failure the override is rolled back
// and the error surfaced, while the post copy keeps the optimistic values
// until the next authoritative refresh.
func (e *LikeEngine) Toggle(ctx context.Context, post *models.Post, userID string) (bool, error) {
	// The session override, when present, wins over the server-reported
	// membership: it holds the latest intended state during in-flight writes.
	current, tracked := e.session.LikedOverride(userID, post.ID)
	if !tracked {
		current = post.IsLikedBy(userID)
	}
	next := !current

	e.session.TrackLiked(userID, post.ID, next)
	applyLocal(post, userID, next)

	// The write completes even if the caller navigates away.
	ctx = context.WithoutCancel(ctx)

	if err := e.posts.SetLiked(ctx, post.ID, userID, next); err != nil {
		e.session.TrackLiked(userID, post.ID, current)
		logrus.WithError(err).WithFields(logrus.Fields{
			"postId": post.ID, "userId": userID,
		}).Error("like toggle failed, rolled back local state")
		return current, &NetworkError{Op: "toggle like", Err: err}
	}
	return next, nil
}

// Liked reports the effective like state for rendering: override first, then
// server membership.
func (e *LikeEngine) Liked(userID string, post *models.Post) bool {
	if liked, ok := e.session.LikedOverride(userID, post.ID); ok {
		return liked
	}
	return post.IsLikedBy(userID)
}

func applyLocal(post *models.Post, userID string, liked bool) {
	if liked {
		if !post.IsLikedBy(userID) {
			post.LikedBy = append(post.LikedBy, userID)
			post.Likes++
		}
		return
	}
	for i, id := range post.LikedBy {
		if id == userID {
			post.LikedBy = append(post.LikedBy[:i], post.LikedBy[i+1:]...)
			post.Likes--
			break
		}
	}
	if post.Likes < 0 {
		post.Likes = 0
	}
}
