package engine

import (
	"sync"

	"plaza/models"
)

// Session is the process-scoped mutable state: the published user view for
// each signed-in user and the per-session liked-post override map that masks
// transient server staleness. It is populated by the identity-change
// coordinator and cleared on sign-out; engines receive it by reference, it is
// never ambient.
type Session struct {
	mu    sync.RWMutex
	users map[string]*sessionState
}

type sessionState struct {
	user  *models.User
	liked map[string]bool
}

func NewSession() *Session {
	return &Session{users: make(map[string]*sessionState)}
}

func (s *Session) state(uid string) *sessionState {
	st, ok := s.users[uid]
	if !ok {
		st = &sessionState{liked: make(map[string]bool)}
		s.users[uid] = st
	}
	return st
}

// SetUser publishes the merged user view.
func (s *Session) SetUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(u.ID).user = u
}

// User returns the last published view, or nil when the user has no session.
func (s *Session) User(uid string) *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[uid]; ok {
		return st.user
	}
	return nil
}

// TrackLiked records the latest intended like state for a post.
func (s *Session) TrackLiked(uid, postID string, liked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(uid).liked[postID] = liked
}

// LikedOverride returns the tracked like state and whether one exists.
func (s *Session) LikedOverride(uid, postID string) (liked, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, exists := s.users[uid]
	if !exists {
		return false, false
	}
	liked, ok = st.liked[postID]
	return liked, ok
}

// Clear tears down all session state for a user (sign-out).
func (s *Session) Clear(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, uid)
}
