package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"plaza/identity"
	"plaza/models"
)

// In-memory stand-ins for the identity provider, the document store, and the
// key-value store.

type fakeProvider struct {
	mu sync.Mutex

	// ident is the server-side truth; cached is a stale copy served by the
	// next staleReloads calls to Reload.
	ident        identity.Identity
	cached       identity.Identity
	staleReloads int

	reloads int
	updates []identity.Update
	events  chan identity.Event

	failUpdate bool
}

func newFakeProvider(ident identity.Identity) *fakeProvider {
	return &fakeProvider{ident: ident, events: make(chan identity.Event, 8)}
}

func (p *fakeProvider) Current(ctx context.Context, uid string) (*identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := p.ident
	return &cp, nil
}

func (p *fakeProvider) Reload(ctx context.Context, uid string) (*identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	if p.staleReloads > 0 {
		p.staleReloads--
		cp := p.cached
		return &cp, nil
	}
	cp := p.ident
	return &cp, nil
}

func (p *fakeProvider) Update(ctx context.Context, uid string, upd identity.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failUpdate {
		return errors.New("identity provider unavailable")
	}
	p.updates = append(p.updates, upd)
	if upd.DisplayName != nil {
		p.ident.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		p.ident.PhotoURL = *upd.PhotoURL
	}
	if upd.Email != nil {
		p.ident.Email = *upd.Email
	}
	return nil
}

func (p *fakeProvider) Changes() <-chan identity.Event { return p.events }

func (p *fakeProvider) photo() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ident.PhotoURL
}

func (p *fakeProvider) setPhoto(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ident.PhotoURL = url
}

type fakeProfiles struct {
	mu       sync.Mutex
	users    map[string]*models.User
	getCalls int

	// gate, when set, blocks Get until closed.
	gate chan struct{}
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{users: make(map[string]*models.User)}
}

func (f *fakeProfiles) Get(ctx context.Context, uid string) (*models.User, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	u, ok := f.users[uid]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeProfiles) Upsert(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeProfiles) SetFields(ctx context.Context, uid string, set map[string]interface{}, unset []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		u = &models.User{ID: uid}
		f.users[uid] = u
	}
	for k, v := range set {
		switch k {
		case "displayName":
			u.DisplayName = v.(string)
		case "photoUrl":
			u.PhotoURL = v.(string)
		case "phoneNumber":
			u.PhoneNumber = v.(string)
		case "email":
			u.Email = v.(string)
		}
	}
	for _, k := range unset {
		switch k {
		case "photoUrl":
			u.PhotoURL = ""
		case "phoneNumber":
			u.PhoneNumber = ""
		}
	}
	return nil
}

func (f *fakeProfiles) photo(uid string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[uid]; ok {
		return u.PhotoURL
	}
	return ""
}

type fakePosts struct {
	mu    sync.Mutex
	posts map[string]*models.Post

	failSetLiked bool
	// failPostIDs marks post IDs whose propagation chunk fails.
	failPostIDs map[string]bool
}

func newFakePosts() *fakePosts {
	return &fakePosts{posts: make(map[string]*models.Post)}
}

func (f *fakePosts) add(p models.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.posts[p.ID] = &cp
}

func (f *fakePosts) get(postID string) models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.posts[postID]
}

func (f *fakePosts) Get(ctx context.Context, postID string) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePosts) Create(ctx context.Context, p *models.Post) error {
	f.add(*p)
	return nil
}

func (f *fakePosts) Update(ctx context.Context, postID string, set map[string]interface{}) error {
	return nil
}

func (f *fakePosts) Delete(ctx context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, postID)
	return nil
}

func (f *fakePosts) ListFeed(ctx context.Context) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePosts) ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		if p.AuthorID == authorID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePosts) IDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, p := range f.posts {
		if p.AuthorID == authorID {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakePosts) UpdateAuthorFields(ctx context.Context, postIDs []string, set map[string]interface{}, unset []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range postIDs {
		if f.failPostIDs[id] {
			return errors.New("bulk write failed")
		}
	}
	for _, id := range postIDs {
		p, ok := f.posts[id]
		if !ok {
			continue
		}
		for k, v := range set {
			switch k {
			case "username":
				p.AuthorName = v.(string)
			case "userProfileImage":
				p.AuthorPhotoURL = v.(string)
			}
		}
		for _, k := range unset {
			if k == "userProfileImage" {
				p.AuthorPhotoURL = ""
			}
		}
	}
	return nil
}

func (f *fakePosts) SetLiked(ctx context.Context, postID, userID string, liked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetLiked {
		return errors.New("write unavailable")
	}
	p, ok := f.posts[postID]
	if !ok {
		return errors.New("post not found")
	}
	member := false
	for _, id := range p.LikedBy {
		if id == userID {
			member = true
			break
		}
	}
	// Membership-conditional, same as the server-side primitive: repeating
	// the same operation is a no-op.
	if liked && !member {
		p.LikedBy = append(p.LikedBy, userID)
		p.Likes++
	}
	if !liked && member {
		for i, id := range p.LikedBy {
			if id == userID {
				p.LikedBy = append(p.LikedBy[:i], p.LikedBy[i+1:]...)
				break
			}
		}
		p.Likes--
	}
	return nil
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeKV) ListKeys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}
