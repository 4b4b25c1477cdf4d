package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"

	"github.com/google/uuid"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *fakeUserRepo) find(match func(*entity.User) bool) *entity.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return u.Email == email }), nil
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return u.Username == username }), nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*entity.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Token] = session
	return nil
}

func (r *fakeSessionRepo) FindActive(ctx context.Context, token uuid.UUID) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok || s.RevokedAt != nil {
		return nil, nil
	}
	return s, nil
}

func (r *fakeSessionRepo) Revoke(ctx context.Context, token uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok || s.RevokedAt != nil {
		return repository.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	return nil
}

type fakeProfileRepo struct {
	mu         sync.Mutex
	profiles   map[uuid.UUID]entity.UserProfile
	failAvatar error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uuid.UUID]entity.UserProfile)}
}

func (r *fakeProfileRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeProfileRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		p = entity.UserProfile{BaseNoDelete: entity.BaseNoDelete{ID: uuid.New()}, UserID: userID}
		r.profiles[userID] = p
	}
	return &p, nil
}

func (r *fakeProfileRepo) Update(ctx context.Context, profile *entity.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = *profile
	return nil
}

func (r *fakeProfileRepo) UpdateAvatar(ctx context.Context, userID uuid.UUID, key, url string, uploadedAt time.Time) error {
	if r.failAvatar != nil {
		return r.failAvatar
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[userID]
	p.AvatarKey, p.AvatarURL, p.AvatarUploadedAt = &key, &url, &uploadedAt
	r.profiles[userID] = p
	return nil
}

func (r *fakeProfileRepo) ClearAvatar(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[userID]
	p.AvatarKey, p.AvatarURL, p.AvatarUploadedAt = nil, nil, nil
	r.profiles[userID] = p
	return nil
}

type memAvatarStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemAvatarStore() *memAvatarStore {
	return &memAvatarStore{blobs: make(map[string][]byte)}
}

func (s *memAvatarStore) Save(ctx context.Context, key string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = buf.Bytes()
	return nil
}

func (s *memAvatarStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memAvatarStore) URL(key string) string {
	return "/media/" + key
}

func (s *memAvatarStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.blobs {
		out = append(out, k)
	}
	return out
}

func newFakeRepository(users *fakeUserRepo, phones *fakePhoneStore) (*repository.Repository, *fakeSessionRepo, *fakeProfileRepo) {
	sessions := newFakeSessionRepo()
	profiles := newFakeProfileRepo()
	return &repository.Repository{
		User:              users,
		Session:           sessions,
		Profile:           profiles,
		PhoneVerification: phones,
	}, sessions, profiles
}
