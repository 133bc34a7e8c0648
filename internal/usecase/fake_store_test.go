package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/neuroscan/internal/repository"
)

// memStore is an in-memory repository.Store. Transactions write straight
// through; the counters let tests assert commit and rollback behavior.
type memStore struct {
	mu       sync.Mutex
	users    map[uint]*repository.User
	admins   map[string]*repository.Admin
	feedback []repository.Feedback
	nextID   uint

	createUserErr error
	saveUserErr   error
	readErr       error

	begins, commits, rollbacks int
}

func newMemStore() *memStore {
	return &memStore{users: map[uint]*repository.User{}, admins: map[string]*repository.Admin{}}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) GetUser(_ context.Context, id uint) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) ListUsers(context.Context) ([]repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateUser(_ context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUserErr != nil {
		return s.createUserErr
	}
	user.ID = s.id()
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) SaveUser(_ context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveUserErr != nil {
		return s.saveUserErr
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) ListFeedback(context.Context) ([]repository.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.Feedback(nil), s.feedback...), nil
}

func (s *memStore) CreateFeedback(_ context.Context, feedback *repository.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feedback.ID = s.id()
	s.feedback = append(s.feedback, *feedback)
	return nil
}

func (s *memStore) FindAdminByUsername(_ context.Context, username string) (*repository.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) CreateAdmin(_ context.Context, admin *repository.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin.ID = s.id()
	cp := *admin
	s.admins[admin.Username] = &cp
	return nil
}

func (s *memStore) SaveAdmin(_ context.Context, admin *repository.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *admin
	s.admins[admin.Username] = &cp
	return nil
}

func (s *memStore) Stats(context.Context) (repository.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st repository.Stats
	st.Users = int64(len(s.users))
	for _, u := range s.users {
		if u.IsApproved {
			st.ApprovedUsers++
		}
	}
	st.Feedback = int64(len(s.feedback))
	if st.Feedback > 0 {
		total := 0
		for _, f := range s.feedback {
			total += f.Rating
		}
		st.AverageRating = float64(total) / float64(st.Feedback)
	}
	return st, nil
}

func (s *memStore) Begin(context.Context) (repository.Tx, error) {
	s.mu.Lock()
	s.begins++
	s.mu.Unlock()
	return &memTx{memStore: s}, nil
}

type memTx struct {
	*memStore
}

func (t *memTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *memTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}
