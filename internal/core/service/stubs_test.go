package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

var discardLogger = zerolog.Nop()

// ---------------------------------------------------------------------------
// In-memory user repository
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int

	// forceConflicts makes the next N guarded ledger writes report a
	// version mismatch, as if another writer had got there first.
	forceConflicts int
	listErr        error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Donations = append([]domain.DonationEntry(nil), u.Donations...)
	clone.Achievements = append([]string(nil), u.Achievements...)
	return &clone
}

func (r *stubUserRepo) seed(u *domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		r.nextID++
		u.ID = fmt.Sprintf("user_%d", r.nextID)
	}
	r.users[u.ID] = cloneUser(u)
	return cloneUser(u)
}

func (r *stubUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id])
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	r.nextID++
	copy := cloneUser(user)
	copy.ID = fmt.Sprintf("user_%d", r.nextID)
	r.users[copy.ID] = cloneUser(copy)
	return copy, nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, p ports.UserPatch) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if p.Email != nil {
		for _, other := range r.users {
			if other.ID != id && other.Email == *p.Email {
				return nil, domain.ErrUserExists
			}
		}
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.BloodGroup != nil {
		u.BloodGroup = *p.BloodGroup
	}
	if p.BloodGroupNeeded != nil {
		u.BloodGroupNeeded = *p.BloodGroupNeeded
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *stubUserRepo) List(_ context.Context, f ports.UserFilter) ([]*domain.User, int64, error) {
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.User
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.BloodGroup != "" && u.BloodGroup != f.BloodGroup && u.BloodGroupNeeded != f.BloodGroup {
			continue
		}
		if f.City != "" && !strings.EqualFold(u.City, f.City) {
			continue
		}
		if f.OnlyAvailable && (!u.IsActive || u.IsSuspended) {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if f.Limit <= 0 {
		return matched, total, nil
	}
	skip := (f.Page - 1) * f.Limit
	if skip < 0 {
		skip = 0
	}
	if skip > len(matched) {
		return []*domain.User{}, total, nil
	}
	end := skip + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

func (r *stubUserRepo) TopDonors(_ context.Context, limit int) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var donors []*domain.User
	for _, u := range r.users {
		if u.Role == domain.RoleDonor {
			donors = append(donors, cloneUser(u))
		}
	}
	sort.Slice(donors, func(i, j int) bool { return donors[i].TotalDonated > donors[j].TotalDonated })
	if len(donors) > limit {
		donors = donors[:limit]
	}
	return donors, nil
}

func (r *stubUserRepo) SetRole(_ context.Context, id, role string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = role
	return cloneUser(u), nil
}

func (r *stubUserRepo) SetSuspended(_ context.Context, id string, suspended bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.IsSuspended = suspended
	return cloneUser(u), nil
}

func (r *stubUserRepo) ToggleActive(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	u.IsActive = !u.IsActive
	return u.IsActive, nil
}

func (r *stubUserRepo) AppendAchievements(_ context.Context, id string, items []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Achievements = append(u.Achievements, items...)
	return append([]string(nil), u.Achievements...), nil
}

func (r *stubUserRepo) SetProfileImage(_ context.Context, id, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	prev := u.ProfileImage
	u.ProfileImage = path
	return prev, nil
}

func (r *stubUserRepo) guard(id string, expectedVersion int64) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return nil, domain.ErrVersionMismatch
	}
	if u.Version != expectedVersion {
		return nil, domain.ErrVersionMismatch
	}
	return u, nil
}

func (r *stubUserRepo) AppendDonation(_ context.Context, id string, expectedVersion int64, entry domain.DonationEntry, totals *ports.LedgerTotals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.guard(id, expectedVersion)
	if err != nil {
		return err
	}
	u.Donations = append(u.Donations, entry)
	if totals != nil {
		u.TotalDonated = totals.TotalDonated
		u.Level = totals.Level
	}
	u.Version++
	return nil
}

func (r *stubUserRepo) CompleteDonation(_ context.Context, id string, expectedVersion int64, donationID int, totals ports.LedgerTotals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.guard(id, expectedVersion)
	if err != nil {
		return err
	}
	idx := u.FindDonation(donationID)
	if idx < 0 || u.Donations[idx].Status != domain.DonationPending {
		return domain.ErrVersionMismatch
	}
	now := time.Now().UTC()
	u.Donations[idx].Status = domain.DonationCompleted
	u.Donations[idx].CompletedAt = &now
	u.TotalDonated = totals.TotalDonated
	u.Level = totals.Level
	u.Version++
	return nil
}

// ---------------------------------------------------------------------------
// In-memory request repository
// ---------------------------------------------------------------------------

type stubRequestRepo struct {
	mu     sync.Mutex
	items  map[string]*domain.BloodRequest
	nextID int
	last   ports.RequestFilter
}

func newStubRequestRepo() *stubRequestRepo {
	return &stubRequestRepo{items: make(map[string]*domain.BloodRequest)}
}

func (r *stubRequestRepo) Create(_ context.Context, req *domain.BloodRequest) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	clone := *req
	clone.ID = fmt.Sprintf("req_%d", r.nextID)
	stored := clone
	r.items[clone.ID] = &stored
	return &clone, nil
}

func (r *stubRequestRepo) FindByID(_ context.Context, id string) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	clone := *req
	return &clone, nil
}

func (r *stubRequestRepo) List(_ context.Context, f ports.RequestFilter) ([]*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = f
	var out []*domain.BloodRequest
	for _, req := range r.items {
		if f.RecipientID != "" && req.RecipientID != f.RecipientID {
			continue
		}
		if f.Status != "" && string(req.Status) != f.Status {
			continue
		}
		if f.BloodGroup != "" && req.BloodGroup != f.BloodGroup {
			continue
		}
		if f.City != "" && !strings.EqualFold(req.City, f.City) {
			continue
		}
		clone := *req
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubRequestRepo) Transition(_ context.Context, id string, from, to domain.RequestStatus, acceptedBy string) (*domain.BloodRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status != from {
		return nil, domain.ErrVersionMismatch
	}
	req.Status = to
	switch to {
	case domain.RequestAccepted:
		req.AcceptedBy = acceptedBy
	case domain.RequestPending:
		req.AcceptedBy = ""
	}
	req.UpdatedAt = time.Now().UTC()
	clone := *req
	return &clone, nil
}

// ---------------------------------------------------------------------------
// Image and idempotency stores
// ---------------------------------------------------------------------------

type stubImageStore struct {
	objects map[string]string
	types   map[string]string
	deleted []string
	n       int
}

func newStubImageStore() *stubImageStore {
	return &stubImageStore{objects: make(map[string]string), types: make(map[string]string)}
}

func (s *stubImageStore) Put(_ context.Context, filename string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.n++
	path := fmt.Sprintf("/uploads/users/%d-%s", s.n, filename)
	s.objects[path] = string(data)
	s.types[path] = contentType
	return path, nil
}

func (s *stubImageStore) Delete(_ context.Context, path string) error {
	delete(s.objects, path)
	s.deleted = append(s.deleted, path)
	return nil
}

// stubIdemStore gives Reserve SETNX semantics. A zero value marks a key
// whose submission has not completed.
type stubIdemStore struct {
	mu         sync.Mutex
	keys       map[string]int
	reserveErr error
	// arrive, when set, holds every Reserve call until all expected callers
	// have arrived, so they race on the claim itself.
	arrive *sync.WaitGroup
}

func newStubIdemStore() *stubIdemStore {
	return &stubIdemStore{keys: make(map[string]int)}
}

func (s *stubIdemStore) Reserve(_ context.Context, userID, key string) (bool, int, error) {
	if s.arrive != nil {
		s.arrive.Done()
		s.arrive.Wait()
	}
	if s.reserveErr != nil {
		return false, 0, s.reserveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, held := s.keys[userID+":"+key]
	if held {
		return false, id, nil
	}
	s.keys[userID+":"+key] = 0
	return true, 0, nil
}

func (s *stubIdemStore) Complete(_ context.Context, userID, key string, donationID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[userID+":"+key] = donationID
	return nil
}

func (s *stubIdemStore) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, userID+":"+key)
	return nil
}

func (s *stubIdemStore) held(userID, key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[userID+":"+key]
	return id, ok
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seedDonor(repo *stubUserRepo, email string) *domain.User {
	return repo.seed(&domain.User{
		Name:         "Donor",
		Email:        email,
		Role:         domain.RoleDonor,
		BloodGroup:   "O-",
		City:         "Lima",
		IsActive:     true,
		Donations:    []domain.DonationEntry{},
		Achievements: []string{},
		Level:        domain.ComputeLevel(0),
	})
}

func adminIdentity() domain.Identity {
	return domain.Identity{UserID: "admin_1", Role: domain.RoleAdmin}
}
