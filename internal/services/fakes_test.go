package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/primeacre/apiserver/internal/mq"
	"github.com/primeacre/apiserver/internal/storage"
	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
)

// memoryDB is an in-memory stand-in for the three repositories. Deletes
// cascade the way the foreign keys do.
type memoryDB struct {
	mu        sync.Mutex
	users     map[string]types.User
	listings  map[string]types.Listing
	reviews   map[string]types.Review
	interests map[string][]string
	seq       int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		users:     map[string]types.User{},
		listings:  map[string]types.Listing{},
		reviews:   map[string]types.Review{},
		interests: map[string][]string{},
	}
}

func (m *memoryDB) tick() time.Time {
	m.seq++
	return time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
}

type memoryUsers struct{ *memoryDB }
type memoryListings struct{ *memoryDB }
type memoryReviews struct{ *memoryDB }

func (m memoryUsers) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = m.tick()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m memoryUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range m.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m memoryUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	delete(m.interests, id)
	for listingID, listing := range m.listings {
		if listing.AgentID == id {
			m.deleteListingLocked(listingID)
		}
	}
	for reviewID, review := range m.reviews {
		if review.ClientID == id {
			delete(m.reviews, reviewID)
		}
	}
	return nil
}

func (m memoryUsers) AddInterest(_ context.Context, userID, listingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[listingID]; !ok {
		return false, store.ErrNotFound
	}
	for _, id := range m.interests[userID] {
		if id == listingID {
			return false, nil
		}
	}
	m.interests[userID] = append(m.interests[userID], listingID)
	return true, nil
}

func (m *memoryDB) deleteListingLocked(id string) {
	delete(m.listings, id)
	for reviewID, review := range m.reviews {
		if review.PropertyID == id {
			delete(m.reviews, reviewID)
		}
	}
	for userID, ids := range m.interests {
		kept := ids[:0]
		for _, listingID := range ids {
			if listingID != id {
				kept = append(kept, listingID)
			}
		}
		m.interests[userID] = kept
	}
}

func (m *memoryDB) resolveLocked(listing types.Listing) types.Listing {
	if agent, ok := m.users[listing.AgentID]; ok {
		summary := agent.Summary()
		listing.Agent = &summary
	}
	listing.Images = append([]string(nil), listing.Images...)
	listing.Reviews = []types.Review{}
	return listing
}

func (m memoryListings) sorted(filter func(types.Listing) bool) []types.Listing {
	out := make([]types.Listing, 0)
	for _, listing := range m.listings {
		if filter(listing) {
			out = append(out, m.resolveLocked(listing))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m memoryListings) List(_ context.Context) ([]types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(types.Listing) bool { return true }), nil
}

func (m memoryListings) Get(_ context.Context, id string) (types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[id]
	if !ok {
		return types.Listing{}, store.ErrNotFound
	}
	return m.resolveLocked(listing), nil
}

func (m memoryListings) ListByAgent(_ context.Context, agentID string) ([]types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(l types.Listing) bool { return l.AgentID == agentID }), nil
}

func (m memoryListings) ListInterestedBy(_ context.Context, userID string) ([]types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Listing, 0)
	for _, id := range m.interests[userID] {
		if listing, ok := m.listings[id]; ok {
			out = append(out, m.resolveLocked(listing))
		}
	}
	return out, nil
}

func (m memoryListings) Create(_ context.Context, listing types.Listing) (types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[listing.AgentID]; !ok {
		return types.Listing{}, store.ErrNotFound
	}
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	listing.CreatedAt = m.tick()
	listing.UpdatedAt = listing.CreatedAt
	if listing.ListedAt.IsZero() {
		listing.ListedAt = listing.CreatedAt
	}
	listing.Images = append([]string(nil), listing.Images...)
	m.listings[listing.ID] = listing
	return listing, nil
}

func (m memoryListings) Update(_ context.Context, listing types.Listing) (types.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.listings[listing.ID]
	if !ok || existing.AgentID != listing.AgentID {
		return types.Listing{}, store.ErrNotFound
	}
	listing.Agent = nil
	listing.Reviews = nil
	listing.Images = append([]string(nil), listing.Images...)
	m.listings[listing.ID] = listing
	return listing, nil
}

func (m memoryListings) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return store.ErrNotFound
	}
	m.deleteListingLocked(id)
	return nil
}

func (m memoryListings) ReferencedImages(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var images []string
	for _, listing := range m.listings {
		images = append(images, listing.Images...)
	}
	return images, nil
}

func (m memoryReviews) list(filter func(types.Review) bool) []types.Review {
	out := make([]types.Review, 0)
	for _, review := range m.reviews {
		if filter(review) {
			if client, ok := m.users[review.ClientID]; ok {
				review.Client = &types.UserSummary{ID: client.ID, FirstName: client.FirstName, LastName: client.LastName}
			}
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m memoryReviews) ListByListing(_ context.Context, listingID string) ([]types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(r types.Review) bool { return r.PropertyID == listingID }), nil
}

func (m memoryReviews) ListByListings(_ context.Context, listingIDs []string) (map[string][]types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(listingIDs))
	for _, id := range listingIDs {
		wanted[id] = true
	}
	grouped := map[string][]types.Review{}
	for _, review := range m.list(func(r types.Review) bool { return wanted[r.PropertyID] }) {
		grouped[review.PropertyID] = append(grouped[review.PropertyID], review)
	}
	return grouped, nil
}

func (m memoryReviews) Get(_ context.Context, id string) (types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[id]
	if !ok {
		return types.Review{}, store.ErrNotFound
	}
	return review, nil
}

func (m memoryReviews) Create(_ context.Context, review types.Review) (types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[review.PropertyID]; !ok {
		return types.Review{}, store.ErrNotFound
	}
	review.ID = uuid.NewString()
	review.Edited = false
	review.CreatedAt = m.tick()
	review.UpdatedAt = review.CreatedAt
	m.reviews[review.ID] = review
	return review, nil
}

func (m memoryReviews) Update(_ context.Context, review types.Review) (types.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.ID]; !ok {
		return types.Review{}, store.ErrNotFound
	}
	review.Edited = true
	review.Client = nil
	m.reviews[review.ID] = review
	return review, nil
}

func (m memoryReviews) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

const testPublicBase = "http://cdn.test/primeacre"

// memoryObjects is an ObjectStore backed by a map.
type memoryObjects struct {
	mu         sync.Mutex
	objects    map[string]storage.ObjectInfo
	failPut    bool
	failDelete error
	deleted    []string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string]storage.ObjectInfo{}}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.failPut {
		return errors.New("bucket unavailable")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storage.ObjectInfo{Key: key, LastModified: time.Now()}
	return nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	if m.failDelete != nil {
		return m.failDelete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for key, info := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (m *memoryObjects) PublicURL(key string) string {
	return testPublicBase + "/" + key
}

func (m *memoryObjects) KeyFromURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, testPublicBase+"/") {
		return "", false
	}
	return strings.TrimPrefix(rawURL, testPublicBase+"/"), true
}

func (m *memoryObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// recordingPublisher captures published cleanup tasks.
type recordingPublisher struct {
	mu    sync.Mutex
	tasks []mq.CleanupTask
	err   error
}

func (p *recordingPublisher) PublishCleanup(_ context.Context, _ string, task mq.CleanupTask) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return "msg-1", nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for _, task := range p.tasks {
		keys = append(keys, task.Keys...)
	}
	return keys
}
