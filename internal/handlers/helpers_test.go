package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/session"
	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCookieName = "primeacre_session"

var errConflict = store.ErrConflict

var (
	testAgent  = types.User{ID: "agent-1", Role: types.RoleAgent, FirstName: "Ada", LastName: "Agent", Email: "ada@example.com"}
	testClient = types.User{ID: "client-1", Role: types.RoleClient, FirstName: "Cal", LastName: "Client", Email: "cal@example.com"}
)

type stubAuth struct {
	register func(context.Context, services.RegisterInput) (types.User, error)
	login    func(context.Context, string, string) (types.User, error)
}

func (s stubAuth) Register(ctx context.Context, in services.RegisterInput) (types.User, error) {
	return s.register(ctx, in)
}

func (s stubAuth) Login(ctx context.Context, email, password string) (types.User, error) {
	return s.login(ctx, email, password)
}

type stubUsers map[string]types.User

func (s stubUsers) GetByID(_ context.Context, id string) (types.User, error) {
	user, ok := s[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

type stubListings struct {
	list   func(context.Context) ([]types.Listing, error)
	get    func(context.Context, string) (types.Listing, error)
	create func(context.Context, string, services.ListingInput, []services.Upload) (types.Listing, error)
	update func(context.Context, string, string, services.ListingInput, []services.Upload) (types.Listing, error)
	delete func(context.Context, string, string) error
}

func (s stubListings) List(ctx context.Context) ([]types.Listing, error) { return s.list(ctx) }

func (s stubListings) Get(ctx context.Context, id string) (types.Listing, error) {
	return s.get(ctx, id)
}

func (s stubListings) Create(ctx context.Context, agentID string, in services.ListingInput, uploads []services.Upload) (types.Listing, error) {
	return s.create(ctx, agentID, in, uploads)
}

func (s stubListings) Update(ctx context.Context, id, callerID string, in services.ListingInput, uploads []services.Upload) (types.Listing, error) {
	return s.update(ctx, id, callerID, in, uploads)
}

func (s stubListings) Delete(ctx context.Context, id, callerID string) error {
	return s.delete(ctx, id, callerID)
}

type stubInterests func(context.Context, string, string) (bool, error)

func (s stubInterests) MarkInterested(ctx context.Context, clientID, listingID string) (bool, error) {
	return s(ctx, clientID, listingID)
}

type stubReviews struct {
	create func(context.Context, string, string, int, string) (types.Review, error)
	list   func(context.Context, string) ([]types.Review, error)
	update func(context.Context, string, string, string, services.ReviewUpdate) (types.Review, error)
	delete func(context.Context, string, string, string) error
}

func (s stubReviews) Create(ctx context.Context, clientID, listingID string, rating int, comment string) (types.Review, error) {
	return s.create(ctx, clientID, listingID, rating, comment)
}

func (s stubReviews) List(ctx context.Context, listingID string) ([]types.Review, error) {
	return s.list(ctx, listingID)
}

func (s stubReviews) Update(ctx context.Context, listingID, reviewID, callerID string, update services.ReviewUpdate) (types.Review, error) {
	return s.update(ctx, listingID, reviewID, callerID, update)
}

func (s stubReviews) Delete(ctx context.Context, listingID, reviewID, callerID string) error {
	return s.delete(ctx, listingID, reviewID, callerID)
}

type stubProfiles struct {
	profile func(context.Context, string) (types.Profile, error)
	update  func(context.Context, string, services.ProfileUpdate) (types.User, error)
	delete  func(context.Context, string) error
}

func (s stubProfiles) Profile(ctx context.Context, id string) (types.Profile, error) {
	return s.profile(ctx, id)
}

func (s stubProfiles) UpdateProfile(ctx context.Context, id string, update services.ProfileUpdate) (types.User, error) {
	return s.update(ctx, id, update)
}

func (s stubProfiles) Delete(ctx context.Context, id string) error { return s.delete(ctx, id) }

func newTestSessions(t *testing.T) *session.Manager {
	t.Helper()
	manager, err := session.NewManager(config.SessionConfig{
		Secret:     "handler-test-secret",
		TTL:        time.Hour,
		CookieName: testCookieName,
	}, nil)
	require.NoError(t, err)
	return manager
}

var testUploadLimits = config.UploadConfig{MaxImages: 3, MaxImageBytes: 1 << 10}

type testAPI struct {
	sessions *session.Manager
	router   chi.Router
}

type testDeps struct {
	auth      Authenticator
	users     UserLookup
	listings  Listings
	interests Interests
	reviews   Reviews
	profiles  Profiles
}

func newTestAPI(t *testing.T, deps testDeps) *testAPI {
	t.Helper()
	sessions := newTestSessions(t)
	log := zap.NewNop()

	router := chi.NewRouter()
	router.Use(sessions.Load)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(deps.auth, deps.users, sessions, log), NewRateLimiter(nil, 0, log).Handler)
	})
	router.Route("/properties", func(r chi.Router) {
		PropertyRouter(r, NewPropertyHandler(deps.listings, deps.interests, testUploadLimits, log), NewReviewHandler(deps.reviews, log))
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(deps.profiles, sessions, log))
	})
	return &testAPI{sessions: sessions, router: router}
}

// do serves req, signed in as user when user is non-nil.
func (a *testAPI) do(t *testing.T, req *http.Request, user *types.User) *httptest.ResponseRecorder {
	t.Helper()
	if user != nil {
		token, _, err := a.sessions.Issue(*user)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[ErrorResponse](t, rec).Error
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	return nil
}
