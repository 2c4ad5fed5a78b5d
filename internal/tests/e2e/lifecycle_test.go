//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/db"
	"github.com/primeacre/apiserver/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
	minioBucket   = "primeacre-e2e"
)

var baseURL string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("primeacre"),
		postgres.WithUsername("primeacre"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	minio, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start minio: %v\n", err)
		return 1
	}
	defer func() { _ = minio.Terminate(context.Background()) }()

	cfg, err := testConfig(ctx, pg, minio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build config: %v\n", err)
		return 1
	}

	if err := db.MigrateUp(db.DSN(cfg.Database)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	srv, err := server.New(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		return 1
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	baseURL = ts.URL

	return m.Run()
}

func testConfig(ctx context.Context, pg *postgres.PostgresContainer, minio testcontainers.Container) (config.Config, error) {
	pgHost, err := pg.Host(ctx)
	if err != nil {
		return config.Config{}, err
	}
	pgPort, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return config.Config{}, err
	}
	minioHost, err := minio.Host(ctx)
	if err != nil {
		return config.Config{}, err
	}
	minioPort, err := minio.MappedPort(ctx, "9000/tcp")
	if err != nil {
		return config.Config{}, err
	}
	endpoint := fmt.Sprintf("%s:%s", minioHost, minioPort.Port())

	return config.Config{
		AllowedOrigins: []string{"http://localhost:5173"},
		Upload:         config.UploadConfig{MaxImages: 5, MaxImageBytes: 1 << 20},
		Database: config.DatabaseConfig{
			Host:     pgHost,
			Port:     pgPort.Int(),
			User:     "primeacre",
			Password: "password",
			DBName:   "primeacre",
		},
		Session: config.SessionConfig{
			Secret:     "e2e-secret",
			TTL:        time.Hour,
			CookieName: "primeacre_session",
		},
		Storage: config.StorageConfig{
			Backend:       "minio",
			PublicBaseURL: "http://" + endpoint + "/" + minioBucket,
			Minio: config.MinioConfig{
				Endpoint:  endpoint,
				AccessKey: minioUser,
				SecretKey: minioPassword,
				Bucket:    minioBucket,
			},
		},
		MQ:  config.MQConfig{CleanupChannel: "image-cleanup"},
		Log: config.LogConfig{Level: "error", Format: "json"},
	}, nil
}

type apiClient struct {
	t    *testing.T
	http *http.Client
}

func newClient(t *testing.T) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{t: t, http: &http.Client{Jar: jar, Timeout: 30 * time.Second}}
}

func (c *apiClient) do(method, path, contentType string, body io.Reader) (int, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, data
}

func (c *apiClient) json(method, path string, payload any) (int, []byte) {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(data)
	}
	return c.do(method, path, "application/json", body)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(data, &value), string(data))
	return value
}

type userView struct {
	ID     string  `json:"id"`
	Role   string  `json:"role"`
	Agency *string `json:"agency"`
}

type reviewView struct {
	ID       string `json:"id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	Edited   bool   `json:"edited"`
	ClientID string `json:"clientId"`
}

type listingView struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	AgentID string       `json:"agentId"`
	Images  []string     `json:"images"`
	Reviews []reviewView `json:"reviews"`
	Agent   *userView    `json:"agent"`
}

type profileView struct {
	userView
	Properties           []listingView `json:"properties"`
	InterestedProperties []listingView `json:"interestedProperties"`
}

func register(t *testing.T, c *apiClient, role, agency string) userView {
	t.Helper()
	payload := map[string]string{
		"role":      role,
		"firstName": role,
		"lastName":  "Tester",
		"email":     fmt.Sprintf("%s-%d@example.com", strings.ToLower(role), time.Now().UnixNano()),
		"phone":     "555-0100",
		"password":  "testpass123!",
	}
	if agency != "" {
		payload["agency"] = agency
	}
	status, body := c.json(http.MethodPost, "/auth/register", payload)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = c.json(http.MethodPost, "/auth/login", map[string]string{
		"email":    payload["email"],
		"password": payload["password"],
	})
	require.Equal(t, http.StatusOK, status, string(body))
	return decode[struct {
		User userView `json:"user"`
	}](t, body).User
}

func TestListingLifecycle(t *testing.T) {
	agentClient := newClient(t)
	agent := register(t, agentClient, "Agent", "Acre Realty")
	require.NotNil(t, agent.Agency)

	status, body := agentClient.json(http.MethodPost, "/properties", map[string]any{
		"title":        "Harbour loft",
		"description":  "Sea view",
		"price":        350000,
		"location":     "Harbour St 1",
		"propertyType": "Apartment",
	})
	require.Equal(t, http.StatusBadRequest, status, "listing without images must be rejected")

	status, body = agentClient.json(http.MethodPost, "/properties", map[string]any{
		"title":        "Harbour loft",
		"description":  "Sea view",
		"price":        350000,
		"location":     "Harbour St 1",
		"propertyType": "Apartment",
		"images":       []string{"https://images.example.com/loft.jpg"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	listing := decode[listingView](t, body)
	require.NotEmpty(t, listing.ID)
	assert.Equal(t, agent.ID, listing.AgentID)

	status, body = agentClient.json(http.MethodGet, "/users/profile", nil)
	require.Equal(t, http.StatusOK, status)
	owned := decode[profileView](t, body).Properties
	require.Len(t, owned, 1)
	assert.Equal(t, listing.ID, owned[0].ID)

	client := newClient(t)
	register(t, client, "Client", "")

	status, _ = client.json(http.MethodPatch, "/properties/"+listing.ID, map[string]any{"title": "Mine"})
	assert.Equal(t, http.StatusForbidden, status)

	for i := 0; i < 2; i++ {
		status, body = client.json(http.MethodPost, "/properties/"+listing.ID+"/interested", nil)
		require.Equal(t, http.StatusOK, status, string(body))
	}
	status, body = client.json(http.MethodGet, "/users/profile", nil)
	require.Equal(t, http.StatusOK, status)
	interested := decode[profileView](t, body).InterestedProperties
	require.Len(t, interested, 1)
	assert.Equal(t, listing.ID, interested[0].ID)

	for _, rating := range []int{0, 6} {
		status, _ = client.json(http.MethodPost, "/properties/"+listing.ID+"/reviews", map[string]any{"rating": rating})
		assert.Equal(t, http.StatusBadRequest, status, "rating %d", rating)
	}

	status, body = client.json(http.MethodPost, "/properties/"+listing.ID+"/reviews", map[string]any{"rating": 4, "comment": "Nice"})
	require.Equal(t, http.StatusCreated, status, string(body))
	review := decode[reviewView](t, body)

	status, body = client.json(http.MethodGet, "/properties/"+listing.ID, nil)
	require.Equal(t, http.StatusOK, status)
	fetched := decode[listingView](t, body)
	require.Len(t, fetched.Reviews, 1)
	assert.Equal(t, review.ID, fetched.Reviews[0].ID)
	assert.False(t, fetched.Reviews[0].Edited)
	require.NotNil(t, fetched.Agent)
	assert.Equal(t, agent.ID, fetched.Agent.ID)

	status, body = client.json(http.MethodPatch, "/properties/"+listing.ID+"/reviews/"+review.ID, map[string]any{"comment": "Very nice"})
	require.Equal(t, http.StatusOK, status, string(body))
	edited := decode[reviewView](t, body)
	assert.True(t, edited.Edited)
	assert.Equal(t, 4, edited.Rating)
	assert.Equal(t, "Very nice", edited.Comment)

	status, _ = agentClient.json(http.MethodDelete, "/properties/"+listing.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = client.json(http.MethodGet, "/properties/"+listing.ID, nil)
	assert.Equal(t, http.StatusNotFound, status, string(body))
}

func TestUploadedImagesAreServedFromStorage(t *testing.T) {
	agentClient := newClient(t)
	register(t, agentClient, "Agent", "Upload Realty")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":        "Garden house",
		"description":  "Quiet street",
		"price":        "420000",
		"location":     "Elm Rd 4",
		"propertyType": "House",
		"bedrooms":     "3",
	}
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	part, err := writer.CreateFormFile("images", "front.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake image body"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	status, body := agentClient.do(http.MethodPost, "/properties", writer.FormDataContentType(), &buf)
	require.Equal(t, http.StatusCreated, status, string(body))
	listing := decode[listingView](t, body)
	require.Len(t, listing.Images, 1)

	status, body = agentClient.json(http.MethodPatch, "/properties/"+listing.ID, map[string]any{
		"images": []string{"https://images.example.com/replacement.jpg"},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"https://images.example.com/replacement.jpg"}, decode[listingView](t, body).Images)

	status, body = agentClient.json(http.MethodDelete, "/users/profile", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = agentClient.json(http.MethodGet, "/properties/"+listing.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = agentClient.json(http.MethodGet, "/auth/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"isAuthenticated":false}`, string(body))
}
