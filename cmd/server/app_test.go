package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/mocks"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validSubtasks = `{"subtasks":[{"title":"Outline","description":"Draft the sections","estimatedMinutes":30}]}`
	testOrigin    = "https://ui.example.com"
	testSecret    = "0123456789abcdef0123456789abcdef"
)

func testAppConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:               0,
			LogLevel:           "debug",
			CORSAllowedOrigins: []string{testOrigin},
			ShutdownTimeout:    time.Second,
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Auth:     config.AuthConfig{TokenLifetime: time.Hour},
		LLM: config.LLMConfig{
			GeminiAPIKey: "test-key",
			ModelName:    "gemini-test",
			Burst:        1,
		},
		Jobs: config.JobsConfig{
			WorkerCount:     2,
			MaxAttempts:     3,
			DefaultTimeout:  5 * time.Second,
			MaxTimeout:      time.Minute,
			PollInterval:    20 * time.Millisecond,
			Retention:       time.Hour,
			JanitorInterval: time.Hour,
		},
	}
}

// newTestApp builds the application with a scripted provider and starts
// its runner.
func newTestApp(t *testing.T, cfg *config.Config) (*application, *httptest.Server) {
	t.Helper()
	_, log := logger.SetupTestLogger(t)

	provider := mocks.NewScriptedProvider(mocks.ProviderStep{Text: validSubtasks})
	app, err := newApplication(context.Background(), cfg, log, provider)
	require.NoError(t, err)

	require.NoError(t, app.runner.Start(context.Background()))
	t.Cleanup(func() {
		provider.Release()
		app.cleanup()
	})

	ts := httptest.NewServer(app.setupRouter())
	t.Cleanup(ts.Close)
	return app, ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func submitJob(t *testing.T, baseURL, token string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/jobs", token, map[string]any{
		"type":   "subtask_generation",
		"params": map[string]any{"title": "Write report"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "body: %v", body)
	id, ok := body["jobId"].(string)
	require.True(t, ok)
	return id
}

func waitCompleted(t *testing.T, url, token string) map[string]any {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		resp, body := doJSON(t, http.MethodGet, url, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if body["status"] == string(domain.JobStatusCompleted) {
			return body
		}
		select {
		case <-deadline:
			t.Fatalf("job did not complete; last body %v", body)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestApp(t, testAppConfig())

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestJobLifecycleThroughRouter(t *testing.T) {
	_, ts := newTestApp(t, testAppConfig())

	for _, prefix := range []string{"/api", ""} {
		t.Run("prefix "+prefix, func(t *testing.T) {
			base := ts.URL + prefix
			id := submitJob(t, base, "")

			body := waitCompleted(t, base+"/jobs/"+id, "")
			assert.Equal(t, id, body["jobId"])
			assert.Equal(t, "subtask_generation", body["type"])
			assert.NotNil(t, body["result"])
			assert.NotNil(t, body["completedAt"])

			resp, stats := doJSON(t, http.MethodGet, base+"/jobs/stats", "", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.GreaterOrEqual(t, stats["completed"], float64(1))
		})
	}

	t.Run("unknown job", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/jobs/3f1c2b9e-7a4d-4f6e-9b1a-2c3d4e5f6a7b", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAuthEnabled(t *testing.T) {
	cfg := testAppConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = testSecret
	app, ts := newTestApp(t, cfg)
	require.NotNil(t, app.jwtService)

	ctx := context.Background()
	alice, err := app.jwtService.GenerateToken(ctx, "alice")
	require.NoError(t, err)
	bob, err := app.jwtService.GenerateToken(ctx, "bob")
	require.NoError(t, err)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/jobs", "", map[string]any{
		"type":   "subtask_generation",
		"params": map[string]any{"title": "x"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	id := submitJob(t, ts.URL+"/api", alice)
	waitCompleted(t, ts.URL+"/api/jobs/"+id, alice)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/jobs/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "jobs are scoped to their owner")

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestApp(t, testAppConfig())

	// Browsers send the requested header list lowercased and comma
	// separated without spaces.
	tests := []struct {
		name       string
		origin     string
		headers    string
		wantOrigin string
	}{
		{"allowed origin", testOrigin, "authorization,content-type", testOrigin},
		{"allowed origin without headers", testOrigin, "", testOrigin},
		{"non-canonical header list", testOrigin, "Authorization, Content-Type", ""},
		{"other origin", "https://evil.example.com", "authorization,content-type", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/jobs", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			if tt.headers != "" {
				req.Header.Set("Access-Control-Request-Headers", tt.headers)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Less(t, resp.StatusCode, 300)
			assert.Equal(t, tt.wantOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSQLiteStoreWithMigrations(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig()
	cfg.Database = config.DatabaseConfig{
		Driver: "sqlite",
		URL:    "file:" + filepath.Join(t.TempDir(), "jobs.db"),
	}

	require.NoError(t, runMigrations(ctx, cfg.Database, "up"))
	require.NoError(t, runMigrations(ctx, cfg.Database, "status"))

	app, ts := newTestApp(t, cfg)
	require.NotNil(t, app.db)

	id := submitJob(t, ts.URL+"/api", "")
	body := waitCompleted(t, ts.URL+"/api/jobs/"+id, "")
	assert.Equal(t, id, body["jobId"])
}

func TestRunMigrationsRejectsInvalidSetup(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		command string
	}{
		{"memory driver", config.DatabaseConfig{Driver: "memory"}, "up"},
		{"unknown driver", config.DatabaseConfig{Driver: "mysql", URL: "x"}, "up"},
		{"unknown command", config.DatabaseConfig{Driver: "sqlite", URL: "file:" + filepath.Join(t.TempDir(), "m.db")}, "sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runMigrations(ctx, tt.cfg, tt.command))
		})
	}
}

func TestNewApplicationRejectsShortJWTSecret(t *testing.T) {
	cfg := testAppConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "short"
	_, log := logger.SetupTestLogger(t)

	_, err := newApplication(context.Background(), cfg, log, mocks.NewScriptedProvider())
	assert.ErrorContains(t, err, "JWT")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, log := logger.SetupTestLogger(t)
	cfg := testAppConfig()

	app, err := newApplication(context.Background(), cfg, log, mocks.NewScriptedProvider(mocks.ProviderStep{Text: validSubtasks}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
