//go:build functional

// Package functional runs the API end to end against a real listener.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/homelab-api/internal/config"
	"github.com/vyrodovalexey/homelab-api/internal/handler"
	"github.com/vyrodovalexey/homelab-api/internal/model"
	"github.com/vyrodovalexey/homelab-api/internal/server"
	"github.com/vyrodovalexey/homelab-api/internal/service"
	"github.com/vyrodovalexey/homelab-api/internal/store"
)

// EnvTestStoreDriver selects the store backend the suite runs against.
const EnvTestStoreDriver = "TEST_STORE_DRIVER"

const (
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
)

// TestServer is a running API server bound to a loopback port.
type TestServer struct {
	BaseURL string
	WSURL   string
	Store   store.Store

	srv  *server.Server
	done chan error
}

// NewTestServer starts a server on a free port. The store is seeded when
// seed is true. The server is stopped when the test finishes.
func NewTestServer(t *testing.T, seed bool) *TestServer {
	t.Helper()

	driver := os.Getenv(EnvTestStoreDriver)
	if driver == "" {
		driver = config.StoreDriverMemory
	}

	port := freePort(t)
	cfg := &config.Config{
		ServerPort:         port,
		LogLevel:           "error",
		ShutdownTimeout:    DefaultShutdownTimeout,
		ProjectName:        config.DefaultProjectName,
		StoreDriver:        driver,
		SQLiteDSN:          store.DefaultSQLiteDSN,
		CORSAllowedOrigins: []string{"*"},
		CompressionEnabled: true,
	}
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	itemStore := newStore(t, ctx, driver)
	if seed {
		require.NoError(t, store.Seed(ctx, itemStore, store.DefaultSeed()))
	}

	logger := zap.NewNop()
	ws := handler.NewWebSocketHandler(logger)
	svc := service.NewItemService(itemStore, logger, ws)

	ts := &TestServer{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		WSURL:   fmt.Sprintf("ws://127.0.0.1:%d/ws", port),
		Store:   itemStore,
		srv:     server.New(cfg, logger, svc, ws),
		done:    make(chan error, 1),
	}

	go func() {
		ts.done <- ts.srv.Start()
	}()
	ts.waitForReady(t)

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := ts.srv.Shutdown(shutdownCtx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		if err := <-ts.done; err != nil {
			t.Errorf("Start() error = %v", err)
		}
		_ = itemStore.Close()
	})

	return ts
}

func newStore(t *testing.T, ctx context.Context, driver string) store.Store {
	t.Helper()

	switch driver {
	case config.StoreDriverSQLite:
		s, err := store.NewSQLiteStore(ctx, store.DefaultSQLiteDSN)
		require.NoError(t, err)
		return s
	default:
		return store.NewMemoryStore()
	}
}

func (ts *TestServer) waitForReady(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.BaseURL + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, "server did not become ready")
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, v), "body: %s", r.Body)
}

// Detail returns the "detail" field of an error body.
func (r *Response) Detail(t *testing.T) string {
	t.Helper()

	var body struct {
		Detail string `json:"detail"`
	}
	r.Decode(t, &body)
	return body.Detail
}

// Item decodes the body as a single item.
func (r *Response) Item(t *testing.T) model.Item {
	t.Helper()

	var item model.Item
	r.Decode(t, &item)
	return item
}

// Items decodes the body as a list of items.
func (r *Response) Items(t *testing.T) []model.Item {
	t.Helper()

	var items []model.Item
	r.Decode(t, &items)
	return items
}

// Do sends a request with an optional raw JSON body.
func (ts *TestServer) Do(t *testing.T, method, path, body string) *Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, ts.BaseURL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}
}

// Create posts an item and requires a 201.
func (ts *TestServer) Create(t *testing.T, body string) model.Item {
	t.Helper()

	resp := ts.Do(t, http.MethodPost, "/api/v1/items", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", resp.Body)
	return resp.Item(t)
}

// errTimeout is returned when a WebSocket read deadline passes.
var errTimeout = errors.New("timed out waiting for event")
