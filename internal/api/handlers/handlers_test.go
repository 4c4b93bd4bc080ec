package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzax/axdns/internal/api/models"
	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/repository"
	"github.com/xzax/axdns/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var seed = []string{
	`{"name":"testing.xz.ax","type":"A","ttl":10,"value":"65.108.126.123"}`,
	`{"name":"testing.xz.ax","type":"AAAA","ttl":10,"value":"2a01:4f9:6b:15ce::2"}`,
	`{"name":"www.testing.xz.ax","type":"CNAME","ttl":10,"value":"testing.xz.ax"}`,
}

type fixture struct {
	engine *gin.Engine
	env    *server.Env
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOver(t, repository.NewMemory())
}

func newFixtureOver(t *testing.T, backing repository.Repository) *fixture {
	t.Helper()
	store, err := repository.NewLayered(context.Background(), backing, repository.Options{CacheSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.API.APIKey = "hunter2"
	env := &server.Env{Config: cfg, Records: store, Stats: server.NewDNSStats()}
	h := New(cfg, env, nil)

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/config", h.GetConfig)
	r.GET("/records", h.ListRecords)
	r.POST("/records", h.CreateRecord)
	r.DELETE("/records", h.DeleteRecords)
	r.GET("/records/names", h.ListNames)
	r.GET("/records/chains", h.ListChains)
	r.POST("/records/delete", h.DeleteRecord)
	r.POST("/records/clear", h.ClearRecords)
	r.POST("/cache/flush", h.FlushCache)
	r.POST("/filter/rebuild", h.RebuildFilter)

	return &fixture{engine: r, env: env, cfg: cfg}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	for _, body := range seed {
		w := f.do(http.MethodPost, "/records", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateRecord_ReturnsCanonicalForm(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/records", `{"name":"WWW.Testing.xz.ax.","type":"cname","ttl":30,"value":"testing.xz.ax"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[models.Record](t, w)
	assert.Equal(t, "CNAME", rec.Type)
	assert.Equal(t, int32(30), rec.TTL)
	assert.Equal(t, "testing.xz.ax.", rec.Value)
}

func TestCreateRecord_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing value", `{"name":"a.example","type":"A","ttl":1}`},
		{"unsupported type", `{"name":"a.example","type":"MX","ttl":1,"value":"mail.example"}`},
		{"bad address", `{"name":"a.example","type":"A","ttl":1,"value":"not-an-ip"}`},
		{"ipv6 in A", `{"name":"a.example","type":"A","ttl":1,"value":"::1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, "/records", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[models.ErrorResponse](t, w).Error)
		})
	}
}

func TestListRecords_Filters(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?name=testing.xz.ax", 2},
		{"?type=CNAME", 1},
		{"?name=testing.xz.ax&type=AAAA", 1},
		{"?name=missing.xz.ax", 0},
	}
	for _, tt := range tests {
		w := f.do(http.MethodGet, "/records"+tt.query, "")
		require.Equal(t, http.StatusOK, w.Code, tt.query)
		assert.Equal(t, tt.want, decode[models.RecordListResponse](t, w).Count, tt.query)
	}

	w := f.do(http.MethodGet, "/records?type=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListNames(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(http.MethodGet, "/records/names", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.NameListResponse](t, w)
	assert.ElementsMatch(t, []string{"testing.xz.ax", "www.testing.xz.ax"}, resp.Names)
}

func TestListChains(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(http.MethodGet, "/records/chains?name=www.testing.xz.ax", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "type is required")

	w = f.do(http.MethodGet, "/records/chains?name=www.testing.xz.ax&type=A", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.ChainListResponse](t, w)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "CNAME", resp.Chains[0].Alias.Type)
	assert.Equal(t, "65.108.126.123", resp.Chains[0].Record.Value)
}

func TestDeleteRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(http.MethodPost, "/records/delete", `{"name":"testing.xz.ax","type":"A","ttl":99,"value":"65.108.126.123"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "TTL must match")

	w = f.do(http.MethodPost, "/records/delete", seed[0])
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.RecordListResponse](t, w).Count)

	w = f.do(http.MethodGet, "/records?name=testing.xz.ax&type=A", "")
	assert.Zero(t, decode[models.RecordListResponse](t, w).Count)
}

func TestDeleteRecords(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(http.MethodDelete, "/records", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/records?type=AAAA", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.RecordListResponse](t, w).Count)

	w = f.do(http.MethodDelete, "/records?name=testing.xz.ax", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.RecordListResponse](t, w).Count)

	w = f.do(http.MethodGet, "/records", "")
	assert.Equal(t, 1, decode[models.RecordListResponse](t, w).Count)
}

func TestClearRecords(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(http.MethodPost, "/records/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cleared", decode[models.StatusResponse](t, w).Status)

	w = f.do(http.MethodGet, "/records", "")
	assert.Zero(t, decode[models.RecordListResponse](t, w).Count)
}

func TestMaintenanceEndpoints(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.do(http.MethodGet, "/records?name=testing.xz.ax&type=A", "")
	require.NotZero(t, f.env.Records.Cache.Stats().RecordEntries)

	w := f.do(http.MethodPost, "/cache/flush", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.env.Records.Cache.Stats().RecordEntries)

	w = f.do(http.MethodPost, "/filter/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, f.env.Records.Stats().Names)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.env.Stats.RecordQuery(server.TransportUDP)
	f.do(http.MethodGet, "/records?name=testing.xz.ax&type=A", "")
	f.do(http.MethodGet, "/records?name=missing.xz.ax&type=A", "")

	w := f.do(http.MethodGet, "/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.ServerStatsResponse](t, w)
	assert.NotEmpty(t, resp.Uptime)
	assert.Positive(t, resp.NumCPU)
	assert.Equal(t, uint64(1), resp.DNSStats.QueriesUDP)
	assert.Equal(t, uint64(1), resp.Cache.Misses)
	assert.Equal(t, 16, resp.Cache.Capacity)
	assert.Equal(t, uint64(1), resp.Filter.Rejected)
}

func TestGetConfig_Redacts(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/config", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	resp := decode[models.ConfigResponse](t, w)
	assert.Equal(t, config.DriverMemory, resp.Database.Driver)
	assert.Empty(t, resp.Database.Path)
	assert.Equal(t, "auto", resp.Server.Workers)
	assert.Equal(t, "2s", resp.Server.QueryTimeout)
}

func TestClosedStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Records.Close())

	w := f.do(http.MethodGet, "/records", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(http.MethodPost, "/records", seed[0])
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// corruptStore fails listings the way the database does for a row it
// cannot decode.
type corruptStore struct{ *repository.Memory }

func (corruptStore) GetAll(context.Context) ([]dns.Record, error) {
	return nil, fmt.Errorf("%w: get all: %w", repository.ErrStoreAccess, dns.ErrMalformedName)
}

func TestStoreFailureIsServerError(t *testing.T) {
	f := newFixtureOver(t, corruptStore{repository.NewMemory()})

	w := f.do(http.MethodGet, "/records", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "list records failed", decode[models.ErrorResponse](t, w).Error)
}

func TestNilEnv(t *testing.T) {
	h := New(nil, nil, nil)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/config", h.GetConfig)
	r.POST("/cache/flush", h.FlushCache)

	codes := map[string]int{
		"GET /health":       http.StatusOK,
		"GET /stats":        http.StatusOK,
		"GET /config":       http.StatusInternalServerError,
		"POST /cache/flush": http.StatusServiceUnavailable,
	}
	for route, want := range codes {
		method, path, _ := strings.Cut(route, " ")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		assert.Equal(t, want, w.Code, route)
	}
}
