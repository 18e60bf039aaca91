package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/metrics"
)

const priceCSV = "Price,Paid\n\"$1,200\",yes\n$45,no\n"

type formPart struct {
	field    string
	filename string
	body     string
}

func multipartRequest(t *testing.T, target string, parts ...formPart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, p.body))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()

	eng, err := engine.New(engine.DefaultOptions())
	require.NoError(t, err)

	opts := Options{Engine: eng, Metrics: metrics.New(), MaxConcurrent: 2, MaxWait: time.Second}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

type buildReply struct {
	RecipeID   string          `json:"recipe_id"`
	Recipe     json.RawMessage `json:"recipe"`
	RecipeYAML string          `json:"recipe_yaml"`
	Clean      json.RawMessage `json:"clean"`
	Report     struct {
		Mode    string `json:"mode"`
		Rows    int    `json:"rows"`
		Columns []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Kind   string `json:"kind"`
		} `json:"columns"`
	} `json:"report"`
	LoadedRows *int64 `json:"loaded_rows"`
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) buildReply {
	t.Helper()
	var reply buildReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply), rec.Body.String())
	return reply
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Capacity)
	assert.False(t, resp.Database)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestBuild(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reply := decodeReply(t, rec)
	assert.NotEmpty(t, reply.RecipeID)
	assert.Equal(t, "build", reply.Report.Mode)
	assert.Equal(t, 2, reply.Report.Rows)
	require.Len(t, reply.Report.Columns, 2)
	assert.Equal(t, "currency", reply.Report.Columns[0].Kind)
	assert.Equal(t, "boolean", reply.Report.Columns[1].Kind)
	assert.Empty(t, reply.RecipeYAML)
	assert.Nil(t, reply.LoadedRows)
}

func TestBuild_YAMLRecipe(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, multipartRequest(t, "/api/build",
		formPart{"file", "prices.csv", priceCSV},
		formPart{field: "recipe_format", body: "yaml"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reply := decodeReply(t, rec)
	assert.Contains(t, reply.RecipeYAML, "version: 1")
	assert.Contains(t, reply.RecipeYAML, "column: Price")
}

func TestBuildThenReplay(t *testing.T) {
	srv := newTestServer(t, nil)

	built := decodeReply(t, serve(srv, multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV})))

	rec := serve(srv, multipartRequest(t, "/api/replay",
		formPart{"file", "prices.csv", "Price,Extra\n$10,x\n"},
		formPart{"recipe", "recipe.json", string(built.Recipe)},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reply := decodeReply(t, rec)
	assert.Equal(t, "replay", reply.Report.Mode)
	assert.Equal(t, built.RecipeID, reply.RecipeID)

	statuses := map[string]string{}
	for _, c := range reply.Report.Columns {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, map[string]string{"Price": "ok", "Extra": "not_in_recipe", "Paid": "missing"}, statuses)
}

func TestReplay_RecipeAsTextField(t *testing.T) {
	srv := newTestServer(t, nil)

	yamlRecipe := "version: 1\nsteps:\n  - column: Price\n    kind: currency\n"
	rec := serve(srv, multipartRequest(t, "/api/replay",
		formPart{"file", "prices.csv", priceCSV},
		formPart{field: "recipe", body: yamlRecipe},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReport(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, multipartRequest(t, "/api/report", formPart{"file", "prices.csv", priceCSV}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `<section class="report" data-mode="build">`)

	rec = serve(srv, multipartRequest(t, "/api/report?format=text", formPart{"file", "prices.csv", priceCSV}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mode: build")
}

func TestPassErrors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		parts      []formPart
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no file",
			target:     "/api/build",
			parts:      []formPart{{field: "load", body: ""}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "unsupported type",
			target:     "/api/build",
			parts:      []formPart{{"file", "data.parquet", "x"}},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "FILE003",
		},
		{
			name:       "empty file",
			target:     "/api/build",
			parts:      []formPart{{"file", "empty.csv", ""}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE002",
		},
		{
			name:       "bad recipe format",
			target:     "/api/build",
			parts:      []formPart{{"file", "prices.csv", priceCSV}, {field: "recipe_format", body: "toml"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "OPT001",
		},
		{
			name:       "load without database",
			target:     "/api/build",
			parts:      []formPart{{"file", "prices.csv", priceCSV}, {field: "load", body: "clean_prices"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "OPT002",
		},
		{
			name:       "replay without recipe",
			target:     "/api/replay",
			parts:      []formPart{{"file", "prices.csv", priceCSV}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "OPT001",
		},
		{
			name:       "recipe from the future",
			target:     "/api/replay",
			parts:      []formPart{{"file", "prices.csv", priceCSV}, {"recipe", "r.json", `{"version":2,"steps":[]}`}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "REC001",
		},
		{
			name:       "malformed recipe",
			target:     "/api/replay",
			parts:      []formPart{{"file", "prices.csv", priceCSV}, {"recipe", "r.json", `{"version":1,"steps":[{"column":"Price","kind":"geo"}]}`}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "REC002",
		},
		{
			name:       "duplicate header",
			target:     "/api/build",
			parts:      []formPart{{"file", "dup.csv", "a,a\n1,2\n"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "TBL001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)

			rec := serve(srv, multipartRequest(t, tt.target, tt.parts...))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestPass_NotMultipart(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/build", strings.NewReader("Price\n1\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := serve(srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE002", decodeError(t, rec).Code)
}

func TestPass_TooLarge(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.MaxUploadBytes = 64 })

	big := "Price\n" + strings.Repeat("1\n", 200)
	rec := serve(srv, multipartRequest(t, "/api/build", formPart{"file", "big.csv", big}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestPass_Busy(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.MaxConcurrent = 1
		o.MaxWait = 10 * time.Millisecond
	})
	require.True(t, srv.Limiter().TryAcquire())
	defer srv.Limiter().Release()

	rec := serve(srv, multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PASS001", decodeError(t, rec).Code)

	metricsRec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), "mlready_rejected_passes_total 1")
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.APIKeys = []string{"k1"} })

	rec := serve(srv, multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV})
	req.Header.Set("X-API-Key", "k1")
	rec = serve(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	serve(srv, multipartRequest(t, "/api/build", formPart{"file", "prices.csv", priceCSV}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mlready_passes_total{mode="build",outcome="ok"} 1`)
}

type fakeDB struct {
	ddl    []string
	table  pgx.Identifier
	copied int64
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.ddl = append(f.ddl, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) CopyFrom(_ context.Context, name pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	f.table = name
	for src.Next() {
		if _, err := src.Values(); err != nil {
			return f.copied, err
		}
		f.copied++
	}
	return f.copied, src.Err()
}

func TestBuild_Load(t *testing.T) {
	db := &fakeDB{}
	srv := newTestServer(t, func(o *Options) { o.DB = db })

	rec := serve(srv, multipartRequest(t, "/api/build",
		formPart{"file", "prices.csv", priceCSV},
		formPart{field: "load", body: "staging.prices"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	reply := decodeReply(t, rec)
	require.NotNil(t, reply.LoadedRows)
	assert.Equal(t, int64(2), *reply.LoadedRows)
	assert.Equal(t, pgx.Identifier{"staging", "prices"}, db.table)
	require.Len(t, db.ddl, 1)
	assert.Contains(t, db.ddl[0], `"staging"."prices"`)
}
