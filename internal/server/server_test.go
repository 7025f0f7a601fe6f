package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoapps/evotrees/internal/app"
	"github.com/evoapps/evotrees/internal/config"
	"github.com/evoapps/evotrees/internal/core/model"
	"github.com/evoapps/evotrees/internal/driver"
	"github.com/evoapps/evotrees/internal/source"
)

func text(s string) *string { return &s }

func newTestServer(t *testing.T) (*gin.Engine, *driver.MemoryDriver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := driver.NewMemoryDriver()
	src := source.NewStatic().Add("Wren",
		model.RawRevision{ID: 42, Timestamp: time.Unix(0, 0), Text: text("A")},
		model.RawRevision{ID: 43, Timestamp: time.Unix(60, 0), Text: text("B")},
	)
	logger, _ := test.NewNullLogger()
	cfg := config.Defaults()
	cfg.Graph.Backend = "memory"

	a := app.Assemble(cfg, logger, d, src)
	require.NoError(t, a.Importer.BuildSchema(t.Context()))
	return NewServer(a).SetupRouter(), d
}

func post(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestImportArticles(t *testing.T) {
	r, d := newTestServer(t)

	w := post(t, r, "/articles", `{"titles": ["Wren", "Missing"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RunID   string `json:"run_id"`
		Results []struct {
			Title     string `json:"title"`
			Status    string `json:"status"`
			Committed int    `json:"committed"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "imported", resp.Results[0].Status)
	assert.Equal(t, 2, resp.Results[0].Committed)
	assert.Equal(t, "failed", resp.Results[1].Status)
	assert.Contains(t, resp.Results[1].Error, "page not found")

	assert.Equal(t, 2, d.NodeCount(model.LabelRevision))
}

func TestImportArticles_BadRequest(t *testing.T) {
	r, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, post(t, r, "/articles", `{"titles": []}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, r, "/articles", `nope`).Code)
}

func TestApplyQualities(t *testing.T) {
	r, d := newTestServer(t)
	require.Equal(t, http.StatusOK, post(t, r, "/articles", `{"titles": ["Wren"]}`).Code)

	w := post(t, r, "/qualities", `{"scores": {"42": 7.5, "99": 1.0}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"applied": 1, "missing": 1}`, w.Body.String())

	props, ok := d.Node(model.LabelRevision, int64(42))
	require.True(t, ok)
	assert.Equal(t, 7.5, props["quality"])
	_, ok = d.Node(model.LabelRevision, int64(99))
	assert.False(t, ok)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, post(t, r, "/articles", `{"titles": ["Wren"]}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("evotrees_documents_total{status=%q} 1", "imported"))
	assert.Contains(t, w.Body.String(), "evotrees_revisions_total")
}
