package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	handler "royalty-reconciliation-backend/internal/handlers"
	"royalty-reconciliation-backend/internal/models"
	"royalty-reconciliation-backend/internal/repository"
	"royalty-reconciliation-backend/internal/routes"
	service "royalty-reconciliation-backend/internal/services/reconciliation"
)

const statementCSV = `Song Title,Work ID,ISWC,Participant Name,Share %,Role,Source,Usage Type,Period,Amount,Payment Date
Test Song 1,BMI001,,John Doe Music,50,W,R,PERF,03/2024,12.50,2024-06-15
Known Title,UNKNOWN1,,Stranger,100,P,TV,MECH,04/2024,7.25,2024-06-15
,BMI003,,Nobody,100,W,R,PERF,04/2024,abc,2024-06-15
`

type env struct {
	router *gin.Engine
	db     *gorm.DB
}

func newEnv(t *testing.T, maxUpload int64) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))

	require.NoError(t, db.Create(&[]models.Work{
		{ID: "w-1", Title: "Test Song 1", ExternalID: "BMI001"},
		{ID: "w-2", Title: "Known Title", ExternalID: "BMI002"},
	}).Error)
	require.NoError(t, db.Create(&[]models.Client{{ID: "c-1", Name: "John Doe Music"}}).Error)

	catalog := repository.NewCatalog(db)
	ledger := repository.NewBatchRepository(db)
	svc := service.NewReconciliationService(nil, catalog, ledger, service.Options{})
	require.NoError(t, svc.ReloadCatalog(context.Background()))

	h := handler.NewReconciliationHandler(handler.Deps{
		Service:        svc,
		Catalog:        catalog,
		Audit:          ledger,
		MaxUploadBytes: maxUpload,
	})
	r := gin.New()
	routes.Mount(r.Group("/api"), h)
	return &env{router: r, db: db}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/staging/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) stage(t *testing.T) string {
	t.Helper()
	w := e.upload(t, "march.csv", statementCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["session_id"].(string)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUpload(t *testing.T) {
	e := newEnv(t, 0)

	w := e.upload(t, "march.csv", statementCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 1, stats["matched"])
	assert.EqualValues(t, 1, stats["unmatched"])
	invalid := body["invalid_rows"].([]any)
	require.Len(t, invalid, 1)
	assert.EqualValues(t, 4, invalid[0].(map[string]any)["line"])
}

func TestUpload_Errors(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodPost, "/api/staging/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.upload(t, "empty.csv", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE", decode(t, w)["error"])

	w = e.upload(t, "bad.csv", "Colour,Shape\nred,round\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE", decode(t, w)["error"])

	small := newEnv(t, 64)
	w = small.upload(t, "march.csv", statementCSV)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestReviewAndCommitFlow(t *testing.T) {
	e := newEnv(t, 0)
	id := e.stage(t)
	base := "/api/staging/" + id

	w := e.do(t, http.MethodGet, base+"/records?status=matched", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode(t, w)
	assert.EqualValues(t, 1, page["total"])
	assert.Equal(t, false, page["has_more"])

	w = e.do(t, http.MethodGet, base+"/records?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, base+"/commit", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_SELECTION", decode(t, w)["error"])

	w = e.do(t, http.MethodPost, base+"/records/0/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["selected"])

	w = e.do(t, http.MethodPost, base+"/selection", map[string]any{"all": true, "selected": true, "q": "known"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["stats"].(map[string]any)["selected"])

	w = e.do(t, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "march-selected.csv")
	assert.Equal(t, 3, strings.Count(w.Body.String(), "\n"))

	w = e.do(t, http.MethodPost, base+"/commit", map[string]any{"idempotency_key": "k-1", "notes": "March"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	batch := decode(t, w)
	assert.Equal(t, "19.75", batch["total_gross_amount"])
	assert.Equal(t, models.BatchStatusImported, batch["status"])
	batchID := batch["id"].(string)

	w = e.do(t, http.MethodGet, "/api/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["line_items"], 2)

	w = e.do(t, http.MethodGet, "/api/commits/k-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = e.do(t, http.MethodPost, base+"/commit", map[string]any{"indices": []int{0}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_COMMITTED", decode(t, w)["error"])

	w = e.do(t, http.MethodGet, base+"/residue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["total"])

	w = e.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommit_IdempotencyKeyHeader(t *testing.T) {
	e := newEnv(t, 0)
	base := "/api/staging/" + e.stage(t)

	commit := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, base+"/commit", strings.NewReader(`{"indices":[0]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		return w
	}

	w := commit(strings.Repeat("k", 65))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decode(t, w)["error"])

	var logs int64
	require.NoError(t, e.db.Model(&models.CommitLog{}).Count(&logs).Error)
	assert.Zero(t, logs)

	w = commit("hdr-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "hdr-1", decode(t, w)["idempotency_key"])

	other := "/api/staging/" + e.stage(t)
	req := httptest.NewRequest(http.MethodPost, other+"/commit", strings.NewReader(`{"indices":[0]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "hdr-1")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", decode(t, w)["error"])
}

func TestBadIdentifiers(t *testing.T) {
	e := newEnv(t, 0)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/staging/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(t, http.MethodGet, "/api/staging/6f1c3f0e-8a0b-4c55-9d7e-2f3a4b5c6d7e", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/batches/xyz", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(t, http.MethodGet, "/api/batches/6f1c3f0e-8a0b-4c55-9d7e-2f3a4b5c6d7e", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/commits/none", nil).Code)

	id := e.stage(t)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/staging/"+id+"/records/x/toggle", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/staging/"+id+"/records/99/toggle", nil).Code)
}

func TestCatalogRoutes(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodGet, "/api/catalog/works?q=known", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "w-2", items[0].(map[string]any)["id"])

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/catalog/works?limit=0", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/catalog/works/w-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/catalog/works/w-9", nil).Code)

	require.NoError(t, e.db.Create(&models.Client{ID: "c-2", Name: "Stranger"}).Error)
	w = e.do(t, http.MethodPost, "/api/catalog/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	up := e.upload(t, "march.csv", statementCSV)
	require.Equal(t, http.StatusCreated, up.Code)
	stats := decode(t, up)["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["partial"])
	assert.EqualValues(t, 0, stats["unmatched"])
}
