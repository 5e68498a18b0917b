package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
	service "royalty-reconciliation-backend/internal/services/reconciliation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// CatalogBrowser is the read side of the works catalog.
type CatalogBrowser interface {
	SearchWorks(ctx context.Context, query string, limit int) ([]models.Work, error)
	GetByID(ctx context.Context, id string) (*models.Work, error)
}

// CommitAuditor exposes the commit log.
type CommitAuditor interface {
	CommitHistory(ctx context.Context, key string) ([]models.CommitLog, error)
}

type Deps struct {
	Service        *service.ReconciliationService
	Catalog        CatalogBrowser
	Audit          CommitAuditor
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type ReconciliationHandler struct {
	service        *service.ReconciliationService
	catalog        CatalogBrowser
	audit          CommitAuditor
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewReconciliationHandler(d Deps) *ReconciliationHandler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 32 << 20
	}
	return &ReconciliationHandler{
		service:        d.Service,
		catalog:        d.Catalog,
		audit:          d.Audit,
		maxUploadBytes: d.MaxUploadBytes,
		logger:         d.Logger,
	}
}

// respondError writes {"error": code, "message": ..., "details": ...}.
func (h *ReconciliationHandler) respondError(c *gin.Context, err error) {
	var derr *domainerrors.Error
	if !errors.As(err, &derr) {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		derr = domainerrors.ErrInternal
	} else if derr.Code == domainerrors.CodeInternal || derr.Code == domainerrors.CodeImportFailed {
		h.logger.Error("request failed", "path", c.FullPath(), "code", derr.Code, "error", err)
	}

	body := gin.H{"error": derr.Code, "message": derr.Message}
	if derr.Details != nil {
		body["details"] = derr.Details
	}
	c.JSON(derr.Code.HTTPStatus(), body)
}

func sessionID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return uuid.Nil, domainerrors.Validationf("invalid session ID %q", c.Param("sessionId"))
	}
	return id, nil
}

func (h *ReconciliationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Upload parses, validates and maps a statement into a new staging session.
func (h *ReconciliationHandler) Upload(c *gin.Context) {
	tooLarge := func() {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   domainerrors.CodeValidation,
			"message": "statement file exceeds the upload limit",
		})
	}
	if c.Request.ContentLength > h.maxUploadBytes {
		tooLarge()
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge()
			return
		}
		h.respondError(c, domainerrors.Validationf("file required"))
		return
	}
	defer file.Close()

	h.logger.Info("statement received", "filename", header.Filename, "size", header.Size)

	summary, err := h.service.Stage(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *ReconciliationHandler) GetSession(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	summary, err := h.service.Summary(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type listQuery struct {
	service.Filter
	Offset int `form:"offset" binding:"omitempty,min=0"`
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ListRecords returns one page of the filtered staging table.
func (h *ReconciliationHandler) ListRecords(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, domainerrors.Validationf("invalid query: %v", err))
		return
	}
	if q.Status != "" && !q.Status.Valid() {
		h.respondError(c, domainerrors.Validationf("unknown match status %q", q.Status))
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	items, total, err := h.service.Records(id, q.Filter, q.Offset, q.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	next := q.Offset + len(items)
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       total,
		"offset":      q.Offset,
		"next_offset": next,
		"has_more":    next < total,
	})
}

func (h *ReconciliationHandler) ToggleRecord(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.respondError(c, domainerrors.Validationf("invalid record index %q", c.Param("index")))
		return
	}

	selected, stats, err := h.service.Toggle(id, index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "selected": selected, "stats": stats})
}

func (h *ReconciliationHandler) UpdateSelection(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req service.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, domainerrors.Validationf("invalid payload: %v", err))
		return
	}

	stats, err := h.service.Select(id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Commit folds the selection into one ledger batch. The body is optional.
func (h *ReconciliationHandler) Commit(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req service.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, domainerrors.Validationf("invalid payload: %v", err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			h.respondError(c, domainerrors.Validationf("invalid Idempotency-Key header: %v", err))
			return
		}
	}

	batch, err := h.service.Commit(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *ReconciliationHandler) Export(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	filename, err := h.service.Export(id, &buf)
	if err != nil {
		h.respondError(c, err)
		return
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	c.Header("Content-Disposition", `attachment; filename="`+base+`-selected.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *ReconciliationHandler) Residue(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	items, err := h.service.Residue(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *ReconciliationHandler) Discard(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.service.Discard(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, domainerrors.Validationf("invalid batch ID %q", c.Param("id")))
		return
	}
	batch, err := h.service.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *ReconciliationHandler) CommitHistory(c *gin.Context) {
	if h.audit == nil {
		h.respondError(c, domainerrors.NotFoundf("commit log not available"))
		return
	}
	logs, err := h.audit.CommitHistory(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(logs) == 0 {
		h.respondError(c, domainerrors.NotFoundf("no commits for key %q", c.Param("key")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

func (h *ReconciliationHandler) ReloadCatalog(c *gin.Context) {
	if err := h.service.ReloadCatalog(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "catalog reloaded"})
}

func (h *ReconciliationHandler) SearchWorks(c *gin.Context) {
	if h.catalog == nil {
		h.respondError(c, domainerrors.NotFoundf("catalog not available"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		h.respondError(c, domainerrors.Validationf("limit must be between 1 and %d", maxPageSize))
		return
	}
	works, err := h.catalog.SearchWorks(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": works})
}

func (h *ReconciliationHandler) GetWork(c *gin.Context) {
	if h.catalog == nil {
		h.respondError(c, domainerrors.NotFoundf("catalog not available"))
		return
	}
	work, err := h.catalog.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, work)
}
