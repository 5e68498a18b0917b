package reconciliation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
	"royalty-reconciliation-backend/internal/services/codetables"
	"royalty-reconciliation-backend/internal/services/export"
	"royalty-reconciliation-backend/internal/services/mapping"
	"royalty-reconciliation-backend/internal/services/matching"
	"royalty-reconciliation-backend/internal/services/period"
	"royalty-reconciliation-backend/internal/services/statement"
)

const DefaultSessionTTL = 12 * time.Hour

// Session is one uploaded statement under review.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.Mutex
	staging   *Staging
	parse     *statement.ParseResult
	touchedAt time.Time
}

// Summary is what the operator sees after upload and on every refresh.
type Summary struct {
	SessionID uuid.UUID            `json:"session_id"`
	Filename  string               `json:"filename"`
	TotalRows int                  `json:"total_rows"`
	Stats     Stats                `json:"stats"`
	Invalid   []statement.RowError `json:"invalid_rows"`
	CreatedAt time.Time            `json:"created_at"`
}

type SelectionRequest struct {
	Indices  []int `json:"indices"`
	All      bool  `json:"all"`
	Selected bool  `json:"selected"`
	Filter
}

type Options struct {
	Mapping    mapping.Options
	Tables     *codetables.Tables
	Periods    *period.Normalizer
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// ReconciliationService runs the parse, map and commit pipeline and keeps the
// staged sessions in memory.
type ReconciliationService struct {
	parser    *statement.Parser
	catalog   matching.Catalog
	engine    atomic.Pointer[matching.Engine]
	committer *Committer
	ledger    Ledger
	opts      Options
	logger    *slog.Logger

	sessions sync.Map // uuid.UUID -> *Session
}

func NewReconciliationService(
	parser *statement.Parser,
	catalog matching.Catalog,
	ledger Ledger,
	opts Options,
) *ReconciliationService {
	if parser == nil {
		parser = statement.NewParser(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	s := &ReconciliationService{
		parser:    parser,
		catalog:   catalog,
		ledger:    ledger,
		committer: NewCommitter(ledger, opts.Now, opts.Logger),
		opts:      opts,
		logger:    opts.Logger,
	}
	s.engine.Store(matching.NewEngine(nil, nil))
	return s
}

// ReloadCatalog swaps in a fresh matcher snapshot. Sessions staged earlier keep
// the records they were mapped with.
func (s *ReconciliationService) ReloadCatalog(ctx context.Context) error {
	if s.catalog == nil {
		return domainerrors.Validationf("no catalog configured")
	}
	engine, err := matching.Load(ctx, s.catalog, s.logger)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "load catalog")
	}
	s.engine.Store(engine)
	return nil
}

// SetEngine installs a prebuilt snapshot.
func (s *ReconciliationService) SetEngine(e *matching.Engine) {
	s.engine.Store(e)
}

// Stage parses, validates and maps one statement into a new session. Nothing is
// staged when the file itself is unreadable.
func (s *ReconciliationService) Stage(ctx context.Context, filename string, r io.Reader) (*Summary, error) {
	start := s.opts.Now()

	parsed, err := s.parser.Parse(filename, r)
	if err != nil {
		s.logger.Warn("statement rejected", "filename", filename, "error", err)
		return nil, err
	}

	mapper := mapping.New(s.engine.Load(), s.opts.Periods, s.opts.Tables, s.opts.Mapping)
	records, err := mapper.MapAll(ctx, parsed.Valid)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	sess := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		staging:   NewStaging(filename, records),
		parse:     parsed,
		touchedAt: now,
	}
	s.sessions.Store(sess.ID, sess)

	sum := sess.summary()
	s.logger.Info("statement staged",
		"session_id", sess.ID,
		"filename", filename,
		"rows", parsed.TotalRows,
		"invalid", len(parsed.Invalid),
		"matched", sum.Stats.Matched,
		"partial", sum.Stats.Partial,
		"unmatched", sum.Stats.Unmatched,
		"duration", now.Sub(start),
	)
	return &sum, nil
}

func (sess *Session) summary() Summary {
	return Summary{
		SessionID: sess.ID,
		Filename:  sess.staging.Filename(),
		TotalRows: sess.parse.TotalRows,
		Stats:     sess.staging.Stats(),
		Invalid:   sess.parse.Invalid,
		CreatedAt: sess.CreatedAt,
	}
}

// withSession runs fn under the session lock.
func (s *ReconciliationService) withSession(id uuid.UUID, fn func(*Session) error) error {
	v, ok := s.sessions.Load(id)
	if !ok {
		return domainerrors.NotFoundf("staging session %s not found", id)
	}
	sess := v.(*Session)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.opts.Now()
	return fn(sess)
}

func (s *ReconciliationService) Summary(id uuid.UUID) (*Summary, error) {
	var sum Summary
	err := s.withSession(id, func(sess *Session) error {
		sum = sess.summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *ReconciliationService) Records(id uuid.UUID, f Filter, offset, limit int) ([]StagedRecord, int, error) {
	var (
		page  []StagedRecord
		total int
	)
	err := s.withSession(id, func(sess *Session) error {
		page, total = sess.staging.Page(f, offset, limit)
		return nil
	})
	return page, total, err
}

func (s *ReconciliationService) Toggle(id uuid.UUID, index int) (bool, Stats, error) {
	var (
		selected bool
		stats    Stats
	)
	err := s.withSession(id, func(sess *Session) error {
		var err error
		if selected, err = sess.staging.Toggle(index); err != nil {
			return err
		}
		stats = sess.staging.Stats()
		return nil
	})
	return selected, stats, err
}

// Select applies req.Selected to explicit indices, or to every record passing the
// filter when req.All is set.
func (s *ReconciliationService) Select(id uuid.UUID, req SelectionRequest) (Stats, error) {
	var stats Stats
	err := s.withSession(id, func(sess *Session) error {
		if req.All {
			sess.staging.SelectFiltered(req.Filter, req.Selected)
		} else if err := sess.staging.SetSelected(req.Indices, req.Selected); err != nil {
			return err
		}
		stats = sess.staging.Stats()
		return nil
	})
	return stats, err
}

func (s *ReconciliationService) Commit(ctx context.Context, id uuid.UUID, req CommitRequest) (*models.ReconciliationBatch, error) {
	if s.ledger == nil {
		return nil, domainerrors.ImportFailed(domainerrors.Validationf("no ledger configured"))
	}
	var batch *models.ReconciliationBatch
	err := s.withSession(id, func(sess *Session) error {
		var err error
		batch, err = s.committer.Commit(ctx, sess.staging, req)
		return err
	})
	return batch, err
}

// Export writes the selected, uncommitted records as CSV.
func (s *ReconciliationService) Export(id uuid.UUID, w io.Writer) (string, error) {
	var filename string
	err := s.withSession(id, func(sess *Session) error {
		filename = sess.staging.Filename()
		return export.WriteCSV(w, sess.staging.SelectedRecords())
	})
	return filename, err
}

func (s *ReconciliationService) Residue(id uuid.UUID) ([]StagedRecord, error) {
	var out []StagedRecord
	err := s.withSession(id, func(sess *Session) error {
		out = sess.staging.Residue()
		return nil
	})
	return out, err
}

func (s *ReconciliationService) Discard(id uuid.UUID) error {
	if _, ok := s.sessions.LoadAndDelete(id); !ok {
		return domainerrors.NotFoundf("staging session %s not found", id)
	}
	s.logger.Info("staging session discarded", "session_id", id)
	return nil
}

func (s *ReconciliationService) GetBatch(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	if s.ledger == nil {
		return nil, domainerrors.NotFoundf("batch %s not found", id)
	}
	return s.ledger.GetBatch(ctx, id)
}

// Sweep drops sessions idle for longer than the TTL and returns how many it removed.
func (s *ReconciliationService) Sweep() int {
	cutoff := s.opts.Now().Add(-s.opts.SessionTTL)
	removed := 0
	s.sessions.Range(func(key, value any) bool {
		sess := value.(*Session)
		sess.mu.Lock()
		idle := sess.touchedAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			s.sessions.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		s.logger.Info("expired staging sessions swept", "removed", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *ReconciliationService) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
