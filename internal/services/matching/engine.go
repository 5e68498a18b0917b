package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"royalty-reconciliation-backend/internal/models"
)

const (
	NewWorkPrefix = "NEW-"

	suggestionThreshold = 0.8
	maxSuggestions      = 3
)

//nolint:gochecknoglobals // unit substitution cost, unlike levenshtein.DefaultOptions
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Catalog is the read-only source of works and clients.
type Catalog interface {
	ListWorks(ctx context.Context) ([]models.Work, error)
	ListClients(ctx context.Context) ([]models.Client, error)
}

type cachedWork struct {
	work      models.Work
	normTitle string
}

// Engine resolves statement lines against an immutable snapshot of the catalog.
// It is safe for concurrent use once built.
type Engine struct {
	byExternalID map[string]*cachedWork
	byISWC       map[string]*cachedWork
	byTitle      map[string]*cachedWork
	works        []*cachedWork
	clients      map[string]models.Client
	clientsByID  map[string]models.Client
}

// NewEngine indexes the snapshot. When two works share a key the one listed first wins,
// so callers should pass a stable order.
func NewEngine(works []models.Work, clients []models.Client) *Engine {
	e := &Engine{
		byExternalID: make(map[string]*cachedWork, len(works)),
		byISWC:       make(map[string]*cachedWork, len(works)),
		byTitle:      make(map[string]*cachedWork, len(works)),
		works:        make([]*cachedWork, 0, len(works)),
		clients:      make(map[string]models.Client, len(clients)),
		clientsByID:  make(map[string]models.Client, len(clients)),
	}

	for _, w := range works {
		cached := &cachedWork{work: w, normTitle: Normalize(w.Title)}
		e.works = append(e.works, cached)

		if id := strings.TrimSpace(w.ExternalID); id != "" {
			if _, ok := e.byExternalID[id]; !ok {
				e.byExternalID[id] = cached
			}
		}
		if iswc := strings.TrimSpace(w.ISWC); iswc != "" {
			if _, ok := e.byISWC[iswc]; !ok {
				e.byISWC[iswc] = cached
			}
		}
		if cached.normTitle != "" {
			if _, ok := e.byTitle[cached.normTitle]; !ok {
				e.byTitle[cached.normTitle] = cached
			}
		}
	}

	for _, c := range clients {
		e.clientsByID[c.ID] = c
		if norm := Normalize(c.Name); norm != "" {
			if _, ok := e.clients[norm]; !ok {
				e.clients[norm] = c
			}
		}
	}
	return e
}

// Load builds an engine from the catalog.
func Load(ctx context.Context, catalog Catalog, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	works, err := catalog.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load works: %w", err)
	}
	clients, err := catalog.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}

	e := NewEngine(works, clients)
	logger.Info("catalog snapshot loaded",
		"works", len(works),
		"clients", len(clients),
		"external_ids", len(e.byExternalID),
	)
	return e, nil
}

// MatchWork resolves a statement work. The first rule that hits wins:
//  1. external work id (matched)
//  2. ISWC, when present (matched)
//  3. normalized title equality (partial)
//  4. otherwise unmatched with a NEW- placeholder id
func (e *Engine) MatchWork(externalWorkID, title, iswc string) models.MatchResult {
	externalWorkID = strings.TrimSpace(externalWorkID)
	iswc = strings.TrimSpace(iswc)

	if cached, ok := e.byExternalID[externalWorkID]; ok {
		return models.MatchResult{
			TargetID:    cached.work.ID,
			Status:      models.MatchStatusMatched,
			Explanation: "matched by work ID " + externalWorkID,
		}
	}

	if iswc != "" {
		if cached, ok := e.byISWC[iswc]; ok {
			return models.MatchResult{
				TargetID:    cached.work.ID,
				Status:      models.MatchStatusMatched,
				Explanation: "matched by ISWC " + iswc,
			}
		}
	}

	normTitle := Normalize(title)
	if normTitle != "" {
		if cached, ok := e.byTitle[normTitle]; ok {
			return models.MatchResult{
				TargetID:    cached.work.ID,
				Status:      models.MatchStatusPartial,
				Explanation: fmt.Sprintf("title match on %q, verify before import", strings.TrimSpace(title)),
			}
		}
	}

	newID := NewWorkPrefix + externalWorkID
	return models.MatchResult{
		TargetID:    newID,
		Status:      models.MatchStatusUnmatched,
		Explanation: fmt.Sprintf("no work match, new work %s will be created", newID),
		Suggestions: e.suggestWorks(normTitle),
	}
}

// MatchClient resolves a payee by normalized name. There is no partial tier.
func (e *Engine) MatchClient(rawName string) models.MatchResult {
	name := strings.TrimSpace(rawName)
	if norm := Normalize(name); norm != "" {
		if c, ok := e.clients[norm]; ok {
			return models.MatchResult{
				TargetID:    c.ID,
				Status:      models.MatchStatusMatched,
				Explanation: fmt.Sprintf("matched client %q", c.Name),
			}
		}
	}
	return models.MatchResult{
		Status:      models.MatchStatusUnmatched,
		Explanation: fmt.Sprintf("no client match, %q will be created as a new client", name),
	}
}

// ClientName returns the catalog spelling for a matched client id.
func (e *Engine) ClientName(id string) (string, bool) {
	c, ok := e.clientsByID[id]
	return c.Name, ok
}

// suggestWorks lists near-miss titles. Suggestions never change a match status.
func (e *Engine) suggestWorks(normTitle string) []models.Suggestion {
	if normTitle == "" {
		return nil
	}

	var out []models.Suggestion
	for _, cached := range e.works {
		if cached.normTitle == "" {
			continue
		}
		score := similarity(normTitle, cached.normTitle)
		if score < suggestionThreshold {
			continue
		}
		out = append(out, models.Suggestion{
			TargetID: cached.work.ID,
			Label:    cached.work.Title,
			Score:    score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TargetID < out[j].TargetID
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// similarity is 1 - editDistance/maxLen over runes, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return 1 - float64(dist)/float64(maxLen)
}

// Normalize lower-cases s, drops every rune that is not a letter, digit or
// whitespace, and trims the ends.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
