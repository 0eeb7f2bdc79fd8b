// Package memstore is an in-memory implementation of the persistence
// layer, used by pipeline and refiner tests in place of Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mywebintelligence/mwi/internal/store"
)

type link struct {
	source, target int64
}

// Store keeps every entity in maps guarded by one mutex. Method
// signatures mirror the Postgres store so consumers can accept either
// behind their own interfaces.
type Store struct {
	mu sync.Mutex

	nextLand, nextWord, nextDomain, nextExpr, nextMedia int64

	lands       map[int64]store.Land
	words       map[int64]store.Word
	dictionary  map[int64]map[int64]bool // land id -> word ids
	domains     map[int64]store.Domain
	expressions map[int64]store.Expression
	links       map[link]bool
	media       map[int64]store.Media
}

func New() *Store {
	return &Store{
		lands:       map[int64]store.Land{},
		words:       map[int64]store.Word{},
		dictionary:  map[int64]map[int64]bool{},
		domains:     map[int64]store.Domain{},
		expressions: map[int64]store.Expression{},
		links:       map[link]bool{},
		media:       map[int64]store.Media{},
	}
}

func (s *Store) Close() {}

func (s *Store) CreateLand(_ context.Context, name, description, lang string) (store.Land, error) {
	if lang == "" {
		lang = "fr"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lands {
		if l.Name == name {
			return store.Land{}, fmt.Errorf("land %q: %w", name, store.ErrConflict)
		}
	}
	s.nextLand++
	l := store.Land{ID: s.nextLand, Name: name, Description: description, Lang: lang, CreatedAt: time.Now().UTC()}
	s.lands[l.ID] = l
	return l, nil
}

func (s *Store) GetLand(_ context.Context, name string) (store.Land, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lands {
		if l.Name == name {
			return l, nil
		}
	}
	return store.Land{}, fmt.Errorf("land %q: %w", name, store.ErrNotFound)
}

func (s *Store) ListLands(ctx context.Context, name string) ([]store.LandSummary, error) {
	s.mu.Lock()
	var lands []store.Land
	for _, l := range s.lands {
		if name == "" || l.Name == name {
			lands = append(lands, l)
		}
	}
	s.mu.Unlock()
	sort.Slice(lands, func(i, j int) bool { return lands[i].Name < lands[j].Name })

	var out []store.LandSummary
	for _, l := range lands {
		terms, err := s.LandTerms(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		sum := store.LandSummary{Land: l, Terms: terms}
		s.mu.Lock()
		for _, e := range s.expressions {
			if e.LandID != l.ID {
				continue
			}
			sum.ExpressionCount++
			if e.FetchedAt == nil {
				sum.RemainingToCrawl++
			}
		}
		s.mu.Unlock()
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) DeleteLand(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.lands {
		if l.Name != name {
			continue
		}
		delete(s.lands, id)
		delete(s.dictionary, id)
		for eid, e := range s.expressions {
			if e.LandID == id {
				s.removeExpressionLocked(eid)
			}
		}
		return nil
	}
	return fmt.Errorf("land %q: %w", name, store.ErrNotFound)
}

func (s *Store) DeleteExpressionsBelowRelevance(_ context.Context, landID int64, maxRelevance float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.expressions {
		if e.LandID == landID && float64(e.Relevance) < maxRelevance {
			s.removeExpressionLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) removeExpressionLocked(id int64) {
	delete(s.expressions, id)
	for l := range s.links {
		if l.source == id || l.target == id {
			delete(s.links, l)
		}
	}
	for mid, m := range s.media {
		if m.ExpressionID == id {
			delete(s.media, mid)
		}
	}
}

func (s *Store) AddWordIfAbsent(_ context.Context, term, lemma string) (store.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.words {
		if w.Term == term {
			return w, nil
		}
	}
	s.nextWord++
	w := store.Word{ID: s.nextWord, Term: term, Lemma: lemma}
	s.words[w.ID] = w
	return w, nil
}

func (s *Store) LinkLandWord(_ context.Context, landID, wordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dictionary[landID] == nil {
		s.dictionary[landID] = map[int64]bool{}
	}
	s.dictionary[landID][wordID] = true
	return nil
}

func (s *Store) LandLemmas(_ context.Context, landID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for wid := range s.dictionary[landID] {
		lemma := s.words[wid].Lemma
		if !seen[lemma] {
			seen[lemma] = true
			out = append(out, lemma)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) LandTerms(_ context.Context, landID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for wid := range s.dictionary[landID] {
		out = append(out, s.words[wid].Term)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GetOrCreateDomain(_ context.Context, host string) (store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.domains {
		if d.Name == host {
			return d, nil
		}
	}
	s.nextDomain++
	d := store.Domain{ID: s.nextDomain, Name: host, CreatedAt: time.Now().UTC()}
	s.domains[d.ID] = d
	return d, nil
}

func (s *Store) SaveDomain(_ context.Context, d store.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[d.ID]; !ok {
		return fmt.Errorf("domain %d: %w", d.ID, store.ErrNotFound)
	}
	s.domains[d.ID] = d
	return nil
}

func (s *Store) ListDomainsToCrawl(_ context.Context, limit int, httpFilter string) ([]store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Domain
	for _, d := range s.domains {
		if httpFilter != "" {
			if d.HTTPStatus == httpFilter {
				out = append(out, d)
			}
		} else if d.FetchedAt == nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RekeyExpressionDomain(ctx context.Context, expressionID int64, host string) error {
	d, err := s.GetOrCreateDomain(ctx, host)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expressions[expressionID]
	if !ok {
		return fmt.Errorf("expression %d: %w", expressionID, store.ErrNotFound)
	}
	e.DomainID = d.ID
	s.expressions[expressionID] = e
	return nil
}

func (s *Store) DomainNameByID(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[id]
	if !ok {
		return "", fmt.Errorf("domain %d: %w", id, store.ErrNotFound)
	}
	return d.Name, nil
}

func (s *Store) UpsertExpression(_ context.Context, landID, domainID int64, url string, depth int) (store.Expression, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.expressions {
		if e.URL == url {
			if depth < e.Depth {
				e.Depth = depth
				s.expressions[id] = e
			}
			return e, false, nil
		}
	}
	s.nextExpr++
	e := store.Expression{
		ID: s.nextExpr, LandID: landID, DomainID: domainID,
		URL: url, Depth: depth, CreatedAt: time.Now().UTC(),
	}
	s.expressions[e.ID] = e
	return e, true, nil
}

func (s *Store) GetExpressionByURL(_ context.Context, url string) (store.Expression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expressions {
		if e.URL == url {
			return e, nil
		}
	}
	return store.Expression{}, fmt.Errorf("expression %q: %w", url, store.ErrNotFound)
}

func (s *Store) GetExpression(_ context.Context, id int64) (store.Expression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expressions[id]
	if !ok {
		return store.Expression{}, fmt.Errorf("expression %d: %w", id, store.ErrNotFound)
	}
	return e, nil
}

func (s *Store) SaveExpression(_ context.Context, e store.Expression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expressions[e.ID]; !ok {
		return fmt.Errorf("expression %d: %w", e.ID, store.ErrNotFound)
	}
	s.expressions[e.ID] = e
	return nil
}

func (s *Store) selectExpressions(q store.ExpressionQuery, keep func(store.Expression) bool) []store.Expression {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Expression
	for _, e := range s.expressions {
		if e.LandID != q.LandID || !keep(e) {
			continue
		}
		if q.MaxDepth != nil && e.Depth > *q.MaxDepth {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *Store) ListExpressionsToCrawl(_ context.Context, q store.ExpressionQuery) ([]store.Expression, error) {
	if q.HTTPFilter != "" {
		return s.selectExpressions(q, func(e store.Expression) bool {
			return e.HTTPStatus == q.HTTPFilter
		}), nil
	}
	return s.selectExpressions(q, func(e store.Expression) bool {
		return e.FetchedAt == nil
	}), nil
}

func (s *Store) ListExpressionsForReadable(_ context.Context, q store.ExpressionQuery) ([]store.Expression, error) {
	return s.selectExpressions(q, func(e store.Expression) bool {
		return e.FetchedAt != nil && e.ReadableAt == nil
	}), nil
}

func (s *Store) ListExpressionsForConsolidation(_ context.Context, q store.ExpressionQuery) ([]store.Expression, error) {
	return s.selectExpressions(q, func(e store.Expression) bool {
		return e.FetchedAt != nil
	}), nil
}

func (s *Store) ListExpressionsWithReadable(_ context.Context, landID int64) ([]store.Expression, error) {
	return s.selectExpressions(store.ExpressionQuery{LandID: landID}, func(e store.Expression) bool {
		return e.Readable != ""
	}), nil
}

func (s *Store) ListAllExpressions(_ context.Context) ([]store.Expression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Expression
	for _, e := range s.expressions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddLink(_ context.Context, sourceID, targetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link{sourceID, targetID}] = true
	return nil
}

func (s *Store) DeleteLinksFrom(_ context.Context, sourceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.links {
		if l.source == sourceID {
			delete(s.links, l)
		}
	}
	return nil
}

func (s *Store) OutboundLinkCount(_ context.Context, sourceID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for l := range s.links {
		if l.source == sourceID {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertMedia(_ context.Context, expressionID int64, url, kind string) (store.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.media {
		if m.ExpressionID == expressionID && m.URL == url && m.Kind == kind {
			return m, nil
		}
	}
	s.nextMedia++
	m := store.Media{ID: s.nextMedia, ExpressionID: expressionID, URL: url, Kind: kind}
	s.media[m.ID] = m
	return m, nil
}

func (s *Store) SaveMedia(_ context.Context, m store.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[m.ID]; !ok {
		return fmt.Errorf("media %d: %w", m.ID, store.ErrNotFound)
	}
	s.media[m.ID] = m
	return nil
}

func (s *Store) ListMediaForAnalysis(_ context.Context, f store.MediaFilter) ([]store.Media, error) {
	kind := f.Kind
	if kind == "" {
		kind = store.MediaKindImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Media
	for _, m := range s.media {
		if m.Kind != kind {
			continue
		}
		e, ok := s.expressions[m.ExpressionID]
		if !ok || e.LandID != f.LandID {
			continue
		}
		if f.MaxDepth > 0 && e.Depth > f.MaxDepth {
			continue
		}
		if f.MinRelevance > 0 && e.Relevance < f.MinRelevance {
			continue
		}
		if !f.Reanalyze && m.AnalyzedAt != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) DeleteMedia(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.media[id]; ok {
			delete(s.media, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteMediaForExpression(_ context.Context, expressionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.media {
		if m.ExpressionID == expressionID {
			delete(s.media, id)
		}
	}
	return nil
}

// MediaForExpression reports the recorded media of an expression; test
// helper with no Postgres counterpart.
func (s *Store) MediaForExpression(expressionID int64) []store.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Media
	for _, m := range s.media {
		if m.ExpressionID == expressionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links reports every recorded edge; test helper.
func (s *Store) Links() map[[2]int64]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[[2]int64]bool{}
	for l := range s.links {
		out[[2]int64{l.source, l.target}] = true
	}
	return out
}
