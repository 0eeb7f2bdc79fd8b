// Package heuristics collapses URL families onto canonical hosts, so
// the same social account on m.facebook.com and www.facebook.com keys a
// single domain row.
package heuristics

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/store"
)

// excludedSegments lists per-host first path segments that identify
// content rather than an account; URLs under them keep the plain host.
var excludedSegments = map[string]map[string]bool{
	"facebook.com":    {"permalink.php": true, "notes": true},
	"twitter.com":     {"hashtag": true, "search": true, "home": true, "share": true},
	"youtube.com":     {"watch": true},
	"dailymotion.com": {"video": true},
	"pinterest.com":   {"pin": true},
}

type rule struct {
	suffix string
	re     *regexp.Regexp
}

// Normalizer applies an ordered list of host-normalization rules.
type Normalizer struct {
	rules []rule
}

// New compiles a suffix-to-pattern table. Rules apply in sorted suffix
// order so runs are deterministic regardless of map iteration.
func New(table map[string]string) (*Normalizer, error) {
	suffixes := make([]string, 0, len(table))
	for suffix := range table {
		suffixes = append(suffixes, suffix)
	}
	sort.Strings(suffixes)

	n := &Normalizer{}
	for _, suffix := range suffixes {
		re, err := regexp.Compile(table[suffix])
		if err != nil {
			return nil, fmt.Errorf("heuristic %q: %w", suffix, err)
		}
		n.rules = append(n.rules, rule{suffix: suffix, re: re})
	}
	return n, nil
}

// DomainName returns the canonical domain of a URL: the plain host, or
// the heuristic capture (host plus account path) for known families.
func (n *Normalizer) DomainName(rawURL string) string {
	host := hostOf(rawURL)
	name := host
	for _, r := range n.rules {
		if !strings.HasSuffix(host, r.suffix) {
			continue
		}
		m := r.re.FindStringSubmatch(rawURL)
		if len(m) < 2 {
			continue
		}
		candidate := strings.TrimRight(m[1], "/?")
		if excluded(r.suffix, candidate) {
			continue
		}
		name = candidate
	}
	return name
}

func excluded(suffix, candidate string) bool {
	table := excludedSegments[suffix]
	if table == nil {
		return false
	}
	_, path, found := strings.Cut(candidate, "/")
	if !found {
		return false
	}
	segment, _, _ := strings.Cut(path, "/")
	return table[segment]
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Store is the persistence surface of the updater.
type Store interface {
	ListAllExpressions(ctx context.Context) ([]store.Expression, error)
	DomainNameByID(ctx context.Context, id int64) (string, error)
	RekeyExpressionDomain(ctx context.Context, expressionID int64, host string) error
}

// Update re-keys every expression whose canonical domain differs from
// its current one, creating missing domains. Returns the number of
// expressions re-keyed.
func (n *Normalizer) Update(ctx context.Context, st Store, log *zap.Logger) (int, error) {
	expressions, err := st.ListAllExpressions(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, e := range expressions {
		canonical := n.DomainName(e.URL)
		current, err := st.DomainNameByID(ctx, e.DomainID)
		if err != nil {
			return updated, err
		}
		if canonical == current {
			continue
		}
		if err := st.RekeyExpressionDomain(ctx, e.ID, canonical); err != nil {
			return updated, err
		}
		log.Debug("expression re-keyed",
			zap.Int64("expression", e.ID),
			zap.String("from", current), zap.String("to", canonical))
		updated++
	}
	return updated, nil
}
