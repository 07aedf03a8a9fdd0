// Package resolve matches user-typed workspace and repository names against
// the names the server knows.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Named is a repository item with its file name and optional display title.
type Named struct {
	Name  string
	Title string
}

// Match is a fuzzy match result with score.
type Match struct {
	Name  string
	Title string
	Score int
}

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrEmptyItems = errors.New("no items to match against")
)

// AmbiguousError indicates multiple candidates matched equally well.
type AmbiguousError struct {
	Query   string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous match for %q", e.Query)
	if len(e.Matches) > 0 {
		b.WriteString(", candidates:")
		for _, m := range e.Matches {
			_, _ = fmt.Fprintf(&b, "\n  %s", m.Name)
			if m.Title != "" {
				_, _ = fmt.Fprintf(&b, " (%s)", m.Title)
			}
		}
	}
	return b.String()
}

// NotFoundError is returned when nothing matches. Suggestions holds the
// closest names, if any.
type NotFoundError struct {
	Query       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no match found for %q", e.Query)
	}
	return fmt.Sprintf("no match found for %q; did you mean %s?", e.Query, strings.Join(e.Suggestions, ", "))
}

type namedSource []Named

func (s namedSource) String(i int) string { return strings.ToLower(s[i].Name) }
func (s namedSource) Len() int            { return len(s) }

// FuzzyMatch finds the best matching item and returns its Name.
//
// Exact case-insensitive matches on Name win, then exact matches on Name
// without its ".fmw" extension, then exact Title matches. Otherwise the
// fuzzy ranking decides; a tie between the top two is an *AmbiguousError.
func FuzzyMatch(query string, items []Named) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len(items) == 0 {
		return "", ErrEmptyItems
	}

	for _, item := range items {
		if strings.EqualFold(item.Name, query) {
			return item.Name, nil
		}
	}
	for _, item := range items {
		if strings.EqualFold(strings.TrimSuffix(item.Name, ".fmw"), query) {
			return item.Name, nil
		}
	}
	for _, item := range items {
		if item.Title != "" && strings.EqualFold(item.Title, query) {
			return item.Name, nil
		}
	}

	results := fuzzy.FindFrom(strings.ToLower(query), namedSource(items))
	if len(results) == 0 {
		return "", &NotFoundError{Query: query}
	}
	if len(results) > 1 && results[0].Score == results[1].Score {
		return "", &AmbiguousError{
			Query:   query,
			Matches: buildMatches(items, results, 5),
		}
	}
	return items[results[0].Index].Name, nil
}

// FuzzyMatchAll returns up to limit matches ranked by score (best first).
func FuzzyMatchAll(query string, items []Named, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || len(items) == 0 || limit <= 0 {
		return nil
	}
	return buildMatches(items, fuzzy.FindFrom(strings.ToLower(query), namedSource(items)), limit)
}

// Suggest returns up to limit names that fuzzily match query, for use in
// not-found errors.
func Suggest(query string, items []Named, limit int) []string {
	matches := FuzzyMatchAll(query, items, limit)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return names
}

func buildMatches(items []Named, results fuzzy.Matches, limit int) []Match {
	if len(results) == 0 || limit <= 0 {
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Name:  items[r.Index].Name,
			Title: items[r.Index].Title,
			Score: r.Score,
		}
	}
	return matches
}
