package library

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
)

// ErrInvalidQuery means a predicate is structurally malformed. An empty
// result is not an error.
var ErrInvalidQuery = errors.New("invalid query")

type SortKey string

const (
	SortByDate      SortKey = "date"
	SortByName      SortKey = "name"
	SortBySize      SortKey = "size"
	SortByRelevance SortKey = "relevance"
)

// Query is a conjunction of optional predicates. Within the tag predicate an
// asset matches if it holds any of the requested tags; across predicate
// types all must hold.
type Query struct {
	Text       string
	Tags       []string
	DateFrom   *time.Time
	DateTo     *time.Time
	Kind       *models.MediaKind
	PersonID   *uuid.UUID
	MinQuality *float64
	MaxQuality *float64

	SortBy  SortKey
	SortAsc bool
}

func (q *Query) validate() error {
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return fmt.Errorf("%w: date range start after end", ErrInvalidQuery)
	}
	if q.MinQuality != nil && (*q.MinQuality < 0 || *q.MinQuality > 1) {
		return fmt.Errorf("%w: min quality out of range", ErrInvalidQuery)
	}
	if q.MaxQuality != nil && (*q.MaxQuality < 0 || *q.MaxQuality > 1) {
		return fmt.Errorf("%w: max quality out of range", ErrInvalidQuery)
	}
	if q.MinQuality != nil && q.MaxQuality != nil && *q.MinQuality > *q.MaxQuality {
		return fmt.Errorf("%w: quality range min above max", ErrInvalidQuery)
	}
	switch q.SortBy {
	case "", SortByDate, SortByName, SortBySize, SortByRelevance:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidQuery, q.SortBy)
	}
	return nil
}

// Search filters the index by the query's predicates, then sorts. The
// default order is capture date descending; ties always break by asset id so
// results are deterministic.
func (x *Index) Search(q Query) ([]*models.MediaAsset, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	observability.SearchesTotal.Inc()

	x.mu.RLock()

	// Start from the narrowest available secondary index.
	var candidates []*models.MediaAsset
	switch {
	case q.PersonID != nil:
		for id := range x.byPerson[*q.PersonID] {
			candidates = append(candidates, x.assets[id])
		}
	case len(q.Tags) > 0:
		seen := make(idSet)
		for _, tag := range q.Tags {
			for id := range x.byTagName[strings.ToLower(tag)] {
				seen.add(id)
			}
		}
		for id := range seen {
			candidates = append(candidates, x.assets[id])
		}
	default:
		for _, a := range x.assets {
			candidates = append(candidates, a)
		}
	}

	var matched []*models.MediaAsset
	for _, a := range candidates {
		if matches(a, &q) {
			matched = append(matched, a)
		}
	}
	x.mu.RUnlock()

	sortAssets(matched, &q)
	return matched, nil
}

func matches(a *models.MediaAsset, q *Query) bool {
	if q.Kind != nil && a.Kind != *q.Kind {
		return false
	}
	if q.DateFrom != nil && a.CaptureTime().Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && a.CaptureTime().After(*q.DateTo) {
		return false
	}
	if q.MinQuality != nil || q.MaxQuality != nil {
		if a.Analysis == nil {
			return false
		}
		overall := a.Analysis.Quality.Overall
		if q.MinQuality != nil && overall < *q.MinQuality {
			return false
		}
		if q.MaxQuality != nil && overall > *q.MaxQuality {
			return false
		}
	}
	if len(q.Tags) > 0 && !hasAnyTag(a, q.Tags) {
		return false
	}
	if q.PersonID != nil && !hasPerson(a, *q.PersonID) {
		return false
	}
	if q.Text != "" && !matchesText(a, q.Text) {
		return false
	}
	return true
}

func hasAnyTag(a *models.MediaAsset, tags []string) bool {
	for _, want := range tags {
		for _, t := range a.Tags {
			if strings.EqualFold(t.Name, want) {
				return true
			}
		}
	}
	return false
}

func hasPerson(a *models.MediaAsset, pid uuid.UUID) bool {
	for _, f := range a.Faces {
		if f.PersonID != nil && *f.PersonID == pid {
			return true
		}
	}
	return false
}

// matchesText matches free text against filename, generated description,
// and tag names.
func matchesText(a *models.MediaAsset, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(a.Filename), needle) {
		return true
	}
	if a.Analysis != nil && strings.Contains(strings.ToLower(a.Analysis.Description), needle) {
		return true
	}
	for _, t := range a.Tags {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			return true
		}
	}
	return false
}

func sortAssets(assets []*models.MediaAsset, q *Query) {
	key := q.SortBy
	if key == "" {
		key = SortByDate
	}

	less := func(a, b *models.MediaAsset) bool {
		switch key {
		case SortByName:
			if a.Filename != b.Filename {
				return a.Filename < b.Filename
			}
		case SortBySize:
			if a.SizeBytes != b.SizeBytes {
				return a.SizeBytes < b.SizeBytes
			}
		case SortByRelevance:
			ra, rb := relevance(a, q), relevance(b, q)
			if ra != rb {
				return ra < rb
			}
		default:
			ta, tb := a.CaptureTime(), b.CaptureTime()
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
		}
		return a.ID.String() < b.ID.String()
	}

	// Date and relevance default to descending; name and size to ascending.
	descending := !q.SortAsc && (key == SortByDate || key == SortByRelevance)
	if descending {
		sort.Slice(assets, func(i, j int) bool { return less(assets[j], assets[i]) })
	} else {
		sort.Slice(assets, func(i, j int) bool { return less(assets[i], assets[j]) })
	}
}

// relevance scores how strongly an asset matches the query's text and tag
// predicates: the sum of matched tag confidences plus a filename bonus.
func relevance(a *models.MediaAsset, q *Query) float64 {
	var score float64
	for _, want := range q.Tags {
		for _, t := range a.Tags {
			if strings.EqualFold(t.Name, want) {
				score += t.Confidence
			}
		}
	}
	if q.Text != "" && strings.Contains(strings.ToLower(a.Filename), strings.ToLower(q.Text)) {
		score += 1
	}
	if a.Analysis != nil {
		score += a.Analysis.Quality.Overall * 0.1
	}
	return score
}
