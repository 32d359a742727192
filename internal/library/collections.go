package library

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

// PersonNamer resolves a person id to a display name for collection titles.
type PersonNamer interface {
	PersonName(id uuid.UUID) (string, bool)
}

// Generator builds auto collections from the index's secondary groupings.
// Regeneration is wholesale: the caller replaces the previous auto set with
// the returned one, manual collections are never touched.
type Generator struct {
	index  *Index
	namer  PersonNamer
	cfg    config.CollectionsConfig
	logger *slog.Logger
}

func NewGenerator(index *Index, namer PersonNamer, cfg config.CollectionsConfig) *Generator {
	return &Generator{
		index:  index,
		namer:  namer,
		cfg:    cfg,
		logger: slog.With("component", "collections"),
	}
}

// Generate produces the full auto collection set for the current index
// contents. Groups below their dimension's support minimum are skipped.
func (g *Generator) Generate() []*models.Collection {
	var out []*models.Collection
	out = append(out, g.byDate()...)
	out = append(out, g.byLocation()...)
	out = append(out, g.byPerson()...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		return out[i].GroupKey < out[j].GroupKey
	})

	g.logger.Info("generated auto collections", "count", len(out))
	return out
}

func (g *Generator) byDate() []*models.Collection {
	groups := g.index.AssetsByDay()
	var out []*models.Collection
	for day, ids := range groups {
		if len(ids) < g.cfg.MinDateGroup {
			continue
		}
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		out = append(out, g.newCollection(
			t.Format("January 2, 2006"),
			models.GroupByDate, day, g.cfg.DateConfidence, ids,
		))
	}
	return out
}

func (g *Generator) byLocation() []*models.Collection {
	groups := g.index.AssetsByGeoBucket()
	var out []*models.Collection
	for bucket, ids := range groups {
		if len(ids) < g.cfg.MinLocationGroup {
			continue
		}
		out = append(out, g.newCollection(
			locationTitle(bucket),
			models.GroupByLocation, bucket, g.cfg.LocationConfidence, ids,
		))
	}
	return out
}

func (g *Generator) byPerson() []*models.Collection {
	groups := g.index.AssetsByPerson()
	var out []*models.Collection
	for pid, ids := range groups {
		if len(ids) < g.cfg.MinPersonGroup {
			continue
		}
		name := "Unknown"
		if g.namer != nil {
			if n, ok := g.namer.PersonName(pid); ok {
				name = n
			}
		}
		out = append(out, g.newCollection(
			fmt.Sprintf("Photos of %s", name),
			models.GroupByPerson, pid.String(), g.cfg.PersonConfidence, ids,
		))
	}
	return out
}

func (g *Generator) newCollection(name string, dim models.GroupDimension, key string, confidence float64, ids []uuid.UUID) *models.Collection {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	now := time.Now().UTC()
	return &models.Collection{
		ID:          uuid.New(),
		Name:        name,
		Type:        models.CollectionTypeAuto,
		Dimension:   dim,
		GroupKey:    key,
		Confidence:  confidence,
		AssetIDs:    sorted,
		GeneratedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func locationTitle(bucket string) string {
	// City buckets read as-is; coordinate buckets get a neutral title.
	for _, r := range bucket {
		if r >= '0' && r <= '9' {
			return fmt.Sprintf("Near %s", bucket)
		}
		break
	}
	return titleCase(bucket)
}

func titleCase(s string) string {
	out := []rune(s)
	upper := true
	for i, r := range out {
		if upper && r >= 'a' && r <= 'z' {
			out[i] = r - 32
		}
		upper = r == ' ' || r == '-'
	}
	return string(out)
}

// Registry holds the current collection set. Auto collections are replaced
// wholesale on regeneration; manual ones persist until deleted.
type Registry struct {
	mu          sync.RWMutex
	collections map[uuid.UUID]*models.Collection
}

func NewRegistry() *Registry {
	return &Registry{collections: make(map[uuid.UUID]*models.Collection)}
}

// ReplaceAuto swaps the entire auto set for a freshly generated one.
func (r *Registry) ReplaceAuto(generated []*models.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.collections {
		if c.Type == models.CollectionTypeAuto {
			delete(r.collections, id)
		}
	}
	for _, c := range generated {
		r.collections[c.ID] = c
	}
}

func (r *Registry) AddManual(c *models.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Type = models.CollectionTypeManual
	r.collections[c.ID] = c
}

func (r *Registry) Get(id uuid.UUID) (*models.Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[id]
	return c, ok
}

func (r *Registry) Delete(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[id]; !ok {
		return false
	}
	delete(r.collections, id)
	return true
}

// List returns collections filtered by type; an empty filter returns all.
// Order is deterministic: name, then id.
func (r *Registry) List(kind models.CollectionType) []*models.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Collection
	for _, c := range r.collections {
		if kind != "" && c.Type != kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// RemoveAsset strips a deleted asset from every collection's member list and
// returns the collections it changed, so callers can persist them.
func (r *Registry) RemoveAsset(assetID uuid.UUID) []*models.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []*models.Collection
	for _, c := range r.collections {
		for i, id := range c.AssetIDs {
			if id == assetID {
				c.AssetIDs = append(c.AssetIDs[:i], c.AssetIDs[i+1:]...)
				c.UpdatedAt = time.Now().UTC()
				changed = append(changed, c)
				break
			}
		}
	}
	return changed
}
