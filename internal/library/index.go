// Package library holds the queryable in-memory index over all media assets
// and the smart collection generator that runs over it.
package library

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
)

type idSet map[uuid.UUID]struct{}

func (s idSet) add(id uuid.UUID)    { s[id] = struct{}{} }
func (s idSet) remove(id uuid.UUID) { delete(s, id) }

// Index maintains all assets keyed by id with secondary indexes over tag
// name, tag category, capture day, geo bucket, and assigned person. Writes
// exclude reads; reads among themselves run concurrently. An asset becomes
// visible (or invisible) to Search in the same critical section that
// installs (or removes) it, so stale entries are never observable.
type Index struct {
	mu            sync.RWMutex
	assets        map[uuid.UUID]*models.MediaAsset
	byTagName     map[string]idSet
	byTagCategory map[models.TagCategory]idSet
	byDay         map[string]idSet
	byGeoBucket   map[string]idSet
	byPerson      map[uuid.UUID]idSet
}

func NewIndex() *Index {
	return &Index{
		assets:        make(map[uuid.UUID]*models.MediaAsset),
		byTagName:     make(map[string]idSet),
		byTagCategory: make(map[models.TagCategory]idSet),
		byDay:         make(map[string]idSet),
		byGeoBucket:   make(map[string]idSet),
		byPerson:      make(map[uuid.UUID]idSet),
	}
}

// Upsert installs or replaces an asset and all its secondary index entries
// atomically. Callers hand over ownership of the asset value; enrichment
// always passes a freshly assembled asset rather than mutating an indexed
// one in place.
func (x *Index) Upsert(asset *models.MediaAsset) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.assets[asset.ID]; ok {
		x.unindexLocked(asset.ID)
	}
	x.assets[asset.ID] = asset
	x.indexLocked(asset)
	observability.IndexedAssets.Set(float64(len(x.assets)))
}

// Remove deletes the asset and all its index entries. It reports whether the
// asset was present.
func (x *Index) Remove(id uuid.UUID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.assets[id]; !ok {
		return false
	}
	x.unindexLocked(id)
	delete(x.assets, id)
	observability.IndexedAssets.Set(float64(len(x.assets)))
	return true
}

// Get returns the indexed asset or nil.
func (x *Index) Get(id uuid.UUID) *models.MediaAsset {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.assets[id]
}

// Len returns the number of indexed assets.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.assets)
}

// All returns every indexed asset, unordered.
func (x *Index) All() []*models.MediaAsset {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]*models.MediaAsset, 0, len(x.assets))
	for _, a := range x.assets {
		out = append(out, a)
	}
	return out
}

// AssetsByDay returns a snapshot of asset ids grouped by capture day.
func (x *Index) AssetsByDay() map[string][]uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string][]uuid.UUID, len(x.byDay))
	for day, set := range x.byDay {
		out[day] = setToSlice(set)
	}
	return out
}

// AssetsByGeoBucket returns a snapshot of asset ids grouped by geo bucket.
func (x *Index) AssetsByGeoBucket() map[string][]uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string][]uuid.UUID, len(x.byGeoBucket))
	for bucket, set := range x.byGeoBucket {
		out[bucket] = setToSlice(set)
	}
	return out
}

// AssetsByPerson returns a snapshot of asset ids grouped by assigned person.
func (x *Index) AssetsByPerson() map[uuid.UUID][]uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[uuid.UUID][]uuid.UUID, len(x.byPerson))
	for pid, set := range x.byPerson {
		out[pid] = setToSlice(set)
	}
	return out
}

func setToSlice(s idSet) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func (x *Index) indexLocked(asset *models.MediaAsset) {
	id := asset.ID

	for _, tag := range asset.Tags {
		name := strings.ToLower(tag.Name)
		if x.byTagName[name] == nil {
			x.byTagName[name] = make(idSet)
		}
		x.byTagName[name].add(id)

		if x.byTagCategory[tag.Category] == nil {
			x.byTagCategory[tag.Category] = make(idSet)
		}
		x.byTagCategory[tag.Category].add(id)
	}

	day := DayKey(asset.CaptureTime())
	if x.byDay[day] == nil {
		x.byDay[day] = make(idSet)
	}
	x.byDay[day].add(id)

	if bucket := GeoBucket(asset.Metadata.Location); bucket != "" {
		if x.byGeoBucket[bucket] == nil {
			x.byGeoBucket[bucket] = make(idSet)
		}
		x.byGeoBucket[bucket].add(id)
	}

	for _, face := range asset.Faces {
		if face.PersonID != nil {
			pid := *face.PersonID
			if x.byPerson[pid] == nil {
				x.byPerson[pid] = make(idSet)
			}
			x.byPerson[pid].add(id)
		}
	}
}

func (x *Index) unindexLocked(id uuid.UUID) {
	asset := x.assets[id]

	for _, tag := range asset.Tags {
		name := strings.ToLower(tag.Name)
		if s := x.byTagName[name]; s != nil {
			s.remove(id)
			if len(s) == 0 {
				delete(x.byTagName, name)
			}
		}
		if s := x.byTagCategory[tag.Category]; s != nil {
			s.remove(id)
			if len(s) == 0 {
				delete(x.byTagCategory, tag.Category)
			}
		}
	}

	day := DayKey(asset.CaptureTime())
	if s := x.byDay[day]; s != nil {
		s.remove(id)
		if len(s) == 0 {
			delete(x.byDay, day)
		}
	}

	if bucket := GeoBucket(asset.Metadata.Location); bucket != "" {
		if s := x.byGeoBucket[bucket]; s != nil {
			s.remove(id)
			if len(s) == 0 {
				delete(x.byGeoBucket, bucket)
			}
		}
	}

	for _, face := range asset.Faces {
		if face.PersonID != nil {
			if s := x.byPerson[*face.PersonID]; s != nil {
				s.remove(id)
				if len(s) == 0 {
					delete(x.byPerson, *face.PersonID)
				}
			}
		}
	}
}

// DayKey buckets a timestamp at day granularity in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GeoBucket maps a location to its grouping key: the city when resolved,
// otherwise coordinates rounded to one decimal (roughly 11 km).
func GeoBucket(loc *models.GeoPoint) string {
	if loc == nil {
		return ""
	}
	if loc.City != "" {
		return strings.ToLower(loc.City)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return ""
	}
	return fmt.Sprintf("%.1f,%.1f", loc.Latitude, loc.Longitude)
}
