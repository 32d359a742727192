// Package identity maintains the library-wide partition of face detections
// into persons. All mutation enters through Resolve, Merge, Update, and
// Unassign; within a process the registry is guarded by one mutex, and when
// the store exposes a cross-process lock every mutation also holds it, so
// centroid updates from concurrent writers are never lost.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
	"github.com/your-org/medialib/internal/observability"
)

var (
	ErrPersonNotFound = errors.New("person not found")

	// ErrMergeConflict means a merge targeted a person that was already
	// retired by an earlier merge.
	ErrMergeConflict = errors.New("person already retired")
)

// PersonStore persists registry mutations. Writes are best-effort from the
// resolver's point of view: a store failure is logged, never surfaced, so
// Resolve always produces an assignment.
type PersonStore interface {
	UpsertPerson(ctx context.Context, p *models.Person) error
	UpdateFacePerson(ctx context.Context, faceID, personID uuid.UUID) error
}

// Locker serializes identity mutations across processes. Stores that back
// more than one registry (the API server and the workers share the same
// person rows) implement it; the resolver detects it by type assertion.
type Locker interface {
	WithIdentityLock(ctx context.Context, fn func(context.Context) error) error
}

// PersonReader loads a single persisted person row, nil when absent.
type PersonReader interface {
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
}

// FaceSearcher finds the nearest persisted person by face embedding. It
// backs the resolver's fallback when the in-memory centroids have no match:
// a cold registry recovers assignments from rows it never warm-started.
type FaceSearcher interface {
	NearestPerson(ctx context.Context, embedding []float32, threshold float64) (uuid.UUID, float64, bool, error)
}

type cluster struct {
	person   *models.Person
	centroid []float32
}

// Resolver is the identity registry. Each person carries a running-average
// centroid over its assigned embeddings, so assignment is O(#persons) per
// face and never re-clusters the library.
type Resolver struct {
	mu       sync.Mutex
	clusters map[uuid.UUID]*cluster
	byFace   map[uuid.UUID]uuid.UUID
	store    PersonStore
	cfg      config.IdentityConfig
}

// NewResolver creates an empty registry. store may be nil for a purely
// in-memory registry.
func NewResolver(cfg config.IdentityConfig, store PersonStore) *Resolver {
	return &Resolver{
		clusters: make(map[uuid.UUID]*cluster),
		byFace:   make(map[uuid.UUID]uuid.UUID),
		store:    store,
		cfg:      cfg,
	}
}

// Load seeds the registry from persisted persons, typically at startup.
func (r *Resolver) Load(persons []models.Person) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range persons {
		p := persons[i]
		r.clusters[p.ID] = &cluster{person: &p, centroid: p.Centroid}
		for _, fid := range p.FaceIDs {
			r.byFace[fid] = p.ID
		}
	}
	observability.PersonsActive.Set(float64(r.activeCountLocked()))
}

// Resolve assigns a face detection to an existing person when its embedding
// is close enough to a centroid, otherwise creates a new unverified person.
// It never fails: the result is always an assignment. Re-resolving the same
// detection id against an unchanged registry returns the same person, which
// makes pipeline replay after cancellation safe.
func (r *Resolver) Resolve(ctx context.Context, det *models.FaceDetection) *models.Person {
	var p *models.Person
	r.withStoreLock(ctx, func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		p = r.resolveLocked(ctx, det)
	})
	return p
}

func (r *Resolver) resolveLocked(ctx context.Context, det *models.FaceDetection) *models.Person {
	if pid, ok := r.byFace[det.ID]; ok {
		det.PersonID = &pid
		return copyPerson(r.clusters[pid].person)
	}

	best, second := r.closestLocked(det.Embedding)

	if best != nil && best.score >= r.cfg.AcceptThreshold {
		target := best
		// Near-tie: prefer the person with more assignments. Small clusters
		// oscillating between near-identical centroids would otherwise never
		// stabilize.
		if second != nil && best.score-second.score < r.cfg.TieEpsilon {
			if second.c.person.FaceCount() > best.c.person.FaceCount() {
				target = second
			}
			slog.Info("near-tie identity match",
				"face", det.ID,
				"chosen", target.c.person.ID,
				"best_score", best.score,
				"second_score", second.score,
			)
		}

		c := r.refreshLocked(ctx, target.c)
		r.assignLocked(ctx, c, det)
		observability.FacesResolved.WithLabelValues("matched").Inc()
		return copyPerson(c.person)
	}

	if c := r.searchStoreLocked(ctx, det); c != nil {
		r.assignLocked(ctx, c, det)
		observability.FacesResolved.WithLabelValues("recovered").Inc()
		observability.PersonsActive.Set(float64(r.activeCountLocked()))
		return copyPerson(c.person)
	}

	c := r.createLocked(ctx, det)
	observability.FacesResolved.WithLabelValues("created").Inc()
	observability.PersonsActive.Set(float64(r.activeCountLocked()))
	return copyPerson(c.person)
}

// Merge reassigns every face of source into target, unions aliases, and
// recomputes target's centroid as the exact count-weighted mean of both
// clusters rather than another running update, so merges do not compound
// incremental drift. The source is retired, not deleted.
func (r *Resolver) Merge(ctx context.Context, targetID, sourceID uuid.UUID) (*models.Person, error) {
	var p *models.Person
	var err error
	r.withStoreLock(ctx, func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		p, err = r.mergeLocked(ctx, targetID, sourceID)
	})
	return p, err
}

func (r *Resolver) mergeLocked(ctx context.Context, targetID, sourceID uuid.UUID) (*models.Person, error) {
	target, ok := r.clusters[targetID]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", targetID, ErrPersonNotFound)
	}
	source, ok := r.clusters[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", sourceID, ErrPersonNotFound)
	}
	if target.person.Retired || source.person.Retired {
		return nil, ErrMergeConflict
	}

	now := time.Now().UTC()

	for _, fid := range source.person.FaceIDs {
		r.byFace[fid] = targetID
		target.person.FaceIDs = append(target.person.FaceIDs, fid)
		if r.store != nil {
			if err := r.store.UpdateFacePerson(ctx, fid, targetID); err != nil {
				slog.Error("persist face reassignment", "face", fid, "error", err)
			}
		}
	}
	target.person.Aliases = unionAliases(target.person.Aliases, source.person.Aliases, source.person.Name)
	target.centroid = weightedMean(target.centroid, len(target.person.FaceIDs)-len(source.person.FaceIDs),
		source.centroid, len(source.person.FaceIDs))
	target.person.Centroid = target.centroid
	if source.person.FirstSeen.Before(target.person.FirstSeen) {
		target.person.FirstSeen = source.person.FirstSeen
	}
	if source.person.LastSeen.After(target.person.LastSeen) {
		target.person.LastSeen = source.person.LastSeen
	}
	target.person.UpdatedAt = now

	source.person.FaceIDs = nil
	source.person.Retired = true
	source.person.MergedInto = &targetID
	source.person.UpdatedAt = now
	source.centroid = nil
	source.person.Centroid = nil

	r.persistLocked(ctx, target.person)
	r.persistLocked(ctx, source.person)
	observability.PersonsActive.Set(float64(r.activeCountLocked()))

	return copyPerson(target.person), nil
}

// Unassign releases detections from their persons so they re-resolve on the
// next enrichment pass. This is the only supported split operation. It
// returns the ids of the persons that lost a face.
func (r *Resolver) Unassign(ctx context.Context, faceIDs []uuid.UUID) []uuid.UUID {
	var affected []uuid.UUID
	r.withStoreLock(ctx, func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		affected = r.unassignLocked(ctx, faceIDs)
	})
	return affected
}

func (r *Resolver) unassignLocked(ctx context.Context, faceIDs []uuid.UUID) []uuid.UUID {
	touched := make(map[uuid.UUID]bool)
	var affected []uuid.UUID
	for _, fid := range faceIDs {
		pid, ok := r.byFace[fid]
		if !ok {
			continue
		}
		delete(r.byFace, fid)

		c := r.clusters[pid]
		kept := c.person.FaceIDs[:0]
		for _, id := range c.person.FaceIDs {
			if id != fid {
				kept = append(kept, id)
			}
		}
		c.person.FaceIDs = kept
		c.person.UpdatedAt = time.Now().UTC()
		r.persistLocked(ctx, c.person)
		if !touched[pid] {
			touched[pid] = true
			affected = append(affected, pid)
		}
	}
	return affected
}

// Get returns a copy of the person, or nil when unknown.
func (r *Resolver) Get(id uuid.UUID) *models.Person {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[id]
	if !ok {
		return nil
	}
	return copyPerson(c.person)
}

// PersonName resolves a person id to its display name.
func (r *Resolver) PersonName(id uuid.UUID) (string, bool) {
	p := r.Get(id)
	if p == nil {
		return "", false
	}
	return p.Name, true
}

// List returns copies of all persons, retired ones included when
// includeRetired is set.
func (r *Resolver) List(includeRetired bool) []models.Person {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Person, 0, len(r.clusters))
	for _, c := range r.clusters {
		if c.person.Retired && !includeRetired {
			continue
		}
		out = append(out, *copyPerson(c.person))
	}
	return out
}

// Update renames a person or flips its verified flag.
func (r *Resolver) Update(ctx context.Context, id uuid.UUID, name *string, aliases []string, verified *bool) (*models.Person, error) {
	var p *models.Person
	var err error
	r.withStoreLock(ctx, func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		p, err = r.updateLocked(ctx, id, name, aliases, verified)
	})
	return p, err
}

func (r *Resolver) updateLocked(ctx context.Context, id uuid.UUID, name *string, aliases []string, verified *bool) (*models.Person, error) {
	c, ok := r.clusters[id]
	if !ok {
		return nil, ErrPersonNotFound
	}
	if name != nil {
		c.person.Name = *name
	}
	if aliases != nil {
		c.person.Aliases = aliases
	}
	if verified != nil {
		c.person.Verified = *verified
	}
	c.person.UpdatedAt = time.Now().UTC()
	r.persistLocked(ctx, c.person)
	return copyPerson(c.person), nil
}

// Sync reconciles one persisted person row into the registry, replacing any
// stale in-memory view. Event consumers call it when another process changed
// the person, so registries converge without a restart.
func (r *Resolver) Sync(p models.Person) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncLocked(p)
	observability.PersonsActive.Set(float64(r.activeCountLocked()))
}

func (r *Resolver) syncLocked(p models.Person) {
	if prev, ok := r.clusters[p.ID]; ok {
		for _, fid := range prev.person.FaceIDs {
			if r.byFace[fid] == p.ID {
				delete(r.byFace, fid)
			}
		}
	}
	cp := copyPerson(&p)
	r.clusters[cp.ID] = &cluster{person: cp, centroid: cp.Centroid}
	for _, fid := range cp.FaceIDs {
		r.byFace[fid] = cp.ID
	}
}

// withStoreLock runs fn under the store's cross-process lock when the store
// provides one. A lock failure degrades to the local mutex only; the
// resolver keeps its never-fails contract for Resolve.
func (r *Resolver) withStoreLock(ctx context.Context, fn func(context.Context)) {
	if l, ok := r.store.(Locker); ok {
		err := l.WithIdentityLock(ctx, func(ctx context.Context) error {
			fn(ctx)
			return nil
		})
		if err == nil {
			return
		}
		slog.Warn("identity lock unavailable, proceeding with local lock only", "error", err)
	}
	fn(ctx)
}

// refreshLocked reloads the matched person from the store before assignment,
// following the merged-into chain, so a registry that missed a concurrent
// merge does not keep assigning to a retired person.
func (r *Resolver) refreshLocked(ctx context.Context, c *cluster) *cluster {
	reader, ok := r.store.(PersonReader)
	if !ok {
		return c
	}
	id := c.person.ID
	for hops := 0; hops < 8; hops++ {
		p, err := reader.GetPerson(ctx, id)
		if err != nil {
			slog.Warn("reload person", "person", id, "error", err)
			return c
		}
		if p == nil {
			return c
		}
		r.syncLocked(*p)
		if !p.Retired || p.MergedInto == nil {
			return r.clusters[p.ID]
		}
		id = *p.MergedInto
	}
	return c
}

// searchStoreLocked consults the store's vector index when no in-memory
// centroid matched. Persons created by another process, or rows a cold
// registry never warm-started, are pulled into the registry on the spot.
func (r *Resolver) searchStoreLocked(ctx context.Context, det *models.FaceDetection) *cluster {
	searcher, ok := r.store.(FaceSearcher)
	if !ok {
		return nil
	}
	pid, _, found, err := searcher.NearestPerson(ctx, det.Embedding, r.cfg.AcceptThreshold)
	if err != nil {
		slog.Warn("vector search fallback", "face", det.ID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	if c, ok := r.clusters[pid]; ok {
		if c.person.Retired {
			return nil
		}
		return c
	}
	reader, ok := r.store.(PersonReader)
	if !ok {
		return nil
	}
	p, err := reader.GetPerson(ctx, pid)
	if err != nil || p == nil || p.Retired {
		return nil
	}
	r.syncLocked(*p)
	return r.clusters[pid]
}

type scored struct {
	c     *cluster
	score float64
}

// closestLocked returns the two closest non-retired clusters by cosine
// similarity against their centroids.
func (r *Resolver) closestLocked(embedding []float32) (best, second *scored) {
	for _, c := range r.clusters {
		if c.person.Retired || len(c.centroid) == 0 {
			continue
		}
		s := CosineSimilarity(embedding, c.centroid)
		switch {
		case best == nil || s > best.score:
			second = best
			best = &scored{c, s}
		case second == nil || s > second.score:
			second = &scored{c, s}
		}
	}
	return best, second
}

// assignLocked adds the detection to the cluster and folds its embedding
// into the centroid as a running average, keeping assignment O(1).
func (r *Resolver) assignLocked(ctx context.Context, c *cluster, det *models.FaceDetection) {
	n := len(c.person.FaceIDs)
	c.centroid = runningMean(c.centroid, n, det.Embedding)
	c.person.Centroid = c.centroid
	c.person.FaceIDs = append(c.person.FaceIDs, det.ID)
	now := time.Now().UTC()
	c.person.LastSeen = now
	c.person.UpdatedAt = now

	r.byFace[det.ID] = c.person.ID
	det.PersonID = &c.person.ID

	r.persistLocked(ctx, c.person)
	if r.store != nil {
		if err := r.store.UpdateFacePerson(ctx, det.ID, c.person.ID); err != nil {
			slog.Error("persist face assignment", "face", det.ID, "error", err)
		}
	}
}

func (r *Resolver) createLocked(ctx context.Context, det *models.FaceDetection) *cluster {
	now := time.Now().UTC()
	p := &models.Person{
		ID:        uuid.New(),
		Name:      "Unknown " + shortID(det.ID),
		FaceIDs:   []uuid.UUID{det.ID},
		FirstSeen: now,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	centroid := make([]float32, len(det.Embedding))
	copy(centroid, det.Embedding)
	p.Centroid = centroid

	c := &cluster{person: p, centroid: centroid}
	r.clusters[p.ID] = c
	r.byFace[det.ID] = p.ID
	det.PersonID = &p.ID

	r.persistLocked(ctx, p)
	if r.store != nil {
		if err := r.store.UpdateFacePerson(ctx, det.ID, p.ID); err != nil {
			slog.Error("persist face assignment", "face", det.ID, "error", err)
		}
	}
	return c
}

func (r *Resolver) persistLocked(ctx context.Context, p *models.Person) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertPerson(ctx, p); err != nil {
		slog.Error("persist person", "person", p.ID, "error", err)
	}
}

func (r *Resolver) activeCountLocked() int {
	n := 0
	for _, c := range r.clusters {
		if !c.person.Retired {
			n++
		}
	}
	return n
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}

// runningMean folds one embedding into a centroid over n prior samples.
func runningMean(centroid []float32, n int, embedding []float32) []float32 {
	if len(centroid) == 0 {
		out := make([]float32, len(embedding))
		copy(out, embedding)
		return out
	}
	out := make([]float32, len(centroid))
	for i := range centroid {
		out[i] = (centroid[i]*float32(n) + embedding[i]) / float32(n+1)
	}
	return out
}

// weightedMean combines two centroids by their assignment counts.
func weightedMean(a []float32, na int, b []float32, nb int) []float32 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 || len(a) != len(b) {
		return a
	}
	total := float32(na + nb)
	if total == 0 {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i]*float32(na) + b[i]*float32(nb)) / total
	}
	return out
}

func unionAliases(existing, incoming []string, sourceName string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	out := existing
	for _, a := range append(incoming, sourceName) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func copyPerson(p *models.Person) *models.Person {
	cp := *p
	cp.FaceIDs = append([]uuid.UUID(nil), p.FaceIDs...)
	cp.Aliases = append([]string(nil), p.Aliases...)
	return &cp
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
