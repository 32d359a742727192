package scoring

import (
	"strings"

	"github.com/your-org/medialib/internal/models"
)

// sceneLocations are scene classes that describe where a shot was taken and
// therefore tag as location rather than style.
var sceneLocations = map[string]bool{
	"outdoor": true, "indoor": true, "urban": true, "rural": true,
	"beach": true, "mountain": true, "forest": true, "street": true,
	"landscape": true, "interior": true,
}

// deriveTags thresholds detections into tags. A detection below its
// per-category minimum is dropped entirely so low-confidence noise never
// pollutes search. De-duplication on (name, category) keeps the highest
// confidence.
func (e *Engine) deriveTags(bundle *models.DetectionBundle) []models.Tag {
	type tagKey struct {
		name     string
		category models.TagCategory
	}
	seen := make(map[tagKey]int)
	var tags []models.Tag

	// Two-level rule: within one detection bundle the strongest observation
	// of a (name, category) pair wins; across enrichment runs SetTag on the
	// asset replaces the pair with the newest derivation.
	add := func(t models.Tag) {
		key := tagKey{t.Name, t.Category}
		if i, ok := seen[key]; ok {
			if t.Confidence > tags[i].Confidence {
				tags[i] = t
			}
			return
		}
		seen[key] = len(tags)
		tags = append(tags, t)
	}

	for _, obj := range bundle.Objects {
		if obj.Confidence < e.cfg.ObjectTagMin {
			continue
		}
		add(models.Tag{
			Name:       strings.ToLower(obj.Name),
			Category:   models.TagCategoryObject,
			Confidence: obj.Confidence,
			Source:     models.TagSourceDerived,
		})
	}

	for _, scene := range bundle.Scenes {
		if scene.Confidence < e.cfg.SceneTagMin {
			continue
		}
		name := strings.ToLower(scene.Name)
		category := models.TagCategoryStyle
		if sceneLocations[name] {
			category = models.TagCategoryLocation
		}
		add(models.Tag{
			Name:       name,
			Category:   category,
			Confidence: scene.Confidence,
			Source:     models.TagSourceDerived,
		})
	}

	for _, face := range bundle.Faces {
		for _, em := range face.Emotions {
			if em.Score < e.cfg.ObjectTagMin {
				continue
			}
			add(models.Tag{
				Name:       strings.ToLower(em.Name),
				Category:   models.TagCategoryEmotion,
				Confidence: em.Score,
				Source:     models.TagSourceDerived,
			})
		}
	}

	colorConf := clamp01(bundle.Colors.Saturation + 0.3)
	if colorConf >= e.cfg.ColorTagMin {
		for _, c := range bundle.Colors.DominantColors {
			add(models.Tag{
				Name:       strings.ToLower(c),
				Category:   models.TagCategoryColor,
				Confidence: colorConf,
				Source:     models.TagSourceDerived,
			})
		}
	}

	return tags
}
