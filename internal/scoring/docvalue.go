package scoring

import (
	"strings"

	"github.com/your-org/medialib/internal/models"
)

var architectureObjects = map[string]bool{
	"building": true, "architecture": true, "monument": true, "bridge": true,
	"church": true, "castle": true, "tower": true, "ruins": true,
}

var outdoorScenes = map[string]bool{
	"outdoor": true, "landscape": true, "beach": true, "mountain": true,
	"forest": true, "street": true, "urban": true, "rural": true,
}

// documentaryValue combines presence signals (people, architecture, outdoor
// scenes, emotional content) into four independent scores and a filtered
// placement list. The weighting is a shipped default, tunable through
// configuration rather than asserted as an invariant.
func (e *Engine) documentaryValue(bundle *models.DetectionBundle) models.DocumentaryValue {
	people := peopleSignal(bundle)
	architecture := signalFor(bundle.Objects, architectureObjects)
	outdoor := sceneSignal(bundle.Scenes, outdoorScenes)
	emotion := emotionSignal(bundle.Faces)
	diversity := clamp01(float64(len(bundle.Objects)) / 5)

	dv := models.DocumentaryValue{
		NarrativeScore:  clamp01(0.4*people + 0.3*outdoor + 0.3*diversity),
		EmotionalImpact: clamp01(0.5*emotion + 0.3*people + 0.2*bundle.Colors.Temperature),
		HistoricalValue: clamp01(0.5*architecture + 0.3*outdoor + 0.2*diversity),
		Uniqueness:      clamp01(0.3 + 0.3*architecture + 0.2*(1-people) + 0.2*clamp01(float64(len(bundle.Colors.Palette))/6)),
	}

	dv.Placements = e.placements(people, architecture, outdoor, emotion, dv)
	return dv
}

// placements emits (section, confidence, reason, timing) tuples, keeping
// only those at or above the configured minimum confidence so downstream
// recommendation lists stay bounded.
func (e *Engine) placements(people, architecture, outdoor, emotion float64, dv models.DocumentaryValue) []models.Placement {
	candidates := []models.Placement{
		{
			Section:    "opening",
			Confidence: clamp01(0.5*dv.NarrativeScore + 0.5*outdoor),
			Reason:     "strong narrative or establishing scene",
			Timing:     0.0,
		},
		{
			Section:    "human-interest",
			Confidence: clamp01(0.6*people + 0.4*emotion),
			Reason:     "people present",
			Timing:     0.4,
		},
		{
			Section:    "establishing",
			Confidence: clamp01(0.7*architecture + 0.3*outdoor),
			Reason:     "architectural or location context",
			Timing:     0.1,
		},
		{
			Section:    "b-roll",
			Confidence: clamp01(0.5*outdoor + 0.5*dv.Uniqueness),
			Reason:     "supporting footage",
			Timing:     0.5,
		},
		{
			Section:    "closing",
			Confidence: clamp01(0.6*emotion + 0.4*dv.EmotionalImpact),
			Reason:     "emotional resonance",
			Timing:     0.9,
		},
	}

	var kept []models.Placement
	for _, p := range candidates {
		if p.Confidence >= e.cfg.PlacementMinConfidence {
			kept = append(kept, p)
		}
	}
	return kept
}

// peopleSignal is the strongest evidence of human presence: person object
// detections or face detections.
func peopleSignal(bundle *models.DetectionBundle) float64 {
	var best float64
	for _, o := range bundle.Objects {
		if strings.EqualFold(o.Name, "person") && o.Confidence > best {
			best = o.Confidence
		}
	}
	for _, f := range bundle.Faces {
		if f.Confidence > best {
			best = f.Confidence
		}
	}
	return best
}

func signalFor(objects []models.ObjectDetection, names map[string]bool) float64 {
	var best float64
	for _, o := range objects {
		if names[strings.ToLower(o.Name)] && o.Confidence > best {
			best = o.Confidence
		}
	}
	return best
}

func sceneSignal(scenes []models.SceneDetection, names map[string]bool) float64 {
	var best float64
	for _, s := range scenes {
		if names[strings.ToLower(s.Name)] && s.Confidence > best {
			best = s.Confidence
		}
	}
	return best
}

func emotionSignal(faces []models.FaceObservation) float64 {
	var best float64
	for _, f := range faces {
		for _, em := range f.Emotions {
			if em.Score > best {
				best = em.Score
			}
		}
	}
	return best
}
