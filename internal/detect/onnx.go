package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

// ONNXAdapter is the in-process detection adapter: RetinaFace detection,
// ArcFace embeddings, gender/age attributes, a scene/object classifier, and
// pixel-statistics color summaries.
type ONNXAdapter struct {
	mu         sync.Mutex // sessions reuse preallocated tensors; runs are serialized
	detector   *faceDetector
	embedder   *faceEmbedder
	attributes *faceAttributes
	classifier *sceneClassifier
}

// NewONNXAdapter loads all models from cfg.ModelsDir.
func NewONNXAdapter(cfg config.DetectConfig) (*ONNXAdapter, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")
	clsPath := filepath.Join(cfg.ModelsDir, "scene_classifier.onnx")
	labelsPath := filepath.Join(cfg.ModelsDir, "scene_labels.yaml")

	slog.Info("loading face detection model", "path", detPath)
	det, err := newFaceDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load face detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newFaceEmbedder(embPath)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("loading attribute model", "path", attrPath)
	attr, err := newFaceAttributes(attrPath)
	if err != nil {
		det.close()
		emb.close()
		return nil, fmt.Errorf("load attributes: %w", err)
	}

	slog.Info("loading scene classifier", "path", clsPath)
	cls, err := newSceneClassifier(clsPath, labelsPath)
	if err != nil {
		det.close()
		emb.close()
		attr.close()
		return nil, fmt.Errorf("load classifier: %w", err)
	}

	slog.Info("detection adapter ready")

	return &ONNXAdapter{
		detector:   det,
		embedder:   emb,
		attributes: attr,
		classifier: cls,
	}, nil
}

// Detect analyzes image bytes and returns a normalized detection bundle.
// Video and audio require an external adapter; this one rejects them.
func (a *ONNXAdapter) Detect(ctx context.Context, data []byte, kind models.MediaKind) (*models.DetectionBundle, error) {
	if kind != models.MediaKindImage {
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedInput, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrUnsupportedInput, err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	a.mu.Lock()
	defer a.mu.Unlock()

	bundle := &models.DetectionBundle{SchemaVersion: models.BundleSchemaVersion}

	clsInput := imageToFloat32CHW(img, a.classifier.inputW, a.classifier.inputH,
		[3]float32{123.675, 116.28, 103.53}, [3]float32{58.395, 57.12, 57.375})
	objects, scenes, err := a.classifier.classify(clsInput, 0.1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	bundle.Objects = objects
	bundle.Scenes = scenes

	detInput := imageToFloat32CHW(img, a.detector.inputW, a.detector.inputH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
	faces, err := a.detector.detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	for _, f := range faces {
		obs := models.FaceObservation{
			Confidence: float64(f.confidence),
			Box: models.BoundingBox{
				X:      clamp01(float64(f.bbox[0]) / float64(origW)),
				Y:      clamp01(float64(f.bbox[1]) / float64(origH)),
				Width:  clamp01(float64(f.bbox[2]-f.bbox[0]) / float64(origW)),
				Height: clamp01(float64(f.bbox[3]-f.bbox[1]) / float64(origH)),
			},
		}
		for _, lm := range f.landmarks {
			obs.Landmarks = append(obs.Landmarks, models.Point{
				X: clamp01(float64(lm[0]) / float64(origW)),
				Y: clamp01(float64(lm[1]) / float64(origH)),
			})
		}

		crop := cropBox(img, int(f.bbox[0]), int(f.bbox[1]), int(f.bbox[2]), int(f.bbox[3]))
		if crop == nil {
			continue
		}

		embInput := imageToFloat32CHW(crop, a.embedder.inputW, a.embedder.inputH,
			[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
		embedding, err := a.embedder.extract(embInput)
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}
		obs.Embedding = embedding

		attrInput := imageToFloat32CHW(crop, a.attributes.inputW, a.attributes.inputH,
			[3]float32{0, 0, 0}, [3]float32{1, 1, 1})
		gender, genderConf, age, err := a.attributes.predict(attrInput)
		if err != nil {
			slog.Warn("predict face attributes", "error", err)
		} else {
			obs.Gender = gender
			obs.GenderConfidence = float64(genderConf)
			obs.Age = age
		}

		bundle.Faces = append(bundle.Faces, obs)
	}

	bundle.Colors = summarizeColors(img)

	return bundle, nil
}

// Close releases all ONNX sessions.
func (a *ONNXAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		a.detector.close()
	}
	if a.embedder != nil {
		a.embedder.close()
	}
	if a.attributes != nil {
		a.attributes.close()
	}
	if a.classifier != nil {
		a.classifier.close()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
