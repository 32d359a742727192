package detect

import (
	"fmt"
	"math"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"github.com/your-org/medialib/internal/models"
)

// classLabel maps one classifier output index to a detection name and kind.
type classLabel struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "object" or "scene"
}

// sceneClassifier runs a single-head image classifier whose label file
// declares, per output index, whether the class is an object or a scene.
type sceneClassifier struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	labels       []classLabel
	inputW       int
	inputH       int
}

func newSceneClassifier(modelPath, labelsPath string) (*sceneClassifier, error) {
	data, err := os.ReadFile(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	var labels []classLabel
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file is empty")
	}

	inputW, inputH := 224, 224

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create classifier session: %w", err)
	}

	return &sceneClassifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		labels:       labels,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// classify runs the net over preprocessed CHW input and splits softmax
// probabilities above the threshold into object and scene detections.
func (c *sceneClassifier) classify(imgData []float32, threshold float64) ([]models.ObjectDetection, []models.SceneDetection, error) {
	copy(c.inputTensor.GetData(), imgData)

	if err := c.session.Run(); err != nil {
		return nil, nil, fmt.Errorf("run classifier: %w", err)
	}

	probs := softmax(c.outputTensor.GetData())

	var objects []models.ObjectDetection
	var scenes []models.SceneDetection
	for i, p := range probs {
		if float64(p) < threshold || i >= len(c.labels) {
			continue
		}
		label := c.labels[i]
		switch label.Kind {
		case "scene":
			scenes = append(scenes, models.SceneDetection{
				Name:       label.Name,
				Confidence: float64(p),
			})
		default:
			// Classifier detections have no localization; report the full frame.
			objects = append(objects, models.ObjectDetection{
				Name:       label.Name,
				Confidence: float64(p),
				Box:        models.BoundingBox{X: 0, Y: 0, Width: 1, Height: 1},
			})
		}
	}

	return objects, scenes, nil
}

func (c *sceneClassifier) close() {
	if c.session != nil {
		c.session.Destroy()
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxL))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
