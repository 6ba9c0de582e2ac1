// Package classifier loads the trained URL model and serves predictions over
// the fixed-order feature vector.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
)

// ErrArtifact marks a model artifact that cannot be used. It is fatal at
// start.
var ErrArtifact = errors.New("invalid model artifact")

const (
	KindLogistic = "logistic"
	KindForest   = "forest"
)

// Artifact is the versioned on-disk model.
type Artifact struct {
	Version  string   `json:"version"`
	Kind     string   `json:"kind"`
	Features []string `json:"features"`

	// logistic
	Weights   []float64 `json:"weights,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`

	// forest
	Trees []Tree `json:"trees,omitempty"`
}

// Tree is a flat binary decision tree. Node 0 is the root; a node with a
// negative Feature is a leaf. Children always sit after their parent.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Model is a loaded artifact, safe for concurrent use.
type Model struct {
	version   string
	kind      string
	width     int
	weights   []float64
	intercept float64
	threshold float64
	trees     []Tree
}

// Load reads and validates the artifact at path. expected is the feature
// order the caller will send; the artifact must list the same names in the
// same order.
func Load(path string, expected []string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrArtifact, path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrArtifact, path, err)
	}
	m, err := New(a, expected)
	if err != nil {
		return nil, err
	}
	log.Printf("[MODEL] Loaded %s model version %q from %s", m.kind, m.version, path)
	return m, nil
}

// New validates an in-memory artifact.
func New(a Artifact, expected []string) (*Model, error) {
	if err := checkFeatures(a.Features, expected); err != nil {
		return nil, err
	}
	m := &Model{version: a.Version, kind: a.Kind, width: len(expected), threshold: 0.5}

	switch a.Kind {
	case KindLogistic:
		if len(a.Weights) != m.width {
			return nil, fmt.Errorf("%w: %d weights for %d features", ErrArtifact, len(a.Weights), m.width)
		}
		m.weights = a.Weights
		m.intercept = a.Intercept
		if a.Threshold != nil {
			m.threshold = *a.Threshold
		}
	case KindForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest has no trees", ErrArtifact)
		}
		for i, t := range a.Trees {
			if err := t.validate(m.width); err != nil {
				return nil, fmt.Errorf("%w: tree %d: %v", ErrArtifact, i, err)
			}
		}
		m.trees = a.Trees
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrArtifact, a.Kind)
	}
	return m, nil
}

func checkFeatures(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: artifact has %d features, engine sends %d", ErrArtifact, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: feature %d is %q, engine sends %q", ErrArtifact, i, got[i], want[i])
		}
	}
	return nil
}

func (t Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children out of order", i)
		}
	}
	return nil
}

func (t Tree) eval(x []int) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if float64(x[n.Feature]) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Version reports the artifact version.
func (m *Model) Version() string { return m.version }

// Predict returns 1 for phishing, 0 otherwise.
func (m *Model) Predict(_ context.Context, features []int) (int, error) {
	if len(features) != m.width {
		return 0, fmt.Errorf("got %d features, model expects %d", len(features), m.width)
	}
	if m.Score(features) >= m.threshold {
		return 1, nil
	}
	return 0, nil
}

// Score is the phishing probability for a logistic model, the mean leaf
// value for a forest. Predict compares it to the threshold (0.5 for forests).
func (m *Model) Score(features []int) float64 {
	if m.kind == KindForest {
		sum := 0.0
		for _, t := range m.trees {
			sum += t.eval(features)
		}
		return sum / float64(len(m.trees))
	}
	z := m.intercept
	for i, w := range m.weights {
		z += w * float64(features[i])
	}
	return 1 / (1 + math.Exp(-z))
}
