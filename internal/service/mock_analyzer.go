package service

import (
	_ "embed"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/kindrid-api/internal/models"
)

//go:embed catalog/analyzer.yaml
var defaultCatalog []byte

// Analyzer produces annotations for photos. Results arrive asynchronously and
// never touch the photo store.
type Analyzer interface {
	Analyze(photo models.Photo) *Deferred[models.AIFeatures]
	RemoveSubjectAndRebuildBackground(photoID, subjectID string) *Deferred[models.SubjectRemovalResult]
}

// AnalyzerCatalog lists the values the simulated analyzer draws from.
type AnalyzerCatalog struct {
	Scenes []struct {
		Type     string   `yaml:"type"`
		Elements []string `yaml:"elements"`
	} `yaml:"scenes"`
	Complexity               []string `yaml:"complexity"`
	ReconstructionDifficulty []string `yaml:"reconstructionDifficulty"`
	Removal                  struct {
		Quality      []string `yaml:"quality"`
		Artifacts    []string `yaml:"artifacts"`
		ModelVersion string   `yaml:"modelVersion"`
	} `yaml:"removal"`
}

// LoadAnalyzerCatalog parses the catalog at path, or the built-in one when path is empty.
func LoadAnalyzerCatalog(path string) (*AnalyzerCatalog, error) {
	raw := defaultCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read analyzer catalog: %w", err)
		}
		raw = data
	}

	var catalog AnalyzerCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse analyzer catalog: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *AnalyzerCatalog) validate() error {
	switch {
	case len(c.Scenes) == 0:
		return fmt.Errorf("analyzer catalog: no scenes")
	case len(c.Complexity) == 0, len(c.ReconstructionDifficulty) == 0:
		return fmt.Errorf("analyzer catalog: complexity tiers missing")
	case len(c.Removal.Quality) == 0, len(c.Removal.Artifacts) == 0:
		return fmt.Errorf("analyzer catalog: removal outcomes missing")
	}
	for _, scene := range c.Scenes {
		if scene.Type == "" || len(scene.Elements) == 0 {
			return fmt.Errorf("analyzer catalog: scene %q incomplete", scene.Type)
		}
	}
	return nil
}

// MockAnalyzerConfig tunes the simulation.
type MockAnalyzerConfig struct {
	Delay        time.Duration
	RemovalDelay time.Duration
	// Seed drives every random draw. Zero seeds from the clock.
	Seed    int64
	Catalog *AnalyzerCatalog
	Logger  *zap.Logger
}

// MockAnalyzer simulates face detection and background reconstruction on timers.
type MockAnalyzer struct {
	mu           sync.Mutex
	rng          *rand.Rand
	delay        time.Duration
	removalDelay time.Duration
	catalog      *AnalyzerCatalog
	logger       *zap.Logger
}

// NewMockAnalyzer builds the analyzer. A nil catalog uses the built-in one.
func NewMockAnalyzer(cfg MockAnalyzerConfig) (*MockAnalyzer, error) {
	if cfg.Catalog == nil {
		catalog, err := LoadAnalyzerCatalog("")
		if err != nil {
			return nil, err
		}
		cfg.Catalog = catalog
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &MockAnalyzer{
		rng:          rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec
		delay:        cfg.Delay,
		removalDelay: cfg.RemovalDelay,
		catalog:      cfg.Catalog,
		logger:       cfg.Logger,
	}, nil
}

// Analyze resolves after the configured delay with 1-4 detections. Detected names
// come from the photo's children in order, then "Unknown person N".
func (a *MockAnalyzer) Analyze(photo models.Photo) *Deferred[models.AIFeatures] {
	features := a.drawFeatures(photo)
	a.logger.Debug("analysis scheduled",
		zap.String("photo_id", photo.ID),
		zap.Int("detections", len(features.PersonDetection)),
		zap.Duration("delay", a.delay),
	)
	return after(a.delay, features, nil)
}

// RemoveSubjectAndRebuildBackground always succeeds after the removal delay.
func (a *MockAnalyzer) RemoveSubjectAndRebuildBackground(photoID, subjectID string) *Deferred[models.SubjectRemovalResult] {
	a.mu.Lock()
	result := models.SubjectRemovalResult{
		Success: true,
		BackgroundReconstruction: models.BackgroundReconstruction{
			Quality:   pick(a.rng, a.catalog.Removal.Quality),
			Seamless:  true,
			Artifacts: pick(a.rng, a.catalog.Removal.Artifacts),
		},
		ProcessingTime: fmt.Sprintf("%.1fs", 2+a.rng.Float64()*2),
		ModelVersion:   a.catalog.Removal.ModelVersion,
	}
	a.mu.Unlock()

	a.logger.Debug("subject removal scheduled", zap.String("photo_id", photoID), zap.String("subject_id", subjectID))
	return after(a.removalDelay, result, nil)
}

func (a *MockAnalyzer) drawFeatures(photo models.Photo) models.AIFeatures {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 1 + a.rng.Intn(4)
	people := make([]models.DetectedPerson, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("Unknown person %d", i+1)
		if i < len(photo.Children) {
			name = photo.Children[i]
		}
		w := round2(0.10 + a.rng.Float64()*0.20)
		h := round2(0.20 + a.rng.Float64()*0.20)
		x := round2(a.rng.Float64() * (1 - w))
		y := round2(a.rng.Float64() * (1 - h))
		people = append(people, models.DetectedPerson{
			ID:          fmt.Sprintf("person_%d", i+1),
			Name:        name,
			Confidence:  round2(0.85 + a.rng.Float64()*0.14),
			BoundingBox: [4]float64{x, y, w, h},
		})
	}

	scene := a.catalog.Scenes[a.rng.Intn(len(a.catalog.Scenes))]
	elements := append([]string(nil), scene.Elements...)
	a.rng.Shuffle(len(elements), func(i, j int) { elements[i], elements[j] = elements[j], elements[i] })
	keep := 2 + a.rng.Intn(3)
	if keep > len(elements) {
		keep = len(elements)
	}

	return models.AIFeatures{
		PersonDetection: people,
		BackgroundAnalysis: models.BackgroundAnalysis{
			SceneType:                scene.Type,
			Elements:                 elements[:keep],
			Complexity:               pick(a.rng, a.catalog.Complexity),
			ReconstructionDifficulty: pick(a.rng, a.catalog.ReconstructionDifficulty),
		},
	}
}

// after resolves a Deferred once d has elapsed. The timer is not cancelable.
func after[T any](d time.Duration, val T, err error) *Deferred[T] {
	if d <= 0 {
		return Resolved(val, err)
	}
	def := newDeferred[T]()
	time.AfterFunc(d, func() { def.resolve(val, err) })
	return def
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
