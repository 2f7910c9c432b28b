package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kindrid-api/internal/models"
)

func newTestAnalyzer(t *testing.T, seed int64) *MockAnalyzer {
	t.Helper()
	analyzer, err := NewMockAnalyzer(MockAnalyzerConfig{Seed: seed})
	require.NoError(t, err)
	return analyzer
}

func TestMockAnalyzerIsDeterministicPerSeed(t *testing.T) {
	photo := models.Photo{ID: "p1", Children: []string{"Emma", "Lucas"}}
	ctx := context.Background()

	a, err := newTestAnalyzer(t, 7).Analyze(photo).Wait(ctx)
	require.NoError(t, err)
	b, err := newTestAnalyzer(t, 7).Analyze(photo).Wait(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different features (-a +b):\n%s", diff)
	}
}

func TestMockAnalyzerFeatureShape(t *testing.T) {
	analyzer := newTestAnalyzer(t, 99)
	photo := models.Photo{ID: "p1", Children: []string{"Emma"}}

	for i := 0; i < 50; i++ {
		features, err := analyzer.Analyze(photo).Wait(context.Background())
		require.NoError(t, err)

		people := features.PersonDetection
		require.GreaterOrEqual(t, len(people), 1)
		require.LessOrEqual(t, len(people), 4)
		assert.Equal(t, "Emma", people[0].Name)
		for idx, person := range people {
			if idx > 0 {
				assert.Contains(t, person.Name, "Unknown person")
			}
			assert.GreaterOrEqual(t, person.Confidence, 0.85)
			assert.LessOrEqual(t, person.Confidence, 0.99)
			for _, v := range person.BoundingBox {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
		bg := features.BackgroundAnalysis
		assert.NotEmpty(t, bg.SceneType)
		assert.NotEmpty(t, bg.Elements)
		assert.Contains(t, []string{"low", "medium", "high"}, bg.Complexity)
	}
}

func TestMockAnalyzerHonoursDelay(t *testing.T) {
	analyzer, err := NewMockAnalyzer(MockAnalyzerConfig{Seed: 1, Delay: 20 * time.Millisecond})
	require.NoError(t, err)

	deferred := analyzer.Analyze(models.Photo{ID: "p1"})
	select {
	case <-deferred.Done():
		t.Fatal("resolved before delay")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = deferred.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	features, err := deferred.Wait(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, features.PersonDetection)
}

func TestMockAnalyzerSubjectRemoval(t *testing.T) {
	result, err := newTestAnalyzer(t, 3).RemoveSubjectAndRebuildBackground("p1", "person_1").Wait(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.BackgroundReconstruction.Seamless)
	assert.Contains(t, []string{"excellent", "good"}, result.BackgroundReconstruction.Quality)
	assert.Contains(t, []string{"none", "minimal"}, result.BackgroundReconstruction.Artifacts)
	assert.NotEmpty(t, result.ProcessingTime)
	assert.Equal(t, "kindrid-inpaint-sim-2.1", result.ModelVersion)
}

func TestLoadAnalyzerCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `scenes:
  - type: stage
    elements: [curtain, lights]
complexity: [low]
reconstructionDifficulty: [easy]
removal:
  quality: [good]
  artifacts: [none]
  modelVersion: custom-1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadAnalyzerCatalog(path)
	require.NoError(t, err)
	analyzer, err := NewMockAnalyzer(MockAnalyzerConfig{Seed: 5, Catalog: catalog})
	require.NoError(t, err)

	features, err := analyzer.Analyze(models.Photo{ID: "p"}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stage", features.BackgroundAnalysis.SceneType)
	assert.ElementsMatch(t, []string{"curtain", "lights"}, features.BackgroundAnalysis.Elements)
}

func TestLoadAnalyzerCatalogRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenes: []\n"), 0o600))

	_, err := LoadAnalyzerCatalog(path)
	require.Error(t, err)
}
