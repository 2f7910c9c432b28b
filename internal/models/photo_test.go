package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoCloneIsDeep(t *testing.T) {
	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	original := Photo{
		ID:             "p1",
		Children:       []string{"Emma"},
		ConsentPending: []string{"Emma"},
		AIFeatures: &AIFeatures{
			PersonDetection:    []DetectedPerson{{ID: "person_1", Name: "Emma"}},
			BackgroundAnalysis: BackgroundAnalysis{Elements: []string{"trees"}},
		},
		PublishedAt: &published,
	}

	clone := original.Clone()
	clone.Children[0] = "Lucas"
	clone.ConsentPending[0] = "Lucas"
	clone.AIFeatures.PersonDetection[0].Name = "Lucas"
	clone.AIFeatures.BackgroundAnalysis.Elements[0] = "sky"
	*clone.PublishedAt = published.Add(time.Hour)

	assert.Equal(t, "Emma", original.Children[0])
	assert.Equal(t, "Emma", original.ConsentPending[0])
	assert.Equal(t, "Emma", original.AIFeatures.PersonDetection[0].Name)
	assert.Equal(t, "trees", original.AIFeatures.BackgroundAnalysis.Elements[0])
	assert.Equal(t, published, *original.PublishedAt)
}

func TestPhotoPatchApplyOnlySetFields(t *testing.T) {
	photo := Photo{Title: "Old", Location: "Gym", Status: PhotoStatusPendingConsent}
	title := "New"
	status := PhotoStatusApproved
	masked := "masked/p1.png"

	PhotoPatch{Title: &title, Status: &status, MaskedURL: &masked}.Apply(&photo)

	assert.Equal(t, "New", photo.Title)
	assert.Equal(t, "Gym", photo.Location)
	assert.Equal(t, PhotoStatusApproved, photo.Status)
	assert.Equal(t, masked, photo.MaskedURL)
}

func TestPhotoMediaKeysSkipsExternalRefs(t *testing.T) {
	photo := Photo{
		URL:            "https://cdn.example/p1.jpg",
		MaskedURL:      "masked/p1.png",
		EditedImageURL: "masked/p1.png",
	}
	assert.Equal(t, []string{"masked/p1.png"}, photo.MediaKeys())

	photo.URL = "originals/p1.jpg"
	assert.Equal(t, []string{"originals/p1.jpg", "masked/p1.png"}, photo.MediaKeys())
}

func TestSortedUnique(t *testing.T) {
	require.Equal(t, []string{"Emma", "Lucas"}, SortedUnique([]string{"Lucas", "Emma", "Lucas"}))
	require.Equal(t, []string{}, SortedUnique(nil))
}

func TestPhotoStatusValid(t *testing.T) {
	assert.True(t, PhotoStatusAIFailed.Valid())
	assert.False(t, PhotoStatus("archived").Valid())
}
