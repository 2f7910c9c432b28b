package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/kindrid-api/internal/models"
)

func TestMaskingResolver(t *testing.T) {
	resolver := NewMaskingResolver()
	base := models.Photo{URL: "originals/p.jpg", MaskedURL: "masked/p.png", EditedImageURL: "masked/p-edited.png"}

	cases := []struct {
		name      string
		processed bool
		pending   []string
		edited    string
		want      string
	}{
		{name: "nothing pending, processed", processed: true, edited: base.EditedImageURL, want: base.URL},
		{name: "nothing pending, unprocessed", processed: false, edited: base.EditedImageURL, want: base.URL},
		{name: "pending but unprocessed", processed: false, pending: []string{"Lucas"}, edited: base.EditedImageURL, want: base.URL},
		{name: "pending and processed", processed: true, pending: []string{"Lucas"}, edited: base.EditedImageURL, want: base.EditedImageURL},
		{name: "falls back to masked", processed: true, pending: []string{"Lucas"}, want: base.MaskedURL},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			photo := base
			photo.AIProcessed = tc.processed
			photo.ConsentPending = tc.pending
			photo.EditedImageURL = tc.edited
			assert.Equal(t, tc.want, resolver.Resolve(photo))
			assert.Equal(t, tc.want != base.URL, resolver.IsMasked(photo))
		})
	}
}
