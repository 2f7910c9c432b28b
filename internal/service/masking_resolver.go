package service

import "github.com/noah-isme/kindrid-api/internal/models"

// MaskingResolver decides which image reference a viewer should render.
type MaskingResolver struct{}

// NewMaskingResolver constructs the resolver.
func NewMaskingResolver() *MaskingResolver {
	return &MaskingResolver{}
}

// Resolve returns the masked reference while any subject is still pending on a
// processed photo, and the original otherwise.
func (r *MaskingResolver) Resolve(photo models.Photo) string {
	if photo.AIProcessed && len(photo.ConsentPending) > 0 {
		if photo.EditedImageURL != "" {
			return photo.EditedImageURL
		}
		if photo.MaskedURL != "" {
			return photo.MaskedURL
		}
	}
	return photo.URL
}

// IsMasked reports whether Resolve would pick a derived image.
func (r *MaskingResolver) IsMasked(photo models.Photo) bool {
	return r.Resolve(photo) != photo.URL
}
