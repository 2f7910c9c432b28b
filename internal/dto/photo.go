package dto

import (
	"io"
	"time"

	"github.com/noah-isme/kindrid-api/internal/models"
)

// UploadPhotoRequest carries photo metadata from multipart forms or JSON bodies.
// URL is only used when no file is attached.
type UploadPhotoRequest struct {
	Title       string   `json:"title" form:"title" validate:"max=200"`
	Description string   `json:"description" form:"description" validate:"max=2000"`
	Location    string   `json:"location" form:"location" validate:"max=200"`
	Teacher     string   `json:"teacher" form:"teacher" validate:"max=200"`
	Date        string   `json:"date" form:"date" validate:"omitempty,datetime=2006-01-02"`
	Children    []string `json:"children" form:"children" validate:"min=1,unique,dive,subject_name"`
	URL         string   `json:"url" form:"url" validate:"omitempty,url"`
}

// MediaUpload is an uploaded image stream.
type MediaUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// UpdatePhotoRequest edits metadata; nil fields are left untouched.
type UpdatePhotoRequest struct {
	Title       *string   `json:"title" validate:"omitempty,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Location    *string   `json:"location" validate:"omitempty,max=200"`
	Teacher     *string   `json:"teacher" validate:"omitempty,max=200"`
	Date        *string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Children    *[]string `json:"children" validate:"omitempty,min=1,unique,dive,subject_name"`
}

// ConsentDecisionRequest records guardian decisions for a photo.
type ConsentDecisionRequest struct {
	Granted []string `json:"granted"`
	Denied  []string `json:"denied"`
}

// PhotoQuery filters photo listings.
type PhotoQuery struct {
	Status models.PhotoStatus
	Child  string
}

// DisplayResponse tells a viewer what to render and what to fall back to.
type DisplayResponse struct {
	PhotoID     string     `json:"photoId"`
	URL         string     `json:"url"`
	FallbackURL string     `json:"fallbackUrl"`
	Masked      bool       `json:"masked"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// SubjectRemovalResponse pairs the simulated result with the updated photo.
type SubjectRemovalResponse struct {
	Result models.SubjectRemovalResult `json:"result"`
	Photo  *models.Photo               `json:"photo"`
}

// MediaFile is a resolved media payload ready to stream.
type MediaFile struct {
	Key         string
	ContentType string
	Data        []byte
}

// Report is a rendered document download.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}
