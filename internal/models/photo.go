package models

import (
	"sort"
	"time"
)

// PhotoStatus is the workflow state of a photo.
type PhotoStatus string

const (
	PhotoStatusPendingConsent PhotoStatus = "pending_consent"
	PhotoStatusAIProcessing   PhotoStatus = "ai_processing"
	PhotoStatusApproved       PhotoStatus = "approved"
	PhotoStatusPublished      PhotoStatus = "published"
	PhotoStatusAIFailed       PhotoStatus = "ai_failed"
)

// Valid reports whether s is a known status.
func (s PhotoStatus) Valid() bool {
	switch s {
	case PhotoStatusPendingConsent, PhotoStatusAIProcessing, PhotoStatusApproved, PhotoStatusPublished, PhotoStatusAIFailed:
		return true
	}
	return false
}

// Photo is one uploaded image and its consent workflow state.
type Photo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Teacher     string `json:"teacher"`
	Date        string `json:"date,omitempty"`

	Children       []string    `json:"children"`
	Status         PhotoStatus `json:"status"`
	ConsentGiven   []string    `json:"consentGiven"`
	ConsentPending []string    `json:"consentPending"`

	AIProcessed    bool        `json:"aiProcessed"`
	AIFeatures     *AIFeatures `json:"aiFeatures,omitempty"`
	MaskedURL      string      `json:"maskedUrl,omitempty"`
	EditedImageURL string      `json:"editedImageUrl,omitempty"`

	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (p Photo) Clone() Photo {
	out := p
	out.Children = cloneStrings(p.Children)
	out.ConsentGiven = cloneStrings(p.ConsentGiven)
	out.ConsentPending = cloneStrings(p.ConsentPending)
	if p.AIFeatures != nil {
		features := p.AIFeatures.Clone()
		out.AIFeatures = &features
	}
	if p.PublishedAt != nil {
		ts := *p.PublishedAt
		out.PublishedAt = &ts
	}
	return out
}

// HasChild reports whether name is listed as a subject.
func (p Photo) HasChild(name string) bool {
	for _, child := range p.Children {
		if child == name {
			return true
		}
	}
	return false
}

// MediaKeys lists storage keys owned by the photo.
func (p Photo) MediaKeys() []string {
	keys := make([]string, 0, 3)
	for _, ref := range []string{p.URL, p.MaskedURL, p.EditedImageURL} {
		if IsMediaKey(ref) && !containsString(keys, ref) {
			keys = append(keys, ref)
		}
	}
	return keys
}

// AIFeatures is the annotation bundle attached after analysis.
type AIFeatures struct {
	PersonDetection    []DetectedPerson   `json:"personDetection"`
	BackgroundAnalysis BackgroundAnalysis `json:"backgroundAnalysis"`
}

// Clone returns a deep copy.
func (f AIFeatures) Clone() AIFeatures {
	out := f
	out.PersonDetection = append([]DetectedPerson(nil), f.PersonDetection...)
	out.BackgroundAnalysis.Elements = cloneStrings(f.BackgroundAnalysis.Elements)
	return out
}

// Person returns the detection with the given id.
func (f AIFeatures) Person(id string) (DetectedPerson, bool) {
	for _, p := range f.PersonDetection {
		if p.ID == id {
			return p, true
		}
	}
	return DetectedPerson{}, false
}

// DetectedPerson is one simulated face detection.
// BoundingBox is x, y, width, height as fractions of the image.
type DetectedPerson struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Confidence  float64    `json:"confidence"`
	BoundingBox [4]float64 `json:"boundingBox"`
}

// BackgroundAnalysis describes the simulated scene assessment.
type BackgroundAnalysis struct {
	SceneType                string   `json:"sceneType"`
	Elements                 []string `json:"elements"`
	Complexity               string   `json:"complexity"`
	ReconstructionDifficulty string   `json:"reconstructionDifficulty"`
}

// BackgroundReconstruction reports the simulated inpainting quality.
type BackgroundReconstruction struct {
	Quality   string `json:"quality"`
	Seamless  bool   `json:"seamless"`
	Artifacts string `json:"artifacts"`
}

// SubjectRemovalResult is returned by the simulated subject removal.
type SubjectRemovalResult struct {
	Success                  bool                     `json:"success"`
	BackgroundReconstruction BackgroundReconstruction `json:"backgroundReconstruction"`
	ProcessingTime           string                   `json:"processingTime"`
	ModelVersion             string                   `json:"modelVersion"`
}

// PhotoPatch carries a shallow merge; nil fields are left untouched.
type PhotoPatch struct {
	Title          *string
	Description    *string
	Location       *string
	Teacher        *string
	Date           *string
	Children       *[]string
	Status         *PhotoStatus
	ConsentGiven   *[]string
	ConsentPending *[]string
	AIProcessed    *bool
	AIFeatures     *AIFeatures
	MaskedURL      *string
	EditedImageURL *string
	PublishedAt    *time.Time
}

// Apply merges the patch into p.
func (patch PhotoPatch) Apply(p *Photo) {
	setString(&p.Title, patch.Title)
	setString(&p.Description, patch.Description)
	setString(&p.Location, patch.Location)
	setString(&p.Teacher, patch.Teacher)
	setString(&p.Date, patch.Date)
	setString(&p.MaskedURL, patch.MaskedURL)
	setString(&p.EditedImageURL, patch.EditedImageURL)
	if patch.Children != nil {
		p.Children = cloneStrings(*patch.Children)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.ConsentGiven != nil {
		p.ConsentGiven = cloneStrings(*patch.ConsentGiven)
	}
	if patch.ConsentPending != nil {
		p.ConsentPending = cloneStrings(*patch.ConsentPending)
	}
	if patch.AIProcessed != nil {
		p.AIProcessed = *patch.AIProcessed
	}
	if patch.AIFeatures != nil {
		features := patch.AIFeatures.Clone()
		p.AIFeatures = &features
	}
	if patch.PublishedAt != nil {
		ts := *patch.PublishedAt
		p.PublishedAt = &ts
	}
}

// Media key prefixes under the media storage root.
const (
	MediaPrefixOriginal = "originals/"
	MediaPrefixMasked   = "masked/"
)

// IsMediaKey reports whether ref points at locally stored media rather than an external URL.
func IsMediaKey(ref string) bool {
	return hasPrefix(ref, MediaPrefixOriginal) || hasPrefix(ref, MediaPrefixMasked)
}

// SortedUnique returns a sorted copy of values without duplicates.
func SortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
