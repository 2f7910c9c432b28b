package service

import (
	"strings"

	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
)

// ConsentLedger moves subject names between a photo's granted and pending sets.
// Both sets stay sorted and duplicate free, and a name is in at most one of them.
type ConsentLedger struct{}

// NewConsentLedger constructs the ledger.
func NewConsentLedger() *ConsentLedger {
	return &ConsentLedger{}
}

// Reset starts consent tracking over: nobody granted, every child pending.
func (l *ConsentLedger) Reset(photo *models.Photo) {
	photo.ConsentGiven = []string{}
	photo.ConsentPending = models.SortedUnique(photo.Children)
}

// Grant moves name to the granted set. Granting twice is a no-op.
func (l *ConsentLedger) Grant(photo *models.Photo, name string) {
	photo.ConsentPending = without(photo.ConsentPending, name)
	photo.ConsentGiven = models.SortedUnique(append(photo.ConsentGiven, name))
}

// Revoke moves name to the pending set. Revoking twice is a no-op.
func (l *ConsentLedger) Revoke(photo *models.Photo, name string) {
	photo.ConsentGiven = without(photo.ConsentGiven, name)
	photo.ConsentPending = models.SortedUnique(append(photo.ConsentPending, name))
}

// IsFullyResolved is true when nobody is waiting on a decision.
func (l *ConsentLedger) IsFullyResolved(photo models.Photo) bool {
	return len(photo.ConsentPending) == 0
}

// ValidateDecisions checks that every name is a listed child and no name is both
// granted and denied.
func (l *ConsentLedger) ValidateDecisions(photo models.Photo, granted, denied []string) error {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, name := range granted {
		if !photo.HasChild(name) {
			return appErrors.Clone(appErrors.ErrValidation, "subject "+quote(name)+" is not in this photo")
		}
		grantedSet[name] = struct{}{}
	}
	for _, name := range denied {
		if !photo.HasChild(name) {
			return appErrors.Clone(appErrors.ErrValidation, "subject "+quote(name)+" is not in this photo")
		}
		if _, ok := grantedSet[name]; ok {
			return appErrors.Clone(appErrors.ErrValidation, "subject "+quote(name)+" cannot be both granted and denied")
		}
	}
	return nil
}

func without(values []string, name string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
