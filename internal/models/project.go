package models

import (
	"strings"
	"time"
)

// Source identifies the listing portal an ad was scraped from.
type Source string

const (
	SourceImmobiliare Source = "immobiliare"
	SourceIdealista   Source = "idealista"
)

// AdStatus is a pipeline label for a property ad. The values are labels,
// not a state machine: any value may follow any other.
type AdStatus string

const (
	StatusToReachOut     AdStatus = "to-reach-out"
	StatusVisitScheduled AdStatus = "visit-scheduled"
	StatusOfferSent      AdStatus = "offer-sent"
	StatusBought         AdStatus = "bought"
	StatusRejected       AdStatus = "rejected"
)

// ValidAdStatus reports whether s is one of the known pipeline labels.
func ValidAdStatus(s AdStatus) bool {
	switch s {
	case StatusToReachOut, StatusVisitScheduled, StatusOfferSent, StatusBought, StatusRejected:
		return true
	}
	return false
}

// RenovationCondition classifies how much refurbishment a listing needs.
type RenovationCondition string

const (
	ConditionNew             RenovationCondition = "new"
	ConditionMinorWorkNeeded RenovationCondition = "minor-work-needed"
	ConditionMajorRenovation RenovationCondition = "major-renovation-needed"
)

// ValidRenovationCondition reports whether c is a known classification.
func ValidRenovationCondition(c RenovationCondition) bool {
	switch c {
	case ConditionNew, ConditionMinorWorkNeeded, ConditionMajorRenovation:
		return true
	}
	return false
}

// PropertyAd is one scraped listing within a research project.
// ID is assigned exactly once by the actor at creation and never changes.
// Status and Notes are the only fields mutable after creation.
type PropertyAd struct {
	ID                  string              `json:"id"`
	URL                 string              `json:"url"`
	Source              Source              `json:"source"`
	Title               string              `json:"title"`
	Price               *float64            `json:"price,omitempty"`
	Location            string              `json:"location"`
	SizeSqm             *float64            `json:"size_sqm,omitempty"`
	Rooms               *int                `json:"rooms,omitempty"`
	Bathrooms           *int                `json:"bathrooms,omitempty"`
	Description         string              `json:"description"`
	Summary             string              `json:"summary"`
	RenovationCondition RenovationCondition `json:"renovation_condition"`
	Features            []string            `json:"features"`
	Status              AdStatus            `json:"status"`
	Notes               string              `json:"notes,omitempty"`
	ListingAge          string              `json:"listing_age"`
	ScrapedAt           time.Time           `json:"scraped_at"`
}

// QuestionAnswer is one entry in a project's append-only Q&A history.
type QuestionAnswer struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// ResearchProject is the materialized state of one durable actor key.
// Criteria is immutable after creation; a project with empty criteria is
// treated as nonexistent. Ads and Questions are append-only, insertion order.
type ResearchProject struct {
	Name      string           `json:"name" badgerhold:"key"`
	Criteria  string           `json:"criteria"`
	CreatedAt time.Time        `json:"created_at"`
	Ads       []PropertyAd     `json:"ads"`
	Questions []QuestionAnswer `json:"questions"`
}

// Exists reports whether the project has been created.
func (p *ResearchProject) Exists() bool {
	return p != nil && strings.TrimSpace(p.Criteria) != ""
}

// FindAd returns a pointer into the Ads slice for the given id, or nil.
func (p *ResearchProject) FindAd(adID string) *PropertyAd {
	for i := range p.Ads {
		if p.Ads[i].ID == adID {
			return &p.Ads[i]
		}
	}
	return nil
}
