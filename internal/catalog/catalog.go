package catalog

import (
	"fmt"

	"ms-booking/internal/apperr"
	"ms-booking/internal/models"
)

// Accessor is the read-only view of the catalog the booking core consumes.
// Catalog CRUD lives in the catalog service; the core only resolves events
// to snapshot their pricing and scheduling limits at mutation time.
type Accessor interface {
	GetEvent(category models.EventCategory, eventID string) (*models.CatalogEvent, error)
}

// categoryPaths is the closed dispatch table from event category to the
// catalog service resource. Adding a category means adding a row here; an
// unknown category can never reach the wire.
var categoryPaths = map[models.EventCategory]string{
	models.CategoryBirthdayEvent:     "birthday-events",
	models.CategoryExperientialEvent: "experiential-events",
	models.CategoryAddOn:             "addons",
}

func resourcePath(category models.EventCategory) (string, error) {
	path, ok := categoryPaths[category]
	if !ok {
		return "", fmt.Errorf("unknown event category %q: %w", category, apperr.ErrNotFound)
	}
	return path, nil
}

// Static is an in-memory Accessor used by tests and local development.
type Static struct {
	events map[string]*models.CatalogEvent
}

// NewStatic builds a Static accessor over the given events.
func NewStatic(events ...*models.CatalogEvent) *Static {
	m := make(map[string]*models.CatalogEvent, len(events))
	for _, e := range events {
		m[staticKey(e.Category, e.EventID)] = e
	}
	return &Static{events: m}
}

func staticKey(category models.EventCategory, eventID string) string {
	return string(category) + "/" + eventID
}

func (s *Static) GetEvent(category models.EventCategory, eventID string) (*models.CatalogEvent, error) {
	if _, err := resourcePath(category); err != nil {
		return nil, err
	}
	e, ok := s.events[staticKey(category, eventID)]
	if !ok {
		return nil, fmt.Errorf("event %s/%s: %w", category, eventID, apperr.ErrNotFound)
	}
	return e, nil
}
