package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// TokenSource supplies a machine-to-machine token for catalog service calls.
type TokenSource func() (string, error)

// Fetcher resolves catalog events over HTTP from the catalog service.
type Fetcher struct {
	baseURL string
	client  *http.Client
	token   TokenSource
	logger  *logger.Logger
}

// NewFetcher creates a Fetcher against the catalog service base URL.
func NewFetcher(baseURL string, client *http.Client, token TokenSource, log *logger.Logger) *Fetcher {
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		token:   token,
		logger:  log,
	}
}

// GetEvent fetches one catalog event through the category dispatch table.
func (f *Fetcher) GetEvent(category models.EventCategory, eventID string) (*models.CatalogEvent, error) {
	resource, err := resourcePath(category)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/internal/v1/%s/%s", f.baseURL, resource, eventID)
	f.logger.Debug("CATALOG", fmt.Sprintf("Fetching event: %s", url))

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}

	token, err := f.token()
	if err != nil {
		f.logger.Error("CATALOG", fmt.Sprintf("Failed to obtain M2M token: %v", err))
		return nil, fmt.Errorf("failed to obtain catalog token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("CATALOG", fmt.Sprintf("Catalog service error: %v", err))
		return nil, fmt.Errorf("catalog service error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			f.logger.Error("CATALOG", fmt.Sprintf("Failed to close catalog response body: %v", cerr))
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Warn("CATALOG", fmt.Sprintf("Event not found: %s/%s", category, eventID))
		return nil, fmt.Errorf("event %s/%s: %w", category, eventID, apperr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		f.logger.Error("CATALOG", fmt.Sprintf("Catalog service returned status: %d", resp.StatusCode))
		return nil, fmt.Errorf("catalog service returned status: %d", resp.StatusCode)
	}

	var event models.CatalogEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		f.logger.Error("CATALOG", fmt.Sprintf("Failed to decode catalog response: %v", err))
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	event.Category = category

	f.logger.Info("CATALOG", fmt.Sprintf("Event fetched: %s (%s)", event.Title, event.EventID))
	return &event, nil
}
