package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// M2MSource obtains machine-to-machine tokens from Keycloak for calls to the
// catalog service, caching them in Redis until shortly before expiry.
type M2MSource struct {
	cfg    config.AuthConfig
	client *http.Client
	cache  *RedisTokenCache
	logger *logger.Logger
}

func NewM2MSource(cfg config.AuthConfig, client *http.Client, cache *RedisTokenCache, log *logger.Logger) *M2MSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &M2MSource{cfg: cfg, client: client, cache: cache, logger: log}
}

// Token returns a valid M2M token, from the cache when possible. The
// signature matches the catalog fetcher's TokenSource.
func (s *M2MSource) Token() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.cache != nil {
		cached, err := s.cache.GetToken(ctx)
		if err != nil {
			s.logger.Warn("AUTH", fmt.Sprintf("Token cache read failed, fetching fresh: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	token, expiresIn, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.SetToken(ctx, token, expiresIn); err != nil {
			s.logger.Warn("AUTH", fmt.Sprintf("Failed to cache M2M token: %v", err))
		}
	}
	return token, nil
}

// fetch performs the client-credentials grant against Keycloak.
func (s *M2MSource) fetch(ctx context.Context) (string, int, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", s.cfg.KeycloakURL, s.cfg.Realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.cfg.ClientID)
	data.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("AUTH", fmt.Sprintf("Keycloak token request failed: %v", err))
		return "", 0, fmt.Errorf("keycloak token request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Error("AUTH", fmt.Sprintf("Failed to close token response body: %v", cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		s.logger.Error("AUTH", fmt.Sprintf("Keycloak returned %s: %s", resp.Status, string(body)))
		return "", 0, fmt.Errorf("keycloak token request returned %s", resp.Status)
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("keycloak returned an empty access token")
	}

	s.logger.Info("AUTH", fmt.Sprintf("Obtained M2M token for client %s (expires in %ds)", s.cfg.ClientID, tokenResp.ExpiresIn))
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}
