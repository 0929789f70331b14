package models

// M2MTokenResponse is the client-credentials grant response from Keycloak.
type M2MTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
