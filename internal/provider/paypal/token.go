package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
)

// tokenSource caches a client-credentials access token until shortly before
// it expires.
type tokenSource struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(baseURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// Token returns a valid access token, refreshing it when expired.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expiresAt) {
		return t.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", domainerr.NewProviderError(ProviderName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domainerr.NewProviderError(ProviderName, err)
	}
	if resp.StatusCode >= 400 {
		return "", domainerr.NewProviderError(ProviderName,
			fmt.Errorf("token request returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", domainerr.NewProviderError(ProviderName, err)
	}
	if parsed.AccessToken == "" {
		return "", domainerr.NewProviderError(ProviderName, fmt.Errorf("token response missing access_token"))
	}

	t.token = parsed.AccessToken
	// Refresh a minute early to avoid racing the expiry.
	t.expiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn-60) * time.Second)
	return t.token, nil
}
