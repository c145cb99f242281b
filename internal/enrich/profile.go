package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ProfileClient talks to the birth-chart data API. The API issues short-lived
// session tokens in exchange for static client credentials; the token is
// cached until shortly before expiry.
type ProfileClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewProfileClient(baseURL, clientID, clientSecret string) *ProfileClient {
	return &ProfileClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured reports whether credentials are present. An unconfigured client
// is skipped by the fetcher rather than producing errors on every init.
func (p *ProfileClient) Configured() bool {
	return p.baseURL != "" && p.clientID != "" && p.clientSecret != ""
}

func (p *ProfileClient) BirthChart(ctx context.Context, id Identity, coords Coordinates) (ChartFacts, error) {
	if !p.Configured() {
		return ChartFacts{}, fmt.Errorf("profile api not configured")
	}
	if strings.TrimSpace(id.BirthDate) == "" {
		return ChartFacts{}, fmt.Errorf("birth date is required for chart lookup")
	}

	token, err := p.sessionToken(ctx)
	if err != nil {
		return ChartFacts{}, err
	}

	birthTime := strings.TrimSpace(id.BirthTime)
	if birthTime == "" {
		birthTime = "12:00"
	}

	u, err := url.Parse(p.baseURL + "/chart")
	if err != nil {
		return ChartFacts{}, fmt.Errorf("chart url: %w", err)
	}
	q := u.Query()
	q.Set("datetime", strings.TrimSpace(id.BirthDate)+"T"+birthTime+":00")
	if coords.OK {
		q.Set("coordinates", formatCoord(coords.Lat)+","+formatCoord(coords.Lon))
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	body, err := getWithRetry(ctx, p.client, u.String(), header)
	if err != nil {
		return ChartFacts{}, fmt.Errorf("chart fetch: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ChartFacts{}, fmt.Errorf("chart decode: %w", err)
	}
	return extractChartFacts(payload), nil
}

func (p *ProfileClient) sessionToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("token exchange status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("token decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access_token")
	}

	p.token = tok.AccessToken
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 5 * time.Minute
	}
	p.tokenExpiry = time.Now().Add(ttl - 30*time.Second)
	return p.token, nil
}

// extractChartFacts picks the attributes we fold into the summary out of the
// provider's nested response. Key layouts differ between chart endpoints, so
// a handful of spellings are probed; anything missing stays empty.
func extractChartFacts(payload map[string]any) ChartFacts {
	root := payload
	if data, ok := payload["data"].(map[string]any); ok {
		root = data
	}

	return ChartFacts{
		Nakshatra: nestedName(root, "nakshatra"),
		MoonSign:  firstNonEmpty(nestedName(root, "chandra_rasi"), nestedName(root, "moon_sign")),
		SunSign:   firstNonEmpty(nestedName(root, "soorya_rasi"), nestedName(root, "sun_sign")),
		Zodiac:    firstNonEmpty(nestedName(root, "zodiac"), nestedName(root, "zodiac_sign")),
	}
}

func nestedName(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
