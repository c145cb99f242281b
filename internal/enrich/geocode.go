package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taraworks/taravoice/internal/reliability"
)

// HTTPGeocoder resolves place names through a forward-geocoding HTTP API.
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGeocoder(baseURL, apiKey string) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *HTTPGeocoder) Lookup(ctx context.Context, place string) (Coordinates, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return Coordinates{}, fmt.Errorf("empty place name")
	}

	u, err := url.Parse(g.baseURL + "/search")
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode url: %w", err)
	}
	q := u.Query()
	q.Set("q", place)
	if g.apiKey != "" {
		q.Set("api_key", g.apiKey)
	}
	u.RawQuery = q.Encode()

	body, err := getWithRetry(ctx, g.client, u.String(), nil)
	if err != nil {
		return Coordinates{}, err
	}

	// The geocoding API encodes coordinates as strings.
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return Coordinates{}, fmt.Errorf("geocode decode: %w", err)
	}
	if len(results) == 0 {
		return Coordinates{}, fmt.Errorf("no geocode results for %q", place)
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return Coordinates{}, fmt.Errorf("geocode coordinates unparseable for %q", place)
	}
	return Coordinates{Lat: lat, Lon: lon, OK: true}, nil
}

// getWithRetry performs a GET and retries once on retryable status codes.
func getWithRetry(ctx context.Context, client *http.Client, rawURL string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		res, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			body, err := io.ReadAll(res.Body)
			res.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			return body, nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		lastErr = fmt.Errorf("http status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
