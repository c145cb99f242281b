package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPGeocoderLookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Delhi" {
			t.Errorf("q = %q, want %q", got, "Delhi")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"28.6139","lon":"77.2090"},{"lat":"0","lon":"0"}]`))
	}))
	defer ts.Close()

	g := NewHTTPGeocoder(ts.URL, "")
	coords, err := g.Lookup(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !coords.OK || coords.Lat != 28.6139 || coords.Lon != 77.209 {
		t.Fatalf("coords = %+v, want first result", coords)
	}
}

func TestHTTPGeocoderNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	g := NewHTTPGeocoder(ts.URL, "")
	if _, err := g.Lookup(context.Background(), "Nowhere"); err == nil {
		t.Fatalf("Lookup() with no results should fail")
	}
}

func TestHTTPGeocoderRetriesOnServerError(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"1.5","lon":"2.5"}]`))
	}))
	defer ts.Close()

	g := NewHTTPGeocoder(ts.URL, "")
	coords, err := g.Lookup(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", calls.Load())
	}
	if coords.Lat != 1.5 || coords.Lon != 2.5 {
		t.Fatalf("coords = %+v", coords)
	}
}

func TestProfileClientTokenExchangeAndChart(t *testing.T) {
	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("client_id") != "id-1" || r.Form.Get("client_secret") != "sec-1" {
			t.Errorf("credentials not forwarded: %v", r.Form)
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-abc","expires_in":3600}`))
	})
	mux.HandleFunc("/chart", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("datetime"); got != "1990-05-12T14:30:00" {
			t.Errorf("datetime = %q", got)
		}
		if got := r.URL.Query().Get("coordinates"); got != "28.6139,77.2090" {
			t.Errorf("coordinates = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":{"nakshatra":{"name":"Rohini"},"chandra_rasi":{"name":"Vrishabha"},"soorya_rasi":{"name":"Mesha"}}}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	p := NewProfileClient(ts.URL, "id-1", "sec-1")
	coords := Coordinates{Lat: 28.6139, Lon: 77.209, OK: true}

	facts, err := p.BirthChart(context.Background(), asha, coords)
	if err != nil {
		t.Fatalf("BirthChart() error = %v", err)
	}
	if facts.Nakshatra != "Rohini" || facts.MoonSign != "Vrishabha" || facts.SunSign != "Mesha" {
		t.Fatalf("facts = %+v", facts)
	}

	// Second fetch reuses the cached token.
	if _, err := p.BirthChart(context.Background(), asha, coords); err != nil {
		t.Fatalf("second BirthChart() error = %v", err)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token exchanges = %d, want 1", tokenCalls.Load())
	}
}

func TestProfileClientUnconfigured(t *testing.T) {
	p := NewProfileClient("", "", "")
	if p.Configured() {
		t.Fatalf("Configured() = true for empty credentials")
	}
	if _, err := p.BirthChart(context.Background(), asha, Coordinates{}); err == nil {
		t.Fatalf("BirthChart() on unconfigured client should fail")
	}
}
