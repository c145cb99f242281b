package enrich

import (
	"context"
	"log"
	"strings"
)

// Fetch outcomes, used for metrics and audit.
const (
	OutcomeFull    = "full"
	OutcomePartial = "partial"
	OutcomeMinimal = "minimal"
)

// Fetcher composes the geocode and birth-chart lookups into a single
// natural-language summary. Every failure path degrades to whatever text can
// still be assembled; Summary never returns an error, because a broken
// auxiliary service must not abort session init.
type Fetcher struct {
	geocoder Geocoder
	profile  ProfileSource
}

func NewFetcher(geocoder Geocoder, profile ProfileSource) *Fetcher {
	return &Fetcher{geocoder: geocoder, profile: profile}
}

// Summary builds the enrichment text for one init. The outcome reports how
// much of the lookup chain succeeded.
func (f *Fetcher) Summary(ctx context.Context, id Identity) (string, string) {
	var coords Coordinates
	geocodeOK := false
	if f.geocoder != nil && strings.TrimSpace(id.BirthPlace) != "" {
		c, err := f.geocoder.Lookup(ctx, id.BirthPlace)
		if err != nil {
			log.Printf("enrich: geocode lookup failed for %q: %v", id.BirthPlace, err)
		} else {
			coords = c
			geocodeOK = true
		}
	}

	var facts ChartFacts
	chartOK := false
	if f.profile != nil {
		fc, err := f.profile.BirthChart(ctx, id, coords)
		if err != nil {
			log.Printf("enrich: birth chart lookup failed: %v", err)
		} else if !fc.Empty() {
			facts = fc
			chartOK = true
		}
	}

	outcome := OutcomeMinimal
	switch {
	case geocodeOK && chartOK:
		outcome = OutcomeFull
	case geocodeOK || chartOK:
		outcome = OutcomePartial
	}

	return buildSummary(id, coords, facts), outcome
}

func buildSummary(id Identity, coords Coordinates, facts ChartFacts) string {
	var b strings.Builder

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = "the caller"
	}
	b.WriteString("You are speaking with " + name + ".")

	if g := strings.TrimSpace(id.Gender); g != "" {
		b.WriteString(" They identify as " + g + ".")
	}

	if d := strings.TrimSpace(id.BirthDate); d != "" {
		b.WriteString(" They were born on " + d)
		if t := strings.TrimSpace(id.BirthTime); t != "" {
			b.WriteString(" at " + t)
		}
		if p := strings.TrimSpace(id.BirthPlace); p != "" {
			b.WriteString(" in " + p)
			if coords.OK {
				b.WriteString(" (" + formatCoord(coords.Lat) + ", " + formatCoord(coords.Lon) + ")")
			}
		}
		b.WriteString(".")
	}

	var chart []string
	if facts.Nakshatra != "" {
		chart = append(chart, "nakshatra "+facts.Nakshatra)
	}
	if facts.MoonSign != "" {
		chart = append(chart, "moon sign "+facts.MoonSign)
	}
	if facts.SunSign != "" {
		chart = append(chart, "sun sign "+facts.SunSign)
	}
	if facts.Zodiac != "" {
		chart = append(chart, "zodiac "+facts.Zodiac)
	}
	if len(chart) > 0 {
		b.WriteString(" Their birth chart shows " + strings.Join(chart, ", ") + ".")
	}

	b.WriteString(" Address them warmly by name and keep your guidance grounded in these details.")
	return b.String()
}
