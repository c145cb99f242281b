package enrich

import "context"

// Identity holds the subject fields received in a session init.
type Identity struct {
	Name       string
	BirthDate  string // YYYY-MM-DD
	BirthTime  string // HH:MM
	BirthPlace string
	Gender     string
}

// Coordinates is a best-effort geocoding result. Zero values mean the
// lookup failed or was skipped.
type Coordinates struct {
	Lat float64
	Lon float64
	OK  bool
}

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, place string) (Coordinates, error)
}

// ProfileSource fetches birth-chart facts for an identity.
type ProfileSource interface {
	BirthChart(ctx context.Context, id Identity, coords Coordinates) (ChartFacts, error)
}

// ChartFacts is the small set of chart attributes folded into the summary.
// Empty fields are simply omitted from the generated text.
type ChartFacts struct {
	Nakshatra string
	MoonSign  string
	SunSign   string
	Zodiac    string
}

func (c ChartFacts) Empty() bool {
	return c.Nakshatra == "" && c.MoonSign == "" && c.SunSign == "" && c.Zodiac == ""
}
