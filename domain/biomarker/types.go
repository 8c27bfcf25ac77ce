package biomarker

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"biomark/domain/core"
)

// Marker identifies a molecular marker from the closed panel
type Marker string

const (
	Ki67  Marker = "Ki-67"
	HER2  Marker = "HER2"
	EGFR  Marker = "EGFR"
	ER    Marker = "ER"
	PR    Marker = "PR"
	P53   Marker = "p53"
	BRCA1 Marker = "BRCA1"
	BRCA2 Marker = "BRCA2"
)

// Markers is the panel in display order
var Markers = []Marker{Ki67, HER2, EGFR, ER, PR, P53, BRCA1, BRCA2}

// Valid reports whether m is on the panel
func (m Marker) Valid() bool {
	return markerIndex(m) >= 0
}

func markerIndex(m Marker) int {
	for i, candidate := range Markers {
		if candidate == m {
			return i
		}
	}
	return -1
}

// ParseMarker matches a marker name case-insensitively, ignoring dashes
func ParseMarker(s string) (Marker, error) {
	key := normalize(s)
	for _, m := range Markers {
		if normalize(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownMarker, s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "", "_", "").Replace(s)
}

// Intensity is the ordered staining intensity scale
type Intensity int

const (
	Negative Intensity = iota
	Weak
	Moderate
	Strong
)

// Intensities lists the scale from lowest to highest
var Intensities = []Intensity{Negative, Weak, Moderate, Strong}

var intensityLabels = [...]string{"Negative (0)", "Weak (1+)", "Moderate (2+)", "Strong (3+)"}
var intensityNames = [...]string{"Negative", "Weak", "Moderate", "Strong"}

// Score returns the semi-quantitative score 0..3
func (i Intensity) Score() int { return int(i) }

// Valid reports whether i is on the scale
func (i Intensity) Valid() bool { return i >= Negative && i <= Strong }

// String returns the full display label, e.g. "Strong (3+)"
func (i Intensity) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Intensity(%d)", int(i))
	}
	return intensityLabels[i]
}

// Name returns the short name, e.g. "Strong"
func (i Intensity) Name() string {
	if !i.Valid() {
		return ""
	}
	return intensityNames[i]
}

// ParseIntensity accepts the display label, the short name or the score
// ("Strong (3+)", "strong", "3+", "3").
func ParseIntensity(s string) (Intensity, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, i := range Intensities {
		score := fmt.Sprintf("%d", i.Score())
		switch key {
		case strings.ToLower(intensityLabels[i]), strings.ToLower(intensityNames[i]), score, score + "+":
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownIntensity, s)
}

func (i Intensity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Intensity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseIntensity(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Pattern is the cellular localization of the stain
type Pattern string

const (
	Nuclear     Pattern = "Nuclear"
	Cytoplasmic Pattern = "Cytoplasmic"
	Membranous  Pattern = "Membranous"
	Mixed       Pattern = "Mixed"
)

// Patterns lists the localization options
var Patterns = []Pattern{Nuclear, Cytoplasmic, Membranous, Mixed}

// ParsePattern matches a pattern case-insensitively. The empty string is
// accepted and means "not recorded".
func ParsePattern(s string) (Pattern, error) {
	key := strings.TrimSpace(s)
	if key == "" {
		return "", nil
	}
	for _, p := range Patterns {
		if strings.EqualFold(string(p), key) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownPattern, s)
}

// Reading is one marker observation
type Reading struct {
	Marker     Marker    `json:"marker"`
	Intensity  Intensity `json:"intensity"`
	Pattern    Pattern   `json:"pattern,omitempty"`
	Percentage *float64  `json:"percentage,omitempty"`
}

// Validate checks the reading against the closed sets and ranges
func (r Reading) Validate() error {
	if !r.Marker.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownMarker, string(r.Marker))
	}
	if !r.Intensity.Valid() {
		return fmt.Errorf("%w: %d", core.ErrUnknownIntensity, int(r.Intensity))
	}
	if r.Pattern != "" {
		if _, err := ParsePattern(string(r.Pattern)); err != nil {
			return err
		}
	}
	if r.Percentage != nil && (math.IsNaN(*r.Percentage) || *r.Percentage < 0 || *r.Percentage > 100) {
		return core.NewRangeError(string(r.Marker)+" percentage", *r.Percentage, 0, 100)
	}
	return nil
}

// PercentageText renders the percentage or an empty string
func (r Reading) PercentageText() string {
	if r.Percentage == nil {
		return ""
	}
	return fmt.Sprintf("%g%%", *r.Percentage)
}

// Percent is a convenience for building readings
func Percent(v float64) *float64 { return &v }

// Readings maps a marker to its reading
type Readings map[Marker]Reading

// Validate validates every reading and checks keys agree with readings
func (rs Readings) Validate() error {
	for m, r := range rs {
		if m != r.Marker {
			return core.NewValidationError(string(m), "reading stored under a different marker")
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Sorted returns readings in panel order
func (rs Readings) Sorted() []Reading {
	out := make([]Reading, 0, len(rs))
	for _, r := range rs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return markerIndex(out[i].Marker) < markerIndex(out[j].Marker)
	})
	return out
}

// Clone deep-copies the readings including percentage pointers
func (rs Readings) Clone() Readings {
	if rs == nil {
		return nil
	}
	out := make(Readings, len(rs))
	for m, r := range rs {
		if r.Percentage != nil {
			r.Percentage = Percent(*r.Percentage)
		}
		out[m] = r
	}
	return out
}
