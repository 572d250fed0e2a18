// Package review holds the review form's domain types: the submitted input,
// the platform choices, rating derivation, validation and the display block.
package review

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformUnset       Platform = ""
	PlatformGoogle      Platform = "Google"
	PlatformYelp        Platform = "Yelp"
	PlatformTripAdvisor Platform = "TripAdvisor"
	PlatformOther       Platform = "Other"
)

// Platforms lists the selectable options in display order, unset first.
var Platforms = []Platform{PlatformUnset, PlatformGoogle, PlatformYelp, PlatformTripAdvisor, PlatformOther}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return PlatformUnset, fmt.Errorf("unknown platform %q", s)
}

const (
	MaxRating    = 5
	MaxSelection = MaxRating - 1
)

// RatingFromSelection converts a zero-based star selection into a 1..5
// rating. No selection means an unrated review.
func RatingFromSelection(selection *int) int {
	if selection == nil {
		return 0
	}
	return *selection + 1
}

// Form is a raw submission as it arrives from any surface.
type Form struct {
	Review      string `json:"review"`
	Stakeholder string `json:"stakeholder"`
	Platform    string `json:"platform"`
	Selection   *int   `json:"selection,omitempty"`
}

type Input struct {
	Review      string   `json:"review"`
	Stakeholder string   `json:"stakeholder"`
	Rating      int      `json:"rating"`
	Platform    Platform `json:"platform"`
}

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// Build trims the form and validates it. Rating is optional.
func (f Form) Build() (Input, error) {
	input := Input{
		Review:      strings.TrimSpace(f.Review),
		Stakeholder: strings.TrimSpace(f.Stakeholder),
		Rating:      RatingFromSelection(f.Selection),
	}

	var bad []string
	if input.Review == "" {
		bad = append(bad, "review")
	}
	if input.Stakeholder == "" {
		bad = append(bad, "stakeholder")
	}

	platform, err := ParsePlatform(strings.TrimSpace(f.Platform))
	if err != nil || platform == PlatformUnset {
		bad = append(bad, "platform")
	}
	input.Platform = platform

	if f.Selection != nil && (*f.Selection < 0 || *f.Selection > MaxSelection) {
		bad = append(bad, "rating")
	}

	if len(bad) > 0 {
		return Input{}, &ValidationError{Fields: bad}
	}
	return input, nil
}

type Analysis struct {
	Input     Input     `json:"input"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Render produces the markdown display block for a finished analysis.
func Render(a *Analysis) string {
	if a == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Review Analysis\n")
	b.WriteString("---\n")
	fmt.Fprintf(&b, "**Review content:** %s\n", a.Input.Review)
	fmt.Fprintf(&b, "**Stakeholder:** %s\n", a.Input.Stakeholder)
	fmt.Fprintf(&b, "**Rating:** %d\n", a.Input.Rating)
	fmt.Fprintf(&b, "**Platform where review was posted:** %s\n", a.Input.Platform)
	b.WriteString("---\n")
	b.WriteString(a.Text)
	b.WriteString("\n")
	return b.String()
}
