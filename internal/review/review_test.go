package review

import (
	"errors"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestRatingFromSelection(t *testing.T) {
	if got := RatingFromSelection(nil); got != 0 {
		t.Fatalf("no selection = %d, want 0", got)
	}
	for k := 0; k <= MaxSelection; k++ {
		if got := RatingFromSelection(intPtr(k)); got != k+1 {
			t.Fatalf("selection %d = %d, want %d", k, got, k+1)
		}
	}
}

func TestFormBuildValid(t *testing.T) {
	input, err := Form{
		Review:      "  Great service!  ",
		Stakeholder: " Acme Diner",
		Platform:    "Yelp",
		Selection:   intPtr(4),
	}.Build()
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}

	want := Input{Review: "Great service!", Stakeholder: "Acme Diner", Rating: 5, Platform: PlatformYelp}
	if input != want {
		t.Fatalf("input = %+v, want %+v", input, want)
	}
}

func TestFormBuildRatingOptional(t *testing.T) {
	input, err := Form{Review: "ok", Stakeholder: "Hotel", Platform: "Other"}.Build()
	if err != nil {
		t.Fatalf("Build err: %v", err)
	}
	if input.Rating != 0 {
		t.Fatalf("Rating = %d, want 0", input.Rating)
	}
}

func TestFormBuildRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		form  Form
		field string
	}{
		{"empty review", Form{Review: "   ", Stakeholder: "Acme", Platform: "Google"}, "review"},
		{"empty stakeholder", Form{Review: "fine", Platform: "Google"}, "stakeholder"},
		{"unset platform", Form{Review: "fine", Stakeholder: "Acme"}, "platform"},
		{"unknown platform", Form{Review: "fine", Stakeholder: "Acme", Platform: "Amazon"}, "platform"},
		{"selection out of range", Form{Review: "fine", Stakeholder: "Acme", Platform: "Google", Selection: intPtr(5)}, "rating"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.form.Build()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if len(verr.Fields) != 1 || verr.Fields[0] != tc.field {
				t.Fatalf("fields = %v, want [%s]", verr.Fields, tc.field)
			}
		})
	}
}

func TestRender(t *testing.T) {
	out := Render(&Analysis{
		Input: Input{Review: "Great service!", Stakeholder: "Acme Diner", Rating: 5, Platform: PlatformYelp},
		Text:  "Legitimacy: 0.9",
	})

	for _, want := range []string{
		"**Review content:** Great service!",
		"**Stakeholder:** Acme Diner",
		"**Rating:** 5",
		"**Platform where review was posted:** Yelp",
		"Legitimacy: 0.9",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}

	if Render(nil) != "" {
		t.Error("nil analysis must render nothing")
	}
}
