package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	starsRe    = regexp.MustCompile(`(\d(?:\.\d)?)\s*stars?`)
	plusRe     = regexp.MustCompile(`\b(\d)\+`)
	goodPhrase = []string{"good reviews", "well rated"}
)

// MinRating extracts a minimum-rating requirement from query text.
// Returns 0 when the text carries no rating intent.
func MinRating(text string) float64 {
	if text == "" {
		return 0
	}
	t := strings.ToLower(text)

	for _, phrase := range goodPhrase {
		if strings.Contains(t, phrase) {
			return 4.0
		}
	}
	if m := starsRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	if m := plusRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	return 0
}
