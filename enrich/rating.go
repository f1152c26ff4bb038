package enrich

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/docutag/enricher/models"
)

var (
	// ErrNoRating means the response had no #<digits># marker
	ErrNoRating = errors.New("no rating found")
	// ErrInvalidRating means the first marker held a number outside 0-100
	ErrInvalidRating = errors.New("rating out of range")
)

var ratingPattern = regexp.MustCompile(`#(\d+)#`)

// ExtractRating returns the number inside the first #<digits># marker found
// anywhere in text. Callers must not substitute a default score on error.
func ExtractRating(text string) (int, error) {
	match := ratingPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, ErrNoRating
	}
	rating, err := strconv.Atoi(match[1])
	if err != nil || rating > 100 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRating, match[1])
	}
	return rating, nil
}

// NextSlot returns the smallest n >= 0 such that prefix+n is not a key of item.
func NextSlot(item *models.Item, prefix string) int {
	n := 0
	for item.Has(prefix + strconv.Itoa(n)) {
		n++
	}
	return n
}
