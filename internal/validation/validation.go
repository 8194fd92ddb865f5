package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// ErrNameEmpty is returned when the pump-house name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("location name is required")

// ErrNameTooShort is returned when the name length is below the minimum.
var ErrNameTooShort = errors.New("location name too short")

// ErrNameTooLong is returned when the name length exceeds the maximum.
var ErrNameTooLong = errors.New("location name too long")

// ErrNameInvalidChars is returned when the name contains disallowed characters.
var ErrNameInvalidChars = errors.New("location name contains invalid characters")

// ValidatePumpName trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to characters seen in pump-house display names: letters (Unicode),
// digits, space, and , - _ . ( ) '.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
// Fuzzy matching is left to the source package.
func ValidatePumpName(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrNameEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrNameTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrNameTooLong
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return "", ErrNameInvalidChars
		}
	}
	return s, nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '_', '.', '(', ')', '\'':
		return true
	}
	return false
}

// RangeQuery is the shape of the range query parameters. Date wins over Range
// when both are set.
type RangeQuery struct {
	Date  string `validate:"omitempty,datetime=2006-01-02"`
	Range string `validate:"omitempty,rangetoken"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("rangetoken", func(fl validator.FieldLevel) bool {
		token := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		for _, p := range timewindow.Presets {
			if string(p) == token {
				return true
			}
		}
		return false
	})
	return v
}

// ValidateRangeQuery checks q's shape before resolution. Errors wrap
// timewindow.ErrInvalidRange.
func ValidateRangeQuery(q RangeQuery) error {
	q.Date = strings.TrimSpace(q.Date)
	q.Range = strings.TrimSpace(q.Range)
	if q.Date != "" {
		q.Range = ""
	}
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Date":
			return fmt.Errorf("%w: date %q must be a calendar date in YYYY-MM-DD form", timewindow.ErrInvalidRange, q.Date)
		case "Range":
			return fmt.Errorf("%w: range %q must be one of %s", timewindow.ErrInvalidRange, q.Range, presetList())
		}
	}
	return fmt.Errorf("%w: %v", timewindow.ErrInvalidRange, err)
}

// Query converts a validated RangeQuery into a resolver query.
func (q RangeQuery) Query() timewindow.Query {
	return timewindow.Query{Date: strings.TrimSpace(q.Date), Range: strings.TrimSpace(q.Range)}
}

func presetList() string {
	names := make([]string, 0, len(timewindow.Presets))
	for _, p := range timewindow.Presets {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
