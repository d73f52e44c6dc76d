package validation

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// imdbIDRegex matches IMDb title identifiers such as tt0111161.
var imdbIDRegex = regexp.MustCompile(`^tt\d{7,10}$`)

// MaxSearchPage is the highest page the catalog serves for a search.
const MaxSearchPage = 100

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateIMDbID checks that id looks like an IMDb title identifier.
func ValidateIMDbID(id string) error {
	if !imdbIDRegex.MatchString(id) {
		return fmt.Errorf("invalid imdb id: %q", id)
	}
	return nil
}

// ValidateSearchTerm rejects blank search terms.
func ValidateSearchTerm(term string) error {
	if strings.TrimSpace(term) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// ValidatePage checks that a search page is within the range the catalog accepts.
func ValidatePage(page int) error {
	if page < 1 || page > MaxSearchPage {
		return fmt.Errorf("page must be between 1 and %d", MaxSearchPage)
	}
	return nil
}

// Struct validates v using its `validate` struct tags and flattens the
// failures into a single readable error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// WriteError writes an error response to the HTTP response writer.
// It takes a response writer, error, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	WriteJSON(w, map[string]string{"error": err.Error()}, status)
}

// WriteJSON encodes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}
