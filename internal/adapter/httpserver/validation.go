package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeJSON decodes a JSON request body, mapping malformed input to
// ErrInvalidArgument so writeError renders a 400.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	return nil
}

// validateStruct runs validator tags over a decoded request and
// returns field->tag details, or nil when the struct is valid.
func validateStruct(v interface{}) map[string]string {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks a path parameter used as a cv, job, application or
// session id: non-empty, bounded, and free of path or injection
// metacharacters.
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s required", domain.ErrInvalidArgument, field)
	}
	if len(id) > 100 {
		return fmt.Errorf("%w: %s too long (max 100 characters)", domain.ErrInvalidArgument, field)
	}
	if !validIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %s contains invalid characters", domain.ErrInvalidArgument, field)
	}
	return nil
}

// ParseLimit reads an optional ?limit= query parameter, clamped to
// 1..100 with the given default.
func ParseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		return 0, fmt.Errorf("%w: limit must be between 1 and 100", domain.ErrInvalidArgument)
	}
	return n, nil
}

// SanitizeMessage cleans a chat message before it reaches the
// supervisor: strips null bytes, trims whitespace, caps length and
// repairs invalid UTF-8.
func SanitizeMessage(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 8000 {
		input = input[:8000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
