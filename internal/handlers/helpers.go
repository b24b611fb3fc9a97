package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBodyLimit = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, target any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC().Format(time.RFC3339)
	return &value
}

// flexDecimal accepts JSON numbers and numeric strings, the way browser
// clients submit prices from form inputs.
type flexDecimal struct {
	value decimal.Decimal
	set   bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" {
		return nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return errors.New("invalid decimal value")
	}
	f.value = value
	f.set = true
	return nil
}

// flexBool accepts booleans plus the "true"/"1"/"yes" string forms used by
// multipart form clients.
type flexBool struct {
	value bool
	set   bool
}

func (f *flexBool) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch strings.ToLower(strings.Trim(trimmed, `"`)) {
	case "1", "true", "yes":
		f.value = true
	default:
		f.value = false
	}
	f.set = true
	return nil
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return errors.New("invalid integer value")
	}
	f.value = int(parsed)
	f.set = true
	return nil
}

type pageParams struct {
	page  int
	limit int
}

func parsePageParams(r *http.Request) pageParams {
	params := pageParams{page: 1, limit: 20}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 1 {
			params.page = page
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			switch {
			case limit < 1:
			case limit > 100:
				params.limit = 100
			default:
				params.limit = limit
			}
		}
	}
	return params
}

// paginate slices items for the requested page and reports total page count.
func paginate[T any](items []T, params pageParams) ([]T, int) {
	total := len(items)
	pages := 1
	if total > 0 {
		pages = (total + params.limit - 1) / params.limit
	}
	start := (params.page - 1) * params.limit
	if start >= total {
		return []T{}, pages
	}
	end := start + params.limit
	if end > total {
		end = total
	}
	return items[start:end], pages
}
