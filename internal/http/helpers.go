package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"walletd/internal/core"
	"walletd/internal/store"
)

const maxBodyBytes = 64 * 1024

var errNoBody = errors.New("empty request body")

// decodeJSON parses the request body into dst, refusing unknown fields
// and oversized bodies.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errNoBody
		}
		return err
	}
	return nil
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}, err
	}
	return core.NewDate(parsedTime.Year(), int(parsedTime.Month()), parsedTime.Day()), nil
}

// parseAmount accepts a decimal string ("12.34") or, when absent, raw
// minor units.
func parseAmount(amount string, amountCents int64) (int64, error) {
	if strings.TrimSpace(amount) != "" {
		return core.ParseDecimalToCents(amount)
	}
	if amountCents <= 0 {
		return 0, core.ErrInvalidAmount
	}
	return amountCents, nil
}

// parseYearMonth extracts year and month from query parameters, using
// the current month per the server's clock as default.
func parseYearMonth(r *http.Request, now time.Time) (year, month int) {
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	return year, month
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
