package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected so typos in clients surface as 400s.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// parseFloat parses a finite float64 from a string with contextual error message.
func parseFloat(s, fieldName string) (float64, error) {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%s must be a valid number", fieldName)
	}
	return val, nil
}

// parseFloatInRange parses a float and checks it is within [min, max].
func parseFloatInRange(s, fieldName string, min, max float64) (float64, error) {
	val, err := parseFloat(s, fieldName)
	if err != nil {
		return 0, err
	}
	if val < min || val > max {
		return 0, fmt.Errorf("%s must be between %g and %g", fieldName, min, max)
	}
	return val, nil
}

// parseIntInRange parses an integer from a string with range validation.
func parseIntInRange(s, fieldName string, min, max int) (int, error) {
	val, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", fieldName)
	}
	if val < min || val > max {
		return 0, fmt.Errorf("%s must be between %d and %d", fieldName, min, max)
	}
	return val, nil
}

// parseOptionalBool parses true/false query values; an empty value yields nil.
func parseOptionalBool(s, fieldName string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", fieldName)
	}
	return &val, nil
}
