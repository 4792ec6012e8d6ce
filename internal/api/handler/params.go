package handler

import (
	"fmt"
	"net/http"
	"strconv"
)

// errInvalidParam formats a uniform bad-request message for a malformed
// query parameter.
func errInvalidParam(name string) error {
	return fmt.Errorf("invalid or missing query parameter %q", name)
}

// parseFloatParam reads a required float64 query parameter.
func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errInvalidParam(name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errInvalidParam(name)
	}
	return v, nil
}

// parseIntParamDefault reads an optional int query parameter, falling back
// to def when absent.
func parseIntParamDefault(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errInvalidParam(name)
	}
	return v, nil
}
