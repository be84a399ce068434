// Package apperr defines the error taxonomy shared by the generation pipeline
// and the HTTP layer. Errors are tagged with one of the sentinel markers and
// classified with errors.Is at the boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream error")
	ErrParse        = errors.New("parse error")
)

// Wrap builds an error tagged with marker. op and message are joined into
// the detail; err, when non-nil, stays reachable through errors.Is/As.
func Wrap(marker error, op, message string, err error) error {
	if marker == nil {
		marker = ErrUpstream
	}
	detail := buildDetail(op, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Validation is shorthand for Wrap(ErrValidation, op, message, nil).
func Validation(op, message string) error {
	return Wrap(ErrValidation, op, message, nil)
}

// NotFound is shorthand for Wrap(ErrNotFound, op, message, nil).
func NotFound(op, message string) error {
	return Wrap(ErrNotFound, op, message, nil)
}

// Conflict is shorthand for Wrap(ErrConflict, op, message, nil).
func Conflict(op, message string) error {
	return Wrap(ErrConflict, op, message, nil)
}

// Upstream tags err as a generation provider failure.
func Upstream(op string, err error) error {
	return Wrap(ErrUpstream, op, "", err)
}

// Kind returns a short classification string for logs and API error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}

func buildDetail(op, message string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
