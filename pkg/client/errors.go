package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorItem is one entry of the missing or duplicated list of an API error.
// Field is the JSON key the server used ("id", "externalId", "instanceId",
// "legacyName", ...).
type ErrorItem struct {
	Field    string
	Identity identity.Identity
}

// APIError is a structured failure response from the API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Code       int
	Message    string
	Missing    []ErrorItem
	Duplicated []ErrorItem
	RequestID  string

	// RetryAfter is the server requested wait, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("CDF %s error (status %d, request %s): %s: %v",
			e.ErrorClass, e.StatusCode, e.RequestID, msg, e.Err)
	}
	return fmt.Sprintf("CDF %s error (status %d, request %s): %s",
		e.ErrorClass, e.StatusCode, e.RequestID, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// MissingIdentities returns the identities of the missing list.
func (e *APIError) MissingIdentities() []identity.Identity {
	return itemIdentities(e.Missing)
}

// DuplicatedIdentities returns the identities of the duplicated list.
func (e *APIError) DuplicatedIdentities() []identity.Identity {
	return itemIdentities(e.Duplicated)
}

func itemIdentities(items []ErrorItem) []identity.Identity {
	if len(items) == 0 {
		return nil
	}
	out := make([]identity.Identity, 0, len(items))
	for _, it := range items {
		out = append(out, it.Identity)
	}
	return out
}

type errorBody struct {
	Error struct {
		Code       int               `json:"code"`
		Message    string            `json:"message"`
		Missing    []json.RawMessage `json:"missing"`
		Duplicated []json.RawMessage `json:"duplicated"`
	} `json:"error"`
}

// parseAPIError builds an APIError from a failed response body. Bodies that
// are not in the API error format keep only the status.
func parseAPIError(resp *http.Response, body []byte, class ErrorClass) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		RequestID:  resp.Header.Get(requestIDHeader),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = resp.Status
		return e
	}
	e.Code = b.Error.Code
	e.Message = b.Error.Message
	e.Missing = parseErrorItems(b.Error.Missing)
	e.Duplicated = parseErrorItems(b.Error.Duplicated)
	return e
}

// parseErrorItems decodes the missing/duplicated entries. Entries keyed by
// something other than an identity are mapped onto an external id identity
// and keep their original key in Field. Entries that cannot be decoded are
// dropped.
func parseErrorItems(raw []json.RawMessage) []ErrorItem {
	if len(raw) == 0 {
		return nil
	}
	out := make([]ErrorItem, 0, len(raw))
	for _, r := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(r, &fields); err != nil {
			continue
		}

		var id identity.Identity
		if err := json.Unmarshal(r, &id); err == nil {
			out = append(out, ErrorItem{Field: identityField(id), Identity: id})
			continue
		}

		for field, v := range fields {
			var s string
			if err := json.Unmarshal(v, &s); err != nil || s == "" {
				continue
			}
			out = append(out, ErrorItem{Field: field, Identity: identity.FromExternalID(s)})
			break
		}
	}
	return out
}

func identityField(id identity.Identity) string {
	switch id.Kind() {
	case identity.KindID:
		return "id"
	case identity.KindInstanceID:
		return "instanceId"
	default:
		return "externalId"
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are not transient
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
