// Package classify turns transport and API failures into CogniteErrors that
// name the offending field and identities, so the retry loop can decide
// whether to wait, shrink the working set or give up.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// Operation is the kind of request that failed.
type Operation string

const (
	OpCreate   Operation = "create"
	OpRetrieve Operation = "retrieve"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpInsert   Operation = "insert"
)

// Request describes the failed call.
type Request struct {
	Kind resource.Kind
	Op   Operation
}

// Classify maps err onto a CogniteError. Skipped is left empty; attributing
// the error to records is up to the caller. Structured missing and
// duplicated lists take precedence over the message rules.
func Classify[T any](err error, req Request) *result.CogniteError[T] {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || !structural(apiErr) {
		return fatal[T](err, apiErr)
	}

	e := &result.CogniteError[T]{
		Resource:   result.ResourceNone,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
		Err:        err,
		Complete:   true,
	}

	switch {
	case len(apiErr.Duplicated) > 0:
		e.Kind = result.KindItemExists
		e.Resource = duplicatedResource(apiErr.Duplicated, req)
		e.Values = apiErr.DuplicatedIdentities()
	case len(apiErr.Missing) > 0:
		e.Kind = result.KindItemMissing
		e.Resource = missingResource(apiErr.Missing, apiErr.Message, req)
		e.Values = apiErr.MissingIdentities()
	default:
		r, ok := matchRule(apiErr.Message, req)
		if !ok {
			// Client errors no rule recognizes are fatal. Transient is
			// false for them, so the batch is not resent unchanged.
			return fatal[T](err, apiErr)
		}
		e.Kind = r.kind
		e.Resource = r.resource
		e.Complete = false
	}
	return e
}

// Transient reports whether a fatal failure is worth resending unchanged:
// server errors, throttling and network failures are; cancellation, client
// errors and undecodable responses are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return true
}

// structural reports whether apiErr describes a problem with the submitted
// records rather than with the server or the transport.
func structural(apiErr *client.APIError) bool {
	if apiErr.StatusCode < 400 || apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return apiErr.Err == nil
}

func fatal[T any](err error, apiErr *client.APIError) *result.CogniteError[T] {
	e := result.Fatal[T](err, nil)
	if apiErr != nil {
		e.StatusCode = apiErr.StatusCode
		e.Message = apiErr.Message
	}
	return e
}

func duplicatedResource(items []client.ErrorItem, req Request) result.ResourceType {
	switch items[0].Field {
	case "legacyName":
		return result.ResourceLegacyName
	case "id":
		return result.ResourceID
	case "instanceId":
		return result.ResourceInstanceID
	default:
		if req.Kind == resource.KindRaw {
			return result.ResourceRawKey
		}
		return result.ResourceExternalID
	}
}

// missingResource decides which reference a missing list is about. The
// list only carries identities, so the request and the message pick the
// field.
func missingResource(items []client.ErrorItem, message string, req Request) result.ResourceType {
	byID := items[0].Identity.Kind() == identity.KindID
	if r, ok := matchRule(message, req); ok && r.kind == result.KindItemMissing {
		if r.resource == result.ResourceParentExternalID && byID {
			return result.ResourceParentID
		}
		return r.resource
	}
	switch req.Kind {
	case resource.KindAsset:
		if req.Op == OpCreate {
			if byID {
				return result.ResourceParentID
			}
			return result.ResourceParentExternalID
		}
	case resource.KindEvent, resource.KindTimeSeries, resource.KindSequence:
		if req.Op == OpCreate {
			return result.ResourceAssetID
		}
	}

	switch items[0].Identity.Kind() {
	case identity.KindID:
		return result.ResourceID
	case identity.KindInstanceID:
		return result.ResourceInstanceID
	default:
		return result.ResourceExternalID
	}
}
