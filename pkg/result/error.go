// Package result holds the outcome model of bulk writes: typed errors that
// attribute failures to specific records, and results that merge across
// batches.
package result

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

// ErrorKind classifies a failure.
type ErrorKind string

const (
	// KindItemExists means the records already exist on the server.
	KindItemExists ErrorKind = "itemExists"

	// KindItemMissing means referenced records do not exist.
	KindItemMissing ErrorKind = "itemMissing"

	// KindItemDuplicated means the request itself contained duplicates.
	// Detected client side before sending.
	KindItemDuplicated ErrorKind = "itemDuplicated"

	// KindMismatchedType means a value does not match the target type.
	KindMismatchedType ErrorKind = "mismatchedType"

	// KindIllegalItem means the record violates a business rule.
	KindIllegalItem ErrorKind = "illegalItem"

	// KindSanitationFailed means the record failed client side validation.
	KindSanitationFailed ErrorKind = "sanitationFailed"

	// KindFatalFailure is anything not attributable to specific records.
	KindFatalFailure ErrorKind = "fatalFailure"
)

// ResourceType names the field or subsystem that caused an error.
type ResourceType string

const (
	ResourceNone               ResourceType = "none"
	ResourceID                 ResourceType = "id"
	ResourceExternalID         ResourceType = "externalId"
	ResourceInstanceID         ResourceType = "instanceId"
	ResourceName               ResourceType = "name"
	ResourceLegacyName         ResourceType = "legacyName"
	ResourceDescription        ResourceType = "description"
	ResourceSource             ResourceType = "source"
	ResourceMetadata           ResourceType = "metadata"
	ResourceParentID           ResourceType = "parentId"
	ResourceParentExternalID   ResourceType = "parentExternalId"
	ResourceDataSetID          ResourceType = "dataSetId"
	ResourceAssetID            ResourceType = "assetId"
	ResourceLabels             ResourceType = "labels"
	ResourceEventType          ResourceType = "type"
	ResourceEventSubtype       ResourceType = "subtype"
	ResourceTimeRange          ResourceType = "timeRange"
	ResourceUnit               ResourceType = "unit"
	ResourceSecurityCategories ResourceType = "securityCategories"
	ResourceColumns            ResourceType = "columns"
	ResourceColumnExternalID   ResourceType = "columnExternalId"
	ResourceColumnName         ResourceType = "columnName"
	ResourceColumnDescription  ResourceType = "columnDescription"
	ResourceColumnMetadata     ResourceType = "columnMetadata"
	ResourceSequenceRow        ResourceType = "sequenceRow"
	ResourceSequenceRowValues  ResourceType = "sequenceRowValues"
	ResourceSequenceRowNumber  ResourceType = "sequenceRowNumber"
	ResourceDataPointTimestamp ResourceType = "dataPointTimestamp"
	ResourceDataPointValue     ResourceType = "dataPointValue"
	ResourceDataPointType      ResourceType = "dataPointType"
	ResourceRawKey             ResourceType = "rawKey"
)

// CogniteError describes one class of failure within a request: what kind,
// which field, which identities were reported, and which records were
// removed from the request because of it.
type CogniteError[T any] struct {
	Kind     ErrorKind
	Resource ResourceType

	// Values are the offending identities reported by the server or found
	// client side.
	Values []identity.Identity

	// Skipped are the records removed from the request because of this error.
	Skipped []T

	// Complete is true when Skipped is known exactly. When false, a follow-up
	// lookup is needed to find the implicated records.
	Complete bool

	// StatusCode and Message come from the API response, when there was one.
	StatusCode int
	Message    string

	// Err is the underlying transport or API error.
	Err error
}

// Error implements the error interface.
func (e *CogniteError[T]) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s", e.Kind, e.Resource)
	if len(e.Values) > 0 {
		fmt.Fprintf(&b, " (%d values)", len(e.Values))
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(e.Skipped))
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CogniteError[T]) Unwrap() error {
	return e.Err
}

// Fatal creates a fatal failure that skipped the given records.
func Fatal[T any](err error, skipped []T) *CogniteError[T] {
	return &CogniteError[T]{
		Kind:     KindFatalFailure,
		Resource: ResourceNone,
		Skipped:  skipped,
		Complete: true,
		Err:      err,
	}
}

// ConvertSkipped returns a copy of e whose skipped records are mapped with fn.
func ConvertSkipped[T, U any](e *CogniteError[T], fn func(T) U) *CogniteError[U] {
	out := &CogniteError[U]{
		Kind:       e.Kind,
		Resource:   e.Resource,
		Values:     e.Values,
		Complete:   e.Complete,
		StatusCode: e.StatusCode,
		Message:    e.Message,
		Err:        e.Err,
	}
	if len(e.Skipped) > 0 {
		out.Skipped = make([]U, 0, len(e.Skipped))
		for _, s := range e.Skipped {
			out.Skipped = append(out.Skipped, fn(s))
		}
	}
	return out
}
