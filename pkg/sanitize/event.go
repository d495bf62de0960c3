package sanitize

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

var eventMetadata = metadataLimits{
	maxKey:   EventMetadataMaxPerKey,
	maxValue: EventMetadataMaxPerValue,
	maxBytes: EventMetadataMaxBytes,
	maxPairs: EventMetadataMaxPairs,
}

// SanitizeEvent repairs e in place. Negative times are clamped to zero and an
// end time before the start time is moved up to the start time.
func SanitizeEvent(e *resource.EventWrite) {
	e.ExternalID = LimitUTF8ByteCount(e.ExternalID, ExternalIDMax)
	e.Type = LimitUTF8ByteCount(e.Type, EventTypeMax)
	e.Subtype = LimitUTF8ByteCount(e.Subtype, EventTypeMax)
	e.Description = LimitUTF8ByteCount(e.Description, EventDescriptionMax)
	e.Source = LimitUTF8ByteCount(e.Source, EventSourceMax)
	e.DataSetID = positiveID(e.DataSetID)
	e.AssetIDs = positiveIDs(e.AssetIDs, EventAssetIDsMax)
	e.Metadata = sanitizeMetadata(e.Metadata, eventMetadata)

	e.StartTime = clampTime(e.StartTime)
	e.EndTime = clampTime(e.EndTime)
	if e.StartTime != nil && e.EndTime != nil && *e.EndTime < *e.StartTime {
		end := *e.StartTime
		e.EndTime = &end
	}
}

// VerifyEvent checks e against the event limits.
func VerifyEvent(e resource.EventWrite) (result.ResourceType, bool) {
	switch {
	case !fits(e.ExternalID, ExternalIDMax):
		return result.ResourceExternalID, false
	case !fits(e.Type, EventTypeMax):
		return result.ResourceEventType, false
	case !fits(e.Subtype, EventTypeMax):
		return result.ResourceEventSubtype, false
	case !fits(e.Description, EventDescriptionMax):
		return result.ResourceDescription, false
	case !fits(e.Source, EventSourceMax):
		return result.ResourceSource, false
	case !verifyID(e.DataSetID):
		return result.ResourceDataSetID, false
	case !verifyIDs(e.AssetIDs, EventAssetIDsMax):
		return result.ResourceAssetID, false
	case !verifyMetadata(e.Metadata, eventMetadata):
		return result.ResourceMetadata, false
	case !verifyTime(e.StartTime) || !verifyTime(e.EndTime):
		return result.ResourceTimeRange, false
	case e.StartTime != nil && e.EndTime != nil && *e.EndTime < *e.StartTime:
		return result.ResourceTimeRange, false
	}
	return "", true
}

// EventRules validates event creates.
var EventRules = Rules[resource.EventWrite]{
	Verify:   VerifyEvent,
	Sanitize: SanitizeEvent,
	Identity: resource.EventWrite.Identity,
	Distinct: []Distinct[resource.EventWrite]{
		{Resource: result.ResourceExternalID, Key: resource.EventWrite.Identity},
	},
}

// CleanEventRequest is CleanRequest with EventRules.
func CleanEventRequest(items []resource.EventWrite, mode Mode) ([]resource.EventWrite, []*result.CogniteError[resource.EventWrite]) {
	return CleanRequest(items, mode, EventRules)
}

func clampTime(t *int64) *int64 {
	if t == nil {
		return nil
	}
	v := *t
	switch {
	case v < 0:
		v = 0
	case v > MaxTimestamp:
		v = MaxTimestamp
	default:
		return t
	}
	return &v
}

func verifyTime(t *int64) bool {
	return t == nil || (*t >= 0 && *t <= MaxTimestamp)
}
