package sanitize

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

var timeSeriesMetadata = metadataLimits{
	maxKey:   TimeSeriesMetadataMaxKey,
	maxValue: TimeSeriesMetadataMaxValue,
	maxBytes: TimeSeriesMetadataMaxBytes,
	maxPairs: TimeSeriesMetadataMaxPairs,
}

// SanitizeTimeSeries repairs ts in place.
func SanitizeTimeSeries(ts *resource.TimeSeriesWrite) {
	ts.ExternalID = LimitUTF8ByteCount(ts.ExternalID, ExternalIDMax)
	ts.Name = LimitUTF8ByteCount(ts.Name, TimeSeriesNameMax)
	ts.LegacyName = LimitUTF8ByteCount(ts.LegacyName, ExternalIDMax)
	ts.Description = LimitUTF8ByteCount(ts.Description, TimeSeriesDescriptionMax)
	ts.Unit = LimitUTF8ByteCount(ts.Unit, TimeSeriesUnitMax)
	ts.AssetID = positiveID(ts.AssetID)
	ts.DataSetID = positiveID(ts.DataSetID)
	ts.SecurityCategories = positiveIDs(ts.SecurityCategories, SecurityCategoriesMax)
	ts.Metadata = sanitizeMetadata(ts.Metadata, timeSeriesMetadata)
}

// VerifyTimeSeries checks ts against the time series limits.
func VerifyTimeSeries(ts resource.TimeSeriesWrite) (result.ResourceType, bool) {
	switch {
	case !fits(ts.ExternalID, ExternalIDMax):
		return result.ResourceExternalID, false
	case !fits(ts.Name, TimeSeriesNameMax):
		return result.ResourceName, false
	case !fits(ts.LegacyName, ExternalIDMax):
		return result.ResourceLegacyName, false
	case !fits(ts.Description, TimeSeriesDescriptionMax):
		return result.ResourceDescription, false
	case !fits(ts.Unit, TimeSeriesUnitMax):
		return result.ResourceUnit, false
	case !verifyID(ts.AssetID):
		return result.ResourceAssetID, false
	case !verifyID(ts.DataSetID):
		return result.ResourceDataSetID, false
	case !verifyIDs(ts.SecurityCategories, SecurityCategoriesMax):
		return result.ResourceSecurityCategories, false
	case !verifyMetadata(ts.Metadata, timeSeriesMetadata):
		return result.ResourceMetadata, false
	}
	return "", true
}

// TimeSeriesRules validates time series creates. Both external id and legacy
// name must be unique within a request.
var TimeSeriesRules = Rules[resource.TimeSeriesWrite]{
	Verify:   VerifyTimeSeries,
	Sanitize: SanitizeTimeSeries,
	Identity: resource.TimeSeriesWrite.Identity,
	Distinct: []Distinct[resource.TimeSeriesWrite]{
		{Resource: result.ResourceExternalID, Key: resource.TimeSeriesWrite.Identity},
		{Resource: result.ResourceLegacyName, Key: func(ts resource.TimeSeriesWrite) identity.Identity {
			return externalIDKey(ts.LegacyName)
		}},
	},
}

// CleanTimeSeriesRequest is CleanRequest with TimeSeriesRules.
func CleanTimeSeriesRequest(items []resource.TimeSeriesWrite, mode Mode) ([]resource.TimeSeriesWrite, []*result.CogniteError[resource.TimeSeriesWrite]) {
	return CleanRequest(items, mode, TimeSeriesRules)
}
