package sanitize

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

var assetMetadata = metadataLimits{
	maxKey:   AssetMetadataMaxPerKey,
	maxValue: AssetMetadataMaxPerValue,
	maxBytes: AssetMetadataMaxBytes,
	maxPairs: AssetMetadataMaxPairs,
}

// SanitizeAsset repairs a in place.
func SanitizeAsset(a *resource.AssetWrite) {
	a.ExternalID = LimitUTF8ByteCount(a.ExternalID, ExternalIDMax)
	a.Name = LimitUTF8ByteCount(a.Name, AssetNameMax)
	a.ParentExternalID = LimitUTF8ByteCount(a.ParentExternalID, ExternalIDMax)
	a.Description = LimitUTF8ByteCount(a.Description, AssetDescriptionMax)
	a.Source = LimitUTF8ByteCount(a.Source, AssetSourceMax)
	a.ParentID = positiveID(a.ParentID)
	a.DataSetID = positiveID(a.DataSetID)
	a.Metadata = sanitizeMetadata(a.Metadata, assetMetadata)
	a.Labels = sanitizeLabels(a.Labels, AssetLabelsMax)
}

// VerifyAsset checks a against the asset limits. It returns the first
// failing resource and false, or true when a is valid.
func VerifyAsset(a resource.AssetWrite) (result.ResourceType, bool) {
	switch {
	case !fits(a.ExternalID, ExternalIDMax):
		return result.ResourceExternalID, false
	case a.Name == "" || !fits(a.Name, AssetNameMax):
		return result.ResourceName, false
	case !fits(a.ParentExternalID, ExternalIDMax):
		return result.ResourceParentExternalID, false
	case !verifyID(a.ParentID):
		return result.ResourceParentID, false
	case !fits(a.Description, AssetDescriptionMax):
		return result.ResourceDescription, false
	case !fits(a.Source, AssetSourceMax):
		return result.ResourceSource, false
	case !verifyID(a.DataSetID):
		return result.ResourceDataSetID, false
	case !verifyMetadata(a.Metadata, assetMetadata):
		return result.ResourceMetadata, false
	case !verifyLabels(a.Labels, AssetLabelsMax):
		return result.ResourceLabels, false
	}
	return "", true
}

// AssetRules validates asset creates. External ids must be unique within a
// request.
var AssetRules = Rules[resource.AssetWrite]{
	Verify:   VerifyAsset,
	Sanitize: SanitizeAsset,
	Identity: resource.AssetWrite.Identity,
	Distinct: []Distinct[resource.AssetWrite]{
		{Resource: result.ResourceExternalID, Key: resource.AssetWrite.Identity},
	},
}

// CleanAssetRequest is CleanRequest with AssetRules.
func CleanAssetRequest(items []resource.AssetWrite, mode Mode) ([]resource.AssetWrite, []*result.CogniteError[resource.AssetWrite]) {
	return CleanRequest(items, mode, AssetRules)
}

func sanitizeLabels(labels []resource.Label, max int) []resource.Label {
	if labels == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]resource.Label, 0, min(len(labels), max))
	for _, l := range labels {
		if l.ExternalID == "" || !fits(l.ExternalID, ExternalIDMax) {
			continue
		}
		if _, dup := seen[l.ExternalID]; dup {
			continue
		}
		if len(out) >= max {
			break
		}
		seen[l.ExternalID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func verifyLabels(labels []resource.Label, max int) bool {
	if len(labels) > max {
		return false
	}
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l.ExternalID == "" || !fits(l.ExternalID, ExternalIDMax) {
			return false
		}
		if _, dup := seen[l.ExternalID]; dup {
			return false
		}
		seen[l.ExternalID] = struct{}{}
	}
	return true
}

// externalIDKey is a Distinct key for records addressed by external id.
func externalIDKey(externalID string) identity.Identity {
	if externalID == "" {
		return identity.Identity{}
	}
	return identity.FromExternalID(externalID)
}
