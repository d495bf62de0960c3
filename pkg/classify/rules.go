package classify

import (
	"slices"
	"strings"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// messageRule recognizes an API error by its human readable message. This
// is the only place that depends on the wording of server messages; rules
// are matched case insensitively, in order, and only when the response
// carried no structured missing or duplicated list.
type messageRule struct {
	kinds    []resource.Kind // empty matches every kind
	ops      []Operation     // empty matches every operation
	contains string
	kind     result.ErrorKind
	resource result.ResourceType
}

var messageRules = []messageRule{
	{
		kinds:    []resource.Kind{resource.KindAsset},
		ops:      []Operation{OpUpdate},
		contains: "same hierarchy",
		kind:     result.KindIllegalItem,
		resource: result.ResourceParentID,
	},
	{
		kinds:    []resource.Kind{resource.KindAsset},
		contains: "unknown parent",
		kind:     result.KindItemMissing,
		resource: result.ResourceParentExternalID,
	},
	{
		kinds:    []resource.Kind{resource.KindAsset},
		contains: "bad parent",
		kind:     result.KindItemMissing,
		resource: result.ResourceParentExternalID,
	},
	{
		contains: "data set",
		kind:     result.KindItemMissing,
		resource: result.ResourceDataSetID,
	},
	{
		contains: "datasetid",
		kind:     result.KindItemMissing,
		resource: result.ResourceDataSetID,
	},
	{
		kinds:    []resource.Kind{resource.KindEvent, resource.KindTimeSeries, resource.KindSequence},
		contains: "asset id",
		kind:     result.KindItemMissing,
		resource: result.ResourceAssetID,
	},
	{
		kinds:    []resource.Kind{resource.KindEvent, resource.KindTimeSeries, resource.KindSequence},
		contains: "assetid",
		kind:     result.KindItemMissing,
		resource: result.ResourceAssetID,
	},
	{
		kinds:    []resource.Kind{resource.KindAsset},
		contains: "label",
		kind:     result.KindItemMissing,
		resource: result.ResourceLabels,
	},
	{
		kinds:    []resource.Kind{resource.KindDataPoints},
		contains: "expected string value",
		kind:     result.KindMismatchedType,
		resource: result.ResourceDataPointType,
	},
	{
		kinds:    []resource.Kind{resource.KindDataPoints},
		contains: "expected numeric value",
		kind:     result.KindMismatchedType,
		resource: result.ResourceDataPointType,
	},
	{
		kinds:    []resource.Kind{resource.KindSequenceRows},
		contains: "column",
		kind:     result.KindItemMissing,
		resource: result.ResourceColumns,
	},
	{
		kinds:    []resource.Kind{resource.KindTimeSeries},
		contains: "legacy name",
		kind:     result.KindItemExists,
		resource: result.ResourceLegacyName,
	},
	{
		ops:      []Operation{OpCreate},
		contains: "already exist",
		kind:     result.KindItemExists,
		resource: result.ResourceExternalID,
	},
}

// matchRule returns the first rule matching message for req.
func matchRule(message string, req Request) (messageRule, bool) {
	msg := strings.ToLower(message)
	for _, r := range messageRules {
		if !r.applies(req) {
			continue
		}
		if strings.Contains(msg, r.contains) {
			return r, true
		}
	}
	return messageRule{}, false
}

func (r messageRule) applies(req Request) bool {
	if len(r.kinds) > 0 && !slices.Contains(r.kinds, req.Kind) {
		return false
	}
	if len(r.ops) > 0 && !slices.Contains(r.ops, req.Op) {
		return false
	}
	return true
}
