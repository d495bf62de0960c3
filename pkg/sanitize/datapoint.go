package sanitize

import (
	"math"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// SanitizeDataPoints repairs d in place. Points outside the accepted time
// range and numeric points that are NaN or infinite are dropped. Finite
// numeric values are clamped to ±NumericMax and string values truncated.
// The point slice is copied; the caller's points are not modified.
func SanitizeDataPoints(d *resource.DataPointsWrite) {
	if d.Datapoints == nil {
		return
	}
	points := make([]resource.DataPoint, 0, len(d.Datapoints))
	for _, p := range d.Datapoints {
		if p.Timestamp < MinTimestamp || p.Timestamp > MaxTimestamp {
			continue
		}
		if p.IsString {
			p.StringValue = LimitUTF8ByteCount(p.StringValue, DataPointStringMax)
		} else {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				continue
			}
			p.Value = math.Max(-NumericMax, math.Min(NumericMax, p.Value))
		}
		points = append(points, p)
	}
	d.Datapoints = points
}

// VerifyDataPoints checks d. A series write must address a series, carry at
// least one point and must not mix string and numeric points.
func VerifyDataPoints(d resource.DataPointsWrite) (result.ResourceType, bool) {
	if d.InstanceID == nil && d.ExternalID == "" && d.ID <= 0 {
		return result.ResourceID, false
	}
	if len(d.Datapoints) == 0 {
		return result.ResourceDataPointValue, false
	}
	isString := d.Datapoints[0].IsString
	for _, p := range d.Datapoints {
		if p.IsString != isString {
			return result.ResourceDataPointType, false
		}
		if p.Timestamp < MinTimestamp || p.Timestamp > MaxTimestamp {
			return result.ResourceDataPointTimestamp, false
		}
		if p.IsString {
			if !fits(p.StringValue, DataPointStringMax) {
				return result.ResourceDataPointValue, false
			}
			continue
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || math.Abs(p.Value) > NumericMax {
			return result.ResourceDataPointValue, false
		}
	}
	return "", true
}

// DataPointRules validates data point inserts. Each series may appear once
// per request.
var DataPointRules = Rules[resource.DataPointsWrite]{
	Verify:   VerifyDataPoints,
	Sanitize: SanitizeDataPoints,
	Identity: resource.DataPointsWrite.Identity,
	Distinct: []Distinct[resource.DataPointsWrite]{
		{Resource: result.ResourceID, Key: resource.DataPointsWrite.Identity},
	},
}
