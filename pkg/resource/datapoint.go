package resource

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

// DataPoint is one timestamped value. Exactly one of Value and StringValue is
// meaningful, selected by IsString.
type DataPoint struct {
	Timestamp   int64
	Value       float64
	StringValue string
	IsString    bool
}

// NumericPoint creates a numeric data point.
func NumericPoint(ts int64, v float64) DataPoint {
	return DataPoint{Timestamp: ts, Value: v}
}

// StringPoint creates a string data point.
func StringPoint(ts int64, v string) DataPoint {
	return DataPoint{Timestamp: ts, StringValue: v, IsString: true}
}

type wireDataPoint struct {
	Timestamp int64           `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (d DataPoint) MarshalJSON() ([]byte, error) {
	var (
		v   []byte
		err error
	)
	if d.IsString {
		v, err = json.Marshal(d.StringValue)
	} else {
		v, err = json.Marshal(d.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("encode datapoint at %d: %w", d.Timestamp, err)
	}
	return json.Marshal(wireDataPoint{Timestamp: d.Timestamp, Value: v})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DataPoint) UnmarshalJSON(data []byte) error {
	var w wireDataPoint
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.Timestamp = w.Timestamp
	if len(w.Value) > 0 && w.Value[0] == '"' {
		d.IsString = true
		return json.Unmarshal(w.Value, &d.StringValue)
	}
	d.IsString = false
	return json.Unmarshal(w.Value, &d.Value)
}

// DataPointsWrite is one item of a data point insert request.
type DataPointsWrite struct {
	ID         int64                `json:"id,omitempty"`
	ExternalID string               `json:"externalId,omitempty"`
	InstanceID *identity.InstanceID `json:"instanceId,omitempty"`
	Datapoints []DataPoint          `json:"datapoints"`
}

// NewDataPointsWrite addresses points to the series identified by id.
func NewDataPointsWrite(id identity.Identity, points []DataPoint) DataPointsWrite {
	w := DataPointsWrite{Datapoints: points}
	if v, ok := id.ID(); ok {
		w.ID = v
	}
	if v, ok := id.ExternalID(); ok {
		w.ExternalID = v
	}
	if v, ok := id.InstanceID(); ok {
		w.InstanceID = &v
	}
	return w
}

// Identity returns the series the points belong to.
func (d DataPointsWrite) Identity() identity.Identity {
	switch {
	case d.InstanceID != nil:
		return identity.FromInstanceID(d.InstanceID.Space, d.InstanceID.ExternalID)
	case d.ExternalID != "":
		return identity.FromExternalID(d.ExternalID)
	default:
		return identity.FromID(d.ID)
	}
}

// IsString reports whether the points are string valued. It looks at the
// first point only; mixed lists are rejected during sanitation.
func (d DataPointsWrite) IsString() bool {
	return len(d.Datapoints) > 0 && d.Datapoints[0].IsString
}
