package sanitize

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

var sequenceMetadata = metadataLimits{
	maxKey:   SequenceMetadataMaxKey,
	maxValue: SequenceMetadataMaxValue,
	maxBytes: SequenceMetadataMaxBytes,
	maxPairs: SequenceMetadataMaxPairs,
}

var columnMetadata = metadataLimits{
	maxKey:   ColumnMetadataMaxKey,
	maxValue: ColumnMetadataMaxValue,
	maxBytes: ColumnMetadataMaxBytes,
	maxPairs: ColumnMetadataMaxPairs,
}

// SanitizeSequence repairs s in place. Columns without an external id and
// columns repeating an earlier column's external id are dropped, as are
// columns beyond the column limit. The column slice is copied first so the
// caller's columns are not modified.
func SanitizeSequence(s *resource.SequenceWrite) {
	s.ExternalID = LimitUTF8ByteCount(s.ExternalID, ExternalIDMax)
	s.Name = LimitUTF8ByteCount(s.Name, SequenceNameMax)
	s.Description = LimitUTF8ByteCount(s.Description, SequenceDescriptionMax)
	s.AssetID = positiveID(s.AssetID)
	s.DataSetID = positiveID(s.DataSetID)
	s.Metadata = sanitizeMetadata(s.Metadata, sequenceMetadata)

	if s.Columns == nil {
		return
	}
	seen := make(map[string]struct{}, len(s.Columns))
	cols := make([]resource.SequenceColumnWrite, 0, min(len(s.Columns), SequenceColumnsMax))
	for _, c := range s.Columns {
		c.ExternalID = LimitUTF8ByteCount(c.ExternalID, ExternalIDMax)
		if c.ExternalID == "" {
			continue
		}
		if _, dup := seen[c.ExternalID]; dup {
			continue
		}
		if len(cols) >= SequenceColumnsMax {
			break
		}
		seen[c.ExternalID] = struct{}{}
		c.Name = LimitUTF8ByteCount(c.Name, ColumnNameMax)
		c.Description = LimitUTF8ByteCount(c.Description, ColumnDescriptionMax)
		c.Metadata = sanitizeMetadata(c.Metadata, columnMetadata)
		cols = append(cols, c)
	}
	s.Columns = cols
}

// VerifySequence checks s against the sequence limits. A sequence needs at
// least one column and column external ids must be unique within it.
func VerifySequence(s resource.SequenceWrite) (result.ResourceType, bool) {
	switch {
	case !fits(s.ExternalID, ExternalIDMax):
		return result.ResourceExternalID, false
	case !fits(s.Name, SequenceNameMax):
		return result.ResourceName, false
	case !fits(s.Description, SequenceDescriptionMax):
		return result.ResourceDescription, false
	case !verifyID(s.AssetID):
		return result.ResourceAssetID, false
	case !verifyID(s.DataSetID):
		return result.ResourceDataSetID, false
	case !verifyMetadata(s.Metadata, sequenceMetadata):
		return result.ResourceMetadata, false
	case len(s.Columns) == 0 || len(s.Columns) > SequenceColumnsMax:
		return result.ResourceColumns, false
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		switch {
		case c.ExternalID == "" || !fits(c.ExternalID, ExternalIDMax):
			return result.ResourceColumnExternalID, false
		case !fits(c.Name, ColumnNameMax):
			return result.ResourceColumnName, false
		case !fits(c.Description, ColumnDescriptionMax):
			return result.ResourceColumnDescription, false
		case !verifyMetadata(c.Metadata, columnMetadata):
			return result.ResourceColumnMetadata, false
		}
		if _, dup := seen[c.ExternalID]; dup {
			return result.ResourceColumnExternalID, false
		}
		seen[c.ExternalID] = struct{}{}
	}
	return "", true
}

// SequenceRules validates sequence creates.
var SequenceRules = Rules[resource.SequenceWrite]{
	Verify:   VerifySequence,
	Sanitize: SanitizeSequence,
	Identity: resource.SequenceWrite.Identity,
	Distinct: []Distinct[resource.SequenceWrite]{
		{Resource: result.ResourceExternalID, Key: resource.SequenceWrite.Identity},
	},
}

// CleanSequenceRequest is CleanRequest with SequenceRules.
func CleanSequenceRequest(items []resource.SequenceWrite, mode Mode) ([]resource.SequenceWrite, []*result.CogniteError[resource.SequenceWrite]) {
	return CleanRequest(items, mode, SequenceRules)
}

// SanitizeSequenceRows repairs s in place: string values are truncated, rows
// with a negative row number, a value count different from the column count,
// or a repeated row number are dropped.
func SanitizeSequenceRows(s *resource.SequenceRowsWrite) {
	if s.Rows == nil {
		return
	}
	seen := make(map[int64]struct{}, len(s.Rows))
	rows := make([]resource.SequenceRow, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.RowNumber < 0 || len(r.Values) != len(s.Columns) {
			continue
		}
		if _, dup := seen[r.RowNumber]; dup {
			continue
		}
		seen[r.RowNumber] = struct{}{}

		values := make([]any, len(r.Values))
		for i, v := range r.Values {
			if str, ok := v.(string); ok {
				v = LimitUTF8ByteCount(str, SequenceRowStringMax)
			}
			values[i] = v
		}
		rows = append(rows, resource.SequenceRow{RowNumber: r.RowNumber, Values: values})
	}
	s.Rows = rows
}

// VerifySequenceRows checks s. Every row must carry one value per column.
func VerifySequenceRows(s resource.SequenceRowsWrite) (result.ResourceType, bool) {
	if s.ExternalID == "" && s.ID <= 0 {
		return result.ResourceID, false
	}
	if len(s.Columns) == 0 {
		return result.ResourceColumns, false
	}
	if len(s.Rows) == 0 {
		return result.ResourceSequenceRow, false
	}
	seen := make(map[int64]struct{}, len(s.Rows))
	for _, r := range s.Rows {
		if r.RowNumber < 0 {
			return result.ResourceSequenceRowNumber, false
		}
		if _, dup := seen[r.RowNumber]; dup {
			return result.ResourceSequenceRowNumber, false
		}
		seen[r.RowNumber] = struct{}{}
		if len(r.Values) != len(s.Columns) {
			return result.ResourceSequenceRowValues, false
		}
		for _, v := range r.Values {
			if str, ok := v.(string); ok && !fits(str, SequenceRowStringMax) {
				return result.ResourceSequenceRowValues, false
			}
		}
	}
	return "", true
}

// SequenceRowsRules validates sequence row inserts. Each sequence may appear
// once per request.
var SequenceRowsRules = Rules[resource.SequenceRowsWrite]{
	Verify:   VerifySequenceRows,
	Sanitize: SanitizeSequenceRows,
	Identity: resource.SequenceRowsWrite.Identity,
	Distinct: []Distinct[resource.SequenceRowsWrite]{
		{Resource: result.ResourceID, Key: resource.SequenceRowsWrite.Identity},
	},
}
