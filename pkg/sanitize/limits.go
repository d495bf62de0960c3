// Package sanitize validates and repairs write records against the field
// limits the API enforces, so that a request is not rejected as a whole
// because of a single oversized field.
package sanitize

// Server-side field limits. String limits are in bytes of UTF-8.
const (
	ExternalIDMax = 255

	AssetNameMax               = 140
	AssetDescriptionMax        = 500
	AssetSourceMax             = 128
	AssetMetadataMaxPerKey     = 128
	AssetMetadataMaxPerValue   = 10240
	AssetMetadataMaxBytes      = 10240
	AssetMetadataMaxPairs      = 256
	AssetLabelsMax             = 10
	EventTypeMax               = 64
	EventDescriptionMax        = 500
	EventSourceMax             = 128
	EventMetadataMaxPerKey     = 128
	EventMetadataMaxPerValue   = 128000
	EventMetadataMaxBytes      = 200000
	EventMetadataMaxPairs      = 256
	EventAssetIDsMax           = 10000
	TimeSeriesNameMax          = 255
	TimeSeriesDescriptionMax   = 1000
	TimeSeriesUnitMax          = 32
	TimeSeriesMetadataMaxKey   = 128
	TimeSeriesMetadataMaxValue = 10000
	TimeSeriesMetadataMaxBytes = 10000
	TimeSeriesMetadataMaxPairs = 256
	SecurityCategoriesMax      = 10
	SequenceNameMax            = 255
	SequenceDescriptionMax     = 1000
	SequenceMetadataMaxKey     = 128
	SequenceMetadataMaxValue   = 256
	SequenceMetadataMaxBytes   = 10000
	SequenceMetadataMaxPairs   = 256
	SequenceColumnsMax         = 400
	ColumnNameMax              = 64
	ColumnDescriptionMax       = 1000
	ColumnMetadataMaxKey       = 32
	ColumnMetadataMaxValue     = 512
	ColumnMetadataMaxBytes     = 10000
	ColumnMetadataMaxPairs     = 16
	SequenceRowStringMax       = 255
	DataPointStringMax         = 255
	RawKeyMax                  = 1024
)

// Numeric and time limits.
const (
	// MinTimestamp is 1971-01-01T00:00:00Z in milliseconds.
	MinTimestamp int64 = 31536000000

	// MaxTimestamp is 2099-12-31T23:59:59.999Z in milliseconds.
	MaxTimestamp int64 = 4102444799999

	// NumericMax bounds the magnitude of numeric data point values.
	NumericMax = 1e100
)

// Request limits used when partitioning.
const (
	AssetsPerRequest          = 1000
	EventsPerRequest          = 1000
	TimeSeriesPerRequest      = 1000
	SequencesPerRequest       = 1000
	RawRowsPerRequest         = 10000
	DataPointSeriesPerRequest = 10000
	DataPointsPerRequest      = 100000
	SequenceRowSeriesPerReq   = 1000
	SequenceRowsPerRequest    = 10000
)
