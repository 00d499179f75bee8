package normalize

import (
	"math"
	"time"

	"github.com/MerlinMa/pals/pkg/types"
)

// IndexLabel is the key under which the row index is reported.
const IndexLabel = "Timestamps"

// EndpointLabel is the key under which endpoint scores are reported.
const EndpointLabel = "Endpoint"

// reservedLabel reports whether a tag name would shadow a result key.
func reservedLabel(name string) bool {
	return name == IndexLabel || name == EndpointLabel
}

// ToColumns copies every column of t into dst as name -> ordered values,
// plus the index under IndexLabel, and returns dst. A nil dst is allocated.
// NaN values become nil so the document stays valid JSON.
func ToColumns(t *types.Table, dst map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, t.Width()+1)
	}
	dst[IndexLabel] = FormatTimestamps(t.Index)
	for _, c := range t.Columns {
		dst[c.Name] = JSONValues(c.Values)
	}
	return dst
}

// ToRecords renders t row by row. Each record carries the index under
// IndexLabel when withIndex is set.
func ToRecords(t *types.Table, withIndex bool) []map[string]interface{} {
	records := make([]map[string]interface{}, t.Len())
	for i := range records {
		rec := make(map[string]interface{}, t.Width()+1)
		if withIndex {
			rec[IndexLabel] = FormatTimestamp(t.Index[i])
		}
		for _, c := range t.Columns {
			rec[c.Name] = jsonValue(c.Values[i])
		}
		records[i] = rec
	}
	return records
}

// FormatTimestamps renders the index in RFC 3339 with nanoseconds.
func FormatTimestamps(index []time.Time) []string {
	out := make([]string, len(index))
	for i, ts := range index {
		out[i] = FormatTimestamp(ts)
	}
	return out
}

// FormatTimestamp renders one index value.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// JSONValues converts values for a JSON document, mapping NaN and
// infinities to nil.
func JSONValues(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = jsonValue(v)
	}
	return out
}

func jsonValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
