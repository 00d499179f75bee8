package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractionType is the closed set of payload shapes PALS can deliver.
type ExtractionType int

const (
	// ExtractionUnknown is the zero value and never a valid variant.
	ExtractionUnknown ExtractionType = iota
	// PeriodicStatistics carries per-interval aggregates (Average, Minimum, ...).
	PeriodicStatistics
	// PeriodicValues carries one interpolated Value per interval.
	PeriodicValues
	// RawValues carries samples that are not aligned to a shared time axis.
	RawValues
)

// String returns the canonical PALS name of the extraction type.
func (t ExtractionType) String() string {
	switch t {
	case PeriodicStatistics:
		return "PeriodicStatistics"
	case PeriodicValues:
		return "PeriodicValues"
	case RawValues:
		return "RawValues"
	default:
		return "Unknown"
	}
}

// Aligned reports whether samples of this type share the payload's timestamp axis.
func (t ExtractionType) Aligned() bool {
	return t == PeriodicStatistics || t == PeriodicValues
}

// extractionAliases maps every accepted spelling (lower-cased) to its variant.
// The singular forms are emitted by older PALS executors.
var extractionAliases = map[string]ExtractionType{
	"periodicstatistics": PeriodicStatistics,
	"periodicstatistic":  PeriodicStatistics,
	"1":                  PeriodicStatistics,
	"periodicvalues":     PeriodicValues,
	"periodicvalue":      PeriodicValues,
	"2":                  PeriodicValues,
	"rawvalues":          RawValues,
	"rawvalue":           RawValues,
	"3":                  RawValues,
}

// ParseExtractionType maps a discriminator alias to its variant.
// Accepted forms are case-insensitive names, integer codes and string codes.
func ParseExtractionType(v interface{}) (ExtractionType, bool) {
	var key string
	switch x := v.(type) {
	case ExtractionType:
		return x, x != ExtractionUnknown && x <= RawValues
	case string:
		key = strings.ToLower(strings.TrimSpace(x))
	case int:
		key = strconv.Itoa(x)
	case int64:
		key = strconv.FormatInt(x, 10)
	case float64:
		if x != float64(int64(x)) {
			return ExtractionUnknown, false
		}
		key = strconv.FormatInt(int64(x), 10)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			key = strconv.FormatInt(n, 10)
			break
		}
		f, err := x.Float64()
		if err != nil || f != float64(int64(f)) {
			return ExtractionUnknown, false
		}
		key = strconv.FormatInt(int64(f), 10)
	default:
		return ExtractionUnknown, false
	}
	t, ok := extractionAliases[key]
	return t, ok
}

// Discriminator holds the ExtractionType value exactly as it was sent.
// Any JSON value decodes; values that name no variant fail in Resolve.
type Discriminator struct {
	raw interface{}
}

// NewDiscriminator wraps a raw discriminator value.
func NewDiscriminator(v interface{}) Discriminator {
	return Discriminator{raw: v}
}

// Raw returns the value as received, or nil when it was absent.
func (d Discriminator) Raw() interface{} {
	return d.raw
}

// Resolve maps the received value to an ExtractionType.
func (d Discriminator) Resolve() (ExtractionType, bool) {
	return ParseExtractionType(d.raw)
}

// String renders the received value for error messages.
func (d Discriminator) String() string {
	if d.raw == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", d.raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Discriminator) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	d.raw = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Discriminator) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.raw)
}
