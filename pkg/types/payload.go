// Package types provides the core data types exchanged with the PALS executor.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TagKey is the opaque identifier PALS assigns to a tag.
// Keys arrive as JSON numbers or strings and are compared in string form.
type TagKey string

// UnmarshalJSON implements json.Unmarshaler.
func (k *TagKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = TagKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tag key must be a string or number: %w", err)
	}
	*k = TagKey(n.String())
	return nil
}

// TagInput maps a tag key to its human-readable column name.
type TagInput struct {
	Key  TagKey `json:"Key"`
	Name string `json:"Name"`
}

// RunInfo identifies one PALS execution.
type RunInfo struct {
	RequestKey interface{} `json:"RequestKey,omitempty"`
	RunKey     interface{} `json:"RunKey,omitempty"`
}

// TagValue is the latest value of a tag, used by scheduling filters.
type TagValue struct {
	Value interface{} `json:"Value"`
}

// Sample is one interval's worth of data for a tag. Statistics payloads carry
// Average, Minimum, Maximum and friends; value payloads carry Value.
type Sample map[string]interface{}

// Float extracts a numeric field. A JSON null yields NaN; an absent field
// yields ok=false.
func (s Sample) Float(field string) (float64, bool, error) {
	v, ok := s[field]
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case nil:
		return math.NaN(), true, nil
	case float64:
		return x, true, nil
	case json.Number:
		f, err := x.Float64()
		return f, true, err
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, true, err
	case int:
		return float64(x), true, nil
	default:
		return 0, true, fmt.Errorf("field %s has non-numeric type %T", field, v)
	}
}

// SeriesData maps tag keys to their samples, preserving the key order of the
// source document.
type SeriesData struct {
	keys    []TagKey
	samples map[TagKey][]Sample
}

// NewSeriesData creates an empty SeriesData.
func NewSeriesData() *SeriesData {
	return &SeriesData{samples: make(map[TagKey][]Sample)}
}

// Set appends or replaces the samples for key. New keys go to the end.
func (d *SeriesData) Set(key TagKey, samples []Sample) {
	if d.samples == nil {
		d.samples = make(map[TagKey][]Sample)
	}
	if _, exists := d.samples[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.samples[key] = samples
}

// Keys returns the tag keys in document order.
func (d *SeriesData) Keys() []TagKey {
	if d == nil {
		return nil
	}
	return append([]TagKey(nil), d.keys...)
}

// Samples returns the samples recorded for key.
func (d *SeriesData) Samples(key TagKey) ([]Sample, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.samples[key]
	return s, ok
}

// Len returns the number of tag keys.
func (d *SeriesData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// UnmarshalJSON decodes a JSON object token by token so key order survives.
func (d *SeriesData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = SeriesData{samples: make(map[TagKey][]Sample)}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("Data must be a JSON object")
	}

	out := SeriesData{samples: make(map[TagKey][]Sample)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("Data key must be a string, got %v", tok)
		}
		var samples []Sample
		if err := dec.Decode(&samples); err != nil {
			return fmt.Errorf("Data[%s]: %w", key, err)
		}
		out.Set(TagKey(key), samples)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}

// MarshalJSON encodes the object with keys in document order.
func (d SeriesData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(key))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(d.samples[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Series is a timestamp-aligned block of tag data.
type Series struct {
	Timestamps []string   `json:"Timestamps"`
	Data       SeriesData `json:"Data"`
}

// ExtractionPayload is the document PALS hands to an entry point.
type ExtractionPayload struct {
	ExtractionType     Discriminator       `json:"ExtractionType"`
	InputTags          []TagInput          `json:"InputTags,omitempty"`
	PeriodicStatistics *Series             `json:"PeriodicStatistics,omitempty"`
	PeriodicValues     *Series             `json:"PeriodicValues,omitempty"`
	RawValues          json.RawMessage     `json:"RawValues,omitempty"`
	PALS               *RunInfo            `json:"PALS,omitempty"`
	Tags               map[string]TagValue `json:"Tags,omitempty"`
}

// SeriesFor returns the aligned block that matches t, or nil.
func (p *ExtractionPayload) SeriesFor(t ExtractionType) *Series {
	switch t {
	case PeriodicStatistics:
		return p.PeriodicStatistics
	case PeriodicValues:
		return p.PeriodicValues
	default:
		return nil
	}
}

// IsEmpty reports whether the payload carries no fields at all.
func (p *ExtractionPayload) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.ExtractionType.Raw() == nil &&
		len(p.InputTags) == 0 &&
		p.PeriodicStatistics == nil &&
		p.PeriodicValues == nil &&
		(len(p.RawValues) == 0 || string(p.RawValues) == "null") &&
		p.PALS == nil &&
		len(p.Tags) == 0
}

// DecodePayload parses a JSON payload. Numbers are kept as json.Number so
// run keys and tag values survive without float rounding.
func DecodePayload(data []byte) (*ExtractionPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p ExtractionPayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
