// Package normalize converts PALS extraction payloads into timestamp-indexed tables.
//
// Consecutive extraction windows overlap by one sampling period: the last
// sample of a window is the first sample of the next one. Every conversion
// therefore drops the final row so that concatenated runs never count the
// boundary interval twice.
package normalize

import (
	"fmt"
	"strings"
	"time"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
)

// valueField names the scalar extracted from each sample per variant.
var valueField = map[types.ExtractionType]string{
	types.PeriodicStatistics: "Average",
	types.PeriodicValues:     "Value",
}

// timestampLayouts are tried in order. RFC 3339 also accepts the 7-digit
// fractional seconds PALS emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ResolveType maps the payload's discriminator to an ExtractionType.
func ResolveType(payload *types.ExtractionPayload) (types.ExtractionType, error) {
	if payload == nil {
		return types.ExtractionUnknown, palserrors.NewValidationError(palserrors.CodeNullInput, "payload cannot be nil")
	}
	t, ok := payload.ExtractionType.Resolve()
	if !ok {
		return types.ExtractionUnknown, palserrors.NewValidationError(
			palserrors.CodeUnrecognizedExtractionType,
			fmt.Sprintf("value for ExtractionType not recognized: %s", payload.ExtractionType),
		)
	}
	return t, nil
}

// Normalize builds one table from payload, naming columns through tags.
// The final timestamp row is always dropped.
func Normalize(payload *types.ExtractionPayload, tags []types.TagInput) (*types.Table, error) {
	if payload == nil {
		return nil, palserrors.NewValidationError(palserrors.CodeNullInput, "payload cannot be nil")
	}
	variant, err := ResolveType(payload)
	if err != nil {
		return nil, err
	}
	if !variant.Aligned() {
		return nil, palserrors.NewConversionError(
			palserrors.CodeUnsupportedConversion,
			fmt.Sprintf("cannot transform %s to a table", variant),
		)
	}
	if tags == nil {
		return nil, palserrors.NewValidationError(palserrors.CodeNullInput, "input tags cannot be nil")
	}

	series := payload.SeriesFor(variant)
	if series == nil {
		return nil, palserrors.NewValidationError(
			palserrors.CodeNullInput,
			fmt.Sprintf("payload has no %s block", variant),
		)
	}

	names := tagNames(tags)
	field := valueField[variant]

	index, err := ParseTimestamps(series.Timestamps)
	if err != nil {
		return nil, err
	}

	table := types.NewTable(index)
	for _, key := range series.Data.Keys() {
		name, ok := names[key]
		if !ok {
			return nil, palserrors.NewConversionError(
				palserrors.CodeUnknownTagKey,
				fmt.Sprintf("no input tag for key %q", key),
			).WithDetails(map[string]interface{}{"key": string(key)})
		}
		if reservedLabel(name) {
			return nil, palserrors.NewConversionError(
				palserrors.CodeReservedColumn,
				fmt.Sprintf("tag %q uses reserved column name %q", key, name),
			).WithDetails(map[string]interface{}{"key": string(key), "name": name})
		}

		samples, _ := series.Data.Samples(key)
		if len(samples) != len(index) {
			return nil, palserrors.NewConversionError(
				palserrors.CodeMisalignedColumn,
				fmt.Sprintf("tag %q has %d samples for %d timestamps", name, len(samples), len(index)),
			)
		}

		values := make([]float64, len(samples))
		for i, s := range samples {
			v, present, err := s.Float(field)
			if err != nil {
				return nil, palserrors.NewConversionError(
					palserrors.CodeMisalignedColumn,
					fmt.Sprintf("tag %q sample %d: %v", name, i, err),
				)
			}
			if !present {
				return nil, palserrors.NewConversionError(
					palserrors.CodeMisalignedColumn,
					fmt.Sprintf("tag %q sample %d has no %s field", name, i, field),
				)
			}
			values[i] = v
		}

		if err := table.AddColumn(name, values); err != nil {
			return nil, palserrors.NewInternalError("add column", err)
		}
	}

	return dropLast(table), nil
}

// HasData reports whether the payload carries anything to process.
// Aligned variants have data when at least one timestamp is present;
// RawValues payloads are always considered populated.
func HasData(payload *types.ExtractionPayload) (bool, error) {
	variant, err := ResolveType(payload)
	if err != nil {
		return false, err
	}
	if variant == types.RawValues {
		return true, nil
	}
	series := payload.SeriesFor(variant)
	return series != nil && len(series.Timestamps) > 0, nil
}

// TimestampList returns the payload's timestamps as sent, minus the
// trailing boundary timestamp.
func TimestampList(payload *types.ExtractionPayload) ([]string, error) {
	variant, err := ResolveType(payload)
	if err != nil {
		return nil, err
	}
	if !variant.Aligned() {
		return nil, palserrors.NewConversionError(
			palserrors.CodeUnsupportedConversion,
			"timestamp list cannot be extracted from RawValues",
		)
	}
	series := payload.SeriesFor(variant)
	if series == nil || len(series.Timestamps) == 0 {
		return []string{}, nil
	}
	return append([]string(nil), series.Timestamps[:len(series.Timestamps)-1]...), nil
}

// ParseTimestamps parses ISO-8601 timestamps. Values without a zone are UTC.
func ParseTimestamps(raw []string) ([]time.Time, error) {
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		ts, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		out[i] = ts
	}
	return out, nil
}

// ParseTimestamp parses a single ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, palserrors.NewValidationError(
		palserrors.CodeInvalidTimestamp,
		fmt.Sprintf("cannot parse timestamp %q", s),
	)
}

func tagNames(tags []types.TagInput) map[types.TagKey]string {
	names := make(map[types.TagKey]string, len(tags))
	for _, tag := range tags {
		names[tag.Key] = tag.Name
	}
	return names
}

func dropLast(t *types.Table) *types.Table {
	if t.Len() == 0 {
		return t
	}
	n := t.Len() - 1
	out := &types.Table{Index: t.Index[:n:n]}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, types.Column{Name: c.Name, Values: c.Values[:n:n]})
	}
	return out
}
