package normalize

import (
	"errors"
	"fmt"
	"testing"
	"time"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildPayload creates an aligned payload with rows timestamps and cols tags.
// Sample j of tag i has value i*1000+j.
func buildPayload(variant types.ExtractionType, rows, cols int) (*types.ExtractionPayload, []types.TagInput) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	field := valueField[variant]

	series := &types.Series{Timestamps: make([]string, rows)}
	for j := 0; j < rows; j++ {
		series.Timestamps[j] = base.Add(time.Duration(j) * 10 * time.Second).Format(time.RFC3339)
	}

	tags := []types.TagInput{}
	data := types.NewSeriesData()
	// Insert keys in reverse so document order differs from key order.
	for i := cols - 1; i >= 0; i-- {
		key := types.TagKey(fmt.Sprintf("%d", i))
		tags = append(tags, types.TagInput{Key: key, Name: fmt.Sprintf("TAG_%d", i)})
		samples := make([]types.Sample, rows)
		for j := range samples {
			samples[j] = types.Sample{field: float64(i*1000 + j)}
		}
		data.Set(key, samples)
	}
	series.Data = *data

	p := &types.ExtractionPayload{ExtractionType: types.NewDiscriminator(variant.String())}
	if variant == types.PeriodicStatistics {
		p.PeriodicStatistics = series
	} else {
		p.PeriodicValues = series
	}
	return p, tags
}

// TestProperty_RowCount validates that N timestamps always produce N-1 rows.
func TestProperty_RowCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("periodic payloads with N timestamps yield N-1 rows", prop.ForAll(
		func(rows, cols int, statistics bool) bool {
			variant := types.PeriodicValues
			if statistics {
				variant = types.PeriodicStatistics
			}
			p, tags := buildPayload(variant, rows, cols)

			table, err := Normalize(p, tags)
			if err != nil {
				return false
			}
			if table.Len() != rows-1 {
				return false
			}
			for _, c := range table.Columns {
				if len(c.Values) != rows-1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 200),
		gen.IntRange(0, 12),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_ColumnOrderAndAlignment validates that columns follow Data key
// order and that row j holds sample j of every tag.
func TestProperty_ColumnOrderAndAlignment(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("columns follow Data key order with aligned values", prop.ForAll(
		func(rows, cols int) bool {
			p, tags := buildPayload(types.PeriodicValues, rows, cols)

			table, err := Normalize(p, tags)
			if err != nil {
				return false
			}

			keys := p.PeriodicValues.Data.Keys()
			if table.Width() != len(keys) {
				return false
			}
			for ci, key := range keys {
				if table.Columns[ci].Name != "TAG_"+string(key) {
					return false
				}
			}
			for j := 0; j < table.Len(); j++ {
				if !table.Index[j].Equal(time.Date(2021, 1, 1, 0, 0, 10*j, 0, time.UTC)) {
					return false
				}
				for _, c := range table.Columns {
					var i int
					fmt.Sscanf(c.Name, "TAG_%d", &i)
					if c.Values[j] != float64(i*1000+j) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestProperty_RawValuesAlwaysUnsupported validates that RawValues payloads
// never convert, whatever they contain.
func TestProperty_RawValuesAlwaysUnsupported(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	aliases := []interface{}{"RawValues", "rawvalues", "Rawvalue", "RAWVALUES", 3, "3"}

	properties.Property("RawValues fails with UnsupportedConversion", prop.ForAll(
		func(alias int, rows, cols int) bool {
			p, tags := buildPayload(types.PeriodicValues, rows, cols)
			p.PeriodicStatistics = p.PeriodicValues
			p.RawValues = []byte(`{"anything": [1, 2, 3]}`)
			p.ExtractionType = types.NewDiscriminator(aliases[alias])

			_, err := Normalize(p, tags)
			return errors.Is(err, palserrors.ErrUnsupportedConversion)
		},
		gen.IntRange(0, len(aliases)-1),
		gen.IntRange(0, 20),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

// TestProperty_UnknownDiscriminatorNeverDefaults validates that values
// outside the alias set always fail.
func TestProperty_UnknownDiscriminatorNeverDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unknown string discriminators are rejected", prop.ForAll(
		func(s string) bool {
			if _, known := types.ParseExtractionType(s); known {
				return true
			}
			p, tags := buildPayload(types.PeriodicValues, 3, 1)
			p.ExtractionType = types.NewDiscriminator(s)
			_, err := Normalize(p, tags)
			return errors.Is(err, palserrors.ErrUnrecognizedExtractionType)
		},
		gen.AlphaString(),
	))

	properties.Property("integer codes outside 1..3 are rejected", prop.ForAll(
		func(n int) bool {
			if n >= 1 && n <= 3 {
				return true
			}
			p, tags := buildPayload(types.PeriodicValues, 3, 1)
			p.ExtractionType = types.NewDiscriminator(n)
			_, err := Normalize(p, tags)
			return errors.Is(err, palserrors.ErrUnrecognizedExtractionType)
		},
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
