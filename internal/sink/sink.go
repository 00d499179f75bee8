// Package sink pushes normalized tables to external systems: blob storage,
// a SQL database, and REST scoring endpoints.
package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"strconv"
	"strings"

	"github.com/MerlinMa/pals/internal/normalize"
	"github.com/MerlinMa/pals/pkg/types"
)

// Destination describes where a table lands.
type Destination struct {
	// Name is the blob name or SQL table. Sinks pick a default when empty.
	Name string
	// Subdir prefixes blob names.
	Subdir string
	// Overwrite replaces an existing blob. When unset an existing blob is
	// kept and the upload is skipped.
	Overwrite bool
	// Compress stores blob content snappy-compressed under a ".sz" suffix.
	Compress bool
}

// Sink receives normalized tables.
type Sink interface {
	Upload(ctx context.Context, dest Destination, table *types.Table) error
}

// ObjectPath joins subdir and name with exactly one separator. An empty
// subdir or one ending in "/" is used as is.
func ObjectPath(subdir, name string) string {
	if subdir == "" || strings.HasSuffix(subdir, "/") {
		return strings.TrimPrefix(subdir+name, "/")
	}
	return subdir + "/" + name
}

// EncodeCSV renders t with the index as the first column labelled
// "Timestamps". Missing values are written as empty fields.
func EncodeCSV(t *types.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{normalize.IndexLabel}, t.Names()...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	record := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		record[0] = normalize.FormatTimestamp(t.Index[i])
		for j, c := range t.Columns {
			record[j+1] = formatFloat(c.Values[i])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
