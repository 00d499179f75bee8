package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/normalize"
	"github.com/MerlinMa/pals/pkg/types"
)

// EndpointConfig configures a REST scoring endpoint.
type EndpointConfig struct {
	URL string
	// Key is sent as a bearer token when set.
	Key string
	// Tags restricts the columns sent. All columns are sent when empty.
	Tags []string
	// IncludeTimestamps adds the index to every record.
	IncludeTimestamps bool
	Timeout           time.Duration
	RetryCount        int
}

// EndpointSink posts table rows to a scoring service and reads back one
// prediction per row.
type EndpointSink struct {
	client *resty.Client
	cfg    EndpointConfig
	log    logging.Logger
}

// NewEndpointSink creates an endpoint sink.
func NewEndpointSink(cfg EndpointConfig, log logging.Logger) (*EndpointSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	if cfg.Key != "" {
		client.SetAuthToken(cfg.Key)
	}
	client.AddRetryCondition(retryCondition)

	return &EndpointSink{client: client, cfg: cfg, log: log}, nil
}

// retryCondition retries network errors, server errors and throttling.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

// Score sends t and returns the endpoint's predictions.
func (e *EndpointSink) Score(ctx context.Context, t *types.Table) ([]float64, error) {
	if t == nil {
		return nil, palserrors.NewValidationError(palserrors.CodeNullInput, "table cannot be nil")
	}

	input := t
	if len(e.cfg.Tags) > 0 {
		selected, err := t.Select(e.cfg.Tags...)
		if err != nil {
			return nil, palserrors.NewModelError(
				palserrors.CodeDimensionMismatch,
				fmt.Sprintf("endpoint inputs missing from table: %v", err),
				err,
			)
		}
		input = selected
	}

	body := map[string]interface{}{
		"data": normalize.ToRecords(input, e.cfg.IncludeTimestamps),
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(e.cfg.URL)
	if err != nil {
		return nil, palserrors.NewUploadError("post to endpoint", err)
	}
	if resp.IsError() {
		return nil, palserrors.NewUploadError(
			fmt.Sprintf("endpoint returned %d", resp.StatusCode()),
			fmt.Errorf("%s", truncate(resp.String(), 256)),
		).WithDetails(map[string]interface{}{"status": resp.StatusCode()})
	}

	scores, err := ParseScores(resp.Body())
	if err != nil {
		return nil, palserrors.NewUploadError("decode endpoint response", err)
	}

	e.log.Debug("endpoint scored", "rows", input.Len(), "scores", len(scores))
	return scores, nil
}

// Upload scores t and discards the result.
func (e *EndpointSink) Upload(ctx context.Context, _ Destination, t *types.Table) error {
	_, err := e.Score(ctx, t)
	return err
}

// ParseScores decodes a scoring response. Services answer with a JSON array,
// a JSON string holding an array, or an object with a "result" array.
// Null entries decode as NaN.
func ParseScores(data []byte) ([]float64, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	for depth := 0; depth < 3; depth++ {
		switch v := doc.(type) {
		case string:
			inner := json.NewDecoder(bytes.NewReader([]byte(v)))
			inner.UseNumber()
			if err := inner.Decode(&doc); err != nil {
				return nil, fmt.Errorf("string response is not JSON: %w", err)
			}
		case map[string]interface{}:
			result, ok := v["result"]
			if !ok {
				return nil, fmt.Errorf("response object has no result field")
			}
			doc = result
		case []interface{}:
			return toScores(v)
		default:
			return nil, fmt.Errorf("unexpected response type %T", v)
		}
	}
	return nil, fmt.Errorf("response nested too deeply")
}

func toScores(values []interface{}) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			out[i] = math.NaN()
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("score %d: %w", i, err)
			}
			out[i] = f
		case []interface{}:
			// Single-output models may wrap each score in a list.
			if len(x) != 1 {
				return nil, fmt.Errorf("score %d has %d outputs", i, len(x))
			}
			inner, err := toScores(x)
			if err != nil {
				return nil, err
			}
			out[i] = inner[0]
		default:
			return nil, fmt.Errorf("score %d has type %T", i, v)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
