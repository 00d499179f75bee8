// Package entry implements the PALS entry points: the template execution,
// conditional scheduling and the hello-world deployment check.
//
// A Runtime is built once per process and shared by every invocation. It is
// read-only after construction, so hosts may call it concurrently.
package entry

import (
	"context"
	"time"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/filter"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/model"
	"github.com/MerlinMa/pals/internal/normalize"
	"github.com/MerlinMa/pals/internal/observability"
	"github.com/MerlinMa/pals/internal/sink"
	"github.com/MerlinMa/pals/pkg/types"
)

// Statuses reported in Results.Messages.
const (
	StatusSuccess          = "Success"
	StatusMissingInputData = "Missing input data"
)

// Entry point names used for stats.
const (
	EntryExecute  = "execute"
	EntrySchedule = "schedule"
	EntryHello    = "hello"
)

// DefaultPredictedColumn names the model output column.
const DefaultPredictedColumn = "Predicted_Value"

// EndpointKey holds endpoint scores in Results.OutputData.
const EndpointKey = normalize.EndpointLabel

// Messages carries the execution status.
type Messages struct {
	Status string `json:"Status"`
}

// Results is the document returned to the PALS executor.
type Results struct {
	RequestKey interface{}            `json:"RequestKey"`
	RunKey     interface{}            `json:"RunKey"`
	OutputData map[string]interface{} `json:"OutputData"`
	InputData  interface{}            `json:"InputData"`
	Messages   Messages               `json:"Messages"`
}

// ScheduleResult tells the scheduler whether to run.
type ScheduleResult struct {
	RunSchedulingApproved bool `json:"RunSchedulingApproved"`
}

// Options configures a Runtime. Every collaborator is optional.
type Options struct {
	Model           *model.Model
	PredictedColumn string

	Blob     *sink.BlobSink
	BlobDest sink.Destination
	SQL      *sink.SQLSink
	SQLTable string
	Endpoint *sink.EndpointSink

	Filters []filter.Filter

	Logger logging.Logger
	Stats  *observability.ExecStats
}

// Runtime executes entry points against a fixed set of collaborators.
type Runtime struct {
	model           *model.Model
	predictedColumn string
	blob            *sink.BlobSink
	blobDest        sink.Destination
	sql             *sink.SQLSink
	sqlTable        string
	endpoint        *sink.EndpointSink
	filters         []filter.Filter
	log             logging.Logger
	stats           *observability.ExecStats
}

// NewRuntime creates a Runtime from opts.
func NewRuntime(opts Options) *Runtime {
	r := &Runtime{
		model:           opts.Model,
		predictedColumn: opts.PredictedColumn,
		blob:            opts.Blob,
		blobDest:        opts.BlobDest,
		sql:             opts.SQL,
		sqlTable:        opts.SQLTable,
		endpoint:        opts.Endpoint,
		filters:         opts.Filters,
		log:             opts.Logger,
		stats:           opts.Stats,
	}
	if r.predictedColumn == "" {
		r.predictedColumn = DefaultPredictedColumn
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	return r
}

// Stats returns the execution tracker, or nil.
func (r *Runtime) Stats() *observability.ExecStats {
	return r.stats
}

// Execute runs the template pipeline: normalize the payload, predict,
// push to the configured sinks and report the table back.
func (r *Runtime) Execute(ctx context.Context, payload *types.ExtractionPayload) (res *Results, err error) {
	start := time.Now()
	variant := ""
	defer func() {
		r.record(EntryExecute, variant, res, err, start)
	}()

	if payload == nil {
		return nil, palserrors.NewValidationError(palserrors.CodeNullInput, "payload cannot be nil")
	}

	res = &Results{
		OutputData: map[string]interface{}{},
		InputData:  map[string]interface{}{},
		Messages:   Messages{Status: StatusSuccess},
	}
	if payload.PALS != nil {
		res.RequestKey = payload.PALS.RequestKey
		res.RunKey = payload.PALS.RunKey
	}
	log := r.log.With("request_key", res.RequestKey, "run_key", res.RunKey)

	if t, ok := payload.ExtractionType.Resolve(); ok {
		variant = t.String()
	}

	hasData, err := normalize.HasData(payload)
	if err != nil {
		return nil, err
	}
	if !hasData {
		log.Warn("payload has no data")
		res.Messages.Status = StatusMissingInputData
		res.InputData = payload
		return res, nil
	}

	table, err := normalize.Normalize(payload, payload.InputTags)
	if err != nil {
		return nil, err
	}
	res.InputData = normalize.ToColumns(table, nil)
	log.Debug("payload normalized", "rows", table.Len(), "columns", table.Width())

	output := table.Drop()
	if r.model != nil {
		predictions, err := r.model.Predict(table)
		if err != nil {
			return nil, err
		}
		if err := output.AddColumn(r.predictedColumn, predictions); err != nil {
			return nil, palserrors.NewInternalError("add prediction column", err)
		}
	}

	if r.endpoint != nil {
		scores, err := r.endpoint.Score(ctx, table)
		if err != nil {
			return nil, err
		}
		res.OutputData[EndpointKey] = normalize.JSONValues(scores)
	}

	if r.blob != nil {
		if err := r.blob.Upload(ctx, r.blobDest, output); err != nil {
			return nil, err
		}
	}
	if r.sql != nil {
		if err := r.sql.Upload(ctx, sink.Destination{Name: r.sqlTable}, output); err != nil {
			return nil, err
		}
	}

	normalize.ToColumns(output, res.OutputData)
	log.Info("execution complete", "rows", output.Len())
	return res, nil
}

// Schedule evaluates the configured filters against the payload's tag
// values. An empty payload is never approved.
func (r *Runtime) Schedule(ctx context.Context, payload *types.ExtractionPayload) (res *ScheduleResult, err error) {
	start := time.Now()
	defer func() {
		r.record(EntrySchedule, "", res, err, start)
	}()

	res = &ScheduleResult{}
	if payload.IsEmpty() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	approved, err := filter.Evaluate(r.filters, payload.Tags)
	if err != nil {
		return nil, err
	}
	res.RunSchedulingApproved = approved
	r.log.Debug("schedule evaluated", "approved", approved, "filters", len(r.filters))
	return res, nil
}

// HelloWorld is the deployment smoke test.
func (r *Runtime) HelloWorld() map[string]string {
	r.record(EntryHello, "", nil, nil, time.Now())
	return HelloWorld()
}

// HelloWorld returns the fixed greeting document.
func HelloWorld() map[string]string {
	return map[string]string{"Message": "Hello, world!"}
}

func (r *Runtime) record(entry, variant string, res interface{}, err error, start time.Time) {
	if r.stats == nil {
		return
	}
	r.stats.Record(entry, variant, outcome(res, err), time.Since(start))
}

func outcome(res interface{}, err error) string {
	if err != nil {
		if code := palserrors.GetCode(err); code != "" {
			return code
		}
		return palserrors.CodeUnexpected
	}
	switch v := res.(type) {
	case *Results:
		if v != nil {
			return v.Messages.Status
		}
	case *ScheduleResult:
		if v != nil && v.RunSchedulingApproved {
			return "Approved"
		}
		return "Denied"
	}
	return "OK"
}
