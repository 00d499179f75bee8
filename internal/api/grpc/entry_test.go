package grpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MerlinMa/pals/internal/entry"
	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/filter"
	"github.com/MerlinMa/pals/internal/observability"
	"github.com/MerlinMa/pals/internal/server"
)

func startServer(t *testing.T, opts entry.Options) (*EntryServiceClient, *server.ShutdownManager) {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	sm := server.NewShutdownManager(server.ShutdownConfig{})
	srv := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(sm)))
	RegisterEntryServiceServer(srv, NewEntryServer(entry.NewRuntime(opts), nil))
	go srv.Serve(ln)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewEntryServiceClient(conn), sm
}

func mustStruct(t *testing.T, doc string) *structpb.Struct {
	t.Helper()
	s := new(structpb.Struct)
	if err := protojson.Unmarshal([]byte(doc), s); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return s
}

const valuesDoc = `{
	"ExtractionType": 2,
	"PALS": {"RequestKey": 42, "RunKey": "run-7"},
	"InputTags": [{"Key": 1, "Name": "Gas"}],
	"PeriodicValues": {
		"Timestamps": ["2021-01-01T00:00:00Z", "2021-01-01T00:00:10Z"],
		"Data": {"1": [{"Value": 1}, {"Value": 2}]}
	}
}`

func TestExecute(t *testing.T) {
	stats := observability.NewExecStats(0)
	client, _ := startServer(t, entry.Options{Stats: stats})

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDKey, "req-1")
	res, err := client.Execute(ctx, mustStruct(t, valuesDoc), grpc.Header(&header))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if ids := header.Get(RequestIDKey); len(ids) != 1 || ids[0] != "req-1" {
		t.Errorf("request id header = %v", ids)
	}

	fields := res.GetFields()
	if got := fields["RequestKey"].GetNumberValue(); got != 42 {
		t.Errorf("RequestKey = %v", got)
	}
	if got := fields["Messages"].GetStructValue().GetFields()["Status"].GetStringValue(); got != entry.StatusSuccess {
		t.Errorf("status = %q", got)
	}
	gas := fields["OutputData"].GetStructValue().GetFields()["Gas"].GetListValue().GetValues()
	if len(gas) != 1 || gas[0].GetNumberValue() != 1 {
		t.Errorf("Gas = %v", gas)
	}
	if c, ok := stats.Entry(entry.EntryExecute); !ok || c.Count != 1 {
		t.Errorf("stats = %+v", c)
	}
}

func TestExecuteErrors(t *testing.T) {
	client, _ := startServer(t, entry.Options{})

	var trailer metadata.MD
	_, err := client.Execute(context.Background(), mustStruct(t, `{"ExtractionType": "RawValues", "RawValues": {}}`), grpc.Trailer(&trailer))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v", status.Code(err))
	}
	if got := trailer.Get(ErrorCodeKey); len(got) != 1 || got[0] != palserrors.CodeUnsupportedConversion {
		t.Errorf("error code trailer = %v", got)
	}

	if _, err := client.Execute(context.Background(), &structpb.Struct{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty request code = %v", status.Code(err))
	}
}

func TestSchedule(t *testing.T) {
	filters, err := filter.Compile(map[string]filter.Spec{
		"flow": {Key: "5", Condition: "<", Value: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	client, _ := startServer(t, entry.Options{Filters: filters})

	res, err := client.Schedule(context.Background(), mustStruct(t, `{"Tags": {"5": {"Value": 40}}}`))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if !res.GetFields()["RunSchedulingApproved"].GetBoolValue() {
		t.Error("expected approval")
	}

	res, err = client.Schedule(context.Background(), &structpb.Struct{})
	if err != nil || res.GetFields()["RunSchedulingApproved"].GetBoolValue() {
		t.Errorf("empty request: got (%v, %v)", res, err)
	}
}

func TestHello(t *testing.T) {
	client, _ := startServer(t, entry.Options{})
	res, err := client.Hello(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("Hello failed: %v", err)
	}
	if got := res.GetFields()["Message"].GetStringValue(); got != "Hello, world!" {
		t.Errorf("message = %q", got)
	}
}

func TestRejectsDuringShutdown(t *testing.T) {
	client, sm := startServer(t, entry.Options{})
	sm.Shutdown(context.Background(), "test")
	if _, err := client.Hello(context.Background(), &structpb.Struct{}); status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v", status.Code(err))
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{palserrors.ErrNullInput, codes.InvalidArgument},
		{palserrors.ErrUnknownTagKey, codes.InvalidArgument},
		{palserrors.ErrDimensionMismatch, codes.FailedPrecondition},
		{palserrors.ErrUpload, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{palserrors.NewInternalError("x", nil), codes.Internal},
		{status.Error(codes.NotFound, "x"), codes.NotFound},
	}
	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
