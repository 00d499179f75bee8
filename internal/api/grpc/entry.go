package grpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MerlinMa/pals/internal/entry"
	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/pkg/types"
)

// Metadata keys exchanged with callers.
const (
	RequestIDKey = "x-request-id"
	ErrorCodeKey = "pals-error-code"
)

// EntryServer implements EntryServiceServer on top of a Runtime.
type EntryServer struct {
	rt  *entry.Runtime
	log logging.Logger
}

// NewEntryServer creates a new gRPC entry server.
func NewEntryServer(rt *entry.Runtime, log logging.Logger) *EntryServer {
	if log == nil {
		log = logging.Nop()
	}
	return &EntryServer{rt: rt, log: log}
}

// Execute runs the template pipeline on the request document.
func (s *EntryServer) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	payload, err := toPayload(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid payload: %v", err)
	}

	res, err := s.rt.Execute(ctx, payload)
	if err != nil {
		s.log.Warn("grpc execute failed", "error", err, "request_id", requestID)
		return nil, toStatus(ctx, err)
	}
	return toStruct(res)
}

// Schedule evaluates the run filters against the request document.
func (s *EntryServer) Schedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	payload, err := toPayload(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid payload: %v", err)
	}

	res, err := s.rt.Schedule(ctx, payload)
	if err != nil {
		s.log.Warn("grpc schedule failed", "error", err, "request_id", requestID)
		return nil, toStatus(ctx, err)
	}
	return toStruct(res)
}

// Hello answers the deployment check.
func (s *EntryServer) Hello(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	extractRequestID(ctx)
	return toStruct(s.rt.HelloWorld())
}

// CodeFor maps an error to the gRPC status code reported to callers.
func CodeFor(err error) codes.Code {
	switch palserrors.GetCategory(err) {
	case palserrors.ErrCategoryValidation, palserrors.ErrCategoryConversion:
		return codes.InvalidArgument
	case palserrors.ErrCategoryModel:
		return codes.FailedPrecondition
	case palserrors.ErrCategoryStorage:
		return codes.Unavailable
	case palserrors.ErrCategoryInternal:
		return codes.Internal
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}
	return status.FromContextError(err).Code()
}

func toStatus(ctx context.Context, err error) error {
	if code := palserrors.GetCode(err); code != "" {
		grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeKey, code))
	}
	return status.Error(CodeFor(err), err.Error())
}

// extractRequestID returns the caller's request ID or generates one, and
// echoes it in the response header.
func extractRequestID(ctx context.Context) string {
	requestID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDKey); len(ids) > 0 {
			requestID = ids[0]
		}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, requestID))
	return requestID
}

// toPayload converts a request document. An empty document is a nil
// payload, matching an empty HTTP body.
func toPayload(req *structpb.Struct) (*types.ExtractionPayload, error) {
	if req == nil || len(req.GetFields()) == 0 {
		return nil, nil
	}
	data, err := protojson.Marshal(req)
	if err != nil {
		return nil, err
	}
	return types.DecodePayload(data)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to convert result: %v", err)
	}
	return out, nil
}
