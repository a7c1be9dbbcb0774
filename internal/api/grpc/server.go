package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/report"
	"github.com/arkilian/advisor/pkg/types"
)

// Runner runs one advisory pipeline.
type Runner interface {
	Run(ctx context.Context, table string) (*types.RecommendationReport, error)
}

// ReportArchive stores reports between runs.
type ReportArchive interface {
	Save(ctx context.Context, r *types.RecommendationReport) (string, error)
	Latest(ctx context.Context, table string) (*types.RecommendationReport, error)
}

// Server implements AdvisorServer.
type Server struct {
	runner  Runner
	archive ReportArchive
}

// NewServer creates a gRPC advisor server. archive may be nil.
func NewServer(runner Runner, archive ReportArchive) *Server {
	return &Server{runner: runner, archive: archive}
}

// Advise runs the advisor for one table.
func (s *Server) Advise(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	table := tableOf(req)
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}

	rep, err := s.runner.Run(ctx, table)
	if err != nil {
		return nil, toStatus(err)
	}

	var key string
	if s.archive != nil {
		if key, err = s.archive.Save(ctx, rep); err != nil {
			log.Printf("[WARN] grpc: archive report for %s (request %s): %v", table, requestID, err)
		}
	}

	out, err := ReportToStruct(rep)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode report: %v", err)
	}
	resp := &structpb.Struct{Fields: map[string]*structpb.Value{
		"report":     structpb.NewStructValue(out),
		"request_id": structpb.NewStringValue(requestID),
	}}
	if key != "" {
		resp.Fields["report_key"] = structpb.NewStringValue(key)
	}
	return resp, nil
}

// LatestReport returns the latest archived report of a table.
func (s *Server) LatestReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.archive == nil {
		return nil, status.Error(codes.Unimplemented, "report archive is disabled")
	}
	table := tableOf(req)
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}

	rep, err := s.archive.Latest(ctx, table)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := ReportToStruct(rep)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode report: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"report": structpb.NewStructValue(out),
	}}, nil
}

func tableOf(req *structpb.Struct) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()["table"]
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v.GetStringValue()))
}

// ReportToStruct converts a report into its JSON object form.
func ReportToStruct(r *types.RecommendationReport) (*structpb.Struct, error) {
	data, err := report.Encode(r)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("grpc: decode report: %w", err)
	}
	return structpb.NewStruct(m)
}

// ReportFromStruct converts a struct produced by ReportToStruct back into a report.
func ReportFromStruct(s *structpb.Struct) (*types.RecommendationReport, error) {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("grpc: encode report: %w", err)
	}
	return report.Decode(data)
}

// toStatus maps an advisor error onto a gRPC status.
func toStatus(err error) error {
	code := codes.Internal
	switch adverrors.GetCode(err) {
	case adverrors.CodeTimedOut:
		code = codes.DeadlineExceeded
	case adverrors.CodeCancelled:
		code = codes.Canceled
	case adverrors.CodeObjectNotFound:
		code = codes.NotFound
	case adverrors.CodeInvalidConfig:
		code = codes.InvalidArgument
	default:
		switch adverrors.GetCategory(err) {
		case adverrors.ErrCategoryWorkload, adverrors.ErrCategoryStatistics, adverrors.ErrCategoryPolicy:
			code = codes.Unavailable
		}
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor logs one line per unary call.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Printf("grpc: %s %s %s request=%s", info.FullMethod, status.Code(err),
		time.Since(start).Round(time.Microsecond), extractRequestID(ctx))
	return resp, err
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
