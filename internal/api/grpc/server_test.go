package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/storage"
	"github.com/arkilian/advisor/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(ctx context.Context, table string) (*types.RecommendationReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.RecommendationReport{
		Table: table,
		Recommendations: []types.Recommendation{{
			Action:    types.ActionCreateIndex,
			Index:     &types.IndexCandidate{Kind: types.IndexSingle, Table: table, Columns: []string{"user_id"}},
			Statement: "CREATE INDEX CONCURRENTLY idx_orders_user_id ON orders (user_id);",
			Rationale: types.Rationale{Frequency: 500},
		}},
		Summary: types.Summary{QueriesSampled: 500, IndexesRecommended: 1},
	}, nil
}

type memArchive struct {
	reports map[string]*types.RecommendationReport
}

func (m *memArchive) Save(ctx context.Context, r *types.RecommendationReport) (string, error) {
	m.reports[r.Table] = r
	return "reports/" + r.Table + "/1.json.sz", nil
}

func (m *memArchive) Latest(ctx context.Context, table string) (*types.RecommendationReport, error) {
	r, ok := m.reports[table]
	if !ok {
		return nil, adverrors.NewStorageError(adverrors.CodeObjectNotFound, "no archived report for "+table, storage.ErrObjectNotFound)
	}
	return r, nil
}

func startServer(t *testing.T, srv AdvisorServer) *AdvisorClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor))
	RegisterAdvisorServer(s, srv)
	go func() {
		_ = s.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		s.Stop()
	})
	return NewAdvisorClient(conn)
}

func tableRequest(t *testing.T, table string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{"table": table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return req
}

func TestAdviseRoundTrip(t *testing.T) {
	archive := &memArchive{reports: map[string]*types.RecommendationReport{}}
	client := startServer(t, NewServer(&fakeRunner{}, archive))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-7")
	resp, err := client.Advise(ctx, tableRequest(t, "Orders"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := resp.GetFields()
	if fields["request_id"].GetStringValue() != "req-7" {
		t.Errorf("request_id = %q", fields["request_id"].GetStringValue())
	}
	if fields["report_key"].GetStringValue() != "reports/orders/1.json.sz" {
		t.Errorf("report_key = %q", fields["report_key"].GetStringValue())
	}

	rep, err := ReportFromStruct(fields["report"].GetStructValue())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Table != "orders" || len(rep.Recommendations) != 1 || rep.Recommendations[0].Rationale.Frequency != 500 {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Recommendations[0].Index.Columns[0] != "user_id" {
		t.Errorf("unexpected index %+v", rep.Recommendations[0].Index)
	}

	latest, err := client.LatestReport(context.Background(), tableRequest(t, "orders"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := latest.GetFields()["report"].GetStructValue().GetFields()["table"].GetStringValue(); got != "orders" {
		t.Errorf("latest table = %q", got)
	}
}

func TestAdviseStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"timeout", adverrors.NewTimedOutError("workload sampling", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"cancelled", adverrors.Wrap(adverrors.ErrCategoryRun, adverrors.CodeCancelled, "run cancelled", context.Canceled), codes.Canceled},
		{"provider", adverrors.Wrap(adverrors.ErrCategoryPolicy, adverrors.CodeProviderFailed, "policy provider failed", errors.New("down")), codes.Unavailable},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startServer(t, NewServer(&fakeRunner{err: tt.err}, nil))
			_, err := client.Advise(context.Background(), tableRequest(t, "orders"))
			if status.Code(err) != tt.code {
				t.Errorf("code = %v, want %v", status.Code(err), tt.code)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	client := startServer(t, NewServer(&fakeRunner{}, nil))

	_, err := client.Advise(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
	_, err = client.LatestReport(context.Background(), tableRequest(t, "orders"))
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("code = %v, want Unimplemented", status.Code(err))
	}
}

func TestLatestReportNotFound(t *testing.T) {
	client := startServer(t, NewServer(&fakeRunner{}, &memArchive{reports: map[string]*types.RecommendationReport{}}))
	_, err := client.LatestReport(context.Background(), tableRequest(t, "orders"))
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}
