package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/metrics"
	"xdao.co/cidstore/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
//
// Metrics and Logger are optional.
type Server struct {
	UnimplementedCASServer
	CAS     storage.CAS
	Metrics metrics.Collector
	Logger  *logging.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	start := time.Now()
	id, data, err := decodePut(in.GetValue())
	if err == nil {
		// Enforce the CID contract before the backend sees the bytes.
		err = storage.Verify(id, data)
	}
	if err == nil {
		err = s.CAS.Put(id, data)
	}
	metrics.OrNoop(s.Metrics).RecordPut(time.Since(start), len(data), err)
	if err != nil {
		s.logFailure(ctx, "put", id, err)
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	start := time.Now()
	b, err := s.CAS.Get(id)
	if err == nil {
		err = storage.Verify(id, b)
	}
	metrics.OrNoop(s.Metrics).RecordGet(time.Since(start), len(b), err)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.logFailure(ctx, "get", id, err)
		}
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	start := time.Now()
	ok := s.CAS.Has(id)
	metrics.OrNoop(s.Metrics).RecordHas(time.Since(start), ok)
	return wrapperspb.Bool(ok), nil
}

func (s *Server) logFailure(ctx context.Context, op string, id cid.Cid, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithCID(id).WarnContext(ctx, "block "+op+" failed", "error", err)
}
