package grpccas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/metrics"
	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/localfs"
	"xdao.co/cidstore/storage/memory"
	"xdao.co/cidstore/storage/testkit"
)

// serve runs srv in-process and returns a client connected to it.
func serve(t *testing.T, srv *Server) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	RegisterCASServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return serve(t, &Server{CAS: memory.New(0)})
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	var m metrics.Basic
	client := serve(t, &Server{CAS: cas, Metrics: &m})

	payload := []byte("hello grpccas")
	id := cidutil.CIDv1DagCBORBlake2b256(payload)
	require.NoError(t, client.Put(id, payload))
	assert.True(t, client.Has(id))

	got, err := client.Get(id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.EqualValues(t, 1, m.Puts.Load())
	assert.EqualValues(t, len(payload), m.GetBytes.Load())
	assert.EqualValues(t, 1, m.HasHits.Load())
}

func TestServer_RejectsForgedEnvelope(t *testing.T) {
	var logs bytes.Buffer
	srv := &Server{CAS: memory.New(0), Logger: logging.NewJSONLogger(&logs, slog.LevelInfo)}
	id := cidutil.CIDv1DagCBORBlake2b256([]byte("claimed"))
	payload, err := encodePut(id, []byte("actual"))
	require.NoError(t, err)

	_, err = srv.Put(context.Background(), wrapperspb.Bytes(payload))
	assert.Equal(t, codes.DataLoss, status.Code(err))

	var rec map[string]any
	require.NoError(t, json.NewDecoder(&logs).Decode(&rec))
	assert.Equal(t, "block put failed", rec["msg"])
	assert.Equal(t, id.String(), rec["cid"])

	_, err = srv.Put(context.Background(), wrapperspb.Bytes([]byte{0xff, 0x00}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	require.NoError(t, json.NewDecoder(&logs).Decode(&rec))
	assert.Equal(t, "<undef>", rec["cid"])
}

// lyingCAS returns bytes that do not match the requested CID.
type lyingCAS struct{ storage.CAS }

func (lyingCAS) Get(cid.Cid) ([]byte, error) { return []byte("not the block"), nil }

func TestGRPCCAS_GetVerifiesBackendBytes(t *testing.T) {
	client := serve(t, &Server{CAS: lyingCAS{memory.New(0)}})
	id := cidutil.CIDv1DagCBORBlake2b256([]byte("the block"))
	_, err := client.Get(id)
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestServer_ErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code codes.Code
	}{
		{storage.ErrNotFound, codes.NotFound},
		{storage.ErrInvalidCID, codes.InvalidArgument},
		{storage.ErrCIDMismatch, codes.DataLoss},
		{storage.ErrImmutable, codes.AlreadyExists},
		{storage.ErrReadOnly, codes.PermissionDenied},
		{errors.New("disk on fire"), codes.Internal},
	} {
		st := mapErr(tc.err)
		assert.Equal(t, tc.code, status.Code(st), "%v", tc.err)
		if tc.code != codes.Internal {
			assert.ErrorIs(t, mapRPC(st), tc.err)
		}
	}
	assert.NoError(t, mapRPC(nil))
}

func TestServer_MissingCAS(t *testing.T) {
	var srv *Server
	_, err := srv.Has(context.Background(), wrapperspb.String("x"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
