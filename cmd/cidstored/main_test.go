package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/storage/grpccas"
)

func TestRun_ServesMemoryBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan int, 1)
	var out, errOut bytes.Buffer
	go func() {
		done <- run(ctx, []string{"--listen", "127.0.0.1:0", "--backend", "memory", "--log-format", "json"}, &out, &errOut, ready)
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case code := <-done:
		t.Fatalf("run exited early with %d: %s", code, errOut.String())
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	client, err := grpccas.Dial(addr.String(), grpccas.DialOptions{})
	require.NoError(t, err)
	defer client.Close()
	client.Timeout = 2 * time.Second

	block := []byte("served by cidstored")
	id := cidutil.CIDv1DagCBORBlake2b256(block)
	require.NoError(t, client.Put(id, block))
	got, err := client.Get(id)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_FlagErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	ctx := context.Background()
	assert.Equal(t, 2, run(ctx, []string{"--no-such-flag"}, &out, &errOut, nil))
	assert.Equal(t, 2, run(ctx, []string{"--backend", "nope"}, &out, &errOut, nil))
	assert.Equal(t, 2, run(ctx, []string{"--backend", "memory", "--log-format", "xml"}, &out, &errOut, nil))
	assert.Equal(t, 2, run(ctx, []string{"--backend", "grpc"}, &out, &errOut, nil), "grpc is a CLI-only backend")
}

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"--list-backends"}, &out, &errOut, nil))
	for _, name := range []string{"archive", "ipfs", "localfs", "memory"} {
		assert.Contains(t, out.String(), name)
	}
	assert.NotContains(t, out.String(), "grpc")
}
