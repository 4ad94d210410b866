package xmetrics_test

import (
	"context"
	"dstaping/pkg/xecho"
	"dstaping/pkg/xmetrics"
	"dstaping/pkg/xnet"
	"io"
	"net/http"
	"strings"
	"testing"
)

type fakeClient struct {
	primary, secondary xnet.PathCounters
}

func (f *fakeClient) Counters() (xnet.PathCounters, xnet.PathCounters) {
	return f.primary, f.secondary
}

func (f *fakeClient) SecondaryStatus() xnet.AdapterStatus {
	return xnet.Ready
}

func (f *fakeClient) Sequence() int64 {
	return 42
}

type fakeServer struct{}

func (fakeServer) Counters() xecho.Counters {
	return xecho.Counters{Received: 7, Echoed: 6, Corrupt: 1, Truncated: 2}
}

func TestMetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	reg := xmetrics.NewRegistry()
	if err := reg.RegisterClient(&fakeClient{
		primary:   xnet.PathCounters{Sent: 10, Received: 9},
		secondary: xnet.PathCounters{Sent: 10, Received: 8, Corrupt: 2},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterServer(fakeServer{}); err != nil {
		t.Fatal(err)
	}
	// 重复注册
	if err := reg.RegisterServer(fakeServer{}); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	svr, err := xmetrics.Serve(ctx, "127.0.0.1:0", reg)
	if err != nil {
		t.Fatal(err)
	}
	defer svr.Close(ctx)

	resp, err := http.Get("http://" + svr.Addr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)
	for _, want := range []string{
		`dsta_client_datagrams_received_total{path="primary"} 9`,
		`dsta_client_corrupt_total{path="secondary"} 2`,
		`dsta_client_secondary_status 2`,
		`dsta_client_sequence 42`,
		`dsta_echo_echoed_total 6`,
		`dsta_echo_truncated_total 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}
}
