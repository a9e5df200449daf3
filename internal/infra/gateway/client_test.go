package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(cfg, WithHTTPClient(hc))
}

func jsonResponder(body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(200, body)
		if resp.Header == nil {
			resp.Header = http.Header{}
		}
		resp.Header.Set("Content-Type", "application/json; charset=utf-8")
		return resp, nil
	}
}

func TestClient_Block(t *testing.T) {
	c := newMockedClient(t, Config{URL: "https://gw.test/"})

	httpmock.RegisterResponder("GET", "https://gw.test/block/height/1234",
		jsonResponder(`{"height":1234,"indep_hash":"abc"}`))

	got, err := c.Block(context.Background(), 1234)
	require.NoError(t, err)
	require.True(t, got.IsJSON())
	require.JSONEq(t, `{"height":1234,"indep_hash":"abc"}`, string(got.Body))
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_NotFound(t *testing.T) {
	c := newMockedClient(t, Config{URL: "https://gw.test"})
	httpmock.RegisterResponder("GET", "https://gw.test/raw/missing",
		httpmock.NewStringResponder(404, "Not Found"))

	_, err := c.Raw(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_ServerError(t *testing.T) {
	c := newMockedClient(t, Config{URL: "https://gw.test"})
	httpmock.RegisterResponder("GET", "https://gw.test/raw/tx-1",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := c.Raw(context.Background(), "tx-1")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
	require.Contains(t, err.Error(), "http 503")
}

func TestClient_TransportError(t *testing.T) {
	c := newMockedClient(t, Config{URL: "https://gw.test"})
	httpmock.RegisterResponder("GET", "https://gw.test/raw/tx-1",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := c.Raw(context.Background(), "tx-1")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	c := newMockedClient(t, Config{URL: "https://gw.test", RateLimit: 1})
	httpmock.RegisterResponder("GET", "https://gw.test/raw/tx-1",
		httpmock.NewStringResponder(200, "hello"))

	_, err := c.Raw(context.Background(), "tx-1")
	require.NoError(t, err)

	// The single token is spent; the next call must wait about a second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Raw(ctx, "tx-1")
	require.Error(t, err)
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}
