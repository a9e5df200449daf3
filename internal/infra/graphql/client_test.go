package graphql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_Transactions(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"transactions":{"edges":[
			{"cursor":"c1","node":{"id":"tx-1","ingested_at":1700000000,"recipient":"oracle",
				"owner":{"address":"mu"},"block":{"height":1234,"timestamp":1700000100},
				"tags":[{"name":"Action","value":"Get-Block"}],"data":{"size":"0"}}},
			{"cursor":"c2","node":{"id":"tx-2","recipient":"oracle","owner":{"address":"mu"},
				"block":null,"tags":[]}}
		]}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	edges, err := c.Transactions(context.Background(), TransactionsQuery{
		EntityID: "oracle",
		Cursor:   "c0",
		Tags:     []TagFilter{{Name: "Data-Protocol", Values: []string{"ao"}}},
	})
	require.NoError(t, err)
	require.Len(t, edges, 2)

	require.Equal(t, "oracle", got.Variables["entityId"])
	require.Equal(t, "c0", got.Variables["cursor"])
	require.Equal(t, SortHeightAsc, got.Variables["sortOrder"])
	require.EqualValues(t, defaultPageSize, got.Variables["limit"])
	require.EqualValues(t, DefaultIngestedAtMin, got.Variables["ingestedAtMin"])

	require.Equal(t, "c1", edges[0].Cursor)
	require.Equal(t, "tx-1", edges[0].Node.ID)
	height, ok := edges[0].BlockHeight()
	require.True(t, ok)
	require.Equal(t, int64(1234), height)
	require.Equal(t, "Get-Block", edges[0].Node.Tags.Value("Action"))
	// The raw node keeps fields the decoded form drops.
	require.Contains(t, string(edges[0].Raw), `"data":{"size":"0"}`)

	_, ok = edges[1].BlockHeight()
	require.False(t, ok)
}

func TestClient_OmitsEmptyCursor(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"data":{"transactions":{"edges":[]}}}`))
	}))
	defer srv.Close()

	edges, err := NewClient(srv.URL, time.Second).Transactions(context.Background(), TransactionsQuery{EntityID: "oracle"})
	require.NoError(t, err)
	require.Empty(t, edges)
	_, present := got.Variables["cursor"]
	require.False(t, present)
}

func TestClient_Transaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"id":"missing"`) {
			_, _ = w.Write([]byte(`{"data":{"transaction":null}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"transaction":{"id":"tx-9","recipient":"r"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	raw, err := c.Transaction(context.Background(), "tx-9")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"tx-9","recipient":"r"}`, string(raw))

	raw, err = c.Transaction(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"bad query"}]}`, "bad query"},
		{"server error", http.StatusBadGateway, `upstream down`, "http 502"},
		{"rate limited", http.StatusTooManyRequests, ``, "rate limited"},
		{"malformed", http.StatusOK, `{not json`, "parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Transactions(context.Background(), TransactionsQuery{EntityID: "x"})
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
