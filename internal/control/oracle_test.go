package control

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/everFinance/goar"
	"github.com/everFinance/goar/types"
	"github.com/everFinance/goar/utils"
	"github.com/stretchr/testify/require"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/config"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

const muAddress = "mu-wallet-address"

var processID = base64.RawURLEncoding.EncodeToString([]byte(strings.Repeat("p", 32)))

func testSigner(t *testing.T) *goar.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 4096)
	require.NoError(t, err)
	s := goar.NewSignerByPrivateKey(key)
	return s
}

func itemTags(item *types.BundleItem) domain.Tags {
	tags := make(domain.Tags, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, domain.Tag{Name: t.Name, Value: t.Value})
	}
	return tags
}

// upstream fakes the feed, the gateway and the messaging unit.
type upstream struct {
	feed    *httptest.Server
	gateway *httptest.Server
	mu      *httptest.Server

	lock  sync.Mutex
	items []*types.BundleItem
}

func newUpstream(t *testing.T, oracleAddress string) *upstream {
	t.Helper()
	u := &upstream{}

	node := map[string]any{
		"id":          "request-1",
		"ingested_at": 1700000000,
		"recipient":   oracleAddress,
		"owner":       map[string]any{"address": muAddress},
		"block":       map[string]any{"height": 1500000, "timestamp": 1700000000},
		"tags": []map[string]string{
			{"name": "Data-Protocol", "value": "ao"},
			{"name": "From-Process", "value": processID},
			{"name": "Action", "value": "Get-Block"},
			{"name": "Block-Height", "value": "1234"},
		},
	}
	page, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"transactions": map[string]any{
				"edges": []map[string]any{{"cursor": "cursor-1", "node": node}},
			},
		},
	})
	require.NoError(t, err)

	u.feed = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(page)
	}))
	u.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/block/height/1234" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"height":1234,"indep_hash":"abc"}`)
	}))
	u.mu = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		item, err := utils.DecodeBundleItem(body)
		if err == nil {
			err = utils.VerifyBundleItem(*item)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u.lock.Lock()
		u.items = append(u.items, item)
		u.lock.Unlock()
		_, _ = fmt.Fprintf(w, `{"id":%q}`, item.Id)
	}))

	t.Cleanup(func() {
		u.feed.Close()
		u.gateway.Close()
		u.mu.Close()
	})
	return u
}

func (u *upstream) sent() []*types.BundleItem {
	u.lock.Lock()
	defer u.lock.Unlock()
	return append([]*types.BundleItem(nil), u.items...)
}

func testConfig(t *testing.T, u *upstream) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
oracle:
  jwk_path: unused.json
  messaging_unit_address: %s
  scheduler_unit_address: su-address
  mu_url: %s
  process_allowlist: %s
feed:
  graphql_url: %s
  poll_interval: 50ms
gateway:
  url: %s
  timeout: 5s
worker:
  concurrency: 2
  visibility_timeout: 10s
`, muAddress, u.mu.URL, processID, u.feed.URL, u.gateway.URL)))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	cfg.Server.Port = 0
	return cfg
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestOracle_Lifecycle(t *testing.T) {
	signer := testSigner(t)
	u := newUpstream(t, signer.Address)
	cfg := testConfig(t, u)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o, err := NewOracle(ctx, cfg, WithSigner(signer))
	require.NoError(t, err)
	require.Equal(t, signer.Address, o.Address())
	require.NoError(t, o.Start(ctx))

	require.True(t, waitFor(10*time.Second, func() bool {
		rec, err := o.backends.Store.Get(ctx, "request-1")
		return err == nil && rec != nil && rec.IsProcessed
	}), "request was not answered")

	// Further polls see the same message and must not answer it again.
	time.Sleep(200 * time.Millisecond)
	items := u.sent()
	require.Len(t, items, 1)

	reply := items[0]
	require.Equal(t, processID, reply.Target)
	tags := itemTags(reply)
	require.Equal(t, "Get-Block-Result", tags.Value(domain.TagAction))
	require.Equal(t, "1234", tags.Value(domain.TagBlockHeight))
	_, hasError := tags.Get(domain.TagError)
	require.False(t, hasError)
	data, err := utils.Base64Decode(reply.Data)
	require.NoError(t, err)
	require.JSONEq(t, `{"height":1234,"indep_hash":"abc"}`, string(data))

	rec, err := o.backends.Store.Get(ctx, "request-1")
	require.NoError(t, err)
	require.Equal(t, reply.Id, rec.ReplyMessageID)

	report := o.Health(ctx)
	require.NotNil(t, report.Records)
	require.EqualValues(t, 1, report.Records.Processed)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, o.Stop(stopCtx))
}

func TestNewOracle_MissingWallet(t *testing.T) {
	u := newUpstream(t, "oracle")
	cfg := testConfig(t, u)
	cfg.Oracle.JWKPath = t.TempDir() + "/missing.json"

	_, err := NewOracle(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wallet")
}
