package ao

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/everFinance/goar"
	"github.com/everFinance/goar/types"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

// DefaultMUURL is the public messaging unit.
const DefaultMUURL = "https://mu.ao-testnet.xyz"

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Protocol tags appended to every outbound message.
var protocolTags = []types.Tag{
	{Name: domain.TagDataProtocol, Value: "ao"},
	{Name: "Variant", Value: "ao.TN.1"},
	{Name: "Type", Value: "Message"},
	{Name: "SDK", Value: "aoconnect"},
}

// Config holds messaging configuration.
type Config struct {
	JWKPath              string `yaml:"jwk_path"`
	MessagingUnitAddress string `yaml:"messaging_unit_address"`
	SchedulerUnitAddress string `yaml:"scheduler_unit_address"`
	MUURL                string `yaml:"mu_url"`
	ProcessAllowlist     string `yaml:"process_allowlist"`
}

// LoadSigner reads an Arweave JWK wallet file.
func LoadSigner(path string) (*goar.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("load wallet: no jwk path configured")
	}
	s, err := goar.NewSignerFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", path, err)
	}
	return s, nil
}

// Client sends signed messages to AO processes through a messaging unit.
type Client struct {
	items      *goar.ItemSigner
	muURL      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a messaging client that signs data items with signer.
func NewClient(signer *goar.Signer, muURL string, opts ...Option) (*Client, error) {
	items, err := goar.NewItemSigner(signer)
	if err != nil {
		return nil, fmt.Errorf("create item signer: %w", err)
	}
	if muURL == "" {
		muURL = DefaultMUURL
	}
	c := &Client{
		items:      items,
		muURL:      strings.TrimRight(muURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "ao"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send signs msg as a data item, posts it to the messaging unit and returns
// the message ID.
func (c *Client) Send(ctx context.Context, msg domain.Message) (string, error) {
	item, err := c.sign(msg)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.muURL, bytes.NewReader(item.ItemBinary))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", msg.Target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("messaging unit returned http %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var ack struct {
		ID string `json:"id"`
	}
	if err := codec.Unmarshal(body, &ack); err != nil || ack.ID == "" {
		c.logger.Debug("Messaging unit response carried no id, using data item id",
			"target", msg.Target,
			"item", item.Id,
		)
		return item.Id, nil
	}
	return ack.ID, nil
}

func (c *Client) sign(msg domain.Message) (types.BundleItem, error) {
	tags := make([]types.Tag, 0, len(msg.Tags)+len(protocolTags))
	for _, t := range msg.Tags {
		tags = append(tags, types.Tag{Name: t.Name, Value: t.Value})
	}
	tags = append(tags, protocolTags...)

	data := msg.Data
	if data == nil {
		// Data items always carry a body.
		data = []byte(strconv.Itoa(1000 + rand.IntN(9000)))
	}

	anchor := strings.ReplaceAll(uuid.NewString(), "-", "")
	item, err := c.items.CreateAndSignItem(data, msg.Target, anchor, tags)
	if err != nil {
		return types.BundleItem{}, fmt.Errorf("sign data item for %s: %w", msg.Target, err)
	}
	return item, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
