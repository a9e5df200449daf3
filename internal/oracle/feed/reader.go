package feed

import (
	"context"
	"log/slog"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/graphql"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
)

// Source queries one page of the message feed.
type Source interface {
	Transactions(ctx context.Context, q graphql.TransactionsQuery) ([]domain.Edge, error)
}

// Config holds feed reader settings.
type Config struct {
	OracleAddress        string
	MessagingUnitAddress string
	IngestedAtMin        int64
}

// Batch is the result of one read.
type Batch struct {
	// Candidates are the messages that passed the filter, deduplicated by ID
	// in feed order.
	Candidates []domain.Edge
	// Raw is the whole page as returned by the feed.
	Raw []domain.Edge
}

// Reader reads oracle requests from the feed.
type Reader struct {
	source    Source
	cfg       Config
	allowlist *Allowlist
	logger    *slog.Logger
}

// NewReader creates a feed reader.
func NewReader(source Source, cfg Config, allowlist *Allowlist) *Reader {
	return &Reader{
		source:    source,
		cfg:       cfg,
		allowlist: allowlist,
		logger:    slog.Default().With("component", "feed"),
	}
}

// Read fetches one page after cursor and filters it. Transport failures are
// logged and yield an empty batch.
func (r *Reader) Read(ctx context.Context, cursor string, limit int, sortOrder string) Batch {
	r.logger.Debug("Fetching messages", "recipient", r.cfg.OracleAddress, "cursor", cursor)

	edges, err := r.source.Transactions(ctx, graphql.TransactionsQuery{
		EntityID:      r.cfg.OracleAddress,
		Cursor:        cursor,
		Limit:         limit,
		Sort:          sortOrder,
		IngestedAtMin: r.cfg.IngestedAtMin,
		Tags: []graphql.TagFilter{
			{Name: domain.TagDataProtocol, Values: []string{"ao"}},
		},
	})
	if err != nil {
		r.logger.Error("Failed to read messages", "error", err)
		return Batch{}
	}

	candidates := r.Filter(edges)
	metrics.FeedMessages.WithLabelValues("read").Add(float64(len(edges)))
	metrics.FeedMessages.WithLabelValues("accepted").Add(float64(len(candidates)))
	r.logger.Info("Got messages", "count", len(edges), "accepted", len(candidates))

	return Batch{Candidates: candidates, Raw: edges}
}

// Filter keeps the messages the oracle should answer, first occurrence of
// each ID only.
func (r *Reader) Filter(edges []domain.Edge) []domain.Edge {
	seen := make(map[string]struct{}, len(edges))
	result := make([]domain.Edge, 0, len(edges))
	for _, e := range edges {
		if !r.accepts(e.Node) {
			continue
		}
		if _, dup := seen[e.Node.ID]; dup {
			continue
		}
		seen[e.Node.ID] = struct{}{}
		result = append(result, e)
	}
	return result
}

func (r *Reader) accepts(n domain.TransactionNode) bool {
	if n.Recipient != r.cfg.OracleAddress {
		return false
	}
	if n.Owner.Address != r.cfg.MessagingUnitAddress {
		return false
	}
	if from, ok := n.Tags.Get(domain.TagFromProcess); !ok || !r.allowlist.Contains(from) {
		return false
	}
	action, ok := n.Tags.Get(domain.TagAction)
	return ok && domain.Action(action).Known()
}
