package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/looplab/fsm"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/fetch"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/recovery"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Error labels sent in the Error tag of a failed reply.
const (
	ErrFetchingBlock       = "Error fetching block"
	ErrFetchingTransaction = "Error fetching transaction"
	ErrFetchingData        = "Error fetching data"
)

// Fetcher runs the action-specific lookups.
type Fetcher interface {
	Block(ctx context.Context, height int64) fetch.Outcome
	Transaction(ctx context.Context, id string) fetch.Outcome
	Data(ctx context.Context, id string) fetch.Outcome
}

// Sender delivers a reply and returns its message ID.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) (string, error)
}

// Store is the part of the record store the dispatcher uses.
type Store interface {
	Get(ctx context.Context, transactionID string) (*domain.RequestRecord, error)
	MarkProcessed(ctx context.Context, transactionID, replyMessageID string) (bool, error)
}

// Dispatcher answers stored requests.
type Dispatcher struct {
	fetcher Fetcher
	sender  Sender
	store   Store
	logger  *slog.Logger

	// onState observes request state changes.
	onState func(txID, state string)
}

// New creates a dispatcher.
func New(fetcher Fetcher, sender Sender, store Store) *Dispatcher {
	return &Dispatcher{
		fetcher: fetcher,
		sender:  sender,
		store:   store,
		logger:  slog.Default().With("component", "dispatch"),
	}
}

// request is the working state of one job.
type request struct {
	record  *domain.RequestRecord
	action  domain.Action
	idTag   string
	idValue string
	hasID   bool
	height  int64

	outcome  fetch.Outcome
	errLabel string
	state    *fsm.FSM
}

// Handle answers the request carried by job. A nil error means the job is
// settled. Errors are returned so the queue retries the job from the start.
func (d *Dispatcher) Handle(ctx context.Context, job *domain.FulfillmentJob) error {
	if job.Record == nil {
		return recovery.Permanent(fmt.Errorf("job %s has no record", job.ID))
	}
	txID := job.Record.TransactionID
	log := d.logger.With("tx", txID, "attempt", job.Attempt)

	stored, err := d.store.Get(ctx, txID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", txID, err)
	}
	if stored != nil && stored.IsProcessed {
		log.Info("Request already processed, skipping", "reply", stored.ReplyMessageID)
		return nil
	}

	req, err := d.newRequest(job.Record)
	if err != nil {
		return recovery.Permanent(err)
	}

	if !req.action.Known() {
		log.Warn("Unknown action", "action", req.action)
		return nil
	}

	log.Info("Processing request", "action", req.action)
	if err := req.state.Event(ctx, EventClassify); err != nil {
		return err
	}

	if err := d.fetch(ctx, req); err != nil {
		return err
	}

	msg, err := d.buildReply(req)
	if err != nil {
		return recovery.Permanent(err)
	}

	replyID, err := d.sender.Send(ctx, msg)
	if err != nil {
		metrics.RepliesTotal.WithLabelValues(string(req.action), "send_failed").Inc()
		return fmt.Errorf("send reply for %s: %w", txID, err)
	}
	metrics.RepliesTotal.WithLabelValues(string(req.action), replyStatus(req)).Inc()
	if err := req.state.Event(ctx, EventReply); err != nil {
		return err
	}

	marked, err := d.store.MarkProcessed(ctx, txID, replyID)
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", txID, err)
	}
	if !marked {
		log.Warn("Record was already marked processed", "reply", replyID)
	}
	if err := req.state.Event(ctx, EventFinish); err != nil {
		return err
	}

	log.Info("Processed request", "action", req.action, "reply", replyID, "error_label", req.errLabel)
	return nil
}

func (d *Dispatcher) newRequest(rec *domain.RequestRecord) (*request, error) {
	node, err := rec.Node()
	if err != nil {
		return nil, err
	}

	req := &request{
		record: rec,
		action: domain.Action(node.Tags.Value(domain.TagAction)),
	}
	var onEnter func(string)
	if d.onState != nil {
		onEnter = func(state string) { d.onState(rec.TransactionID, state) }
	}
	req.state = newRequestFSM(onEnter)

	if !req.action.Known() {
		return req, nil
	}
	req.idTag = req.action.IdentifyingTag()
	req.idValue, req.hasID = node.Tags.Get(req.idTag)
	if req.idValue == "" {
		req.hasID = false
	}
	return req, nil
}

// fetch moves the request to fetched or fetch_failed.
func (d *Dispatcher) fetch(ctx context.Context, req *request) error {
	if !req.hasID {
		return d.failFetch(ctx, req, "missing "+req.idTag+" tag")
	}

	switch req.action {
	case domain.ActionGetBlock:
		h, err := strconv.ParseInt(req.idValue, 10, 64)
		if err != nil {
			return d.failFetch(ctx, req, "unparsable "+req.idTag+" "+strconv.Quote(req.idValue))
		}
		req.height = h
		req.outcome = d.fetcher.Block(ctx, h)
	case domain.ActionGetTransaction:
		req.outcome = d.fetcher.Transaction(ctx, req.idValue)
	case domain.ActionGetData:
		req.outcome = d.fetcher.Data(ctx, req.idValue)
	}

	if req.outcome.Status == fetch.StatusTransient {
		return d.failFetch(ctx, req, req.outcome.Err.Error())
	}
	return req.state.Event(ctx, EventFetchSucceeded)
}

func (d *Dispatcher) failFetch(ctx context.Context, req *request, reason string) error {
	req.errLabel = errorLabel(req.action)
	d.logger.Warn("Fetch failed", "tx", req.record.TransactionID, "action", req.action, "reason", reason)
	return req.state.Event(ctx, EventFailFetch)
}

// buildReply assembles the reply tags and body.
func (d *Dispatcher) buildReply(req *request) (domain.Message, error) {
	tags := domain.Tags{{Name: domain.TagAction, Value: req.action.ResultAction()}}
	if req.errLabel != "" {
		tags = append(tags, domain.Tag{Name: domain.TagError, Value: req.errLabel})
	}
	if req.hasID {
		tags = append(tags, domain.Tag{Name: req.idTag, Value: req.idValue})
	}

	var body []byte
	if req.errLabel == "" && req.outcome.Status == fetch.StatusFound {
		var err error
		if body, err = encodeBody(req.outcome.Data); err != nil {
			return domain.Message{}, fmt.Errorf("encode %s result: %w", req.outcome.Kind, err)
		}
	}

	return domain.Message{Target: req.record.From, Tags: tags, Data: body}, nil
}

// encodeBody serializes fetched data: structured values as JSON, strings
// as-is.
func encodeBody(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return []byte(v), nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		b, err := codec.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func errorLabel(a domain.Action) string {
	switch a {
	case domain.ActionGetBlock:
		return ErrFetchingBlock
	case domain.ActionGetTransaction:
		return ErrFetchingTransaction
	case domain.ActionGetData:
		return ErrFetchingData
	}
	return ""
}

func replyStatus(req *request) string {
	switch {
	case req.errLabel != "":
		return "error"
	case req.outcome.Status == fetch.StatusNotFound:
		return "not_found"
	default:
		return "ok"
	}
}
