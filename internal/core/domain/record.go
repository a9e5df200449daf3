package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RequestRecord is the durable trace of one inbound feed message.
type RequestRecord struct {
	TransactionID  string          `json:"transaction_id"`
	Recipient      string          `json:"recipient"`
	From           string          `json:"from"`
	BlockHeight    *int64          `json:"block_height,omitempty"`
	BlockTimestamp *int64          `json:"block_timestamp,omitempty"`
	Cursor         string          `json:"cursor"`
	RawPayload     json.RawMessage `json:"transaction"`
	IsProcessed    bool            `json:"is_processed"`
	ReplyMessageID string          `json:"reply_message_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewRequestRecord builds an unprocessed record from a feed edge.
func NewRequestRecord(edge Edge) *RequestRecord {
	rec := &RequestRecord{
		TransactionID: edge.Node.ID,
		Recipient:     edge.Node.Recipient,
		From:          edge.Node.Tags.Value(TagFromProcess),
		Cursor:        edge.Cursor,
		RawPayload:    edge.Raw,
		CreatedAt:     time.Now().UTC(),
	}
	if b := edge.Node.Block; b != nil {
		height, ts := b.Height, b.Timestamp
		rec.BlockHeight = &height
		rec.BlockTimestamp = &ts
	}
	if len(rec.RawPayload) == 0 {
		// Edges built in code rather than decoded from the feed.
		if raw, err := json.Marshal(edge.Node); err == nil {
			rec.RawPayload = raw
		}
	}
	return rec
}

// Node decodes the stored upstream message.
func (r *RequestRecord) Node() (*TransactionNode, error) {
	var node TransactionNode
	if err := json.Unmarshal(r.RawPayload, &node); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", r.TransactionID, err)
	}
	return &node, nil
}

// Tags returns the upstream message tags, or nil if the payload is unreadable.
func (r *RequestRecord) Tags() Tags {
	node, err := r.Node()
	if err != nil {
		return nil
	}
	return node.Tags
}

// Action returns the requested action tag.
func (r *RequestRecord) Action() Action {
	return Action(r.Tags().Value(TagAction))
}

// FeedPosition is a cursor together with the block height it points at.
type FeedPosition struct {
	Cursor string
	Height int64
}
