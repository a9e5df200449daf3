package domain

import "encoding/json"

// Tag is a name/value pair carried by feed messages and replies.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tags is an ordered tag list. Lookups return the first match.
type Tags []Tag

// Get returns the value of the first tag with the given name.
func (t Tags) Get(name string) (string, bool) {
	for _, tag := range t {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}

// Value returns the tag value or "" when the tag is absent.
func (t Tags) Value(name string) string {
	v, _ := t.Get(name)
	return v
}

// Owner is the signer of a feed message.
type Owner struct {
	Address string `json:"address"`
	Key     string `json:"key,omitempty"`
}

// BlockInfo is present on a message once it is block-confirmed.
type BlockInfo struct {
	ID        string `json:"id,omitempty"`
	Height    int64  `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Previous  string `json:"previous,omitempty"`
}

// TransactionNode is the subset of a feed message the pipeline reads.
// The complete node is kept verbatim in Edge.Raw.
type TransactionNode struct {
	ID         string     `json:"id"`
	IngestedAt int64      `json:"ingested_at"`
	Recipient  string     `json:"recipient"`
	Owner      Owner      `json:"owner"`
	Block      *BlockInfo `json:"block"`
	Tags       Tags       `json:"tags"`
}

// Edge is one page entry of the feed: a message plus its pagination cursor.
type Edge struct {
	Cursor string
	Node   TransactionNode
	Raw    json.RawMessage
}

// BlockHeight returns the confirmed block height, if any.
func (e Edge) BlockHeight() (int64, bool) {
	if e.Node.Block == nil {
		return 0, false
	}
	return e.Node.Block.Height, true
}

// Message is an outbound reply addressed to a process.
// A nil Data means the reply carries no body.
type Message struct {
	Target string
	Tags   Tags
	Data   []byte
}
