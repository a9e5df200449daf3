package domain

// Tag names understood by the oracle.
const (
	TagAction        = "Action"
	TagFromProcess   = "From-Process"
	TagBlockHeight   = "Block-Height"
	TagTransactionID = "Transaction-Id"
	TagError         = "Error"
	TagDataProtocol  = "Data-Protocol"
)

// Action selects the fetch operation requested by an inbound message.
type Action string

const (
	ActionGetBlock       Action = "Get-Block"
	ActionGetTransaction Action = "Get-Transaction"
	ActionGetData        Action = "Get-Data"
)

// Known reports whether the action is one the oracle serves.
func (a Action) Known() bool {
	switch a {
	case ActionGetBlock, ActionGetTransaction, ActionGetData:
		return true
	}
	return false
}

// ResultAction is the Action tag value of the reply.
func (a Action) ResultAction() string {
	return string(a) + "-Result"
}

// IdentifyingTag is the tag that names the requested object.
func (a Action) IdentifyingTag() string {
	if a == ActionGetBlock {
		return TagBlockHeight
	}
	return TagTransactionID
}
