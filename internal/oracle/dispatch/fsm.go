package dispatch

import (
	"context"

	"github.com/looplab/fsm"
)

// Request states.
const (
	StateReceived    = "received"
	StateClassified  = "classified"
	StateFetched     = "fetched"
	StateFetchFailed = "fetch_failed"
	StateReplied     = "replied"
	StateDone        = "done"
)

// Request events.
const (
	EventClassify       = "classify"
	EventFetchSucceeded = "fetch_succeeded"
	EventFailFetch      = "fail_fetch"
	EventReply          = "reply"
	EventFinish         = "finish"
)

// newRequestFSM creates the lifecycle of one request:
//
//	received -> classified -> fetched | fetch_failed -> replied -> done
//
// A malformed request goes from classified straight to fetch_failed without
// a fetch. onEnter, if set, observes every state entered.
func newRequestFSM(onEnter func(state string)) *fsm.FSM {
	callbacks := fsm.Callbacks{}
	if onEnter != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onEnter(e.Dst)
		}
	}

	return fsm.NewFSM(
		StateReceived,
		fsm.Events{
			{Name: EventClassify, Src: []string{StateReceived}, Dst: StateClassified},
			{Name: EventFetchSucceeded, Src: []string{StateClassified}, Dst: StateFetched},
			{Name: EventFailFetch, Src: []string{StateClassified}, Dst: StateFetchFailed},
			{Name: EventReply, Src: []string{StateFetched, StateFetchFailed}, Dst: StateReplied},
			{Name: EventFinish, Src: []string{StateReplied}, Dst: StateDone},
		},
		callbacks,
	)
}
