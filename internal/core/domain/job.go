package domain

import "time"

// JobProcessRequest is the job name of a fulfillment job.
const JobProcessRequest = "tx-oracle-process-request"

// FulfillmentJob asks the dispatcher to answer one stored request.
// The job ID is the request's transaction ID, so enqueueing is idempotent.
type FulfillmentJob struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Record     *RequestRecord `json:"record"`
	Attempt    int            `json:"attempt"`
	LastError  string         `json:"last_error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewFulfillmentJob wraps a record snapshot in a job.
func NewFulfillmentJob(rec *RequestRecord) *FulfillmentJob {
	return &FulfillmentJob{
		ID:         rec.TransactionID,
		Name:       JobProcessRequest,
		Record:     rec,
		EnqueuedAt: time.Now().UTC(),
	}
}
