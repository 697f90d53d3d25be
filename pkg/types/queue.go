package types

// SendEntry is one message of a queue send batch. ID is supplied by the
// caller and must be unique within a batch call so failures can be matched
// back to the request.
type SendEntry struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Identity allows SendEntry to be deduplicated and correlated by ID.
func (e SendEntry) Identity() string {
	return e.ID
}

// DeleteEntry is one message of a queue delete batch.
type DeleteEntry struct {
	ID            string `json:"id"`
	ReceiptHandle string `json:"receipt_handle"`
}

// Identity allows DeleteEntry to be deduplicated and correlated by ID.
func (e DeleteEntry) Identity() string {
	return e.ID
}

// BatchFailure describes one entry the queue service rejected.
type BatchFailure struct {
	ID      string
	Code    string
	Message string
}

// BatchOutput is the response of a queue send or delete batch call. Only the
// failed set matters for delivery; successful entries are not reported.
type BatchOutput struct {
	Failed []BatchFailure
}

// FailedIDs returns the identities in the failed set.
func (o *BatchOutput) FailedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(o.Failed))
	for _, f := range o.Failed {
		ids[f.ID] = struct{}{}
	}
	return ids
}
