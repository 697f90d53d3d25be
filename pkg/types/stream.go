package types

// StreamEntry is one slot of a stream batch call.
//
// Blob holds one or more serialized payloads joined by the configured group
// separator. PartitionKey is a load-distribution hint required by the
// transport; it is regenerated on every send attempt and is not an identity.
type StreamEntry struct {
	Blob         string `json:"blob"`
	PartitionKey string `json:"partition_key"`
}

// RecordResult is the per-position outcome of a stream batch call.
// A non-empty ErrorCode marks the entry at the same position as failed.
type RecordResult struct {
	ErrorCode      string
	ErrorMessage   string
	SequenceNumber string
	ShardID        string
}

// Failed reports whether the record was rejected by the transport.
func (r RecordResult) Failed() bool {
	return r.ErrorCode != ""
}

// PutRecordsOutput is the response of a stream batch call. Records is
// index-aligned with the request entries.
type PutRecordsOutput struct {
	Records     []RecordResult
	FailedCount int
}
