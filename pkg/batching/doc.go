// Package batching holds the pieces shared by the stream and queue clients:
// splitting entries into fixed-size batches, removing duplicate identities,
// exponential backoff, and the Retrier that dispatches batches concurrently
// and re-sends only the entries a batch response reported as failed.
//
// A Retrier never retries a batch call that fails outright; that error goes
// back to the caller. Only partial failures reported inside a successful
// response are retried, up to MaxRetry rounds, after which the remaining
// entries are dropped and handed to the optional DropFunc.
package batching
