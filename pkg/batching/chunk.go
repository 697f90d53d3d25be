package batching

import "fmt"

// Chunk splits items into consecutive groups of size elements. The last group
// holds the remainder. Empty input yields no groups. A size below 1 is a
// programming error and panics.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		panic(fmt.Sprintf("batching: chunk size must be positive, got %d", size))
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Identifiable is implemented by entries that carry a caller-supplied identity.
type Identifiable interface {
	Identity() string
}

// Dedupe returns items keeping only the first entry for each identity, in
// the original order.
func Dedupe[T Identifiable](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := item.Identity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
