package domain

import "sort"

// Entry is one song request in a room queue.
type Entry struct {
	Key             string  `json:"key"`
	VideoID         string  `json:"video_id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Thumbnail       string  `json:"thumbnail"`
	RequestedBy     string  `json:"requested_by"`
	RequestedByName string  `json:"requested_by_name"`
	Duration        float64 `json:"duration"`
	CreatedAt       int64   `json:"created_at"`
	Order           *int64  `json:"order,omitempty"`
}

func (e Entry) sortKey() int64 {
	if e.Order != nil {
		return *e.Order
	}
	return e.CreatedAt
}

// SortEntries returns a copy of entries in play order.
func SortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.sortKey() != b.sortKey() {
			return a.sortKey() < b.sortKey()
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.Key < b.Key
	})

	return sorted
}

// IndexOf returns the position of key in sorted, or -1.
func IndexOf(sorted []Entry, key string) int {
	if key == "" {
		return -1
	}
	for i, e := range sorted {
		if e.Key == key {
			return i
		}
	}

	return -1
}

// NextIndex picks the entry to play after currentKey, or -1 for an empty queue.
// With shuffle the pick is uniform over every index except the current one.
// Without shuffle the queue is circular. intn must return a value in [0, n).
func NextIndex(sorted []Entry, currentKey string, shuffle bool, intn func(n int) int) int {
	n := len(sorted)
	if n == 0 {
		return -1
	}

	current := IndexOf(sorted, currentKey)

	if shuffle {
		if current < 0 {
			return intn(n)
		}
		if n == 1 {
			return 0
		}
		i := intn(n - 1)
		if i >= current {
			i++
		}
		return i
	}

	if current < 0 {
		return 0
	}

	return (current + 1) % n
}

// PrevIndex steps back one entry, wrapping from the first to the last.
// An unknown current entry gives index 0.
func PrevIndex(sorted []Entry, currentKey string) int {
	n := len(sorted)
	if n == 0 {
		return -1
	}

	current := IndexOf(sorted, currentKey)
	switch {
	case current < 0:
		return 0
	case current == 0:
		return n - 1
	default:
		return current - 1
	}
}
