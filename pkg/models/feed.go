package models

// FeedStatus is the lifecycle of a feed snapshot
type FeedStatus string

const (
	FeedIdle    FeedStatus = "idle"
	FeedLoading FeedStatus = "loading"
	FeedReady   FeedStatus = "ready"
	FeedError   FeedStatus = "error"
)

// FeedSnapshot is an immutable view of a feed session. Items is nil until
// the first page arrives and never nil once Status is FeedReady. The Items
// slice of a published snapshot is never modified.
type FeedSnapshot struct {
	Status     FeedStatus `json:"status"`
	Items      []FeedItem `json:"items"`
	Err        error      `json:"-"`
	NextCursor string     `json:"nextCursor,omitempty"`
	HasMore    bool       `json:"hasMore"`
}

// IdleSnapshot is the state of a session that has not loaded anything
func IdleSnapshot() FeedSnapshot {
	return FeedSnapshot{Status: FeedIdle}
}
