// Package postqueue defers finished posts to a later publish time. Each
// entry gets a randomized delay, optionally pushed to the next allowed
// posting window, and fires through the social client when due. The queue
// survives restarts through a JSON state file.
package postqueue

import "time"

// Status tracks an entry through its lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// Entry is one deferred post.
type Entry struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	MediaPath string     `json:"media_path,omitempty"`
	NotBefore time.Time  `json:"not_before"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// queueFile is the on-disk shape of the queue state.
type queueFile struct {
	Entries []*Entry `json:"entries"`
}
