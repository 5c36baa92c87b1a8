package models

import "time"

// ReactionType is one of the allowed reactions
type ReactionType string

const (
	ReactionLike        ReactionType = "like"
	ReactionAcknowledge ReactionType = "acknowledge"
)

// Valid reports whether t is a known reaction type
func (t ReactionType) Valid() bool {
	return t == ReactionLike || t == ReactionAcknowledge
}

// ReactionCounts holds aggregate counts by reaction type
type ReactionCounts struct {
	Like        int `json:"like"`
	Acknowledge int `json:"acknowledge"`
}

// Get returns the count for t
func (c ReactionCounts) Get(t ReactionType) int {
	switch t {
	case ReactionLike:
		return c.Like
	case ReactionAcknowledge:
		return c.Acknowledge
	}
	return 0
}

// ReactionsState is the authoritative reaction view for one assertion
type ReactionsState struct {
	Counts        ReactionCounts `json:"counts"`
	UserReactions []ReactionType `json:"userReactions"`
}

// Has reports whether the viewer has reacted with t
func (s ReactionsState) Has(t ReactionType) bool {
	for _, r := range s.UserReactions {
		if r == t {
			return true
		}
	}
	return false
}

// ReactionMutation is the response to adding or removing a reaction
type ReactionMutation struct {
	Success bool   `json:"success"`
	Action  string `json:"action"` // added, removed or not_found
}

// BookmarkState is the viewer's private bookmark edge for one assertion
type BookmarkState struct {
	IsBookmarked bool `json:"isBookmarked"`
}

// Notification models

// NotificationType is what triggered a notification
type NotificationType string

const (
	NotificationReply    NotificationType = "reply"
	NotificationReaction NotificationType = "reaction"
)

// NotificationActor is the user who triggered a notification
type NotificationActor struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
}

// Notification is a delivery artifact derived from a graph event
type Notification struct {
	ID               string             `json:"id"`
	RecipientID      string             `json:"recipientId"`
	ActorID          string             `json:"actorId"`
	AssertionID      string             `json:"assertionId"`
	NotificationType NotificationType   `json:"notificationType"`
	ReactionType     ReactionType       `json:"reactionType,omitempty"`
	Read             bool               `json:"read"`
	CreatedAt        time.Time          `json:"createdAt"`
	ReadAt           *time.Time         `json:"readAt,omitempty"`
	Actor            *NotificationActor `json:"actor,omitempty"`
}

// NotificationPage is one cursor page of notifications
type NotificationPage struct {
	Items      []Notification `json:"items"`
	NextCursor *string        `json:"nextCursor"`
}

// Cursor returns the next page cursor, or "" when there are no more pages
func (p NotificationPage) Cursor() string {
	if p.NextCursor == nil {
		return ""
	}
	return *p.NextCursor
}
