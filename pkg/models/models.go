package models

import (
	"strings"
	"time"
)

// Content models

// AssertionType classifies a published content unit
type AssertionType string

const (
	AssertionNote     AssertionType = "note"
	AssertionArticle  AssertionType = "article"
	AssertionResponse AssertionType = "response"
)

// MediaType is the kind of attachment carried by a post
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaLink  MediaType = "link"
)

// VisibilityPublic is the only visibility the client publishes with today
const VisibilityPublic = "public"

// MediaItem is an attachment on a draft or published assertion
type MediaItem struct {
	ID   string    `json:"id"`
	Type MediaType `json:"type"`
	Src  string    `json:"src"`
}

// Author is the public profile attached to a feed item
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Handle      string `json:"handle,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// FeedItem is a published assertion as seen by the client. Responses form
// an owned tree; identity is AssertionID.
type FeedItem struct {
	AssertionID    string          `json:"assertionId"`
	AuthorID       string          `json:"authorId"`
	Author         Author          `json:"author"`
	AssertionType  AssertionType   `json:"assertionType"`
	Title          string          `json:"title,omitempty"`
	Text           string          `json:"text"`
	Media          []MediaItem     `json:"media"`
	CreatedAt      time.Time       `json:"createdAt"`
	Visibility     string          `json:"visibility"`
	ReplyTo        string          `json:"replyTo,omitempty"`
	SupersedesID   string          `json:"supersedesId,omitempty"`
	Responses      []FeedItem      `json:"responses,omitempty"`
	IsPending      bool            `json:"isPending,omitempty"`
	ReactionCounts *ReactionCounts `json:"reactionCounts,omitempty"`
	ResponseCount  int             `json:"responseCount,omitempty"`
}

// FeedPage is one cursor page of the home feed
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor *string    `json:"nextCursor"`
}

// Cursor returns the next page cursor, or "" when there are no more pages
func (p FeedPage) Cursor() string {
	if p.NextCursor == nil {
		return ""
	}
	return *p.NextCursor
}

// Thread is a root assertion with its responses
type Thread struct {
	Root      FeedItem   `json:"root"`
	Responses []FeedItem `json:"responses"`
	Count     int        `json:"count"`
}

// Composer models

// ComposerDraft is the content being edited in a composer
type ComposerDraft struct {
	Title               string      `json:"title,omitempty"`
	Text                string      `json:"text"`
	Media               []MediaItem `json:"media"`
	OriginPublicationID string      `json:"originPublicationId,omitempty"`
}

// HasContent reports whether the draft holds anything worth restoring or
// publishing: non-blank text or at least one attachment.
func (d ComposerDraft) HasContent() bool {
	return strings.TrimSpace(d.Text) != "" || len(d.Media) > 0
}

// Clone returns a copy that shares no slices with d
func (d ComposerDraft) Clone() ComposerDraft {
	out := d
	out.Media = append([]MediaItem{}, d.Media...)
	return out
}

// BlankDraft returns the empty terminal draft
func BlankDraft() ComposerDraft {
	return ComposerDraft{Media: []MediaItem{}}
}

// DraftEnvelope wraps a draft for transport and storage
type DraftEnvelope struct {
	ClientID      string        `json:"clientId"`
	Draft         ComposerDraft `json:"draft"`
	SchemaVersion int           `json:"schemaVersion"`
}

// DraftSchemaVersion is the envelope version this client reads and writes
const DraftSchemaVersion = 1

// PublishOptions tunes a publish call. SupersedesID marks a revision of an
// existing assertion.
type PublishOptions struct {
	ReplyTo      string `json:"replyTo,omitempty"`
	ClearDraft   bool   `json:"clearDraft,omitempty"`
	ArticleTitle string `json:"articleTitle,omitempty"`
	SupersedesID string `json:"supersedesId,omitempty"`
}

// Content is the structured payload submitted for publication
type Content struct {
	Title               string        `json:"title,omitempty"`
	Text                string        `json:"text"`
	AssertionType       AssertionType `json:"assertionType"`
	Visibility          string        `json:"visibility"`
	Refs                []string      `json:"refs"`
	Media               []MediaItem   `json:"media"`
	OriginPublicationID string        `json:"originPublicationId,omitempty"`
}

// PublishReceipt is the backend's acknowledgement of a publish
type PublishReceipt struct {
	AssertionID string    `json:"assertionId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Viewer is the signed-in user as known to the client
type Viewer struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	Handle      string   `json:"handle,omitempty"`
	Role        UserRole `json:"role"`
}

// Authenticated reports whether the viewer is signed in
func (v Viewer) Authenticated() bool {
	return v.ID != ""
}
