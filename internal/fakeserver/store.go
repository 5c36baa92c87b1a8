package fakeserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/feedsync/pkg/models"
)

var (
	errNotFound  = errors.New("not found")
	errConflict  = errors.New("assertion already superseded or deleted")
	errForbidden = errors.New("not allowed")
	errInvalid   = errors.New("invalid request")
)

type record struct {
	item         models.FeedItem
	seq          int
	deleted      bool
	supersededBy string
}

func (r *record) live() bool {
	return !r.deleted && r.supersededBy == ""
}

// store is the in-memory social graph behind the fake backend
type store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int

	assertions    map[string]*record
	users         map[string]models.Author
	drafts        map[string]models.DraftEnvelope
	reactions     map[string]map[string]map[models.ReactionType]bool // assertion -> user -> type
	bookmarks     map[string]map[string]bool                         // user -> assertion
	notifications map[string][]*models.Notification                  // recipient, newest last
}

func newStore(now func() time.Time) *store {
	return &store{
		now:           now,
		assertions:    map[string]*record{},
		users:         map[string]models.Author{},
		drafts:        map[string]models.DraftEnvelope{},
		reactions:     map[string]map[string]map[models.ReactionType]bool{},
		bookmarks:     map[string]map[string]bool{},
		notifications: map[string][]*models.Notification{},
	}
}

func (s *store) remember(v models.Viewer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[v.ID] = models.Author{ID: v.ID, DisplayName: v.DisplayName, Handle: v.Handle}
}

// resolve follows the supersession chain from id to the current revision
func (s *store) resolve(id string) (*record, bool) {
	rec, ok := s.assertions[id]
	for ok && rec.supersededBy != "" {
		rec, ok = s.assertions[rec.supersededBy]
	}
	return rec, ok
}

type publishInput struct {
	Content      models.Content `json:"content"`
	ClearDraft   bool           `json:"clearDraft"`
	SupersedesID string         `json:"supersedesId"`
}

func (s *store) publish(viewer models.Viewer, in publishInput) (models.PublishReceipt, error) {
	content := in.Content
	if strings.TrimSpace(content.Text) == "" && len(content.Media) == 0 {
		return models.PublishReceipt{}, errInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	item := models.FeedItem{
		AssertionID:   ulid.Make().String(),
		AuthorID:      viewer.ID,
		Author:        s.users[viewer.ID],
		AssertionType: content.AssertionType,
		Title:         content.Title,
		Text:          content.Text,
		Media:         append([]models.MediaItem{}, content.Media...),
		CreatedAt:     s.now().UTC(),
		Visibility:    content.Visibility,
	}
	if item.AssertionType == "" {
		item.AssertionType = models.AssertionNote
	}
	if item.Visibility == "" {
		item.Visibility = models.VisibilityPublic
	}
	if item.AssertionType == models.AssertionResponse && len(content.Refs) > 0 {
		item.ReplyTo = content.Refs[0]
	}
	rec := &record{item: item, seq: s.seq}

	if in.SupersedesID != "" {
		target, ok := s.assertions[in.SupersedesID]
		if !ok {
			return models.PublishReceipt{}, errNotFound
		}
		if !target.live() {
			return models.PublishReceipt{}, errConflict
		}
		if !models.CanEdit(viewer.ID, target.item.AuthorID, models.RoleFor(viewer)) {
			return models.PublishReceipt{}, errForbidden
		}
		target.supersededBy = item.AssertionID
		rec.seq = target.seq
		rec.item.SupersedesID = target.item.AssertionID
		if rec.item.ReplyTo == "" {
			rec.item.ReplyTo = target.item.ReplyTo
		}
	} else if rec.item.ReplyTo != "" {
		parent, ok := s.resolve(rec.item.ReplyTo)
		if !ok || !parent.live() {
			return models.PublishReceipt{}, errNotFound
		}
		s.notify(parent.item.AuthorID, viewer.ID, parent.item.AssertionID, models.NotificationReply, "")
	}

	s.assertions[item.AssertionID] = rec
	if in.ClearDraft {
		delete(s.drafts, viewer.ID)
	}
	return models.PublishReceipt{AssertionID: item.AssertionID, CreatedAt: item.CreatedAt}, nil
}

func (s *store) remove(viewer models.Viewer, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.assertions[id]
	if !ok {
		return errNotFound
	}
	if !rec.live() {
		return errConflict
	}
	if !models.CanDelete(viewer.ID, rec.item.AuthorID, models.RoleFor(viewer)) {
		return errForbidden
	}
	rec.deleted = true
	return nil
}

// liveRecords returns the visible records, newest first
func (s *store) liveRecords() []*record {
	out := make([]*record, 0, len(s.assertions))
	for _, rec := range s.assertions {
		if rec.live() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// children maps the current revision of each parent to its live responses
func (s *store) children(records []*record) map[string][]*record {
	out := map[string][]*record{}
	for _, rec := range records {
		if rec.item.ReplyTo == "" {
			continue
		}
		parent, ok := s.resolve(rec.item.ReplyTo)
		if !ok || !parent.live() {
			continue
		}
		out[parent.item.AssertionID] = append(out[parent.item.AssertionID], rec)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	}
	return out
}

func (s *store) render(rec *record, children map[string][]*record, viewerID string) models.FeedItem {
	item := rec.item
	item.Media = append([]models.MediaItem{}, rec.item.Media...)
	counts := s.countsLocked(item.AssertionID, viewerID).Counts
	item.ReactionCounts = &counts
	kids := children[item.AssertionID]
	item.ResponseCount = len(kids)
	item.Responses = nil
	for _, kid := range kids {
		item.Responses = append(item.Responses, s.render(kid, children, viewerID))
	}
	return item
}

func (s *store) feed(viewerID string, offset, limit int) models.FeedPage {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.liveRecords()
	children := s.children(records)
	var roots []*record
	for _, rec := range records {
		if rec.item.ReplyTo == "" {
			roots = append(roots, rec)
		}
	}

	page := models.FeedPage{Items: []models.FeedItem{}}
	if offset >= len(roots) {
		return page
	}
	end := offset + limit
	if end > len(roots) {
		end = len(roots)
	}
	for _, rec := range roots[offset:end] {
		page.Items = append(page.Items, s.render(rec, children, viewerID))
	}
	if end < len(roots) {
		next := encodeCursor(end)
		page.NextCursor = &next
	}
	return page
}

func (s *store) thread(viewerID, id string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resolve(id)
	if !ok || !rec.live() {
		return models.Thread{}, errNotFound
	}
	children := s.children(s.liveRecords())
	root := s.render(rec, children, viewerID)
	t := models.Thread{Root: root, Responses: root.Responses}
	if t.Responses == nil {
		t.Responses = []models.FeedItem{}
	}
	t.Count = descendants(root)
	return t, nil
}

func descendants(item models.FeedItem) int {
	n := 0
	for _, r := range item.Responses {
		n += 1 + descendants(r)
	}
	return n
}

// Drafts

func (s *store) draft(userID string) (models.DraftEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.drafts[userID]
	return env, ok
}

func (s *store) saveDraft(userID string, env models.DraftEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = env
}

func (s *store) clearDraft(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
}

// Reactions

func (s *store) countsLocked(assertionID, viewerID string) models.ReactionsState {
	state := models.ReactionsState{UserReactions: []models.ReactionType{}}
	for userID, types := range s.reactions[assertionID] {
		for t := range types {
			switch t {
			case models.ReactionLike:
				state.Counts.Like++
			case models.ReactionAcknowledge:
				state.Counts.Acknowledge++
			}
			if userID == viewerID {
				state.UserReactions = append(state.UserReactions, t)
			}
		}
	}
	sort.Slice(state.UserReactions, func(i, j int) bool { return state.UserReactions[i] < state.UserReactions[j] })
	return state
}

func (s *store) reactionState(assertionID, viewerID string) (models.ReactionsState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.assertions[assertionID]; !ok || !rec.live() {
		return models.ReactionsState{}, errNotFound
	}
	return s.countsLocked(assertionID, viewerID), nil
}

func (s *store) react(viewerID, assertionID string, t models.ReactionType) (models.ReactionMutation, error) {
	if !t.Valid() {
		return models.ReactionMutation{}, errInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.assertions[assertionID]
	if !ok || !rec.live() {
		return models.ReactionMutation{}, errNotFound
	}
	byUser := s.reactions[assertionID]
	if byUser == nil {
		byUser = map[string]map[models.ReactionType]bool{}
		s.reactions[assertionID] = byUser
	}
	if byUser[viewerID] == nil {
		byUser[viewerID] = map[models.ReactionType]bool{}
	}
	if !byUser[viewerID][t] {
		byUser[viewerID][t] = true
		s.notify(rec.item.AuthorID, viewerID, assertionID, models.NotificationReaction, t)
	}
	return models.ReactionMutation{Success: true, Action: "added"}, nil
}

func (s *store) unreact(viewerID, assertionID string, t models.ReactionType) (models.ReactionMutation, error) {
	if !t.Valid() {
		return models.ReactionMutation{}, errInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	types := s.reactions[assertionID][viewerID]
	if !types[t] {
		return models.ReactionMutation{Success: true, Action: "not_found"}, nil
	}
	delete(types, t)
	return models.ReactionMutation{Success: true, Action: "removed"}, nil
}

// Bookmarks

func (s *store) bookmarked(userID, assertionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmarks[userID][assertionID]
}

func (s *store) setBookmark(userID, assertionID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assertions[assertionID]; !ok {
		return errNotFound
	}
	if s.bookmarks[userID] == nil {
		s.bookmarks[userID] = map[string]bool{}
	}
	if on {
		s.bookmarks[userID][assertionID] = true
	} else {
		delete(s.bookmarks[userID], assertionID)
	}
	return nil
}

// Notifications

// notify records an event for recipient. Callers hold s.mu.
func (s *store) notify(recipientID, actorID, assertionID string, kind models.NotificationType, reaction models.ReactionType) {
	if recipientID == "" || recipientID == actorID {
		return
	}
	actor := s.users[actorID]
	s.notifications[recipientID] = append(s.notifications[recipientID], &models.Notification{
		ID:               ulid.Make().String(),
		RecipientID:      recipientID,
		ActorID:          actorID,
		AssertionID:      assertionID,
		NotificationType: kind,
		ReactionType:     reaction,
		CreatedAt:        s.now().UTC(),
		Actor:            &models.NotificationActor{ID: actorID, Name: actor.DisplayName, Handle: actor.Handle},
	})
}

func (s *store) listNotifications(userID string, offset, limit int) models.NotificationPage {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.notifications[userID]
	page := models.NotificationPage{Items: []models.Notification{}}
	// newest first
	for i := len(all) - 1 - offset; i >= 0 && len(page.Items) < limit; i-- {
		page.Items = append(page.Items, *all[i])
	}
	if offset+len(page.Items) < len(all) {
		next := encodeCursor(offset + len(page.Items))
		page.NextCursor = &next
	}
	return page
}

func (s *store) markRead(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[userID] {
		if n.ID == id {
			if !n.Read {
				at := s.now().UTC()
				n.Read = true
				n.ReadAt = &at
			}
			return nil
		}
	}
	return errNotFound
}

func (s *store) markAllRead(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			n.Read = true
			n.ReadAt = &at
			count++
		}
	}
	return count
}

func (s *store) unreadCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count
}
