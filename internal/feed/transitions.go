package feed

import "github.com/feedsync/pkg/models"

// The functions below are the only way a snapshot changes. Each takes the
// current snapshot and returns the next one without modifying the input.

// BeginLoad marks a fetch as started. A first load starts from no items; a
// refresh or page append keeps what is displayed.
func BeginLoad(s models.FeedSnapshot, appending bool) models.FeedSnapshot {
	next := s
	next.Status = models.FeedLoading
	next.Err = nil
	if !appending && s.Status == models.FeedIdle {
		next.Items = nil
	}
	return next
}

// ApplyPage installs a fetched page. Appended pages skip ids already in the
// tree; a first page replaces the items.
func ApplyPage(s models.FeedSnapshot, page models.FeedPage, appending bool) models.FeedSnapshot {
	var items []models.FeedItem
	if appending {
		seen := make(map[string]struct{})
		for id := range buildIndex(s.Items) {
			seen[id] = struct{}{}
		}
		items = make([]models.FeedItem, 0, len(s.Items)+len(page.Items))
		items = append(items, s.Items...)
		items = appendUnique(items, seen, page.Items)
	} else {
		items = appendUnique(make([]models.FeedItem, 0, len(page.Items)), make(map[string]struct{}), page.Items)
	}

	cursor := page.Cursor()
	return models.FeedSnapshot{
		Status:     models.FeedReady,
		Items:      items,
		NextCursor: cursor,
		HasMore:    cursor != "",
	}
}

// ApplyError records a failed fetch and keeps the displayed items
func ApplyError(s models.FeedSnapshot, err error) models.FeedSnapshot {
	next := s
	next.Status = models.FeedError
	next.Err = err
	return next
}

// Prepend inserts item at the head unless its id is already in the tree
func Prepend(s models.FeedSnapshot, item models.FeedItem) models.FeedSnapshot {
	if _, exists := buildIndex(s.Items)[item.AssertionID]; exists {
		return s
	}
	next := s
	next.Items = make([]models.FeedItem, 0, len(s.Items)+1)
	next.Items = append(next.Items, item)
	next.Items = append(next.Items, s.Items...)
	return next
}

// AddResponse appends item to the responses of parentID and bumps its
// response count, which may cover responses that were never loaded. It is a
// no-op when the parent is not loaded or the item is already present.
func AddResponse(s models.FeedSnapshot, parentID string, item models.FeedItem) models.FeedSnapshot {
	idx := buildIndex(s.Items)
	if _, exists := idx[item.AssertionID]; exists {
		return s
	}
	at, ok := idx[parentID]
	if !ok {
		return s
	}

	next := s
	next.Items = updateAt(s.Items, at, func(parent models.FeedItem) models.FeedItem {
		responses := make([]models.FeedItem, 0, len(parent.Responses)+1)
		responses = append(responses, parent.Responses...)
		parent.Responses = append(responses, item)
		parent.ResponseCount++
		return parent
	})
	return next
}

// Remove drops the item with id, wherever it sits in the tree
func Remove(s models.FeedSnapshot, id string) models.FeedSnapshot {
	items, removed := removeID(s.Items, id)
	if !removed {
		return s
	}
	next := s
	next.Items = items
	return next
}
