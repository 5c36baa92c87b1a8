package feed

import "github.com/feedsync/pkg/models"

// path locates a node in the item tree: top-level index, then the index in
// each successive Responses slice.
type path []int

// index maps every assertion id in the tree to its location
type index map[string]path

func buildIndex(items []models.FeedItem) index {
	idx := make(index)
	walk(items, nil, func(p path, item models.FeedItem) {
		if _, seen := idx[item.AssertionID]; !seen {
			idx[item.AssertionID] = p
		}
	})
	return idx
}

// walk visits items depth-first, parents before their responses
func walk(items []models.FeedItem, prefix path, fn func(p path, item models.FeedItem)) {
	for i, item := range items {
		p := make(path, len(prefix)+1)
		copy(p, prefix)
		p[len(prefix)] = i
		fn(p, item)
		if len(item.Responses) > 0 {
			walk(item.Responses, p, fn)
		}
	}
}

// updateAt returns a copy of items with the node at p replaced by fn(node).
// Only the slices along p are copied; untouched subtrees are shared.
func updateAt(items []models.FeedItem, p path, fn func(models.FeedItem) models.FeedItem) []models.FeedItem {
	out := make([]models.FeedItem, len(items))
	copy(out, items)

	i := p[0]
	if len(p) == 1 {
		out[i] = fn(items[i])
		return out
	}
	node := items[i]
	node.Responses = updateAt(node.Responses, p[1:], fn)
	out[i] = node
	return out
}

// appendUnique appends each item not already in seen, recording the ids of
// everything it keeps. Duplicate responses inside kept items are pruned too.
func appendUnique(dst []models.FeedItem, seen map[string]struct{}, items []models.FeedItem) []models.FeedItem {
	for _, item := range items {
		if _, dup := seen[item.AssertionID]; dup {
			continue
		}
		seen[item.AssertionID] = struct{}{}
		if item.Responses != nil {
			item.Responses = appendUnique(make([]models.FeedItem, 0, len(item.Responses)), seen, item.Responses)
		}
		dst = append(dst, item)
	}
	return dst
}

// removeID drops every node with id from the tree. It reports whether
// anything was removed; when nothing was, items is returned as is.
func removeID(items []models.FeedItem, id string) ([]models.FeedItem, bool) {
	removed := false
	out := make([]models.FeedItem, 0, len(items))
	for _, item := range items {
		if item.AssertionID == id {
			removed = true
			continue
		}
		if responses, ok := removeID(item.Responses, id); ok {
			item.Responses = responses
			removed = true
		}
		out = append(out, item)
	}
	if !removed {
		return items, false
	}
	return out, true
}

// Find returns the item with id anywhere in the tree
func Find(items []models.FeedItem, id string) (models.FeedItem, bool) {
	for _, item := range items {
		if item.AssertionID == id {
			return item, true
		}
		if found, ok := Find(item.Responses, id); ok {
			return found, true
		}
	}
	return models.FeedItem{}, false
}

// Count returns how many nodes carry id; a well-formed tree has at most one
func Count(items []models.FeedItem, id string) int {
	n := 0
	walk(items, nil, func(_ path, item models.FeedItem) {
		if item.AssertionID == id {
			n++
		}
	})
	return n
}
