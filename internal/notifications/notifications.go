// Package notifications keeps the viewer's notification list and unread
// count. Guests and expired sessions see an empty list, not an error.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/pkg/models"
)

// DefaultPageSize is the page size the backend uses when none is sent
const DefaultPageSize = 20

// Gateway is the notifications endpoint
type Gateway interface {
	List(ctx context.Context, cursor string, limit int) (models.NotificationPage, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	UnreadCount(ctx context.Context) (int, error)
}

// HTTPGateway talks to /notifications
type HTTPGateway struct {
	api *apiclient.Client
}

// NewHTTPGateway creates the HTTP notifications gateway
func NewHTTPGateway(api *apiclient.Client) *HTTPGateway {
	return &HTTPGateway{api: api}
}

// List returns one page of notifications starting at cursor
func (g *HTTPGateway) List(ctx context.Context, cursor string, limit int) (models.NotificationPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 && limit != DefaultPageSize {
		query.Set("limit", strconv.Itoa(limit))
	}
	var page models.NotificationPage
	if _, err := g.api.Get(ctx, "notifications list", "/notifications", query, &page); err != nil {
		return models.NotificationPage{}, err
	}
	if page.Items == nil {
		page.Items = []models.Notification{}
	}
	return page, nil
}

// MarkRead marks one notification as read
func (g *HTTPGateway) MarkRead(ctx context.Context, id string) error {
	_, err := g.api.Do(ctx, apiclient.Request{
		Op:     "notification mark read",
		Method: http.MethodPost,
		Path:   "/notifications/" + url.PathEscape(id) + "/read",
	}, nil)
	return err
}

// MarkAllRead marks every notification as read and returns how many changed
func (g *HTTPGateway) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	_, err := g.api.Do(ctx, apiclient.Request{
		Op:     "notifications mark all read",
		Method: http.MethodPost,
		Path:   "/notifications/read-all",
	}, &out)
	return out.Count, err
}

// UnreadCount returns 0 for unauthenticated viewers
func (g *HTTPGateway) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if _, err := g.api.Get(ctx, "notifications unread count", "/notifications/unread-count", nil, &out); err != nil {
		if apierr.IsUnauthorized(err) {
			return 0, nil
		}
		return 0, err
	}
	return out.Count, nil
}

// View is what a caller renders
type View struct {
	Items       []models.Notification
	UnreadCount int
	Loading     bool
	HasMore     bool
	Err         error
}

// Center holds the notification state for one viewer
type Center struct {
	gateway  Gateway
	pageSize int
	now      func() time.Time
	logger   zerolog.Logger

	mu         sync.Mutex
	items      []models.Notification
	unread     int
	cursor     string
	loading    bool
	err        error
	generation uint64
}

// NewCenter creates an empty center. pageSize <= 0 uses the backend default.
func NewCenter(gateway Gateway, pageSize int) *Center {
	return &Center{
		gateway:  gateway,
		pageSize: pageSize,
		now:      time.Now,
		logger:   log.With().Str("component", "notifications").Logger(),
		items:    []models.Notification{},
	}
}

// View returns the current state
func (c *Center) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Items:       append([]models.Notification{}, c.items...),
		UnreadCount: c.unread,
		Loading:     c.loading,
		HasMore:     c.cursor != "",
		Err:         c.err,
	}
}

// Load fetches the first page and the unread count in parallel
func (c *Center) Load(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	var (
		page  models.NotificationPage
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = c.gateway.List(gctx, "", c.pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = c.gateway.UnreadCount(gctx)
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.loading = false

	switch {
	case errors.Is(err, apierr.ErrUnauthorized):
		c.logger.Debug().Msg("not signed in, showing no notifications")
		c.items = []models.Notification{}
		c.unread = 0
		c.cursor = ""
		return nil
	case err != nil:
		c.err = fmt.Errorf("failed to load notifications: %w", err)
		return c.err
	}

	c.items = append([]models.Notification{}, page.Items...)
	c.cursor = page.Cursor()
	c.unread = count
	return nil
}

// Refresh reloads the first page and the count
func (c *Center) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

// LoadMore appends the next page. It does nothing without a cursor or while
// loading.
func (c *Center) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.cursor == "" || c.loading {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	cursor := c.cursor
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	page, err := c.gateway.List(ctx, cursor, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = fmt.Errorf("failed to load more notifications: %w", err)
		return c.err
	}

	seen := make(map[string]struct{}, len(c.items))
	for _, n := range c.items {
		seen[n.ID] = struct{}{}
	}
	items := append([]models.Notification{}, c.items...)
	for _, n := range page.Items {
		if _, dup := seen[n.ID]; !dup {
			items = append(items, n)
		}
	}
	c.items = items
	c.cursor = page.Cursor()
	return nil
}

// MarkRead marks one notification read. The unread count only drops when
// the notification was unread locally.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	if err := c.gateway.MarkRead(ctx, id); err != nil {
		c.mu.Lock()
		c.err = fmt.Errorf("failed to mark notification read: %w", err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	readAt := c.now()
	items := make([]models.Notification, len(c.items))
	wasUnread := false
	for i, n := range c.items {
		if n.ID == id {
			if !n.Read {
				wasUnread = true
			}
			n.Read = true
			n.ReadAt = &readAt
		}
		items[i] = n
	}
	c.items = items
	if wasUnread && c.unread > 0 {
		c.unread--
	}
	return nil
}

// MarkAllRead marks everything read and zeroes the unread count
func (c *Center) MarkAllRead(ctx context.Context) error {
	if _, err := c.gateway.MarkAllRead(ctx); err != nil {
		c.mu.Lock()
		c.err = fmt.Errorf("failed to mark all notifications read: %w", err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	readAt := c.now()
	items := make([]models.Notification, len(c.items))
	for i, n := range c.items {
		n.Read = true
		n.ReadAt = &readAt
		items[i] = n
	}
	c.items = items
	c.unread = 0
	return nil
}
