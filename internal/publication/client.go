package publication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/apiclient"
	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/pkg/models"
)

// Request options sent alongside the content
type Request struct {
	ClearDraft   bool
	SupersedesID string
}

// Client submits content and deletes assertions
type Client struct {
	api *apiclient.Client
}

// NewClient creates a publication client
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

type publishBody struct {
	Content      models.Content `json:"content"`
	ClearDraft   bool           `json:"clearDraft,omitempty"`
	SupersedesID string         `json:"supersedesId,omitempty"`
}

// Publish sends content. A 409 means the supersession target was already
// revised or deleted and is returned as *apierr.ConflictError.
func (c *Client) Publish(ctx context.Context, content models.Content, req Request) (models.PublishReceipt, error) {
	var receipt models.PublishReceipt
	_, err := c.api.Do(ctx, apiclient.Request{
		Op:     "publish",
		Method: http.MethodPost,
		Path:   "/publish",
		Body: publishBody{
			Content:      content,
			ClearDraft:   req.ClearDraft,
			SupersedesID: req.SupersedesID,
		},
	}, &receipt)
	if err != nil {
		return models.PublishReceipt{}, asConflict("publish", req.SupersedesID, err)
	}
	if receipt.AssertionID == "" {
		return models.PublishReceipt{}, fmt.Errorf("publish: response has no assertion id")
	}

	log.Debug().
		Str("assertion_id", receipt.AssertionID).
		Str("supersedes_id", req.SupersedesID).
		Str("assertion_type", string(content.AssertionType)).
		Msg("published")
	return receipt, nil
}

// Delete removes an assertion. A 409 means it was already superseded or
// deleted.
func (c *Client) Delete(ctx context.Context, assertionID string) error {
	if assertionID == "" {
		return apierr.Validation("assertion id is required")
	}
	_, err := c.api.Do(ctx, apiclient.Request{
		Op:     "delete",
		Method: http.MethodDelete,
		Path:   "/assertions/" + url.PathEscape(assertionID),
	}, nil)
	if err != nil {
		return asConflict("delete", assertionID, err)
	}
	return nil
}

func asConflict(op, targetID string, err error) error {
	var status *apierr.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusConflict {
		return &apierr.ConflictError{Op: op, TargetID: targetID, Message: status.Message}
	}
	return err
}
