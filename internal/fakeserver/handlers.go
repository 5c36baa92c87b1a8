package fakeserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/feedsync/pkg/models"
)

func (s *Server) getFeed(c echo.Context) error {
	offset, limit, err := s.pageParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.feed(viewerOf(c).ID, offset, limit))
}

func (s *Server) publish(c echo.Context) error {
	var in publishInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	receipt, err := s.store.publish(viewerOf(c), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, receipt)
}

func (s *Server) deleteAssertion(c echo.Context) error {
	if err := s.store.remove(viewerOf(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getThread(c echo.Context) error {
	t, err := s.store.thread(viewerOf(c).ID, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) getDraft(c echo.Context) error {
	env, ok := s.store.draft(viewerOf(c).ID)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) putDraft(c echo.Context) error {
	var env models.DraftEnvelope
	if err := c.Bind(&env); err != nil {
		return err
	}
	if env.ClientID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "clientId is required")
	}
	s.store.saveDraft(viewerOf(c).ID, env)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteDraft(c echo.Context) error {
	s.store.clearDraft(viewerOf(c).ID)
	return c.NoContent(http.StatusNoContent)
}

type reactionInput struct {
	AssertionID  string              `json:"assertionId"`
	ReactionType models.ReactionType `json:"reactionType"`
}

func (s *Server) getReactions(c echo.Context) error {
	state, err := s.store.reactionState(c.Param("id"), viewerOf(c).ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) addReaction(c echo.Context) error {
	var in reactionInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.store.react(viewerOf(c).ID, in.AssertionID, in.ReactionType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) removeReaction(c echo.Context) error {
	var in reactionInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.store.unreact(viewerOf(c).ID, in.AssertionID, in.ReactionType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

type bookmarkInput struct {
	AssertionID string `json:"assertionId"`
}

func (s *Server) getBookmark(c echo.Context) error {
	return c.JSON(http.StatusOK, models.BookmarkState{
		IsBookmarked: s.store.bookmarked(viewerOf(c).ID, c.Param("id")),
	})
}

func (s *Server) addBookmark(c echo.Context) error {
	return s.setBookmark(c, true)
}

func (s *Server) removeBookmark(c echo.Context) error {
	return s.setBookmark(c, false)
}

func (s *Server) setBookmark(c echo.Context, on bool) error {
	var in bookmarkInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := s.store.setBookmark(viewerOf(c).ID, in.AssertionID, on); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listNotifications(c echo.Context) error {
	offset, limit, err := s.pageParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.listNotifications(viewerOf(c).ID, offset, limit))
}

func (s *Server) unreadCount(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"count": s.store.unreadCount(viewerOf(c).ID)})
}

func (s *Server) markRead(c echo.Context) error {
	if err := s.store.markRead(viewerOf(c).ID, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markAllRead(c echo.Context) error {
	count := s.store.markAllRead(viewerOf(c).ID)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "count": count})
}
