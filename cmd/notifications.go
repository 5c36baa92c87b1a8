package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/notifications"
	"github.com/feedsync/pkg/models"
)

// NotificationsCommand returns the notifications command
func NotificationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "notifications",
		Aliases: []string{"notif"},
		Usage:   "List notifications and mark them read",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Page size",
				Value: notifications.DefaultPageSize,
			},
			&cli.StringSliceFlag{
				Name:  "read",
				Usage: "Mark notification `ID` read, repeatable",
			},
			&cli.BoolFlag{
				Name:  "read-all",
				Usage: "Mark every notification read",
			},
		},
		Action: runNotifications,
	}
}

type notificationsView struct {
	Items       []models.Notification `json:"items" yaml:"items"`
	UnreadCount int                   `json:"unreadCount" yaml:"unreadCount"`
	HasMore     bool                  `json:"hasMore" yaml:"hasMore"`
}

func runNotifications(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := c.Context
	center := notifications.NewCenter(notifications.NewHTTPGateway(rt.api), c.Int("limit"))
	if err := center.Load(ctx); err != nil {
		return err
	}

	for _, id := range c.StringSlice("read") {
		if err := center.MarkRead(ctx, id); err != nil {
			return err
		}
	}
	if c.Bool("read-all") {
		if err := center.MarkAllRead(ctx); err != nil {
			return err
		}
	}

	v := center.View()
	view := notificationsView{Items: v.Items, UnreadCount: v.UnreadCount, HasMore: v.HasMore}
	return rt.print(view, func(w io.Writer) {
		if !rt.viewer.Authenticated() {
			fmt.Fprintln(w, "Sign in to see notifications")
			return
		}
		fmt.Fprintf(w, "%d unread\n", v.UnreadCount)
		for _, n := range v.Items {
			fmt.Fprintln(w, describeNotification(n))
		}
	})
}

func describeNotification(n models.Notification) string {
	marker := "*"
	if n.Read {
		marker = " "
	}
	actor := n.ActorID
	if n.Actor != nil && n.Actor.Name != "" {
		actor = n.Actor.Name
	}
	switch n.NotificationType {
	case models.NotificationReply:
		return fmt.Sprintf("%s %s  %s replied to %s", marker, n.ID, actor, n.AssertionID)
	case models.NotificationReaction:
		return fmt.Sprintf("%s %s  %s reacted %s to %s", marker, n.ID, actor, n.ReactionType, n.AssertionID)
	}
	return fmt.Sprintf("%s %s  %s on %s", marker, n.ID, n.NotificationType, n.AssertionID)
}
