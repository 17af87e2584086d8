// Package notify turns created documents into push notifications.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/messaging"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/dmitrijs2005/rollcall/internal/server/triggers"
)

// Trigger patterns.
const (
	EventsPattern       = "events/{eventId}"
	ProfileViewsPattern = "users/{userId}/profileViews/{viewId}"
	PostsPattern        = "posts/{postId}"
)

// AllUsersTopic is the topic every client subscribes to.
const AllUsersTopic = "all_users"

// UsersCollection holds the account records profile views hang off.
const UsersCollection = "users"

const previewLength = 50

// DocumentReader loads documents.
type DocumentReader interface {
	Get(ctx context.Context, collection, key string) (*models.Document, error)
}

type Notifier struct {
	gateway messaging.Gateway
	docs    DocumentReader
	logger  logging.Logger
}

func New(gateway messaging.Gateway, docs DocumentReader, l logging.Logger) *Notifier {
	if l == nil {
		l = logging.Nop()
	}
	return &Notifier{gateway: gateway, docs: docs, logger: l.With("module", "notify")}
}

// Register installs the handlers on r.
func (n *Notifier) Register(r *triggers.Router) error {
	return errors.Join(
		r.Handle(EventsPattern, n.NewEvent),
		r.Handle(ProfileViewsPattern, n.ProfileView),
		r.Handle(PostsPattern, n.NewPost),
	)
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

// NewEvent announces a new event to everyone.
func (n *Notifier) NewEvent(ctx context.Context, ev triggers.Event) error {
	note := messaging.Notification{
		Title: "🎉 New Event Added!",
		Body:  "Check out the new event: " + stringField(ev.Fields, "title"),
		Sound: messaging.DefaultSound,
	}
	data := map[string]string{
		"screen":  "events_page",
		"eventId": ev.Params["eventId"],
	}
	return n.gateway.PublishToTopic(ctx, AllUsersTopic, note, data)
}

// ProfileView tells a profile owner someone looked at their profile. Owners
// without a device token are skipped.
func (n *Notifier) ProfileView(ctx context.Context, ev triggers.Event) error {
	ownerID := ev.Params["userId"]

	owner, err := n.docs.Get(ctx, UsersCollection, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			n.logger.Info(ctx, "profile owner not found, skipping notification", "userId", ownerID)
			return nil
		}
		return fmt.Errorf("load profile owner %s: %w", ownerID, err)
	}

	token := stringField(owner.Fields, models.FieldFCMToken)
	if token == "" {
		n.logger.Info(ctx, "user has no device token, skipping notification", "userId", ownerID)
		return nil
	}

	note := messaging.Notification{
		Title: "👀 Someone Viewed Your Profile!",
		Body:  stringField(ev.Fields, "viewerName") + " just checked out your profile.",
		Sound: messaging.DefaultSound,
	}
	data := map[string]string{
		"screen":   "profile_page",
		"viewerId": stringField(ev.Fields, "viewerId"),
	}
	return n.gateway.PublishToDevice(ctx, token, note, data)
}

// NewPost announces a post with a preview of its content. Posts without
// content are skipped.
func (n *Notifier) NewPost(ctx context.Context, ev triggers.Event) error {
	content := stringField(ev.Fields, "content")
	if content == "" {
		n.logger.Info(ctx, "post has no content, skipping notification", "postId", ev.Params["postId"])
		return nil
	}

	author := stringField(ev.Fields, "authorName")
	if author == "" {
		author = "an alumnus"
	}

	note := messaging.Notification{
		Title: "📰 New Post from " + author + "!",
		Body:  preview(content),
		Sound: messaging.DefaultSound,
	}
	data := map[string]string{
		"screen": "posts_page",
		"postId": ev.Params["postId"],
	}
	return n.gateway.PublishToTopic(ctx, AllUsersTopic, note, data)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}
