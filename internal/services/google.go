package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/tasks/v1"
)

// maxSummaryItems bounds how many entries each summary lists.
const maxSummaryItems = 10

// GoogleTasks summarizes the user's default task list.
type GoogleTasks struct {
	svc *tasks.Service
}

// NewGoogleTasks wraps an authenticated Tasks service.
func NewGoogleTasks(svc *tasks.Service) *GoogleTasks {
	return &GoogleTasks{svc: svc}
}

func (g *GoogleTasks) ID() ID { return TaskList }

func (g *GoogleTasks) Summarize(ctx context.Context, userID string) (string, error) {
	list, err := g.svc.Tasks.List("@default").Context(ctx).
		ShowCompleted(false).MaxResults(maxSummaryItems).Do()
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if len(list.Items) == 0 {
		return "You have no open tasks.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d open task(s):\n", len(list.Items))
	for _, t := range list.Items {
		if t.Due != "" {
			if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
				fmt.Fprintf(&b, "  - %s (due %s)\n", t.Title, due.Format("Jan 2"))
				continue
			}
		}
		fmt.Fprintf(&b, "  - %s\n", t.Title)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GoogleCalendar summarizes upcoming events on the primary calendar.
type GoogleCalendar struct {
	svc   *calendar.Service
	clock func() time.Time
}

// NewGoogleCalendar wraps an authenticated Calendar service.
func NewGoogleCalendar(svc *calendar.Service) *GoogleCalendar {
	return &GoogleCalendar{svc: svc, clock: time.Now}
}

func (g *GoogleCalendar) ID() ID { return Calendar }

func (g *GoogleCalendar) Summarize(ctx context.Context, userID string) (string, error) {
	now := g.clock()
	events, err := g.svc.Events.List("primary").Context(ctx).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, 7).Format(time.RFC3339)).
		SingleEvents(true).OrderBy("startTime").
		MaxResults(maxSummaryItems).Do()
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	if len(events.Items) == 0 {
		return "Nothing on your calendar for the next week.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your next %d event(s):\n", len(events.Items))
	for _, e := range events.Items {
		when := e.Start.DateTime
		if when == "" {
			when = e.Start.Date
		}
		if start, err := time.Parse(time.RFC3339, when); err == nil {
			when = start.Format("Mon Jan 2 15:04")
		}
		fmt.Fprintf(&b, "  - %s: %s\n", when, e.Summary)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GoogleMail summarizes unread messages in the inbox.
type GoogleMail struct {
	svc *gmail.Service
}

// NewGoogleMail wraps an authenticated Gmail service.
func NewGoogleMail(svc *gmail.Service) *GoogleMail {
	return &GoogleMail{svc: svc}
}

func (g *GoogleMail) ID() ID { return Mail }

func (g *GoogleMail) Summarize(ctx context.Context, userID string) (string, error) {
	list, err := g.svc.Users.Messages.List("me").Context(ctx).
		Q("is:unread in:inbox").MaxResults(maxSummaryItems).Do()
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "No unread mail.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d unread message(s):\n", len(list.Messages))
	for _, m := range list.Messages {
		msg, err := g.svc.Users.Messages.Get("me", m.Id).Context(ctx).
			Format("metadata").MetadataHeaders("Subject", "From").Do()
		if err != nil {
			continue
		}
		subject, from := "(no subject)", ""
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				if h.Value != "" {
					subject = h.Value
				}
			case "From":
				from = h.Value
			}
		}
		fmt.Fprintf(&b, "  - %s: %s\n", from, subject)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GoogleDriveRecent summarizes recently modified documents.
type GoogleDriveRecent struct {
	svc *drive.Service
}

// NewGoogleDriveRecent wraps an authenticated Drive service.
func NewGoogleDriveRecent(svc *drive.Service) *GoogleDriveRecent {
	return &GoogleDriveRecent{svc: svc}
}

func (g *GoogleDriveRecent) ID() ID { return FileStorage }

func (g *GoogleDriveRecent) Summarize(ctx context.Context, userID string) (string, error) {
	list, err := g.svc.Files.List().Context(ctx).
		Q("trashed = false and mimeType != 'application/vnd.google-apps.folder'").
		OrderBy("modifiedTime desc").
		Fields("files(name, modifiedTime)").
		PageSize(maxSummaryItems).Do()
	if err != nil {
		return "", fmt.Errorf("list recent files: %w", err)
	}
	if len(list.Files) == 0 {
		return "No documents in your storage yet.", nil
	}

	var b strings.Builder
	b.WriteString("Recently modified documents:\n")
	for _, f := range list.Files {
		when := f.ModifiedTime
		if t, err := time.Parse(time.RFC3339, when); err == nil {
			when = t.Format("Jan 2")
		}
		fmt.Fprintf(&b, "  - %s (%s)\n", f.Name, when)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
