package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnbot/internal/config"
	"learnbot/internal/models"

	"go.uber.org/zap"
)

// DigestItem is one due reminder as it appears in a recipient's digest
type DigestItem struct {
	Reminder    models.Reminder
	DisplayName string
	PartnerItem bool
}

// HonorificSource looks up how a user wants to be addressed
type HonorificSource interface {
	Honorific(ctx context.Context, userID string) (string, error)
}

// DigestRenderer formats the daily review message for a recipient
type DigestRenderer struct {
	persona config.PersonaConfig
	prefs   HonorificSource
	log     *zap.SugaredLogger
}

// NewDigestRenderer creates a renderer. prefs may be nil, in which case every
// recipient is addressed with the persona's default honorific.
func NewDigestRenderer(persona config.PersonaConfig, prefs HonorificSource, log *zap.SugaredLogger) *DigestRenderer {
	return &DigestRenderer{
		persona: persona,
		prefs:   prefs,
		log:     log.With("component", "digest"),
	}
}

// Render builds one message listing every item, partner items tagged as such
func (r *DigestRenderer) Render(ctx context.Context, recipientID string, items []DigestItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("digest has no items")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📚 **Time to review, %s!**\n", r.honorific(ctx, recipientID))
	b.WriteString("These items are due today:\n\n")

	for _, item := range items {
		fmt.Fprintf(&b, "📌 **%s**", item.DisplayName)
		if item.PartnerItem {
			b.WriteString(" (partner's item)")
		}
		b.WriteByte('\n')
	}

	noun := "items"
	if len(items) == 1 {
		noun = "item"
	}
	fmt.Fprintf(&b, "\n%d %s to review today.", len(items), noun)
	if r.persona.Name != "" {
		fmt.Fprintf(&b, " ~ %s", r.persona.Name)
	}
	return b.String(), nil
}

func (r *DigestRenderer) honorific(ctx context.Context, userID string) string {
	if r.prefs == nil {
		return r.persona.DefaultHonorific
	}
	h, err := r.prefs.Honorific(ctx, userID)
	if err != nil {
		r.log.Warnw("honorific lookup failed, using default", "user_id", userID, "err", err)
		return r.persona.DefaultHonorific
	}
	if h == "" {
		return r.persona.DefaultHonorific
	}
	return h
}
