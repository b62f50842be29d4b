package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ErrDeliveryFailed is returned when a recipient could not be reached
var ErrDeliveryFailed = errors.New("delivery failed")

// discordMessageLimit is the maximum characters Discord accepts in one message
const discordMessageLimit = 2000

// Notifier delivers a rendered message to one recipient
type Notifier interface {
	Deliver(ctx context.Context, recipientID, text string) error
}

// DiscordNotifier sends direct messages through the Discord REST API
type DiscordNotifier struct {
	session *discordgo.Session
	log     *zap.SugaredLogger
}

// NewDiscordNotifier creates a notifier authenticating with the bot token.
// No gateway connection is opened.
func NewDiscordNotifier(token string, log *zap.SugaredLogger) (*DiscordNotifier, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return NewDiscordNotifierWithSession(session, log), nil
}

// NewDiscordNotifierWithSession wraps an existing session
func NewDiscordNotifierWithSession(session *discordgo.Session, log *zap.SugaredLogger) *DiscordNotifier {
	// the sweep bounds each delivery; discordgo must not sleep through rate limits on its own
	session.ShouldRetryOnRateLimit = false
	return &DiscordNotifier{
		session: session,
		log:     log.With("component", "notifier"),
	}
}

// Deliver opens (or reuses) the DM channel with the recipient and sends text,
// split into as many messages as Discord's length limit requires
func (n *DiscordNotifier) Deliver(ctx context.Context, recipientID, text string) error {
	channel, err := n.session.UserChannelCreate(recipientID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: open DM with %s: %w", ErrDeliveryFailed, recipientID, err)
	}

	parts := splitMessage(text, discordMessageLimit)
	for i, part := range parts {
		if _, err := n.session.ChannelMessageSend(channel.ID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("%w: send part %d/%d to %s: %w", ErrDeliveryFailed, i+1, len(parts), recipientID, err)
		}
	}

	n.log.Debugw("delivered digest", "recipient_id", recipientID, "parts", len(parts))
	return nil
}

// WriterNotifier writes messages to w instead of sending them
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier printing every message to w
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Deliver implements Notifier
func (n *WriterNotifier) Deliver(_ context.Context, recipientID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := fmt.Fprintf(n.w, "=== to %s ===\n%s\n\n", recipientID, text); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// splitMessage breaks text into chunks of at most limit characters, preferring line breaks
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if chunk := strings.TrimRight(current.String(), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		current.Reset()
		size = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			// a single line longer than the limit is cut on rune boundaries
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		size += n
	}
	flush()
	return parts
}
