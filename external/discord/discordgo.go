package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/foxseedlab/nlscribe/internal/notifier"
)

// Discord rejects message content longer than this many characters.
const maxMessageLength = 2000

var ErrChannelNotFound = errors.New("discord channel not found")

// Client posts to a single text channel over the REST API. It never opens a
// gateway connection.
type Client struct {
	session   *discordgo.Session
	channelID string
}

func NewClient(token, channelID string) (notifier.Notifier, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Client{session: s, channelID: channelID}, nil
}

func (c *Client) PostText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := c.session.ChannelMessageSend(c.channelID, part, discordgo.WithContext(ctx)); err != nil {
			return c.wrapError(err)
		}
	}
	return nil
}

func (c *Client) PostFile(ctx context.Context, content, filename string, body []byte) error {
	_, err := c.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{
			{Name: filename, ContentType: "text/plain", Reader: bytes.NewReader(body)},
		},
	}, discordgo.WithContext(ctx))
	return c.wrapError(err)
}

// ChannelName resolves the configured channel, preferring the state cache.
func (c *Client) ChannelName(ctx context.Context) (string, error) {
	if c.session.State != nil {
		channel, err := c.session.State.Channel(c.channelID)
		if err == nil && channel != nil && channel.Name != "" {
			return channel.Name, nil
		}
	}
	channel, err := c.session.Channel(c.channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", c.wrapError(err)
	}
	if channel == nil || channel.Name == "" {
		return c.channelID, nil
	}
	return channel.Name, nil
}

func (c *Client) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if isRESTNotFound(err) {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, c.channelID)
	}
	return fmt.Errorf("discord request failed: %w", err)
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

// splitMessage breaks text on line boundaries into parts of at most limit
// runes. Lines longer than limit are cut.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
		}
		n := utf8.RuneCountInString(line)
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		curLen += sep + n
	}
	flush()
	return parts
}
