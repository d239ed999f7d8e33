package notifier

import "context"

// Notifier mirrors transcript output to a chat channel.
type Notifier interface {
	PostText(ctx context.Context, text string) error
	PostFile(ctx context.Context, content, filename string, body []byte) error
}

type Nop struct{}

func (Nop) PostText(context.Context, string) error { return nil }

func (Nop) PostFile(context.Context, string, string, []byte) error { return nil }
