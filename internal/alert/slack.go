package alert

import (
	"context"

	slackapi "github.com/slack-go/slack"
)

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

// SlackClient abstracts the Slack API method used by the notifier.
type SlackClient interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// realSlackClient wraps the slack-go/slack client.
type realSlackClient struct {
	client *slackapi.Client
}

func (c *realSlackClient) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := c.client.PostMessageContext(ctx, channel,
		slackapi.MsgOptionText(text, false))
	return err
}

// SlackNotifier posts alerts to a Slack channel.
type SlackNotifier struct {
	client  SlackClient
	channel string
}

// NewSlackNotifier creates a notifier backed by the Slack Web API.
func NewSlackNotifier(cfg SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		client:  &realSlackClient{client: slackapi.New(cfg.Token)},
		channel: cfg.Channel,
	}
}

// NewSlackNotifierWithClient creates a notifier around an existing client.
func NewSlackNotifierWithClient(client SlackClient, channel string) *SlackNotifier {
	return &SlackNotifier{client: client, channel: channel}
}

// Send implements Notifier.
func (s *SlackNotifier) Send(ctx context.Context, ev Event) error {
	return s.client.PostMessage(ctx, s.channel, ev.Text())
}
