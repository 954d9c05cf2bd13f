// Package notify delivers divergence alerts to the operator's configured
// channels. Delivery is fire-and-forget: failures are logged and never block
// or fail the engine, and nothing is retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("prefix", "notify")

const sendTimeout = 10 * time.Second

// Channel delivers one message to an external destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, radioName, content string) error
}

// Service fans alerts out to every configured channel.
type Service struct {
	radioName string
	channels  []Channel
}

// NewService builds the notifier around the configured channels. An empty
// channel list is valid and turns notification into a no-op.
func NewService(radioName string, channels ...Channel) *Service {
	return &Service{radioName: radioName, channels: channels}
}

// Notify hands the summary line to a background dispatch and returns at once.
// The dispatch sends to every channel concurrently and ends when all
// deliveries finish or sendTimeout elapses.
func (s *Service) Notify(ctx context.Context, content string) {
	if len(s.channels) == 0 {
		return
	}
	notificationCounter.Inc()
	go func() {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		g, ctx := errgroup.WithContext(ctx)
		for _, ch := range s.channels {
			ch := ch
			g.Go(func() error {
				if err := ch.Send(ctx, s.radioName, content); err != nil {
					log.WithError(err).WithField("channel", ch.Name()).Warn("Failed to send notification")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.WithError(err).Warn("Notification dispatch failed")
		}
	}()
}

const slackAPIURL = "https://slack.com/api/chat.postMessage"

// SlackChannel posts through the Slack chat.postMessage API.
type SlackChannel struct {
	token   string
	channel string
	apiURL  string
	http    *http.Client
}

// NewSlackChannel configures Slack delivery with a bot token and channel.
func NewSlackChannel(token, channel string) *SlackChannel {
	return &SlackChannel{
		token:   token,
		channel: channel,
		apiURL:  slackAPIURL,
		http:    &http.Client{Timeout: sendTimeout},
	}
}

// Name identifies the channel in logs.
func (c *SlackChannel) Name() string {
	return "slack"
}

// Send posts the alert into the configured Slack channel.
func (c *SlackChannel) Send(ctx context.Context, radioName, content string) error {
	payload := map[string]interface{}{
		"channel": c.channel,
		"text":    radioName + ": " + content,
	}
	req, err := newJSONRequest(ctx, c.apiURL, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "slack request failed")
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("slack returned status %d", resp.StatusCode)
	}
	var result struct {
		Ok    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "could not parse slack response")
	}
	if !result.Ok {
		return errors.Errorf("slack rejected message: %s", result.Error)
	}
	return nil
}

// DiscordChannel posts through a Discord webhook.
type DiscordChannel struct {
	webhookURL string
	http       *http.Client
}

// NewDiscordChannel configures Discord delivery with a webhook URL.
func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: sendTimeout},
	}
}

// Name identifies the channel in logs.
func (c *DiscordChannel) Name() string {
	return "discord"
}

// Send posts the alert to the webhook.
func (c *DiscordChannel) Send(ctx context.Context, radioName, content string) error {
	payload := map[string]interface{}{
		"username": radioName,
		"content":  content,
	}
	req, err := newJSONRequest(ctx, c.webhookURL, payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "discord request failed")
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}

func newJSONRequest(ctx context.Context, url string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal notification")
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build notification request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func drainAndClose(body io.ReadCloser) {
	if _, err := io.Copy(ioutil.Discard, body); err != nil {
		log.WithError(err).Debug("Could not drain response body")
	}
	if err := body.Close(); err != nil {
		log.WithError(err).Debug("Could not close response body")
	}
}
