// Package webhook delivers reminder notifications to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/plugin/notify"
)

var (
	// timeout is the timeout for webhook request. Default to 30 seconds.
	timeout = 30 * time.Second
)

type RequestPayload struct {
	URL          string              `json:"url"`
	ActivityType string              `json:"activityType"`
	Notification notify.Notification `json:"notification"`
	Text         string              `json:"text"`
}

// Post posts the payload to the webhook endpoint. An empty response body is
// accepted; a JSON body with a non-zero code is an error.
func Post(ctx context.Context, client *http.Client, payload *RequestPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", payload.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", payload.URL)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", payload.URL)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", payload.URL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", payload.URL, resp.StatusCode, b)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	response := &struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{}
	if err := json.Unmarshal(b, response); err != nil {
		return errors.Wrapf(err, "failed to unmarshal webhook response from %s", payload.URL)
	}
	if response.Code != 0 {
		return errors.Errorf("receive error code sent by webhook server, code %d, msg: %s", response.Code, response.Message)
	}
	return nil
}

// Notifier posts every notification to one URL.
type Notifier struct {
	URL    string
	Client *http.Client
}

// NewNotifier creates a Notifier for url.
func NewNotifier(url string) *Notifier {
	return &Notifier{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (n *Notifier) Deliver(ctx context.Context, notification notify.Notification) error {
	return Post(ctx, n.Client, &RequestPayload{
		URL:          n.URL,
		ActivityType: "reminders.location." + string(notification.Reason),
		Notification: notification,
		Text:         notification.Text(),
	})
}
