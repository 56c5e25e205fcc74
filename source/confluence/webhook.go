package confluence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook is the part of a Confluence webhook the service acts on.
type Webhook struct {
	Event  string
	PageID string
}

type webhookPayload struct {
	Event     string `json:"event"`
	EventType string `json:"event_type"`
	PageID    flexID `json:"page_id"`
	Page      struct {
		ID flexID `json:"id"`
	} `json:"page"`
	Content struct {
		ID flexID `json:"id"`
	} `json:"content"`
}

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// ParseWebhook extracts the event name and page id from a webhook body.
// The page id is looked up in page.id, then page_id, then content.id. A payload
// without any of them yields an empty PageID rather than an error.
func ParseWebhook(body []byte) (*Webhook, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}

	hook := &Webhook{Event: strings.TrimSpace(payload.Event)}
	if hook.Event == "" {
		hook.Event = strings.TrimSpace(payload.EventType)
	}
	for _, id := range []flexID{payload.Page.ID, payload.PageID, payload.Content.ID} {
		if id != "" {
			hook.PageID = string(id)
			break
		}
	}
	return hook, nil
}
