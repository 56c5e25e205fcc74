package confluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		event  string
		pageID string
	}{
		{"string id", `{"event":"page_updated","page":{"id":"123"}}`, "page_updated", "123"},
		{"numeric id", `{"event":"page_created","page":{"id":4567}}`, "page_created", "4567"},
		{"flat page id", `{"event_type":"page_published","page_id":"88"}`, "page_published", "88"},
		{"content id", `{"event":"page_edited","content":{"id":99}}`, "page_edited", "99"},
		{"page wins over content", `{"event":"page_updated","page":{"id":"1"},"content":{"id":"2"}}`, "page_updated", "1"},
		{"missing id", `{"event":"page_updated"}`, "page_updated", ""},
		{"null id", `{"event":"page_updated","page":{"id":null}}`, "page_updated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook, err := ParseWebhook([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.event, hook.Event)
			assert.Equal(t, tt.pageID, hook.PageID)
		})
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"event":`))
	assert.ErrorIs(t, err, ErrMalformedWebhook)

	_, err = ParseWebhook([]byte(`{"event":"page_updated","page":{"id":true}}`))
	assert.ErrorIs(t, err, ErrMalformedWebhook)
}
