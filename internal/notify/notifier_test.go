package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCallbackRoundTrip(t *testing.T) {
	data := Callback(ActionShipMethod, "std", "ABC123-7")
	assert.Equal(t, "ship_meth_std_ABC123-7", data)

	action, rest, err := ParseCallback(data, ActionShipOption, ActionShipMethod)
	require.NoError(t, err)
	assert.Equal(t, ActionShipMethod, action)
	assert.Equal(t, "std_ABC123-7", rest)

	_, _, err = ParseCallback("inact_yes_", ActionInactiveClose)
	assert.Error(t, err)
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	err := n.Send(context.Background(), Message{
		ChatID:  42,
		Text:    "hello",
		Buttons: [][]Button{{{Label: "Yes", Data: "inact_yes_X"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "inact_yes_X", got.Buttons[0][0].Data)
}

func TestWebhookNotifierReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	err := n.Send(context.Background(), Message{ChatID: 1, Text: "x"})
	assert.EqualError(t, err, "chat gateway returned 502")

	assert.NoError(t, n.Send(context.Background(), Message{Text: "no destination"}))
}
