package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/plugin/notify"
)

func TestNotifier_Deliver(t *testing.T) {
	var got RequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Deliver(context.Background(), notify.Notification{ReminderID: 7, Message: "buy milk", PlaceName: "Corner Shop", Reason: notify.ReasonTrigger})
	require.NoError(t, err)

	assert.Equal(t, "reminders.location.trigger", got.ActivityType)
	assert.Equal(t, int32(7), got.Notification.ReminderID)
	assert.Equal(t, "Reminder near Corner Shop: buy milk", got.Text)
}

func TestPost_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"accepted with code zero", http.StatusOK, `{"code":0}`, ""},
		{"server error", http.StatusInternalServerError, "boom", "status code: 500"},
		{"error code in body", http.StatusOK, `{"code":3,"message":"bad token"}`, "bad token"},
		{"malformed body", http.StatusOK, `not json`, "failed to unmarshal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := Post(context.Background(), srv.Client(), &RequestPayload{URL: srv.URL})
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
