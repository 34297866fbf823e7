package webex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token").WithBaseURL(server.URL)
}

func TestGetMe(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/me", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Person{
			ID:     "bot-id",
			Emails: []string{"bot@webex.bot"},
		})
	}))

	person, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot-id", person.ID)
	require.Len(t, person.Emails, 1)
	assert.Equal(t, "bot@webex.bot", person.Emails[0])
}

func TestListMessages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "room-1", r.URL.Query().Get("roomId"))
		assert.Equal(t, "5", r.URL.Query().Get("max"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"m2","roomId":"room-1","text":"second","created":"2026-08-25T10:00:02.000Z"},
			{"id":"m1","roomId":"room-1","text":"first","created":"2026-08-25T10:00:01.000Z"}
		]}`))
	}))

	messages, err := client.ListMessages(context.Background(), "room-1", 5)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, "first", messages[1].Text)
	assert.True(t, messages[0].Created.After(messages[1].Created))
}

func TestCreateMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		var request CreateMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "room-1", request.RoomID)
		assert.Equal(t, "**hi**", request.Markdown)
		_ = json.NewEncoder(w).Encode(Message{ID: "m1", RoomID: request.RoomID})
	}))

	message, err := client.CreateMessage(context.Background(), CreateMessageRequest{
		RoomID:   "room-1",
		Markdown: "**hi**",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", message.ID)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))

	_, err := client.ListRooms(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"The request requires a valid access token","trackingId":"ROUTER_123"}`))
	}))

	_, err := client.GetMe(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "ROUTER_123", apiErr.TrackingID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesGiveUp(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})).WithMaxRetries(1)

	_, err := client.ListRooms(context.Background(), 0)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeleteWebhook(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/webhooks/wh-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.DeleteWebhook(context.Background(), "wh-1"))
}
