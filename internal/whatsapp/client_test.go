package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"convogate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *Client {
	return NewClient(&config.Config{
		GraphBaseURL:              serverURL,
		PhoneNumberID:             "pn-1",
		WhatsAppBusinessAccountID: "waba-1",
		WhatsAppToken:             "token-x",
	})
}

func TestSendRawReturnsMessageID(t *testing.T) {
	var captured GenericMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pn-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-x", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"messages":[{"id":"wamid.abc"}]}`))
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).SendText(context.Background(), "521", "hola")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", id)
	assert.Equal(t, "whatsapp", captured.MessagingProduct)
	assert.Equal(t, "521", captured.To)
	require.NotNil(t, captured.Text)
	assert.Equal(t, "hola", captured.Text.Body)
}

func TestSendRawSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText(context.Background(), "bad", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestSendRawRejectsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText(context.Background(), "521", "hola")
	assert.Error(t, err)
}

func TestResolveMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media-7", r.URL.Path)
		w.Write([]byte(`{"url":"https://lookaside.example.com/m7","mime_type":"audio/ogg","file_size":1024,"id":"media-7"}`))
	}))
	defer srv.Close()

	info, err := testClient(srv.URL).ResolveMedia(context.Background(), "media-7")
	require.NoError(t, err)
	assert.Equal(t, "https://lookaside.example.com/m7", info.URL)
	assert.Equal(t, "audio/ogg", info.MimeType)
}

func TestStreamMediaForwardsRangeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-1023", r.Header.Get("Range"))
		assert.Equal(t, "Bearer token-x", r.Header.Get("Authorization"))
		w.Header().Set("Content-Range", "bytes 0-1023/4096")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).StreamMedia(context.Background(), srv.URL+"/m7", "bytes=0-1023")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 0-1023/4096", resp.Header.Get("Content-Range"))
}

func TestStreamMediaClosedOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).StreamMedia(context.Background(), srv.URL+"/gone", "")
	assert.Error(t, err)
}

func TestListTemplates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/waba-1/message_templates", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"id":"1","name":"welcome","language":"en","status":"APPROVED",
			 "components":[{"type":"BODY","text":"Hi {{1}}"}]}
		]}`))
	}))
	defer srv.Close()

	defs, err := testClient(srv.URL).ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "welcome", defs[0].Name)
	require.Len(t, defs[0].Components, 1)
	assert.Equal(t, "BODY", defs[0].Components[0].Type)
}
