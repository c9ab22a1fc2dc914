package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"convogate/internal/whatsapp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrMediaUnavailable means the provider could not resolve a media id.
var ErrMediaUnavailable = errors.New("media unavailable")

// Source is the provider side of a transfer: metadata resolution plus the
// raw byte stream behind the resolved URL.
type Source interface {
	ResolveMedia(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error)
	StreamMedia(ctx context.Context, mediaURL, rangeHeader string) (*http.Response, error)
}

// ObjectStore is the durable side: write-once storage with a public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, mimeType string, body io.Reader) (string, error)
}

// Transfer re-hosts provider media into durable storage.
type Transfer struct {
	Source Source
	Store  ObjectStore
}

func NewTransfer(source Source, store ObjectStore) *Transfer {
	return &Transfer{Source: source, Store: store}
}

// Result describes where a re-hosted object now lives.
type Result struct {
	PublicURL string
	MimeType  string
}

// Fetch resolves a media id, streams the bytes down from the provider and
// back up into durable storage under a key namespaced by the owning
// contact, and returns the permanent public URL. Callers that cannot
// tolerate failure fall back to a proxy reference instead.
func (t *Transfer) Fetch(ctx context.Context, mediaID, ownerWaID string) (*Result, error) {
	info, err := t.Source.ResolveMedia(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMediaUnavailable, mediaID)
	}

	resp, err := t.Source.StreamMedia(ctx, info.URL, "")
	if err != nil {
		return nil, fmt.Errorf("downloading media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	key := objectKey(ownerWaID, mediaID)
	publicURL, err := t.Store.Upload(ctx, key, info.MimeType, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("re-hosting media %s: %w", mediaID, err)
	}

	logrus.WithFields(logrus.Fields{
		"media_id": mediaID,
		"owner":    ownerWaID,
		"mime":     info.MimeType,
	}).Info("media re-hosted")

	return &Result{PublicURL: publicURL, MimeType: info.MimeType}, nil
}

func objectKey(ownerWaID, mediaID string) string {
	if mediaID == "" {
		mediaID = uuid.NewString()
	}
	return fmt.Sprintf("media/%s/%s", ownerWaID, mediaID)
}

// ProxyURL builds the streaming proxy reference for a media id. It is the
// primary playback path for inline image and video, and the fallback when
// re-hosting fails.
func ProxyURL(publicBaseURL, mediaID string) string {
	return fmt.Sprintf("%s/api/media/%s/proxy", publicBaseURL, mediaID)
}
