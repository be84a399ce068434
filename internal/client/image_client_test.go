package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/makeasinger/showrunner/internal/config"
)

type memoryStorage struct {
	keys  []string
	data  [][]byte
	types []string
}

func (m *memoryStorage) PutAsset(_ context.Context, key string, data []byte, contentType string) (string, error) {
	m.keys = append(m.keys, key)
	m.data = append(m.data, data)
	m.types = append(m.types, contentType)
	return m.url(key), nil
}

func (m *memoryStorage) url(key string) string {
	return "https://cdn.example.com/" + key
}

func newTestImageClient(t *testing.T, handler http.HandlerFunc, storage AssetStore) *ImageClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewImageClient(&config.ImageConfig{
		APIKey:  "img-key",
		BaseURL: server.URL,
		Model:   "dall-e-3",
		Size:    "1024x1024",
	}, storage)
}

func TestImageGenerateReturnsURL(t *testing.T) {
	c := newTestImageClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://img.example.com/cover.png"}]}`))
	}, nil)

	if got := c.Generate(context.Background(), "a stage"); got != "https://img.example.com/cover.png" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestImageGenerateUploadsBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	storage := &memoryStorage{}
	c := newTestImageClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + encoded + `"}]}`))
	}, storage)

	got := c.Generate(context.Background(), "a stage")
	if len(storage.keys) != 1 {
		t.Fatalf("expected one upload, got %d", len(storage.keys))
	}
	if got != storage.url(storage.keys[0]) {
		t.Errorf("unexpected url %q", got)
	}
	if string(storage.data[0]) != "png-bytes" {
		t.Errorf("unexpected uploaded bytes %q", storage.data[0])
	}
	if !strings.HasPrefix(storage.keys[0], "covers/") || !strings.HasSuffix(storage.keys[0], ".png") {
		t.Errorf("unexpected key %q", storage.keys[0])
	}
}

func TestImageGenerateMirrorsProviderURL(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 'J', 'F', 'I', 'F'}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	t.Cleanup(origin.Close)

	storage := &memoryStorage{}
	c := newTestImageClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"` + origin.URL + `/cover.jpg"}]}`))
	}, storage)

	got := c.Generate(context.Background(), "a stage")
	if len(storage.keys) != 1 {
		t.Fatalf("expected one upload, got %d", len(storage.keys))
	}
	if got != storage.url(storage.keys[0]) {
		t.Errorf("expected mirrored url, got %q", got)
	}
	if storage.types[0] != "image/jpeg" || !strings.HasSuffix(storage.keys[0], ".jpg") {
		t.Errorf("unexpected type %q key %q", storage.types[0], storage.keys[0])
	}
	if string(storage.data[0]) != string(jpeg) {
		t.Error("mirrored bytes differ from origin")
	}
}

func TestImageGenerateKeepsProviderURLWhenMirrorFails(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(origin.Close)

	storage := &memoryStorage{}
	src := origin.URL + "/expired.png"
	c := newTestImageClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"` + src + `"}]}`))
	}, storage)

	if got := c.Generate(context.Background(), "a stage"); got != src {
		t.Errorf("expected provider url, got %q", got)
	}
	if len(storage.keys) != 0 {
		t.Errorf("expected no upload, got %d", len(storage.keys))
	}
}

func TestCoverKeyPartitionsByMonth(t *testing.T) {
	key := coverKey(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), ".png")
	if !strings.HasPrefix(key, "covers/2026/03/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected key %q", key)
	}
}

func TestImageGenerateSwallowsErrors(t *testing.T) {
	c := newTestImageClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy"}}`))
	}, nil)

	if got := c.Generate(context.Background(), "a stage"); got != "" {
		t.Errorf("expected empty url on failure, got %q", got)
	}
}

func TestImageGenerateUnconfigured(t *testing.T) {
	c := NewImageClient(&config.ImageConfig{}, nil)
	if got := c.Generate(context.Background(), "a stage"); got != "" {
		t.Errorf("expected empty url, got %q", got)
	}
}
