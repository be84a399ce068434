package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/makeasinger/showrunner/internal/config"
)

const (
	defaultImageTimeout = 90 * time.Second
	maxCoverBytes       = 10 << 20
)

// ImageGenerator returns the URL of a generated image, or "" when none could be produced
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) string
}

// ImageClient generates cover art through the OpenAI images API
type ImageClient struct {
	client   openai.Client
	apiKey   string
	model    string
	size     string
	variants int
	timeout  time.Duration
	storage  AssetStore
	http     *http.Client
}

// NewImageClient creates an image client. With storage, provider URLs (which
// expire) are mirrored and base64 results uploaded; without it base64 results
// are dropped.
func NewImageClient(cfg *config.ImageConfig, storage AssetStore) *ImageClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: defaultImageTimeout}),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	variants := cfg.Variants
	if variants <= 0 {
		variants = 1
	}
	return &ImageClient{
		client:   openai.NewClient(opts...),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		size:     cfg.Size,
		variants: variants,
		timeout:  defaultImageTimeout,
		storage:  storage,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *ImageClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Generate returns the first usable variant URL. It never fails; errors are logged and yield "".
func (c *ImageClient) Generate(ctx context.Context, prompt string) string {
	urls := c.GenerateVariants(ctx, prompt)
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// GenerateVariants requests the configured number of variants and returns the usable URLs.
func (c *ImageClient) GenerateVariants(ctx context.Context, prompt string) []string {
	if !c.IsConfigured() || strings.TrimSpace(prompt) == "" {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.model),
		N:      openai.Int(int64(c.variants)),
	}
	if c.size != "" {
		params.Size = openai.ImageGenerateParamsSize(c.size)
	}

	resp, err := c.client.Images.Generate(callCtx, params)
	if err != nil {
		slog.Warn("image generation failed", "model", c.model, "error", mapOpenAIError("image", err))
		return nil
	}
	if resp == nil {
		return nil
	}

	urls := make([]string, 0, len(resp.Data))
	for _, img := range resp.Data {
		switch {
		case img.URL != "":
			urls = append(urls, c.mirror(ctx, img.URL))
		case img.B64JSON != "":
			if u, err := c.storeBase64(ctx, img.B64JSON); err != nil {
				slog.Warn("image upload failed", "error", err)
			} else if u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func (c *ImageClient) storeBase64(ctx context.Context, encoded string) (string, error) {
	if c.storage == nil {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return c.storage.PutAsset(ctx, coverKey(time.Now(), ".png"), data, "image/png")
}

// mirror copies a provider-hosted image into storage. On any failure the
// provider URL is returned unchanged.
func (c *ImageClient) mirror(ctx context.Context, src string) string {
	if c.storage == nil {
		return src
	}
	data, contentType, err := c.download(ctx, src)
	if err != nil {
		slog.Warn("cover mirror download failed", "error", err)
		return src
	}
	ext := ".png"
	if contentType == "image/jpeg" {
		ext = ".jpg"
	}
	u, err := c.storage.PutAsset(ctx, coverKey(time.Now(), ext), data, contentType)
	if err != nil {
		slog.Warn("cover mirror upload failed", "error", err)
		return src
	}
	return u
}

func (c *ImageClient) download(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxCoverBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxCoverBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}
