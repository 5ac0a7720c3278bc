package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

// RemoteConfig configures a remote document-intelligence service.
type RemoteConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Remote is a fallback provider backed by a hosted document-analysis API.
// The wire contract: POST {content: base64, mime_type, filename} ->
// {text, pages, confidence}.
type Remote struct {
	cfg    RemoteConfig
	client *http.Client
	logger *slog.Logger
}

func NewRemote(cfg RemoteConfig, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Remote{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Supports(format string) bool {
	switch format {
	case constants.PDF, constants.IMAGE, constants.TXT, constants.DOCX:
		return true
	}
	return false
}

func (r *Remote) Convert(ctx context.Context, doc entity.Document) (Output, error) {
	if r.cfg.Endpoint == "" {
		return Output{}, fmt.Errorf("remote: endpoint not configured: %w", common.ErrProviderUnavailable)
	}
	if !r.Supports(constants.MapExtToFormat(doc.Ext())) {
		return Output{}, fmt.Errorf("remote: %q: %w", doc.Ext(), common.ErrUnsupportedFormat)
	}

	start := time.Now()
	payload := map[string]any{
		"content":   base64.StdEncoding.EncodeToString(doc.Bytes),
		"mime_type": doc.MIMEType,
		"filename":  doc.Name,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Output{}, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(r.cfg.Endpoint, "/")+"/v1/analyze", bytes.NewReader(b))
	if err != nil {
		return Output{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("remote: %v: %w", err, common.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		switch {
		case resp.StatusCode == http.StatusUnsupportedMediaType:
			return Output{}, fmt.Errorf("remote: status %d: %w", resp.StatusCode, common.ErrUnsupportedFormat)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return Output{}, fmt.Errorf("remote: status %d: %s: %w", resp.StatusCode, truncate(string(body), 512), common.ErrProviderRejected)
		default:
			return Output{}, fmt.Errorf("remote: status %d: %w", resp.StatusCode, common.ErrProviderUnavailable)
		}
	}

	var decoded struct {
		Text       string   `json:"text"`
		Pages      int      `json:"pages"`
		Confidence *float32 `json:"confidence"`
		Warnings   []string `json:"warnings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Output{}, fmt.Errorf("remote: decode response: %w", common.ErrProviderUnavailable)
	}

	native := float32(-1)
	if decoded.Confidence != nil {
		native = *decoded.Confidence
	}
	pages := decoded.Pages
	if pages <= 0 {
		pages = 1
	}
	out := Output{
		Text:             normalize(decoded.Text),
		Pages:            pages,
		NativeConfidence: native,
		Warnings:         decoded.Warnings,
		Duration:         time.Since(start),
	}
	r.logger.Debug("remote conversion done",
		"name", doc.Name, "pages", out.Pages, "chars", len(out.Text),
		"duration_ms", out.Duration.Milliseconds())
	return out, nil
}
