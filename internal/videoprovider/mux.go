package videoprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production Mux API.
const DefaultBaseURL = "https://api.mux.com"

// MuxConfig holds the access token pair and upload settings.
type MuxConfig struct {
	TokenID     string
	TokenSecret string
	BaseURL     string
	CORSOrigin  string
}

// MuxClient implements Provider against the Mux Video REST API.
type MuxClient struct {
	cfg  MuxConfig
	http *http.Client
}

var _ Provider = (*MuxClient)(nil)

// NewMuxClient returns a client. An empty BaseURL means DefaultBaseURL and an
// empty CORSOrigin means "*".
func NewMuxClient(cfg MuxConfig) (*MuxClient, error) {
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		return nil, fmt.Errorf("videoprovider: mux token id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	return &MuxClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type muxUpload struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (u *muxUpload) toUpload() *Upload {
	out := &Upload{ID: u.ID, URL: u.URL, Status: u.Status, AssetID: u.AssetID}
	if u.Error != nil {
		out.Error = u.Error.Message
		if out.Error == "" {
			out.Error = u.Error.Type
		}
	}
	return out
}

// CreateUpload opens a direct upload whose asset gets a public playback id.
func (c *MuxClient) CreateUpload(ctx context.Context) (*Upload, error) {
	body := map[string]any{
		"cors_origin": c.cfg.CORSOrigin,
		"new_asset_settings": map[string]any{
			"playback_policy":     []string{"public"},
			"encoding_tier":       "baseline",
			"max_resolution_tier": "1080p",
		},
	}
	var u muxUpload
	if err := c.do(ctx, http.MethodPost, "/video/v1/uploads", body, &u); err != nil {
		return nil, fmt.Errorf("videoprovider: creating upload: %w", err)
	}
	return u.toUpload(), nil
}

// GetUpload reads the current state of an upload.
func (c *MuxClient) GetUpload(ctx context.Context, uploadID string) (*Upload, error) {
	var u muxUpload
	if err := c.do(ctx, http.MethodGet, "/video/v1/uploads/"+url.PathEscape(uploadID), nil, &u); err != nil {
		return nil, fmt.Errorf("videoprovider: getting upload %s: %w", uploadID, err)
	}
	return u.toUpload(), nil
}

// GetAsset reads an asset and its playback ids.
func (c *MuxClient) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+url.PathEscape(assetID), nil, &a); err != nil {
		return nil, fmt.Errorf("videoprovider: getting asset %s: %w", assetID, err)
	}
	return &a, nil
}

// do sends one authenticated request and decodes the "data" envelope into out.
func (c *MuxClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.cfg.TokenID, c.cfg.TokenSecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Messages []string `json:"messages"`
				Type     string   `json:"type"`
			} `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		msg := e.Error.Type
		if len(e.Error.Messages) > 0 {
			msg = strings.Join(e.Error.Messages, "; ")
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
