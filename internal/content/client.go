// Package content reads prize metadata from the external CMS.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 10 * time.Minute
	maxBody         = 1 << 20
)

// Media is one image or video attached to a prize.
type Media struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	AltText string `json:"alt_text,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// PrizeMetadata is the display data the CMS holds for a prize product.
type PrizeMetadata struct {
	Ref         string  `json:"ref"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Media       []Media `json:"media,omitempty"`
}

// Cache stores raw metadata documents.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Config configures Client.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client is a read-through CMS client. Concurrent misses for the same ref share one fetch.
type Client struct {
	baseURL    string
	apiKey     string
	cacheTTL   time.Duration
	httpClient *http.Client
	cache      Cache
	group      singleflight.Group
}

// NewClient returns a Client. cache may be nil. An empty BaseURL disables lookups.
func NewClient(cfg Config, cache Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     cfg.APIKey,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}
}

// PrizeMetadata returns metadata for ref. Any CMS failure yields ok=false so callers can
// render the prize without it.
func (c *Client) PrizeMetadata(ctx context.Context, ref string) (*PrizeMetadata, bool) {
	ref = strings.TrimSpace(ref)
	if c == nil || c.baseURL == "" || ref == "" {
		return nil, false
	}
	key := "cms:prize:" + ref
	if c.cache != nil {
		if raw, ok := c.cache.Get(ctx, key); ok {
			var meta PrizeMetadata
			if errDecode := json.Unmarshal(raw, &meta); errDecode == nil {
				return &meta, true
			}
		}
	}

	v, errFetch, _ := c.group.Do(key, func() (any, error) {
		raw, errGet := c.fetch(ctx, ref)
		if errGet != nil {
			return nil, errGet
		}
		var meta PrizeMetadata
		if errDecode := json.Unmarshal(raw, &meta); errDecode != nil {
			return nil, fmt.Errorf("content: decode %s: %w", ref, errDecode)
		}
		if meta.Ref == "" {
			meta.Ref = ref
		}
		if c.cache != nil {
			if encoded, errEncode := json.Marshal(meta); errEncode == nil {
				c.cache.Set(ctx, key, encoded, c.cacheTTL)
			}
		}
		return &meta, nil
	})
	if errFetch != nil {
		log.WithError(errFetch).WithField("prize_ref", ref).Warn("content: prize metadata unavailable")
		return nil, false
	}
	return v.(*PrizeMetadata), true
}

func (c *Client) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(ref), nil)
	if errReq != nil {
		return nil, errReq
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("content: fetch %s: %w", ref, errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	body, errRead := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if errRead != nil {
		return nil, fmt.Errorf("content: read %s: %w", ref, errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content: fetch %s: status %d", ref, resp.StatusCode)
	}
	return body, nil
}
