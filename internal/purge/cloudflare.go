// Package purge invalidates edge-cached copies of deleted files.
package purge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"

	"noteshare-go/internal/ns"
)

// maxURLsPerRequest is the number of files Cloudflare accepts per purge call.
const maxURLsPerRequest = 30

// CloudflarePurger purges URLs from a Cloudflare zone cache.
type CloudflarePurger struct {
	api    *cloudflare.API
	zoneID string
	logger ns.Logger
}

// NewCloudflarePurger creates a purger for zoneID. An empty endpoint keeps the
// SDK's default API base URL. opts are applied after the defaults.
func NewCloudflarePurger(endpoint, zoneID, token string, logger ns.Logger, opts ...cloudflare.Option) (*CloudflarePurger, error) {
	options := []cloudflare.Option{
		cloudflare.HTTPClient(&http.Client{Timeout: 10 * time.Second}),
		cloudflare.UsingRetryPolicy(2, 1, 5),
	}
	if endpoint != "" {
		options = append(options, cloudflare.BaseURL(strings.TrimRight(endpoint, "/")))
	}
	options = append(options, opts...)

	api, err := cloudflare.NewWithAPIToken(token, options...)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare client: %w", err)
	}
	return &CloudflarePurger{api: api, zoneID: zoneID, logger: logger}, nil
}

// Purge sends urls in batches. Every batch is attempted; the returned error
// joins the failures.
func (p *CloudflarePurger) Purge(ctx context.Context, urls []string) error {
	var errs []error
	for start := 0; start < len(urls); start += maxURLsPerRequest {
		end := min(start+maxURLsPerRequest, len(urls))
		if err := p.purgeBatch(ctx, urls[start:end]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *CloudflarePurger) purgeBatch(ctx context.Context, urls []string) error {
	_, err := p.api.PurgeCache(ctx, p.zoneID, cloudflare.PurgeCacheRequest{Files: urls})
	if err != nil {
		return fmt.Errorf("purging %d urls from zone %s: %w", len(urls), p.zoneID, err)
	}
	p.logger.Debug("cache purged", "zone", p.zoneID, "urls", len(urls))
	return nil
}

var _ ns.CachePurger = (*CloudflarePurger)(nil)
