package purge

import (
	"fmt"

	"noteshare-go/internal/config"
	"noteshare-go/internal/ns"
)

// NewPurgerFromConfig creates the cache purger named by cfg.Type.
func NewPurgerFromConfig(cfg config.CachePurgeConfig, logger ns.Logger) (ns.CachePurger, error) {
	switch cfg.Type {
	case "", "none":
		return ns.NopPurger{}, nil
	case "cloudflare":
		if cfg.ZoneID == "" || cfg.APIToken == "" {
			return nil, fmt.Errorf("cloudflare cache purge requires zone_id and api_token")
		}
		p, err := NewCloudflarePurger(cfg.Endpoint, cfg.ZoneID, cfg.APIToken, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown cache purge type: %s", cfg.Type)
	}
}
