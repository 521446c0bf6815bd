package config

import (
	"strings"
	"time"
)

// Cache configures the response cache middleware. When Enabled is false or
// no Redis client is available, caching is disabled. KeyStrategy decides
// which parts of the request contribute to the cache key.
type Cache struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Methods      []string      `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	KeyStrategy  string        `envconfig:"CACHE_KEY_STRATEGY" default:"route_query"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`

	methods map[string]bool
}

// Caches reports whether responses to the HTTP method are cacheable.
func (c Cache) Caches(method string) bool {
	if c.methods != nil {
		return c.methods[strings.ToUpper(method)]
	}
	for _, m := range c.Methods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}

func (c *Cache) normalize() {
	c.methods = make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			c.methods[m] = true
		}
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
}
