package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheKeyFields is marshaled to derive the cache key digest. Fields are
// declared in lexical order so the serialized form is stable.
type cacheKeyFields struct {
	AgentName       string `json:"agent_name"`
	DebateRound     int    `json:"debate_round"`
	EnableWebSearch bool   `json:"enable_websearch"`
	Model           string `json:"model"`
	PromptHash      string `json:"prompt_hash"`
	TemplateVersion string `json:"template_version"`
}

// BuildCacheKey derives the cache key for one mediated call. Two calls that
// agree on every field hit the same entry.
func BuildCacheKey(agentName, model, templateVersion, promptHash string, debateRound int, enableWebSearch bool) string {
	raw, _ := json.Marshal(cacheKeyFields{
		AgentName:       agentName,
		DebateRound:     debateRound,
		EnableWebSearch: enableWebSearch,
		Model:           model,
		PromptHash:      promptHash,
		TemplateVersion: templateVersion,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// HashPrompt digests prompt parts joined by blank lines, so cache keys
// track prompt content without storing it.
func HashPrompt(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n\n")))
	return hex.EncodeToString(sum[:])
}

// Cache remembers mediated tool results so a repeated call can settle
// without spending provider budget. Entries are keyed per session and
// expire after the configured TTL; capacity eviction is least recently
// used. Payloads are stored serialized, so callers never alias cache state.
type Cache struct {
	entries *expirable.LRU[string, []byte]
}

// NewCache builds a cache holding at most maxEntries payloads for ttl each.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{entries: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

// Get returns a copy of the cached payload and refreshes its recency.
// Expired entries are treated as misses.
func (c *Cache) Get(sessionID, key string) (map[string]any, bool) {
	scoped := scopedKey(sessionID, key)
	raw, ok := c.entries.Get(scoped)
	if !ok {
		return nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.entries.Remove(scoped)
		return nil, false
	}
	return payload, true
}

// Set stores a serialized copy of the payload. A payload that cannot be
// serialized is not cached.
func (c *Cache) Set(sessionID, key string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.entries.Add(scopedKey(sessionID, key), raw)
}

// EndSession drops every entry the session accumulated.
func (c *Cache) EndSession(sessionID string) {
	prefix := scopedKey(sessionID, "")
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// Len reports the number of live entries across all sessions.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func scopedKey(sessionID, key string) string {
	return sessionID + "/" + key
}
