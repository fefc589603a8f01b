package ingress

import (
	"sync"

	"github.com/titanous/json5"
)

// Blocklist is a static, operator-managed set of blocked source
// identifiers (source_ip or source_user_key), reloadable without a
// restart via config.WatchBlocklistFile.
type Blocklist struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func NewBlocklist() *Blocklist {
	return &Blocklist{set: make(map[string]struct{})}
}

func (b *Blocklist) Contains(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.set[key]
	return ok
}

func (b *Blocklist) Add(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set[key] = struct{}{}
}

// Load replaces the set's contents from a JSON5-encoded array of keys,
// matching config's JSON5 file convention so the same watcher that
// reloads Config can reload this list.
func (b *Blocklist) Load(data []byte) error {
	var keys []string
	if err := json5.Unmarshal(data, &keys); err != nil {
		return err
	}
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	b.mu.Lock()
	b.set = next
	b.mu.Unlock()
	return nil
}
