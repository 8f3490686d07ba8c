package scanner

import "time"

// cooldownTable tracks per-market backoff deadlines. It is owned by the
// scan loop's goroutine and must not be shared.
type cooldownTable struct {
	until map[string]time.Time
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{until: make(map[string]time.Time)}
}

// active reports whether the key is still cooling down at now.
func (t *cooldownTable) active(key string, now time.Time) bool {
	deadline, ok := t.until[key]
	return ok && now.Before(deadline)
}

// set records a cooldown deadline for the key.
func (t *cooldownTable) set(key string, until time.Time) {
	t.until[key] = until
}

// sweep drops expired entries so the table does not grow with every market
// ever scanned. Returns the number of entries removed.
func (t *cooldownTable) sweep(now time.Time) int {
	removed := 0
	for key, deadline := range t.until {
		if !now.Before(deadline) {
			delete(t.until, key)
			removed++
		}
	}
	return removed
}

func (t *cooldownTable) len() int {
	return len(t.until)
}
