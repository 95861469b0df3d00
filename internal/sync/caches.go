package sync

import "sync"

// stageCache maps remote status names to local stage IDs for one run.
// Workers of the same page share it; the lock is narrow since population
// is rare relative to network latency.
type stageCache struct {
	mu     sync.Mutex
	byName map[string]int64
}

func newStageCache() *stageCache {
	return &stageCache{byName: make(map[string]int64)}
}

func (c *stageCache) get(name string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byName[name]
	return id, ok
}

func (c *stageCache) put(name string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[name] = id
}

// userCache maps assignee emails to local user IDs for one run. A nil
// value is a negative entry: the email was looked up and no local user
// matched, so later issues skip the query entirely.
type userCache struct {
	mu      sync.Mutex
	byEmail map[string]*int64
}

func newUserCache() *userCache {
	return &userCache{byEmail: make(map[string]*int64)}
}

func (c *userCache) get(email string) (*int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byEmail[email]
	return id, ok
}

func (c *userCache) put(email string, id *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byEmail[email] = id
}
