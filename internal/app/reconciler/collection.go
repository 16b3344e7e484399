package reconciler

import (
	"sync"

	"rentsync/internal/domain/requests"
)

// Collection is the locally ordered list of requests involving the current
// user. Every mutation re-sorts it with requests.SortForDisplay.
type Collection struct {
	mu    sync.RWMutex
	items []requests.Request
}

func NewCollection() *Collection {
	return &Collection{}
}

// Items returns a sorted copy.
func (c *Collection) Items() []requests.Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]requests.Request(nil), c.items...)
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection) Get(id requests.RequestID) (requests.Request, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	return requests.Request{}, false
}

// Insert prepends r unless its id is already present.
func (c *Collection) Insert(r requests.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(r.ID) >= 0 {
		return false
	}
	c.items = append([]requests.Request{r}, c.items...)
	requests.SortForDisplay(c.items)
	return true
}

// Replace swaps the stored request with the same id. Unknown ids are ignored;
// a later Reset reconciles them.
func (c *Collection) Replace(r requests.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(r.ID)
	if i < 0 {
		return false
	}
	c.items[i] = r
	requests.SortForDisplay(c.items)
	return true
}

// Reset installs a full snapshot, dropping duplicate ids.
func (c *Collection) Reset(items []requests.Request) {
	seen := make(map[requests.RequestID]struct{}, len(items))
	next := make([]requests.Request, 0, len(items))
	for _, r := range items {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		next = append(next, r)
	}
	requests.SortForDisplay(next)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = next
}

func (c *Collection) indexOf(id requests.RequestID) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
