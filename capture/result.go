package capture

import "sync"

// resultCell is the single-resolution primitive both observation channels
// commit through: the first writer wins and every later commit is a no-op.
// It replaces shared mutable flags with one request-scoped cell, so the
// at-most-once guarantee holds regardless of channel ordering.
type resultCell struct {
	mu  sync.Mutex
	doc *Document
}

// commit stores doc if no document has been stored yet. Returns whether
// this call won.
func (c *resultCell) commit(doc *Document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc != nil {
		return false
	}
	c.doc = doc
	return true
}

// get returns the committed document, or nil.
func (c *resultCell) get() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}
