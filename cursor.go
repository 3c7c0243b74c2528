// FindCursor: a forward-only iterator over a Find call's already
// materialized result set. The query engine has no cursor-level streaming
// from disk — every plan's candidate offsets are read and filtered
// up front — so a cursor here is just a thin position tracker, the
// shape the teacher's own All()-returns-a-slice iteration favors over a
// stateful server-side cursor protocol.
package ironbase

// FindCursor iterates a Find result set one document at a time.
type FindCursor struct {
	docs []Document
	pos  int
}

// Next advances the cursor and reports whether a document is available.
func (c *FindCursor) Next() bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

// Document returns the document at the cursor's current position. Valid
// only after a Next call that returned true.
func (c *FindCursor) Document() Document {
	return c.docs[c.pos-1]
}

// All drains the remaining cursor into a slice.
func (c *FindCursor) All() []Document {
	rest := c.docs[c.pos:]
	c.pos = len(c.docs)
	return rest
}

// Close releases the cursor's materialized result set. A cursor holds no
// external resource (file handle, lock) beyond the slice itself, so Close
// exists for API symmetry with callers that defer it unconditionally.
func (c *FindCursor) Close() error {
	c.docs = nil
	return nil
}
