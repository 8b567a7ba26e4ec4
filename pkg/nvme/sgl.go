package nvme

import "github.com/nexusd/nexusd/pkg/bdev"

// sgCursor walks a scatter-gather list (an ordered set of iovecs) the way the
// NVMe driver's reset_sgl/next_sge callbacks do: ResetSGL rewinds to the
// element containing a given cumulative byte offset, NextSGE returns the
// current element's remaining bytes and advances. Both are idempotent with
// respect to a single I/O context — calling ResetSGL twice with the same
// offset produces the same walk.
type sgCursor struct {
	iov    []bdev.IoVec
	index  int
	offset int // byte offset within iov[index] already consumed
}

// ResetSGL rewinds the cursor to the iovec element whose cumulative length
// exceeds offset, positioning the within-element offset at the remainder.
func (c *sgCursor) ResetSGL(offset int) {
	remaining := offset
	for i, v := range c.iov {
		if remaining < len(v.Buf) {
			c.index = i
			c.offset = remaining
			return
		}
		remaining -= len(v.Buf)
	}
	// Offset at or past the end: park the cursor at a terminal position.
	c.index = len(c.iov)
	c.offset = 0
}

// NextSGE returns the current element's remaining (base, length) and
// advances the cursor to the next element. ok is false once the cursor is
// exhausted.
func (c *sgCursor) NextSGE() (buf []byte, ok bool) {
	if c.index >= len(c.iov) {
		return nil, false
	}
	v := c.iov[c.index]
	buf = v.Buf[c.offset:]
	c.index++
	c.offset = 0
	return buf, true
}

// totalLen returns the total byte length spanned by the scatter-gather list.
func (c *sgCursor) totalLen() int {
	n := 0
	for _, v := range c.iov {
		n += len(v.Buf)
	}
	return n
}
