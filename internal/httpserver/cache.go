package httpserver

import (
	"fmt"
	"time"
)

// dateLayout is RFC 7231 §7.1.1.1's fixed-format ("IMF-fixdate") layout,
// the only form this server ever emits.
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// dateCache memoizes the rendered Date header at second granularity,
// refreshing only when more than two seconds stale. It is touched only
// from the single goroutine driving the scheduler at any instant (the
// same invariant that lets [engine.Scheduler] itself go unsynchronized),
// so it carries no lock.
type dateCache struct {
	at  time.Time
	str string
}

func (d *dateCache) get(now time.Time) string {
	if d.str == "" || now.Sub(d.at) > 2*time.Second {
		d.at = now
		d.str = now.UTC().Format(dateLayout)
	}
	return d.str
}

// lastModifiedCache memoizes rendered Last-Modified strings, bucketed by
// mtime so that repeated requests for files sharing a modification time
// (the common case for a static tree deployed as a single unit) skip the
// format call entirely. A collision between two different mtimes simply
// evicts the older one.
const lastModifiedCacheSize = 8

type lastModifiedCache struct {
	entries [lastModifiedCacheSize]struct {
		mtime int64
		text  string
	}
}

func (c *lastModifiedCache) get(mtime int64) string {
	slot := &c.entries[bucketFor(mtime)]
	if slot.text != "" && slot.mtime == mtime {
		return slot.text
	}
	slot.mtime = mtime
	slot.text = time.Unix(mtime, 0).UTC().Format(dateLayout)
	return slot.text
}

func bucketFor(mtime int64) int64 {
	b := mtime % lastModifiedCacheSize
	if b < 0 {
		b += lastModifiedCacheSize
	}
	return b
}

// etagFor renders the ETag value as an unquoted, 'X'-separated hex
// triple of inode, mtime, and size; ServeFile adds the surrounding
// quotes.
func etagFor(inode uint64, mtime, size int64) string {
	return fmt.Sprintf("%xX%xX%x", inode, mtime, size)
}
