package bus

import (
	"sort"
	"strings"

	"github.com/tradetaper/agentcore/core"
)

// entry is a recorded message with its publish sequence number.
type entry struct {
	seq uint64
	msg core.Message
}

// ring is a bounded FIFO of entries; pushing onto a full ring evicts the
// oldest one. The buffer grows on demand up to capacity.
type ring struct {
	buf   []entry
	size  int
	start int
}

func newRing(capacity int) *ring {
	return &ring{size: capacity}
}

func (r *ring) push(e entry) {
	if len(r.buf) < r.size {
		r.buf = append(r.buf, e)
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return len(r.buf) }

// last returns the newest k entries, oldest first.
func (r *ring) last(k int) []entry {
	n := len(r.buf)
	k = min(k, n)
	out := make([]entry, 0, k)
	for i := n - k; i < n; i++ {
		out = append(out, r.buf[(r.start+i)%n])
	}
	return out
}

func (r *ring) all() []entry { return r.last(len(r.buf)) }

// drop removes the entries matching fn and reports how many remain.
func (r *ring) drop(fn func(entry) bool) int {
	kept := make([]entry, 0, len(r.buf))
	for _, e := range r.all() {
		if !fn(e) {
			kept = append(kept, e)
		}
	}
	r.buf, r.start = kept, 0
	return len(kept)
}

// responseHistory is the single history shared by all "response:<id>"
// channels, which are created once per request.
const responseHistory = "response:*"

func historyKey(channel string) string {
	if strings.HasPrefix(channel, responsePrefix) {
		return responseHistory
	}
	return channel
}

// sortEntries orders by timestamp, then by publish order.
func sortEntries(es []entry) {
	sort.Slice(es, func(i, j int) bool {
		ti, tj := es[i].msg.Timestamp, es[j].msg.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return es[i].seq < es[j].seq
	})
}

func messages(es []entry) []core.Message {
	out := make([]core.Message, 0, len(es))
	for _, e := range es {
		out = append(out, e.msg)
	}
	return out
}
