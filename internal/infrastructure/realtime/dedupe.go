package realtime

// Dedupe is a bounded window over recently seen message ids. The same message
// event can reach one connection twice, once via the conversation group and
// once via the user's inbox group; the gateway uses this window to surface it
// exactly once. Not safe for concurrent use; each session owns its own.
type Dedupe struct {
	cap   int
	order []int64
	seen  map[int64]struct{}
}

func NewDedupe(capacity int) *Dedupe {
	return &Dedupe{
		cap:  capacity,
		seen: make(map[int64]struct{}, capacity),
	}
}

// Seen records id and reports whether it was already in the window.
func (d *Dedupe) Seen(id int64) bool {
	if _, ok := d.seen[id]; ok {
		return true
	}
	if len(d.order) == d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.order = append(d.order, id)
	d.seen[id] = struct{}{}
	return false
}
