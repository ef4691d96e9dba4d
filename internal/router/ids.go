package router

import "time"

// idGenerator hands out millisecond timestamps as ids. When the clock has not
// advanced since the previous id it steps the last id by one, so ids stay
// strictly increasing under a coarse or stalled clock. Not safe for
// concurrent use; the router calls it under its mutex.
type idGenerator struct {
	now  func() time.Time
	last int64
}

func (g *idGenerator) next() SubscriptionID {
	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return SubscriptionID(id)
}
