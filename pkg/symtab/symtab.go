// Package symtab provides a bounded string dictionary that hands out small,
// reusable integer ids for repeated symbols such as class and method names.
package symtab

import "container/list"

type entry struct {
	key string
	id  int
}

// Dictionary is an LRU interning table holding at most Cap() strings. When
// the table is full the least recently used entry is evicted and its id is
// handed to the newcomer, so ids stay dense in [0, Cap()). It is not safe for
// concurrent access.
type Dictionary struct {
	data map[string]*list.Element
	cap  int
	ll   *list.List
}

// New creates a dictionary holding at most capacity strings. A capacity below
// one is treated as one.
func New(capacity int) *Dictionary {
	if capacity < 1 {
		capacity = 1
	}
	return &Dictionary{
		data: make(map[string]*list.Element, capacity),
		cap:  capacity,
		ll:   list.New(),
	}
}

// Intern returns the id of s. A non-negative result means s was already
// resident and its id is known to the peer. A negative result is the bitwise
// complement of an id that has just been assigned (or reassigned after an
// eviction) to s; the caller must emit a definition before referencing it.
func (d *Dictionary) Intern(s string) int {
	if e, ok := d.data[s]; ok {
		d.ll.MoveToFront(e)
		return e.Value.(*entry).id
	}

	if d.ll.Len() < d.cap {
		id := d.ll.Len()
		d.data[s] = d.ll.PushFront(&entry{key: s, id: id})
		return ^id
	}

	// reuse the tail item
	e := d.ll.Back()
	item := e.Value.(*entry)
	delete(d.data, item.key)
	item.key = s
	d.data[s] = e
	d.ll.MoveToFront(e)
	return ^item.id
}

// Lookup reports the id of s without changing its recency.
func (d *Dictionary) Lookup(s string) (int, bool) {
	e, ok := d.data[s]
	if !ok {
		return 0, false
	}
	return e.Value.(*entry).id, true
}

// Len returns the number of resident strings.
func (d *Dictionary) Len() int {
	return d.ll.Len()
}

// Cap returns the maximum number of resident strings.
func (d *Dictionary) Cap() int {
	return d.cap
}
