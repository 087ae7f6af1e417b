// This file implements FIFO eviction.

package eviction

import "container/list"

/*
fifo evicts keys in admission order.

Keys sit in a list from oldest (front) to newest (back). The index gives the
list element of every tracked key, so an explicit Remove does not have to
walk the queue.
*/
type fifo struct {
	order *list.List
	index map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// OnGet is a no-op: FIFO order depends only on admission, never on access.
func (f *fifo) OnGet(string) {}

// OnPut appends a new key to the tail. A key that is already queued keeps its
// position, so updating a cached value does not requeue it.
func (f *fifo) OnPut(k string) {
	if _, ok := f.index[k]; ok {
		return
	}
	f.index[k] = f.order.PushBack(k)
}

// Evict removes and returns the oldest key.
func (f *fifo) Evict() (string, bool) {
	front := f.order.Front()
	if front == nil {
		return "", false
	}
	k := f.order.Remove(front).(string)
	delete(f.index, k)
	return k, true
}

// Remove forgets k. The relative order of the other keys is unchanged.
func (f *fifo) Remove(k string) {
	e, ok := f.index[k]
	if !ok {
		return
	}
	f.order.Remove(e)
	delete(f.index, k)
}

func (f *fifo) Reset() {
	f.order.Init()
	clear(f.index)
}

func (f *fifo) Len() int {
	return f.order.Len()
}
