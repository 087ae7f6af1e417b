// This file implements LFU eviction.

package eviction

// lfuNode represents one key tracked by LFU.
type lfuNode struct {
	key  string // cache key
	freq int    // how many times this key was admitted or accessed
}

type lfu struct {
	// nodes lets us quickly find the node for a key
	nodes map[string]*lfuNode

	// freqMap groups keys by how many times they were accessed
	freqMap map[int]map[string]*lfuNode

	// minFreq is the smallest frequency currently present.
	// It is only meaningful while nodes is non-empty.
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		nodes:   make(map[string]*lfuNode),
		freqMap: make(map[int]map[string]*lfuNode),
	}
}

// OnGet bumps the access count of a tracked key.
func (l *lfu) OnGet(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}

	old := n.freq
	n.freq++

	// Link into the new bucket first so unlink can see it when recomputing minFreq.
	l.link(n)
	l.unlink(k, old)
}

// OnPut starts tracking a new key with frequency 1.
// A key evicted earlier starts over at 1 when it is admitted again.
func (l *lfu) OnPut(k string) {
	if _, ok := l.nodes[k]; ok {
		return
	}

	n := &lfuNode{key: k, freq: 1}
	l.nodes[k] = n
	l.link(n)

	// A fresh key always has the lowest possible frequency.
	l.minFreq = 1
}

/*
Evict removes the key with the lowest frequency.

If several keys share that frequency, the lexicographically smallest key loses,
so eviction order is deterministic.
*/
func (l *lfu) Evict() (string, bool) {
	bucket := l.freqMap[l.minFreq]
	if len(bucket) == 0 {
		return "", false
	}

	victim := ""
	first := true
	for k := range bucket {
		if first || k < victim {
			victim = k
			first = false
		}
	}

	l.unlink(victim, l.minFreq)
	delete(l.nodes, victim)
	return victim, true
}

// Remove forgets a key that was explicitly removed from the cache.
func (l *lfu) Remove(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	l.unlink(k, n.freq)
	delete(l.nodes, k)
}

func (l *lfu) Reset() {
	clear(l.nodes)
	clear(l.freqMap)
	l.minFreq = 0
}

func (l *lfu) Len() int {
	return len(l.nodes)
}

// frequency returns the access count of a tracked key, or 0.
func (l *lfu) frequency(k string) int {
	if n, ok := l.nodes[k]; ok {
		return n.freq
	}
	return 0
}

func (l *lfu) link(n *lfuNode) {
	if l.freqMap[n.freq] == nil {
		l.freqMap[n.freq] = make(map[string]*lfuNode)
	}
	l.freqMap[n.freq][n.key] = n
}

// unlink removes k from the bucket for freq and keeps minFreq correct.
func (l *lfu) unlink(k string, freq int) {
	delete(l.freqMap[freq], k)
	if len(l.freqMap[freq]) > 0 {
		return
	}
	delete(l.freqMap, freq)

	if l.minFreq != freq {
		return
	}

	// The lowest bucket is gone: find the next one.
	l.minFreq = 0
	for f := range l.freqMap {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
