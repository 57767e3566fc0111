package trafficshaper

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// ring is a growable circular buffer of key/value pairs, kept in
// non-decreasing key order. It is adapted from catrate's ringBuffer[E], a
// generic ordered ring buffer for a sliding-window event log
// (golang.org/x/exp/constraints for the key bound is carried over unchanged);
// here it is generalized to carry a value alongside each ordered key so the
// same structure can back both BandwidthLimiter's (timestamp, weight) window
// and the delayed sub-queue's (deadline, item) store — both are an ordered
// list of records with fast prefix eviction.
type ring[K constraints.Ordered, V any] struct {
	k    []K
	v    []V
	r, w uint
}

func newRing[K constraints.Ordered, V any](size int) *ring[K, V] {
	if size <= 0 || size&(size-1) != 0 {
		panic(`trafficshaper: ring: size must be a power of 2`)
	}
	return &ring[K, V]{k: make([]K, size), v: make([]V, size)}
}

func (x *ring[K, V]) mask(val uint) uint {
	return val & (uint(len(x.k)) - 1)
}

func (x *ring[K, V]) bounds() (i1, l1, l2 int) {
	if x.r == x.w {
		return
	}
	i1 = int(x.mask(x.r))
	l1 = int(x.mask(x.w))
	if l1 <= i1 {
		l2 = l1
		l1 = len(x.k)
	}
	return
}

// Len reports the number of pairs currently stored.
func (x *ring[K, V]) Len() int {
	return int(x.w - x.r)
}

// Cap reports the current backing capacity.
func (x *ring[K, V]) Cap() int {
	return len(x.k)
}

// Get returns the key and value at logical index i, where 0 is the oldest
// (smallest-key) entry.
func (x *ring[K, V]) Get(i int) (K, V) {
	if i < 0 || i >= x.Len() {
		panic(`trafficshaper: ring: get: index out of range`)
	}
	idx := x.mask(x.r + uint(i))
	return x.k[idx], x.v[idx]
}

// Front returns the oldest (smallest-key) entry, if any.
func (x *ring[K, V]) Front() (key K, value V, ok bool) {
	if x.Len() == 0 {
		return key, value, false
	}
	key, value = x.Get(0)
	return key, value, true
}

// Search returns the index of the first entry whose key is > key, i.e. the
// position at which key should be inserted to keep ordering, after any
// entries with an equal key (so equal keys keep their insertion order).
func (x *ring[K, V]) Search(key K) int {
	return sort.Search(x.Len(), func(i int) bool {
		k, _ := x.Get(i)
		return k > key
	})
}

// RemoveBefore discards the first index entries (the oldest ones),
// clearing their slots so any referenced values are free to be collected.
func (x *ring[K, V]) RemoveBefore(index int) {
	if index < 0 || index > x.Len() {
		panic(`trafficshaper: ring: remove before: index out of range`)
	}
	var zeroK K
	var zeroV V
	for i := 0; i < index; i++ {
		idx := x.mask(x.r + uint(i))
		x.k[idx] = zeroK
		x.v[idx] = zeroV
	}
	x.r += uint(index)
}

// Insert places (key, value) at logical index, growing the backing array if
// full. Callers are responsible for choosing an index consistent with
// ordering (typically via Search, or Len() for a known-monotonic append).
func (x *ring[K, V]) Insert(index int, key K, value V) {
	l := x.Len()
	if index < 0 || index > l {
		panic(`trafficshaper: ring: insert: index out of range`)
	}

	if l == len(x.k) {
		x.grow(index, key, value)
		return
	}

	var i, j int
	if l == 0 {
		x.r = 0
		x.w = 0
	} else {
		i = int(x.mask(x.r))
		j = int(x.mask(x.w))
	}

	if l == 0 || i < j {
		copy(x.k[i+index+1:], x.k[i+index:j])
		copy(x.v[i+index+1:], x.v[i+index:j])
		x.k[i+index] = key
		x.v[i+index] = value
		x.w++
		return
	}

	if index >= len(x.k)-i {
		index -= len(x.k) - i
		copy(x.k[index+1:], x.k[index:j])
		copy(x.v[index+1:], x.v[index:j])
		x.k[index] = key
		x.v[index] = value
		x.w++
		return
	}

	copy(x.k[1:], x.k[:j])
	copy(x.v[1:], x.v[:j])
	x.k[0] = x.k[len(x.k)-1]
	x.v[0] = x.v[len(x.v)-1]
	copy(x.k[i+index+1:], x.k[i+index:])
	copy(x.v[i+index+1:], x.v[i+index:])
	x.k[i+index] = key
	x.v[i+index] = value
	x.w++
}

// grow doubles the backing array and re-inserts in one pass, mirroring
// catrate's ringBuffer.Insert full-buffer branch.
func (x *ring[K, V]) grow(index int, key K, value V) {
	newCap := uint(len(x.k)) << 1
	if newCap == 0 {
		panic(`trafficshaper: ring: insert: overflow`)
	}
	sk := make([]K, newCap)
	sv := make([]V, newCap)

	i1, l1, l2 := x.bounds()
	l := l1 - i1
	if index < l {
		copy(sk, x.k[i1:i1+index])
		copy(sv, x.v[i1:i1+index])
		sk[index] = key
		sv[index] = value
		copy(sk[index+1:], x.k[i1+index:l1])
		copy(sv[index+1:], x.v[i1+index:l1])
		l++
		copy(sk[l:], x.k[:l2])
		copy(sv[l:], x.v[:l2])
		l += l2
	} else {
		copy(sk, x.k[i1:l1])
		copy(sv, x.v[i1:l1])
		copy(sk[l:], x.k[:index-l])
		copy(sv[l:], x.v[:index-l])
		sk[index] = key
		sv[index] = value
		copy(sk[index+1:], x.k[index-l:l2])
		copy(sv[index+1:], x.v[index-l:l2])
		l += l2 + 1
	}

	x.r = 0
	x.w = uint(l)
	x.k = sk
	x.v = sv
}
