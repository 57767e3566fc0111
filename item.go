package trafficshaper

// Item is the capability an engine needs from whatever it is shaping: a byte
// weight (for bandwidth accounting) and an in-place corruption mutator.
// Duplication is a separate, optional capability — see Duplicator.
type Item interface {
	// ByteLen reports the weight of this item for bandwidth accounting
	// purposes. It must be non-negative.
	ByteLen() int

	// Corrupt mutates the item in place to simulate on-the-wire corruption.
	// It must be idempotent in the sense that byte length is unaffected.
	Corrupt()
}

// Duplicator is an optional capability: items that support it may be cloned
// once per the duplicate_probability setting. Items that don't implement
// Duplicator are simply never duplicated, per §9's "capability interface
// with a default nil duplicate" guidance — there is no default method on
// Item itself, callers type-assert for it at the one place it matters.
type Duplicator[T Item] interface {
	// Duplicate returns a copy of the item, and true, if duplication is
	// supported and succeeded. A false second return means "no duplicate
	// produced" and is not an error.
	Duplicate() (T, bool)
}

// duplicate attempts to duplicate item via the optional Duplicator
// capability, reporting false if the item doesn't support it.
func duplicate[T Item](item T) (dup T, ok bool) {
	d, supported := any(item).(Duplicator[T])
	if !supported {
		return dup, false
	}
	return d.Duplicate()
}

// Payload is a ready-to-use []byte-backed Item, the Go analogue of the
// reference implementation's blanket impl of ChokeItem for bytes.Bytes: a
// corrupt flips a single random byte, and duplicate clones the backing
// slice.
type Payload []byte

// ByteLen implements Item.
func (p Payload) ByteLen() int { return len(p) }

// Corrupt implements Item, flipping one pseudo-randomly chosen byte. A
// zero-length payload has nothing to corrupt and is left alone.
func (p Payload) Corrupt() {
	if len(p) == 0 {
		return
	}
	idx := rngSource.Intn(len(p))
	p[idx] ^= 0xFF
}

// Duplicate implements Duplicator[Payload], cloning the backing slice so the
// copy and the original don't alias.
func (p Payload) Duplicate() (Payload, bool) {
	dup := make(Payload, len(p))
	copy(dup, p)
	return dup, true
}

// Fallible carries a value that may have failed upstream of the shaper,
// mirroring the reference implementation's blanket impl of ChokeItem for
// Result<T, E>: an error payload has zero byte length and is immune to
// corruption/duplication.
type Fallible[T Item] struct {
	Value T
	Err   error
}

// ByteLen implements Item.
func (f Fallible[T]) ByteLen() int {
	if f.Err != nil {
		return 0
	}
	return f.Value.ByteLen()
}

// Corrupt implements Item, a no-op when Err is set. Value receiver is
// intentional: T's own Corrupt mutates whatever backing storage it wraps
// (e.g. Payload's slice), which a copy of the Fallible wrapper still shares.
func (f Fallible[T]) Corrupt() {
	if f.Err != nil {
		return
	}
	f.Value.Corrupt()
}

// Duplicate implements Duplicator[Fallible[T]], a no-op (unsupported) when
// Err is set, or when the wrapped value itself doesn't support duplication.
func (f Fallible[T]) Duplicate() (Fallible[T], bool) {
	if f.Err != nil {
		return Fallible[T]{}, false
	}
	dup, ok := duplicate(f.Value)
	if !ok {
		return Fallible[T]{}, false
	}
	return Fallible[T]{Value: dup}, true
}

// Maybe carries an optionally-present value, mirroring the reference
// implementation's blanket impl of ChokeItem for Option<T>: an absent value
// has zero byte length and is immune to corruption/duplication.
type Maybe[T Item] struct {
	Value   T
	Present bool
}

// ByteLen implements Item.
func (m Maybe[T]) ByteLen() int {
	if !m.Present {
		return 0
	}
	return m.Value.ByteLen()
}

// Corrupt implements Item, a no-op when the value is absent. Value receiver
// for the same reason as Fallible.Corrupt.
func (m Maybe[T]) Corrupt() {
	if !m.Present {
		return
	}
	m.Value.Corrupt()
}

// Duplicate implements Duplicator[Maybe[T]].
func (m Maybe[T]) Duplicate() (Maybe[T], bool) {
	if !m.Present {
		return Maybe[T]{}, false
	}
	dup, ok := duplicate(m.Value)
	if !ok {
		return Maybe[T]{}, false
	}
	return Maybe[T]{Value: dup, Present: true}, true
}
