package memory

// Options controls the in-process store.
type Options struct {
	// Capacity bounds the number of entries. Zero keeps the store unbounded;
	// once a positive bound is reached the least recently used entry is evicted.
	Capacity int
	// Sweep starts a background goroutine that drops entries as they expire.
	// Without it expired entries stay resident until overwritten or evicted.
	Sweep bool
}

func (o Options) withDefaults() Options {
	if o.Capacity < 0 {
		o.Capacity = 0
	}
	return o
}
