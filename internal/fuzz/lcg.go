package fuzz

// LCG is a 32-bit linear congruential generator with the Numerical
// Recipes constants. The same seed always yields the same document.
type LCG struct {
	state uint32
}

// NewLCG scrambles seed before the first step so neighbouring seeds start
// from unrelated states.
func NewLCG(seed uint32) *LCG {
	return &LCG{state: mix32(seed + 0x9e3779b9)}
}

// mix32 is the murmur3 finalizer.
func mix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

func (l *LCG) Next() uint32 {
	l.state = l.state*1664525 + 1013904223
	return l.state
}

// Float returns a value in [0,1).
func (l *LCG) Float() float64 {
	return float64(l.Next()) / 4294967296.0
}

// Intn returns a value in [0,n). n <= 0 yields 0.
func (l *LCG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(l.Float() * float64(n))
}

// Range returns a value in [lo,hi].
func (l *LCG) Range(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + l.Intn(hi-lo+1)
}

func (l *LCG) Bool() bool {
	return l.Float() < 0.5
}

// Shuffle permutes s in place (Fisher-Yates).
func Shuffle[T any](l *LCG, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := l.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
