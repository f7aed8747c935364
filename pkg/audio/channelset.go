// ABOUTME: Ordered set of active channel indices
// ABOUTME: Backs the input/output channel masks of a device setup
package audio

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// ChannelSet is a set of channel indices. The zero value is an empty set.
type ChannelSet struct {
	bits *bitset.BitSet
}

// NewChannelSet returns a set containing the given indices
func NewChannelSet(indices ...int) ChannelSet {
	cs := ChannelSet{bits: bitset.New(0)}
	for _, i := range indices {
		cs.bits.Set(uint(i))
	}
	return cs
}

// ChannelRange returns the set {0, 1, ..., n-1}
func ChannelRange(n int) ChannelSet {
	cs := ChannelSet{bits: bitset.New(uint(max(n, 0)))}
	for i := 0; i < n; i++ {
		cs.bits.Set(uint(i))
	}
	return cs
}

// ParseChannelSet parses the binary string produced by String. Bit 0 is the
// right-most character.
func ParseChannelSet(s string) (ChannelSet, error) {
	cs := NewChannelSet()
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		idx := uint(len(s) - 1 - i)
		switch s[i] {
		case '1':
			cs.bits.Set(idx)
		case '0':
		default:
			return ChannelSet{}, fmt.Errorf("invalid channel mask %q", s)
		}
	}
	return cs, nil
}

// Set adds channel i. The receiver is updated in place.
func (c *ChannelSet) Set(i int) {
	if c.bits == nil {
		c.bits = bitset.New(0)
	}
	c.bits.Set(uint(i))
}

// Clear removes channel i
func (c *ChannelSet) Clear(i int) {
	if c.bits == nil {
		return
	}
	c.bits.Clear(uint(i))
}

// Has reports whether channel i is active
func (c ChannelSet) Has(i int) bool {
	return c.bits != nil && i >= 0 && c.bits.Test(uint(i))
}

// Count returns the number of active channels
func (c ChannelSet) Count() int {
	if c.bits == nil {
		return 0
	}
	return int(c.bits.Count())
}

// IsEmpty reports whether no channel is active
func (c ChannelSet) IsEmpty() bool { return c.Count() == 0 }

// Highest returns the highest active index, or -1 for an empty set
func (c ChannelSet) Highest() int {
	highest := -1
	for _, i := range c.Indices() {
		highest = i
	}
	return highest
}

// Indices returns the active channel indices in ascending order
func (c ChannelSet) Indices() []int {
	if c.bits == nil {
		return nil
	}
	out := make([]int, 0, c.bits.Count())
	for i, ok := c.bits.NextSet(0); ok; i, ok = c.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Clip returns a copy with every index >= n removed
func (c ChannelSet) Clip(n int) ChannelSet {
	out := NewChannelSet()
	for _, i := range c.Indices() {
		if i < n {
			out.bits.Set(uint(i))
		}
	}
	return out
}

// Clone returns an independent copy
func (c ChannelSet) Clone() ChannelSet {
	if c.bits == nil {
		return NewChannelSet()
	}
	return ChannelSet{bits: c.bits.Clone()}
}

// Equal reports whether both sets hold the same indices
func (c ChannelSet) Equal(o ChannelSet) bool {
	a, b := c.Indices(), o.Indices()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the set as a binary string, highest channel first
func (c ChannelSet) String() string {
	highest := c.Highest()
	if highest < 0 {
		return "0"
	}
	var sb strings.Builder
	for i := highest; i >= 0; i-- {
		if c.Has(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
