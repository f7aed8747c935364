// ABOUTME: Nearest-match negotiation of sample rate, buffer size and channels
// ABOUTME: Ties resolve to the larger value; channel sets are clipped in index order
package manager

import (
	"github.com/Sendspin/audioio/pkg/audio"
)

func nearest[T int | float64](requested T, supported []T) T {
	if requested <= 0 || len(supported) == 0 {
		return requested
	}
	best := supported[0]
	for _, v := range supported[1:] {
		dBest, dV := best-requested, v-requested
		if dBest < 0 {
			dBest = -dBest
		}
		if dV < 0 {
			dV = -dV
		}
		if dV < dBest || (dV == dBest && v > best) {
			best = v
		}
	}
	return best
}

// NegotiateSampleRate returns the supported rate closest to requested, the
// larger one on a tie. A non-positive request or an empty list returns
// requested unchanged.
func NegotiateSampleRate(requested float64, supported []float64) float64 {
	return nearest(requested, supported)
}

// NegotiateBufferSize is NegotiateSampleRate for buffer sizes
func NegotiateBufferSize(requested int, supported []int) int {
	return nearest(requested, supported)
}

// NegotiateChannels clips requested to the first available channels. If that
// leaves nothing although channels were asked for, the same number of channels
// is taken from the start of the device instead.
func NegotiateChannels(requested audio.ChannelSet, available int) audio.ChannelSet {
	clipped := requested.Clip(available)
	if clipped.IsEmpty() && !requested.IsEmpty() {
		return DefaultChannels(requested.Count(), available)
	}
	return clipped
}

// DefaultChannels returns the first count channels of a device with available
// channels.
func DefaultChannels(count, available int) audio.ChannelSet {
	return audio.ChannelRange(max(0, min(count, available)))
}
