// Package wled encodes RGB frames in WLED's realtime "direct RGB" format
// and ships them to LED controllers.
package wled

import (
	"errors"

	"github.com/chase3718/notelight/internal/colormap"
)

const (
	// ProtocolDRGB selects direct RGB-array addressing.
	ProtocolDRGB = 0x02
	// HoldForever asks the controller to keep realtime mode (255 s timeout
	// means "until told otherwise").
	HoldForever = 0xFF

	// HeaderLen is the size of the packet header.
	HeaderLen = 2

	// DefaultPort is WLED's realtime UDP port.
	DefaultPort = 21324
)

// ErrTransmit wraps every send failure.
var ErrTransmit = errors.New("wled: transmit failed")

// Encode serializes frame into a DRGB packet for leds LEDs:
//
//	[0x02][0xFF][R0][G0][B0][R1][G1][B1]...
//
// Missing LEDs are sent black; extra colors beyond leds are dropped and
// truncated is true.
func Encode(frame []colormap.RGB, leds int) (packet []byte, truncated bool) {
	if leds < 0 {
		leds = 0
	}
	packet = make([]byte, HeaderLen+3*leds)
	packet[0] = ProtocolDRGB
	packet[1] = HoldForever

	n := len(frame)
	if n > leds {
		n = leds
		truncated = true
	}
	for i := 0; i < n; i++ {
		off := HeaderLen + 3*i
		packet[off] = frame[i].R
		packet[off+1] = frame[i].G
		packet[off+2] = frame[i].B
	}
	return packet, truncated
}
