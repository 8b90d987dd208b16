package wled

import "fmt"

const (
	SOF0 = 0xAA
	SOF1 = 0x55

	// CmdDRGB marks a framed DRGB packet.
	CmdDRGB = 0x20

	maxFramed = 0xFFFF - 1
)

// Frame wraps a DRGB packet for a byte-stream link, where datagram
// boundaries are lost:
//
//	[SOF0][SOF1][LEN_HI][LEN_LO][CMD][payload...][CKS]
//
// LEN counts CMD plus payload; CKS is the XOR of LEN_HI, LEN_LO, CMD and
// every payload byte.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) > maxFramed {
		return nil, fmt.Errorf("wled: payload of %d bytes does not fit a frame", len(payload))
	}
	length := len(payload) + 1
	hi, lo := byte(length>>8), byte(length)

	cks := hi ^ lo ^ CmdDRGB
	for _, b := range payload {
		cks ^= b
	}

	out := make([]byte, 0, len(payload)+6)
	out = append(out, SOF0, SOF1, hi, lo, CmdDRGB)
	out = append(out, payload...)
	out = append(out, cks)
	return out, nil
}
