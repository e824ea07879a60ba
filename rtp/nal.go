package rtp

// startCode is the location and length (3 or 4) of one Annex-B start
// code within a buffer.
type startCode struct {
	offset int
	length int
}

// findStartCodes scans buf for 3-byte (00 00 01) and 4-byte (00 00 00 01)
// Annex-B start codes.
//
// Grounded on the NAL-scanning idiom in the retrieved zsiec-prism demuxer
// (internal/demux/h264.go parseAnnexBGeneric), reimplemented directly
// against RFC 6184 framing since this side never needs SPS/PPS semantic
// parsing, only NAL boundaries.
func findStartCodes(buf []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != 0 || buf[i+1] != 0 {
			continue
		}
		if buf[i+2] == 1 {
			codes = append(codes, startCode{offset: i, length: 3})
			i += 2
			continue
		}
		if i+3 < len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
			codes = append(codes, startCode{offset: i, length: 4})
			i += 3
		}
	}
	return codes
}

// splitAnnexB returns the NAL unit byte ranges between start codes,
// exclusive of the start codes themselves. A buffer with no start code at
// all is treated as a single NAL.
func splitAnnexB(buf []byte) [][]byte {
	codes := findStartCodes(buf)
	if len(codes) == 0 {
		return [][]byte{buf}
	}

	nals := make([][]byte, 0, len(codes))
	for i, c := range codes {
		start := c.offset + c.length
		end := len(buf)
		if i+1 < len(codes) {
			end = codes[i+1].offset
		}
		if end > start {
			nals = append(nals, buf[start:end])
		}
	}
	return nals
}

// startCode4 is the 4-byte start code this core always emits on the
// receive side, regardless of what the sender used.
var startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
