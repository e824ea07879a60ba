package rtp

import "errors"

// ErrReassembly indicates a malformed NAL, an FU-A end fragment without a
// preceding start fragment, or a STAP-A size field that overruns the
// packet. The caller drops the remainder of the packet and continues; it
// never ends the session.
var ErrReassembly = errors.New("rtp: reassembly error")
