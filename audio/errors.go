package audio

import "errors"

// ErrDevice indicates a capture or playback device failed to start. It is
// non-fatal for the session: the session proceeds with whichever
// direction (capture/playback) still works.
var ErrDevice = errors.New("audio: device error")
