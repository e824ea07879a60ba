package video

import "errors"

// ErrAccessLost is returned by a VideoCaptureSource when the underlying
// desktop/window surface becomes temporarily unavailable (e.g. a desktop
// switch or a UAC prompt). The capture pipeline tears down and recreates
// the source; no session-level state change is observed.
var ErrAccessLost = errors.New("video: capture access lost")

// ErrWindowDestroyed is returned when a window-kind capture source's
// target window no longer exists. The pipeline terminates and signals
// session end.
var ErrWindowDestroyed = errors.New("video: capture window destroyed")
