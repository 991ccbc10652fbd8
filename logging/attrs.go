package logging

import "log/slog"

// Attribute keys shared by the relay planes.
const (
	KeyPlane   = "plane"
	KeySocket  = "socket"
	KeyMessage = "payload"
	KeyFrames  = "frames"
)

// Err returns an "error" attribute holding err's message.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Plane names the relay plane a record belongs to.
func Plane(name string) slog.Attr {
	return slog.String(KeyPlane, name)
}

// Socket names the socket a record is about.
func Socket(name string) slog.Attr {
	return slog.String(KeySocket, name)
}
