package relay

// EnvelopeFrames is the frame count of a direct-relay message as the
// ROUTER sees it: sender identity, recipient identity and payload.
const EnvelopeFrames = 3

// ReverseEnvelope turns [sender, recipient, payload] into
// [recipient, sender, payload] so the ROUTER delivers the payload to the
// recipient, which then sees who sent it. Any other frame count reports
// false and leaves frames untouched.
func ReverseEnvelope(frames [][]byte) ([][]byte, bool) {
	if len(frames) != EnvelopeFrames {
		return nil, false
	}
	return [][]byte{frames[1], frames[0], frames[2]}, true
}
