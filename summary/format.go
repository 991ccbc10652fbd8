package summary

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// BytesPreviewLen is how many leading bytes of a binary frame are shown.
const BytesPreviewLen = 20

// EmptyMessage is the rendering of a message with no frames.
const EmptyMessage = "[empty message]"

// FormatMessage renders a multipart message for logs. The output size does
// not grow with the length of arrays or objects inside JSON frames.
func FormatMessage(frames [][]byte) string {
	switch len(frames) {
	case 0:
		return EmptyMessage
	case 1:
		return FormatFrame(frames[0])
	}
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = FormatFrame(f)
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

// FormatFrame renders a single frame: cropped JSON, quoted text, an Arrow
// IPC description or a byte preview, in that order of preference.
func FormatFrame(frame []byte) string {
	if v, err := Parse(frame); err == nil {
		if s, ok := render(v); ok {
			return s
		}
	}

	if utf8.Valid(frame) {
		s := string(frame)
		if t := strings.TrimSpace(s); looksStructured(t) {
			if v, err := ParseString(t); err == nil {
				if out, ok := render(v); ok {
					return out
				}
			}
		}
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}

	if desc, ok := describeArrowIPC(frame); ok {
		return desc
	}
	if len(frame) > BytesPreviewLen {
		return fmt.Sprintf("[%d bytes: % x...]", len(frame), frame[:BytesPreviewLen])
	}
	return fmt.Sprintf("[%d bytes: % x]", len(frame), frame)
}

func looksStructured(t string) bool {
	return (strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")) ||
		(strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]"))
}

func render(v Value) (string, bool) {
	cropped := Crop(v)
	s, err := Pretty(cropped)
	if err != nil {
		b, merr := cropped.MarshalJSON()
		if merr != nil {
			return "", false
		}
		return string(b), true
	}
	return s, true
}
