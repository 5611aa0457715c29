package arc

import "strings"

// sentinel is the reserved control prefix for marker chunks inside a text
// stream: a NUL byte followed by the literal tag. No ordinary LLM output is
// expected to begin with it; StreamEvent consumers must treat anything that
// does as opaque until parsed.
const sentinel = "\x00__arc__"

// MarkerKind enumerates the marker payload types carried over the sentinel
// prefix scheme.
type MarkerKind string

const (
	MarkerToolStart MarkerKind = "tool_start"
	MarkerToolEnd   MarkerKind = "tool_end"
	MarkerError     MarkerKind = "error"
)

// ToolStartMarker renders a tool_start marker chunk for the given tool name.
func ToolStartMarker(name string) string {
	return encode(MarkerToolStart, name)
}

// ToolEndMarker renders a tool_end marker chunk for the given tool name.
func ToolEndMarker(name string) string {
	return encode(MarkerToolEnd, name)
}

// ErrorMarker renders an error marker chunk carrying msg.
func ErrorMarker(msg string) string {
	return encode(MarkerError, msg)
}

func encode(kind MarkerKind, payload string) string {
	return sentinel + string(kind) + ":" + payload
}

// ParseMarker recognizes a marker chunk and returns its kind and payload.
// ok is false for any text not beginning with the sentinel, including empty
// or ordinary LLM text.
func ParseMarker(chunk string) (kind MarkerKind, payload string, ok bool) {
	if !strings.HasPrefix(chunk, sentinel) {
		return "", "", false
	}
	rest := chunk[len(sentinel):]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return "", "", false
	}
	return MarkerKind(rest[:idx]), rest[idx+1:], true
}
