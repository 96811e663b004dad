package provider

import "strings"

// lineResult is what one decoded SSE line yields: at most one of
// {skip, end-of-stream, text delta}, per spec §4.4.3's parse-line contract.
type lineResult struct {
	delta string
	done  bool
	skip  bool
}

// skipLine is the zero-information result for keep-alives, comments, and
// non-data lines.
var skipLine = lineResult{skip: true}

// isDataLine reports whether line carries an SSE "data: " payload, as
// opposed to a comment line (prefix ":"), a named "event: " line, or a
// blank keep-alive line. Chunk boundaries of the underlying transport may
// split lines; callers must buffer with bufio.Scanner (which already
// assembles complete lines) before calling this.
func isDataLine(line string) (payload string, ok bool) {
	if !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	return strings.TrimPrefix(line, "data: "), true
}

// isDoneSentinel reports whether a data payload is the `[DONE]` sentinel
// that ends an SSE stream cleanly.
func isDoneSentinel(payload string) bool {
	return strings.TrimSpace(payload) == "[DONE]"
}
