package debugger

import (
	"regexp"
	"strconv"
	"strings"
)

// StackFrame is one parsed frame of the debugger's T output.
type StackFrame struct {
	Context    string // array, scalar, void, or unknown
	Callee     string
	CallerFile string
	Line       int
}

var (
	frameStartRe = regexp.MustCompile(`^[@$.]\s*=`)
	frameTailRe  = regexp.MustCompile(`called\s+from\s+file\s+'.+?'\s+line\s+\d+\s*$`)
	frameRe      = regexp.MustCompile(`^([@$.])\s*=\s*(.+?)\s+called\s+from\s+file\s+'(.+?)'\s+line\s+(\d+)`)
)

// ParseStackTrace parses the body of a T reply. The debugger wraps long
// frames across physical lines; logical frames are reassembled by starting
// at a context sigil and appending lines until the "called from file" tail
// appears. Trailing noise after the last well-formed frame is ignored.
func ParseStackTrace(body string) []StackFrame {
	var frames []StackFrame
	var logical string
	assembling := false

	flush := func() {
		if !assembling {
			return
		}
		if frame, ok := parseFrame(logical); ok {
			frames = append(frames, frame)
		}
		logical = ""
		assembling = false
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if frameStartRe.MatchString(trimmed) {
			flush()
			logical = trimmed
			assembling = true
		} else if assembling {
			logical += " " + strings.TrimSpace(trimmed)
		}
		if assembling && frameTailRe.MatchString(logical) {
			flush()
		}
	}
	flush()
	return frames
}

func parseFrame(logical string) (StackFrame, bool) {
	match := frameRe.FindStringSubmatch(logical)
	if match == nil {
		return StackFrame{}, false
	}
	line, err := strconv.Atoi(match[4])
	if err != nil {
		return StackFrame{}, false
	}
	return StackFrame{
		Context:    contextForSigil(match[1]),
		Callee:     match[2],
		CallerFile: match[3],
		Line:       line,
	}, true
}

func contextForSigil(sigil string) string {
	switch sigil {
	case "@":
		return "array"
	case "$":
		return "scalar"
	case ".":
		return "void"
	}
	return "unknown"
}
