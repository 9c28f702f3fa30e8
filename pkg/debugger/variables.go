package debugger

import (
	"regexp"
	"strings"
)

// VariableEntry is one name/value pair out of a y or V reply. Values keep
// their multi-line raw form so nested dumps can expand later.
type VariableEntry struct {
	Name  string
	Value string
}

var trailingPromptRe = regexp.MustCompile(`(?s)\n\s*DB<\d+>.*$`)

// SplitVariableEntries splits a scope dump into entries. An entry begins at
// a line whose first character is a variable sigil and runs until the next
// such line or a trailing prompt line.
func SplitVariableEntries(reply string) []VariableEntry {
	var entries []VariableEntry
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.Join(current, "\n")
		current = nil
		name, value, found := strings.Cut(joined, " = ")
		if !found {
			return
		}
		entries = append(entries, VariableEntry{
			Name:  strings.TrimSpace(name),
			Value: value,
		})
	}

	for _, line := range strings.Split(reply, "\n") {
		if isPromptLine(line) {
			break
		}
		if len(line) > 0 && (line[0] == '$' || line[0] == '@' || line[0] == '%') {
			flush()
			current = []string{line}
			continue
		}
		if len(current) > 0 {
			current = append(current, line)
		}
	}
	flush()
	return entries
}

var promptLineRe = regexp.MustCompile(`^\s*DB<\d+>`)

func isPromptLine(line string) bool {
	return promptLineRe.MatchString(line)
}

// ValueKind classifies a dumped value by its textual form.
type ValueKind int

const (
	ValueLeaf ValueKind = iota
	ValueScalar
	ValueArray
	ValueHash
)

var (
	hashValueRe   = regexp.MustCompile(`^([\w:]+=)?HASH\(0x[0-9a-f]+\)`)
	arrayValueRe  = regexp.MustCompile(`^ARRAY\(0x[0-9a-f]+\)`)
	scalarValueRe = regexp.MustCompile(`^SCALAR\(0x[0-9a-f]+\)`)
)

// ClassifyValue applies the address-form typing rule. Blessed objects
// (X=HASH(0x...)) classify as hashes.
func ClassifyValue(value string) ValueKind {
	trimmed := strings.TrimSpace(value)
	switch {
	case hashValueRe.MatchString(trimmed):
		return ValueHash
	case arrayValueRe.MatchString(trimmed):
		return ValueArray
	case scalarValueRe.MatchString(trimmed):
		return ValueScalar
	}
	return ValueLeaf
}

// ParseArrayDump splits a multi-line array dump into its ordered top-level
// values. Indices sit at a fixed indentation; deeper-indented lines
// continue the previous value (nested HASH/ARRAY blocks).
func ParseArrayDump(raw string) []string {
	lines, indent := dumpBody(raw)
	indexRe := regexp.MustCompile(`^(\d+)\s+(.*)$`)

	var values []string
	for _, line := range lines {
		body, deeper := stripIndent(line, indent)
		if !deeper {
			if match := indexRe.FindStringSubmatch(body); match != nil {
				values = append(values, match[2])
				continue
			}
		}
		if len(values) > 0 {
			values[len(values)-1] += "\n" + body
		}
	}
	return values
}

// HashField is one key/value pair of a hash dump.
type HashField struct {
	Key   string
	Value string
}

// ParseHashDump splits a multi-line hash dump into its key/value pairs at
// the leading indentation, same reassembly as the array form.
func ParseHashDump(raw string) []HashField {
	lines, indent := dumpBody(raw)
	entryRe := regexp.MustCompile(`^('[^']*'|\S+)\s*=>\s*(.*)$`)

	var fields []HashField
	for _, line := range lines {
		body, deeper := stripIndent(line, indent)
		if !deeper {
			if match := entryRe.FindStringSubmatch(body); match != nil {
				fields = append(fields, HashField{
					Key:   strings.Trim(match[1], "'"),
					Value: match[2],
				})
				continue
			}
		}
		if len(fields) > 0 {
			fields[len(fields)-1].Value += "\n" + body
		}
	}
	return fields
}

// dumpBody strips the dump's opening line (a parenthesis or a bare address
// header), the closing parenthesis, and any trailing prompt, and computes
// the indentation column of the top-level entries.
func dumpBody(raw string) ([]string, int) {
	raw = trailingPromptRe.ReplaceAllString(raw, "")

	var body []string
	first := true
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if first {
			first = false
			if trimmed == "(" || strings.HasSuffix(trimmed, "(") ||
				hashValueRe.MatchString(trimmed) || arrayValueRe.MatchString(trimmed) || scalarValueRe.MatchString(trimmed) {
				continue
			}
		}
		if trimmed == ")" {
			continue
		}
		body = append(body, strings.TrimRight(line, "\r"))
	}
	if len(body) == 0 {
		return nil, 0
	}

	indent := len(body[0]) - len(strings.TrimLeft(body[0], " "))
	return body, indent
}

// stripIndent removes the base indentation. deeper reports whether the line
// was indented past the base column, marking a continuation.
func stripIndent(line string, indent int) (string, bool) {
	if len(line) <= indent {
		return strings.TrimLeft(line, " "), false
	}
	body := line[indent:]
	return body, strings.HasPrefix(body, " ")
}

// DereferenceScalar strips the SCALAR(0x...) header and the arrow prefix
// from an indirection dump, leaving the referenced value.
func DereferenceScalar(raw string) string {
	value := trailingPromptRe.ReplaceAllString(raw, "")
	value = scalarValueRe.ReplaceAllString(strings.TrimSpace(value), "")
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "->")
	return strings.TrimSpace(value)
}

// ParseEvaluateResult interprets an x reply in list context. The trailing
// prompt is stripped; expressions that do not start with @ carry the
// leading 0 index marker the debugger inserts in scalar context.
func ParseEvaluateResult(expr, reply string) string {
	value := trailingPromptRe.ReplaceAllString(reply, "")
	value = strings.TrimRight(value, "\n ")
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return value
	}
	return regexp.MustCompile(`^\s*0\s+`).ReplaceAllString(value, "")
}
