package debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStackTraceSingleFrame(t *testing.T) {
	body := ". = main::greet() called from file 'script.pl' line 10"

	frames := ParseStackTrace(body)
	require.Len(t, frames, 1)
	assert.Equal(t, "void", frames[0].Context)
	assert.Equal(t, "main::greet()", frames[0].Callee)
	assert.Equal(t, "script.pl", frames[0].CallerFile)
	assert.Equal(t, 10, frames[0].Line)
}

func TestParseStackTraceContexts(t *testing.T) {
	cases := []struct {
		sigil   string
		context string
	}{
		{"@", "array"},
		{"$", "scalar"},
		{".", "void"},
	}
	for _, tc := range cases {
		body := tc.sigil + " = f() called from file 'a.pl' line 1"
		frames := ParseStackTrace(body)
		require.Len(t, frames, 1, "sigil %q", tc.sigil)
		assert.Equal(t, tc.context, frames[0].Context)
	}
}

func TestParseStackTraceWrappedFrame(t *testing.T) {
	body := "$ = My::Module::very_long_subroutine_name('with', 'many',\n" +
		"    'arguments') called from file 'lib/My/Module.pm' line 42"

	frames := ParseStackTrace(body)
	require.Len(t, frames, 1)
	assert.Equal(t, "scalar", frames[0].Context)
	assert.Equal(t, "lib/My/Module.pm", frames[0].CallerFile)
	assert.Equal(t, 42, frames[0].Line)
}

func TestParseStackTraceTrailingNoise(t *testing.T) {
	body := "@ = main::outer() called from file 'a.pl' line 3\n" +
		"$ = main::inner(1) called from file 'a.pl' line 7\n" +
		"some unrelated debugger chatter\n" +
		"more noise without any frame shape"

	frames := ParseStackTrace(body)
	require.Len(t, frames, 2)
	assert.Equal(t, 3, frames[0].Line)
	assert.Equal(t, 7, frames[1].Line)
}

func TestParseStackTraceEmpty(t *testing.T) {
	assert.Empty(t, ParseStackTrace(""))
	assert.Empty(t, ParseStackTrace("no frames here"))
}
