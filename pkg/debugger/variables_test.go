package debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitVariableEntries(t *testing.T) {
	reply := "$count = 3\n" +
		"@xs = (\n" +
		"  0  1\n" +
		"  1  HASH(0x1)\n" +
		"     'k' => 'v'\n" +
		")\n" +
		"%opts = (\n" +
		"  'debug' => 1\n" +
		")\n" +
		"  DB<2>"

	entries := SplitVariableEntries(reply)
	require.Len(t, entries, 3)

	assert.Equal(t, "$count", entries[0].Name)
	assert.Equal(t, "3", entries[0].Value)

	assert.Equal(t, "@xs", entries[1].Name)
	assert.Contains(t, entries[1].Value, "HASH(0x1)")

	assert.Equal(t, "%opts", entries[2].Name)
	assert.Contains(t, entries[2].Value, "'debug' => 1")
}

func TestParseArrayDumpNestedHash(t *testing.T) {
	raw := "(\n" +
		"  0  1\n" +
		"  1  HASH(0x1)\n" +
		"     'k' => 'v'\n" +
		")"

	values := ParseArrayDump(raw)
	require.Len(t, values, 2)
	assert.Equal(t, "1", values[0])
	assert.Equal(t, "HASH(0x1)\n   'k' => 'v'", values[1])
}

func TestParseArrayDumpLeaves(t *testing.T) {
	raw := "(\n  0  'a'\n  1  'b'\n  2  'c'\n)"
	values := ParseArrayDump(raw)
	require.Len(t, values, 3)
	assert.Equal(t, []string{"'a'", "'b'", "'c'"}, values)
}

func TestParseHashDump(t *testing.T) {
	raw := "(\n  'k' => 'v'\n  'n' => 42\n)"
	fields := ParseHashDump(raw)
	require.Len(t, fields, 2)
	assert.Equal(t, "k", fields[0].Key)
	assert.Equal(t, "'v'", fields[0].Value)
	assert.Equal(t, "n", fields[1].Key)
	assert.Equal(t, "42", fields[1].Value)
}

func TestParseHashDumpFromNestedPayload(t *testing.T) {
	raw := "HASH(0x1)\n   'k' => 'v'"
	fields := ParseHashDump(raw)
	require.Len(t, fields, 1)
	assert.Equal(t, "k", fields[0].Key)
	assert.Equal(t, "'v'", fields[0].Value)
}

func TestClassifyValue(t *testing.T) {
	assert.Equal(t, ValueHash, ClassifyValue("HASH(0x55f1)"))
	assert.Equal(t, ValueHash, ClassifyValue("My::Class=HASH(0x55f1)"))
	assert.Equal(t, ValueArray, ClassifyValue("ARRAY(0x7f00)"))
	assert.Equal(t, ValueScalar, ClassifyValue("SCALAR(0xdead)"))
	assert.Equal(t, ValueLeaf, ClassifyValue("42"))
	assert.Equal(t, ValueLeaf, ClassifyValue("'HASH-like string'"))
}

func TestParseEvaluateResultScalarContext(t *testing.T) {
	reply := "0  42\n  DB<5> "
	assert.Equal(t, "42", ParseEvaluateResult("$x", reply))
}

func TestParseEvaluateResultArrayContext(t *testing.T) {
	reply := "0  'a'\n1  'b'\n  DB<3> "
	value := ParseEvaluateResult("@list", reply)
	assert.Equal(t, "0  'a'\n1  'b'", value)
}

func TestDereferenceScalar(t *testing.T) {
	assert.Equal(t, "42", DereferenceScalar("SCALAR(0x1)\n-> 42"))
}
