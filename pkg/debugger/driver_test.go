package debugger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDebugger echoes every command back followed by a ready prompt,
// standing in for the perl -d stderr/stdin pair.
func fakeDebugger(t *testing.T) (*Driver, func()) {
	t.Helper()
	commandReader, commandWriter := io.Pipe()
	replyReader, replyWriter := io.Pipe()

	d := &Driver{
		log:    discardLogger(),
		stdin:  commandWriter,
		closed: make(chan struct{}),
	}
	go d.readDebugger(replyReader)

	go func() {
		scanner := bufio.NewScanner(commandReader)
		counter := 0
		for scanner.Scan() {
			counter++
			fmt.Fprintf(replyWriter, "echo %s\n  DB<%d> ", scanner.Text(), counter)
		}
	}()

	return d, func() {
		commandWriter.Close()
		replyWriter.Close()
		close(d.closed)
	}
}

func TestSendFramesOnPrompt(t *testing.T) {
	d, stop := fakeDebugger(t)
	defer stop()

	reply, err := d.send("T")
	require.NoError(t, err)
	assert.Equal(t, "echo T", reply)
}

func TestConcurrentSendsResolveInOrder(t *testing.T) {
	d, stop := fakeDebugger(t)
	defer stop()

	const commands = 20
	var wg sync.WaitGroup
	for i := 0; i < commands; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			command := fmt.Sprintf("cmd-%d", n)
			reply, err := d.send(command)
			if assert.NoError(t, err) {
				// The i-th prompt resolves the i-th command: every caller
				// sees exactly its own echo, never a neighbour's.
				assert.Equal(t, "echo "+command, reply)
			}
		}(i)
	}
	wg.Wait()
}

func TestEvaluateDereferencesHashes(t *testing.T) {
	d, stop := fakeDebugger(t)
	defer stop()

	reply, err := d.Evaluate("%opts")
	require.NoError(t, err)
	assert.Equal(t, `echo x \%opts`, reply)

	reply, err = d.Evaluate("$scalar")
	require.NoError(t, err)
	assert.Equal(t, "echo x $scalar", reply)
}

func TestSendAfterClose(t *testing.T) {
	d, stop := fakeDebugger(t)
	stop()

	_, err := d.send("T")
	assert.ErrorIs(t, err, ErrClosed)
}
