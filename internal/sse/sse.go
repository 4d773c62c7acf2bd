// Package sse factors out the "data: " server-sent-event line scanning
// that several provider adapters need for streaming chat completions.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Done is the sentinel payload that marks the end of a stream, matching
// the OpenAI streaming convention.
const Done = "[DONE]"

// ErrStop is returned by onData to stop scanning early without it being
// treated as a failure, for providers whose own event payload (rather
// than a "[DONE]" line) marks the end of the stream.
var ErrStop = errors.New("sse: stop scanning")

// ScanDataLines reads Server-Sent Events from r, invoking onData with the
// payload of each "data: " line. Scanning stops cleanly when the Done
// sentinel is seen, onData returns ErrStop, or r is exhausted. Any other
// error from onData stops scanning and is returned to the caller.
func ScanDataLines(r io.Reader, onData func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == Done {
			return nil
		}
		if err := onData(data); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}
