package executor

import "github.com/go-logr/logr"

// logWriter adapts the test command's stdout/stderr streams to the
// structured logger so subprocess output ends up in the same sink as the
// rest of the executor's logging.
type logWriter struct {
	log logr.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Info(string(p))
	return len(p), nil
}
