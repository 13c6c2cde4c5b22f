package server

import (
	"log/slog"
	"os"
)

// fatalExit is indirected so tests can observe a fatal call without
// actually terminating the test binary.
var fatalExit = os.Exit

// Fatal logs msg at error level and terminates the process. Persistence
// errors and cryptographic invariant failures are fatal per spec.md §7
// ("continuing would risk pairing database corruption"); the host
// watchdog is expected to restart the accessory.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, args...)
	fatalExit(1)
}
