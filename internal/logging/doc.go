// Package logging configures slog for imagedex.
//
// Without --debug the default slog handler is left alone. With --debug,
// JSON records go to a size-rotated file under ~/.imagedex/logs and,
// outside of serve mode, to stderr as well. The Viewer reads those files
// back for the logs command.
package logging
