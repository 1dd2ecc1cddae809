// Package logging points the standard logger at stderr and, optionally, a
// rotating log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the standard logger to stderr, teeing into file when it is
// set. The returned writer is shared with the HTTP request logger and the
// close function releases the file.
func Setup(file string) (io.Writer, func() error) {
	if file == "" {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
		return os.Stderr, func() error { return nil }
	}

	logFile := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, logFile)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags)
	return w, logFile.Close
}
