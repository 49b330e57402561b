package logger

import (
	"github.com/op/go-logging"
)

// UploadProgressLogger logs the progress of a minio PutObject call.
// Pass it as PutObjectOptions.Progress.
type UploadProgressLogger struct {
	logger         *logging.Logger
	chunkNumber    int
	totalBytes     int64
	fileSize       int64
	lastPctPrinted float64
	prefix         string
}

const _1MB = int64(1048576)
const _10MB = int64(10485760)

// NewUploadProgressLogger creates a new UploadProgressLogger.
func NewUploadProgressLogger(logger *logging.Logger, prefix string, fileSize int64) *UploadProgressLogger {
	return &UploadProgressLogger{
		logger:         logger,
		prefix:         prefix,
		chunkNumber:    1,
		totalBytes:     0,
		lastPctPrinted: 0.0,
		fileSize:       fileSize,
	}
}

// Read fulfills the io.Reader interface that minio uses to report
// progress. Minio calls it with a slice whose length is the number of
// bytes just sent.
func (e *UploadProgressLogger) Read(p []byte) (n int, err error) {
	e.totalBytes += int64(len(p))
	if e.logger == nil || e.fileSize <= 0 {
		return len(p), nil
	}
	pctComplete := (float64(e.totalBytes) / float64(e.fileSize)) * 100
	if e.shouldPrint(pctComplete) {
		e.logger.Infof("%s : chunk %d, %d of %d bytes, %3.2f%% complete",
			e.prefix, e.chunkNumber, e.totalBytes, e.fileSize, pctComplete)
		e.lastPctPrinted = pctComplete
	}
	e.chunkNumber++
	return len(p), nil
}

// BytesSent returns the number of bytes reported so far.
func (e *UploadProgressLogger) BytesSent() int64 {
	return e.totalBytes
}

// shouldPrint returns true if the logger should print a message to the log.
// Spreadsheets under a megabyte upload in one go, so we don't log them.
func (e *UploadProgressLogger) shouldPrint(pctComplete float64) bool {
	diff := pctComplete - e.lastPctPrinted
	if e.fileSize > _10MB {
		return diff >= 10.0
	}
	if e.fileSize > _1MB {
		return diff >= 25.0
	}
	return false
}
