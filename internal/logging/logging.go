package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup points the standard logger at stdout and, when a file is configured,
// at a size-rotated log file. The returned writer is shared with gorm and the
// returned closer flushes the file.
func Setup(opts Options) (io.Writer, io.Closer) {
	if opts.File == "" {
		log.SetOutput(os.Stdout)
		return os.Stdout, nopCloser{}
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 28
	}
	if dir := filepath.Dir(opts.File); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotating)
	log.SetOutput(out)
	return out, rotating
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
