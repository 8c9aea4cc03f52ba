// Package logging provides date-rotated output files for record sinks.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// Options configures a Rotator. Files are named <Prefix>_<YYYY-MM-DD>.<Ext>.
type Options struct {
	Dir    string
	Prefix string
	Ext    string
	UTC    bool
}

// Rotator is an io.Writer that starts a new file when the date changes and
// gzips the previous one in the background.
type Rotator struct {
	opts        Options
	logger      *logrus.Logger
	now         func() time.Time
	currentFile *os.File
	currentDate string
	mutex       sync.RWMutex
	compressing sync.WaitGroup
}

// NewRotator creates the directory and opens today's file
func NewRotator(opts Options, logger *logrus.Logger) (*Rotator, error) {
	return newRotator(opts, logger, time.Now)
}

func newRotator(opts Options, logger *logrus.Logger, now func() time.Time) (*Rotator, error) {
	if opts.Prefix == "" {
		opts.Prefix = "tracks"
	}
	if opts.Ext == "" {
		opts.Ext = "log"
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	r := &Rotator{
		opts:   opts,
		logger: logger,
		now:    now,
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.rotate(r.date()); err != nil {
		return nil, fmt.Errorf("failed to initialize output file: %w", err)
	}
	return r, nil
}

func (r *Rotator) date() string {
	now := r.now()
	if r.opts.UTC {
		now = now.UTC()
	}
	return now.Format("2006-01-02")
}

func (r *Rotator) fileName(date string) string {
	return filepath.Join(r.opts.Dir, fmt.Sprintf("%s_%s.%s", r.opts.Prefix, date, r.opts.Ext))
}

// Write appends p to the current file, rotating first if the date changed
func (r *Rotator) Write(p []byte) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.currentFile == nil {
		return 0, fmt.Errorf("rotator is closed")
	}
	if date := r.date(); date != r.currentDate {
		r.logger.WithFields(logrus.Fields{
			"old_date": r.currentDate,
			"new_date": date,
		}).Info("Rotating output file")
		if err := r.rotate(date); err != nil {
			return 0, err
		}
	}
	return r.currentFile.Write(p)
}

// rotate closes the current file, schedules its compression and opens the
// file for date. Callers hold the mutex.
func (r *Rotator) rotate(date string) error {
	if r.currentFile != nil {
		if err := r.currentFile.Close(); err != nil {
			r.logger.WithError(err).Error("Failed to close old output file")
		}
		old := r.fileName(r.currentDate)
		r.compressing.Add(1)
		go func() {
			defer r.compressing.Done()
			r.compress(old)
		}()
	}

	name := r.fileName(date)
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", name, err)
	}

	r.currentFile = file
	r.currentDate = date
	r.logger.WithField("file", name).Info("Created new output file")
	return nil
}

// compress gzips a finished file and removes the original
func (r *Rotator) compress(name string) {
	target := name + ".gz"
	log := r.logger.WithFields(logrus.Fields{
		"source": name,
		"target": target,
	})

	src, err := os.Open(name)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Error("Failed to open file for compression")
		}
		return
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		log.WithError(err).Error("Failed to create compressed file")
		return
	}

	gz := gzip.NewWriter(dst)
	gz.Name = filepath.Base(name)
	gz.ModTime = r.now()

	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		log.WithError(err).Error("Failed to compress file")
		return
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		log.WithError(err).Error("Failed to close gzip writer")
		return
	}
	if err := dst.Close(); err != nil {
		log.WithError(err).Error("Failed to close compressed file")
		return
	}
	if err := os.Remove(name); err != nil {
		log.WithError(err).Error("Failed to remove original file")
		return
	}
	log.Debug("File compressed")
}

// CurrentFile returns the path of the file being written
func (r *Rotator) CurrentFile() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.currentDate == "" {
		return ""
	}
	return r.fileName(r.currentDate)
}

// Files lists every file of this rotator, compressed ones included
func (r *Rotator) Files() ([]string, error) {
	pattern := filepath.Join(r.opts.Dir, fmt.Sprintf("%s_*.%s*", r.opts.Prefix, r.opts.Ext))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Cleanup removes files last modified more than maxDays ago
func (r *Rotator) Cleanup(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("maxDays must be positive")
	}

	files, err := r.Files()
	if err != nil {
		return err
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.CurrentFile()
	removed := 0
	for _, file := range files {
		if file == current {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("Failed to stat file")
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				r.logger.WithError(err).WithField("file", file).Error("Failed to remove old file")
				continue
			}
			removed++
		}
	}

	r.logger.WithField("count", removed).Info("Cleaned up old output files")
	return nil
}

// Close closes the current file and waits for pending compressions
func (r *Rotator) Close() error {
	r.mutex.Lock()
	var err error
	if r.currentFile != nil {
		err = r.currentFile.Close()
		r.currentFile = nil
	}
	r.mutex.Unlock()

	r.compressing.Wait()
	return err
}
