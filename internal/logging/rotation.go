package logging

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const logFilePrefix = "job-intray_"

// rotate removes the oldest log files in dir when the number of files exceeds maxFiles.
// It only removes files that match the naming pattern "job-intray_*.log".
func rotate(dir string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type logFile struct {
		path    string
		modTime int64
	}
	var logFiles []logFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		var mod int64
		if info, err := entry.Info(); err == nil {
			mod = info.ModTime().UnixNano()
		}
		logFiles = append(logFiles, logFile{path: filepath.Join(dir, name), modTime: mod})
	}
	// The file about to be created counts against the limit.
	excess := len(logFiles) - (maxFiles - 1)
	if excess <= 0 {
		return nil
	}
	sort.Slice(logFiles, func(i, j int) bool {
		if logFiles[i].modTime == logFiles[j].modTime {
			return logFiles[i].path < logFiles[j].path
		}
		return logFiles[i].modTime < logFiles[j].modTime
	})
	for i := 0; i < excess; i++ {
		os.Remove(logFiles[i].path) // ignore errors
	}
	return nil
}
