package filedb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// fs.go provides the backend layer for persistence of a Connector. The
// functions in this file are called internally by methods of Connector.

// createFileBackup makes a duplicate of file in the same location with '.bak'
// appended to its filename. Any existing backup is overwritten.
//
// returns path to new backup file and any error that occurred.
func createFileBackup(file string) (string, error) {
	backupDir := filepath.Dir(file)
	backupName := filepath.Base(file) + ".bak"

	buPath := filepath.Join(backupDir, backupName)

	rf, err := os.Open(file)
	if err != nil {
		return buPath, fmt.Errorf("open original: %w", err)
	}
	defer rf.Close()
	wf, err := os.Create(buPath)
	if err != nil {
		return buPath, fmt.Errorf("create backup: %w", err)
	}
	defer wf.Close()

	r := bufio.NewReader(rf)
	w := bufio.NewWriter(wf)

	_, err = io.Copy(w, r)
	if err != nil {
		return buPath, fmt.Errorf("copy data to backup: %w", err)
	}
	if err := w.Flush(); err != nil {
		return buPath, fmt.Errorf("flush backup: %w", err)
	}

	return buPath, nil
}

// writeFile replaces the contents of file with data, keeping a backup of the
// old contents until the write has fully succeeded.
func writeFile(file string, data []byte) error {
	buFile, err := createFileBackup(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// nothing to back up yet
			buFile = ""
		} else {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	wf, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	defer wf.Close()

	w := bufio.NewWriter(wf)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}

	if buFile != "" {
		os.Remove(buFile)
	}
	return nil
}
