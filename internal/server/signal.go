package server

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/devildex/devildex/internal/docset"
)

// signalFileName is the pollable artifact written next to each docset. A
// viewer that cannot hold an SSE connection polls this file (or the buildid
// endpoint) and reloads when the value changes.
const signalFileName = "current_build_id"

// SignalWriter maintains the build-id artifacts under the docset root.
type SignalWriter struct {
	root string
}

func NewSignalWriter(root string) *SignalWriter {
	return &SignalWriter{root: root}
}

func (s *SignalWriter) path(t docset.Target) string {
	return filepath.Join(s.root, docset.NormalizeName(t.PackageName), t.Version, string(t.Backend), signalFileName)
}

// Write publishes the build id for a target. The write is atomic: a reader
// never observes a partial value.
func (s *SignalWriter) Write(t docset.Target, buildID int64) error {
	dest := s.path(t)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(buildID, 10)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// Read returns the last published build id for a target, or 0 when no build
// has been published yet.
func (s *SignalWriter) Read(t docset.Target) (int64, error) {
	data, err := os.ReadFile(s.path(t))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// Remove deletes the artifact, used when a docset is deleted.
func (s *SignalWriter) Remove(t docset.Target) error {
	err := os.Remove(s.path(t))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
