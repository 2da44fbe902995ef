package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/iox"
)

// ResolveFormat picks the capture format for path. An explicit format
// wins; otherwise .hex and .txt files are hex fixtures and anything else
// is auto-detected.
func ResolveFormat(path string, format capture.Format) capture.Format {
	if format != "" && format != capture.FormatAuto {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".txt":
		return capture.FormatHex
	}
	return capture.FormatAuto
}

// LoadCapture reads a whole capture file into memory.
func LoadCapture(path string, format capture.Format) (*LoadedCapture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer iox.DiscardClose(f)

	format = ResolveFormat(path, format)
	r, err := capture.Open(f, format)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}

	events, err := capture.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}

	loaded := &LoadedCapture{Path: path, Format: format, Events: events}
	switch fr := r.(type) {
	case *capture.FrameReader:
		loaded.Format = capture.FormatFramed
		loaded.Info = fr.Info()
	case *capture.RecordReader:
		loaded.Format = capture.FormatRaw
	}
	return loaded, nil
}
