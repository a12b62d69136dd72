package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Downloader stores an exported file and returns where it went.
type Downloader interface {
	Save(ctx context.Context, f File) (string, error)
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// Opener opens a local document in a new browsing context.
type Opener interface {
	Open(path string) error
}

// ClipboardFunc adapts a function to Clipboard.
type ClipboardFunc func(string) error

func (f ClipboardFunc) WriteText(text string) error { return f(text) }

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(string) error

func (f OpenerFunc) Open(path string) error { return f(path) }

// ClipboardDeniedError means the system clipboard refused the write and the
// text went to the fallback instead.
type ClipboardDeniedError struct {
	FallbackPath string
	Err          error
}

func (e ClipboardDeniedError) Error() string {
	if e.FallbackPath != "" {
		return fmt.Sprintf("clipboard unavailable, copied text saved to %s", e.FallbackPath)
	}
	return "clipboard unavailable"
}

func (e ClipboardDeniedError) Unwrap() error { return e.Err }

// PopupBlockedError means the print document could not be opened.
type PopupBlockedError struct {
	Path string
	Err  error
}

func (e PopupBlockedError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("could not open print view, document saved to %s", e.Path)
	}
	return "could not open print view"
}

func (e PopupBlockedError) Unwrap() error { return e.Err }

// DirDownloader writes files into Dir. A file appears under its final name
// only once fully written.
type DirDownloader struct {
	Dir string
}

func (d DirDownloader) Save(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.New("export has no filename")
	}
	final := filepath.Join(dir, name)
	if err := writeAtomic(dir, final, f.Body); err != nil {
		return "", err
	}
	return final, nil
}

// FallbackClipboard keeps copied text in a hidden file when the system
// clipboard cannot be used. LastPath reports where the text went.
type FallbackClipboard struct {
	Dir      string
	LastPath string
}

func (c *FallbackClipboard) WriteText(text string) error {
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, ".hive-clipboard-*.tsv")
	if err != nil {
		return fmt.Errorf("create clipboard fallback: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write clipboard fallback: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	c.LastPath = f.Name()
	return nil
}

func writeAtomic(dir, final string, body []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("rename %s: %w", final, err)
	}
	return nil
}
