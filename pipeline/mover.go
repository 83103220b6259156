package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"newsxtract/resolve"
)

// RemoteStructure carries the city/year/month context a remote run derives
// from URL segments, needed by the replicate layout (spec.md §4.5).
type RemoteStructure struct {
	City, Year, Month string
}

// MoveRequest is everything the mover needs to place one qualifying image.
type MoveRequest struct {
	ActualImagePath string
	Destination     string
	Layout          string // "flat" or "replicate"
	OriginalRoot    string
	SourceDir       string // dir(actualImagePath), used to compute the replicate-layout relative path
	Remote          *RemoteStructure
}

// Move copies actualImagePath into the destination tree per spec.md §4.5.
// Preconditions (filter passed, move.enabled, imageExists, recognized
// extension) are the caller's responsibility — Move only validates that the
// source file and a usable image extension exist.
func Move(req MoveRequest) (destPath string, ok bool, err error) {
	ext := filepath.Ext(req.ActualImagePath)
	if !resolve.IsRecognizedImageExtension(ext) {
		return "", false, fmt.Errorf("move: %q is not a recognized image extension", ext)
	}
	if _, statErr := os.Stat(req.ActualImagePath); statErr != nil {
		return "", false, fmt.Errorf("move: source does not exist: %w", statErr)
	}

	destDir, err := destinationDir(req)
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", false, fmt.Errorf("move: creating destination directory: %w", err)
	}

	base := filepath.Base(req.ActualImagePath)
	dest := filepath.Join(destDir, base)
	if _, statErr := os.Stat(dest); statErr == nil {
		dest = suffixedPath(destDir, base)
	}

	if err := copyFile(req.ActualImagePath, dest); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

func destinationDir(req MoveRequest) (string, error) {
	if req.Layout == "flat" {
		return req.Destination, nil
	}

	if req.Remote != nil {
		return filepath.Join(req.Destination, req.Remote.City, req.Remote.Year, req.Remote.Month, "media"), nil
	}

	rel, err := filepath.Rel(req.OriginalRoot, req.SourceDir)
	if err != nil {
		return "", fmt.Errorf("move: computing relative destination: %w", err)
	}
	return filepath.Join(req.Destination, rel), nil
}

// suffixedPath resolves a basename collision by appending _<unixMillis>
// before the extension (spec.md §4.5).
func suffixedPath(dir, base string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	suffixed := stem + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + ext
	return filepath.Join(dir, suffixed)
}

// copyFile performs an atomic temp-file-then-rename copy, adapted from the
// teacher's copyFileWithHash: the move is a copy (source preserved), so no
// hash is needed here, only the safe-write discipline.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("move: stat source: %w", err)
	}

	tmpDst := dst + ".tmp"
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move: open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(tmpDst)
	if err != nil {
		return fmt.Errorf("move: create temp file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpDst)
		return fmt.Errorf("move: copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpDst)
		return fmt.Errorf("move: sync: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpDst)
		return fmt.Errorf("move: close temp file: %w", err)
	}

	_ = os.Chtimes(tmpDst, srcInfo.ModTime(), srcInfo.ModTime())

	if err := os.Rename(tmpDst, dst); err != nil {
		os.Remove(tmpDst)
		return fmt.Errorf("move: rename temp file to destination: %w", err)
	}
	return nil
}
