// Package hardlink creates hardlinks from download-client files into the
// media library without duplicating bytes on disk.
//
// Link is idempotent: a destination that already points at the source's
// inode is a safe no-op, so retried calls after partial failures never
// produce side effects beyond the first success. When source and
// destination live on different filesystems, where hardlinks are
// impossible, Link falls back to a full copy and reports that distinctly
// since it changes disk-usage semantics.
package hardlink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Result describes how Link satisfied a request.
type Result int

const (
	// ResultCreated means a new hardlink was created.
	ResultCreated Result = iota

	// ResultAlreadyLinked means the destination already pointed at the
	// source's data; nothing was done.
	ResultAlreadyLinked

	// ResultCopied means the source was copied because a hardlink could
	// not cross a filesystem boundary.
	ResultCopied
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	switch r {
	case ResultCreated:
		return "created"
	case ResultAlreadyLinked:
		return "already_linked"
	case ResultCopied:
		return "copied"
	default:
		return "unknown"
	}
}

// LinkError wraps a filesystem failure with the paths involved.
type LinkError struct {
	Source string
	Dest   string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("failed to link %s to %s: %v", e.Source, e.Dest, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// ErrDestinationExists is returned when the destination exists but is not
// a hardlink to the source.
var ErrDestinationExists = fmt.Errorf("destination exists and is a different file")

// Link creates a hardlink from source to dest, creating dest's parent
// directory if needed. It falls back to copying across filesystem
// boundaries.
func Link(source, dest string) (Result, error) {
	if _, err := os.Stat(source); err != nil {
		return 0, &LinkError{Source: source, Dest: dest, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, &LinkError{Source: source, Dest: dest, Err: err}
	}

	if _, err := os.Lstat(dest); err == nil {
		linked, err := AreHardlinked(source, dest)
		if err == nil && linked {
			return ResultAlreadyLinked, nil
		}
		return 0, &LinkError{Source: source, Dest: dest, Err: ErrDestinationExists}
	}

	err := os.Link(source, dest)
	if err == nil {
		return ResultCreated, nil
	}

	if isCrossDevice(err) {
		if err := copyFile(source, dest); err != nil {
			return 0, &LinkError{Source: source, Dest: dest, Err: err}
		}
		return ResultCopied, nil
	}

	return 0, &LinkError{Source: source, Dest: dest, Err: err}
}

// copyFile copies source to dest via a temporary file in dest's directory
// so a crash never leaves a truncated file at the final path.
func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
