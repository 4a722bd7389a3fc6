package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// copyFile copies src to dst byte for byte, preserving the file mode
func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// copyDir recursively copies the directory tree rooted at src into dst
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}

		// Symlinks and other irregular files are not state Slipway
		// can restore faithfully; refuse rather than silently skip
		if !info.Mode().IsRegular() {
			return fmt.Errorf("unsupported file type: %s", path)
		}

		return copyFile(path, target, info.Mode())
	})
}

// restorePath replaces the live path with the backup artifact. The live
// path is removed first so a file can replace a directory and vice versa.
func restorePath(src, live string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(live); err != nil {
		return fmt.Errorf("failed to clear live path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
		return err
	}

	if info.IsDir() {
		return copyDir(src, live)
	}
	return copyFile(src, live, info.Mode())
}
