package document

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Resolver maps request paths onto files. Relative paths are looked up under
// the configured base directory, or the working directory when none is set.
type Resolver struct {
	baseDir string
}

// NewResolver creates a Resolver rooted at baseDir. An empty baseDir means
// relative paths resolve against the working directory only.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// BaseDir returns the configured base directory.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Resolve returns the path of an existing regular file for path.
func (r *Resolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", &PathError{Path: path, Err: eris.New("empty path")}
	}

	if filepath.IsAbs(path) {
		if isFile(path) {
			return path, nil
		}
		return "", &PathError{Path: path}
	}

	candidate := path
	if r.baseDir != "" {
		candidate = filepath.Join(r.baseDir, path)
	}
	if !isFile(candidate) {
		return "", &PathError{Path: path}
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return candidate, nil
	}
	return abs, nil
}

// Load resolves path and reads the file. It returns the bytes and the resolved path.
func (r *Resolver) Load(path string) ([]byte, string, error) {
	resolved, err := r.Resolve(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, "", &PathError{Path: path, Err: eris.Wrap(err, "document: read file")}
	}
	return data, resolved, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
