package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rrens/policy-assistant/internal/domain"
)

// Store keeps uploaded files in a shared temporary directory until they are relayed
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates the upload directory if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory files are written to
func (s *Store) Dir() string {
	return s.dir
}

// StoredName builds the collision-avoiding name for an original filename:
// the unix millisecond timestamp, a dash, then the base name.
func StoredName(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), cleanName(original))
}

// OriginalName strips the timestamp prefix StoredName adds
func OriginalName(storedName string) string {
	storedName = cleanName(storedName)
	i := strings.IndexByte(storedName, '-')
	if i <= 0 {
		return storedName
	}
	for _, r := range storedName[:i] {
		if r < '0' || r > '9' {
			return storedName
		}
	}
	return storedName[i+1:]
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

// Save copies a multipart file into the directory
func (s *Store) Save(header *multipart.FileHeader) (*domain.Upload, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	storedName := StoredName(s.now(), header.Filename)
	destPath := filepath.Join(s.dir, storedName)

	dst, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", storedName, err)
	}

	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("failed to write %s: %w", storedName, err)
	}

	return &domain.Upload{
		OriginalName: header.Filename,
		StoredName:   storedName,
		Size:         size,
		MimeType:     header.Header.Get("Content-Type"),
	}, nil
}

// Path resolves a stored name inside the directory. Anything but the base name is discarded.
func (s *Store) Path(storedName string) string {
	return filepath.Join(s.dir, cleanName(storedName))
}

// Exists reports whether a stored file is still present
func (s *Store) Exists(storedName string) bool {
	info, err := os.Stat(s.Path(storedName))
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a stored file. Already-missing files are not an error.
func (s *Store) Remove(storedName string) error {
	err := os.Remove(s.Path(storedName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep removes files last modified before now-maxAge and returns how many were removed
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload dir: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := s.Remove(entry.Name()); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	return removed, nil
}
