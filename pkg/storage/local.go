package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalArchive implements Archive on the local filesystem. Layout:
// <base>/<tenant>/<sha12>_<filename> with metadata sidecars under
// <base>/<tenant>/.meta/<sha>.json.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates the base directory if needed.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

func (s *LocalArchive) Store(_ context.Context, tenantID, filename, contentType string, data []byte) (*FileInfo, bool, error) {
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	if info, err := s.readMeta(tenantID, sha); err == nil {
		return info, true, nil
	}

	tenantDir := filepath.Join(s.basePath, sanitizeName(tenantID))
	if err := os.MkdirAll(tenantDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create tenant directory: %w", err)
	}

	storedName := sha[:12] + "_" + sanitizeName(filename)
	path := filepath.Join(tenantDir, storedName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, false, fmt.Errorf("write archived file: %w", err)
	}

	info := &FileInfo{
		SHA256:      sha,
		Name:        filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		Path:        storedName,
		StoredAt:    time.Now().UTC(),
	}
	if err := s.writeMeta(tenantID, info); err != nil {
		os.Remove(path)
		return nil, false, err
	}
	return info, false, nil
}

func (s *LocalArchive) Open(_ context.Context, tenantID, sha256Hex string) (io.ReadCloser, *FileInfo, error) {
	info, err := s.readMeta(tenantID, sha256Hex)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, sanitizeName(tenantID), info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("open archived file: %w", err)
	}
	return f, info, nil
}

func (s *LocalArchive) List(_ context.Context, tenantID string) ([]*FileInfo, error) {
	metaDir := filepath.Join(s.basePath, sanitizeName(tenantID), ".meta")
	entries, err := os.ReadDir(metaDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archive metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := s.readMeta(tenantID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		files = append(files, info)
	}
	return files, nil
}

func (s *LocalArchive) Delete(_ context.Context, tenantID, sha256Hex string) error {
	info, err := s.readMeta(tenantID, sha256Hex)
	if err != nil {
		return err
	}
	tenantDir := filepath.Join(s.basePath, sanitizeName(tenantID))
	if err := os.Remove(filepath.Join(tenantDir, info.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete archived file: %w", err)
	}
	os.Remove(filepath.Join(tenantDir, ".meta", sha256Hex+".json"))
	return nil
}

// Verify re-hashes an archived file against its recorded digest.
func (s *LocalArchive) Verify(ctx context.Context, tenantID, sha256Hex string) error {
	r, info, err := s.Open(ctx, tenantID, sha256Hex)
	if err != nil {
		return err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("hash archived file: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != info.SHA256 {
		return fmt.Errorf("archive corruption: %s stored as %s hashes to %s", info.Name, info.SHA256, got)
	}
	return nil
}

func (s *LocalArchive) metaPath(tenantID, sha string) string {
	return filepath.Join(s.basePath, sanitizeName(tenantID), ".meta", sha+".json")
}

func (s *LocalArchive) readMeta(tenantID, sha string) (*FileInfo, error) {
	data, err := os.ReadFile(s.metaPath(tenantID, sha))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file not archived: %s", sha)
	}
	if err != nil {
		return nil, fmt.Errorf("read archive metadata: %w", err)
	}
	var info FileInfo
	if err := json.Unmarshal(bytes.TrimSpace(data), &info); err != nil {
		return nil, fmt.Errorf("parse archive metadata: %w", err)
	}
	return &info, nil
}

func (s *LocalArchive) writeMeta(tenantID string, info *FileInfo) error {
	metaDir := filepath.Join(s.basePath, sanitizeName(tenantID), ".meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, info.SHA256+".json"), data, 0o644); err != nil {
		return fmt.Errorf("write archive metadata: %w", err)
	}
	return nil
}

// sanitizeName strips path separators and shell-hostile characters.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
