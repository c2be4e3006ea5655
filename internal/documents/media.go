package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaStore writes rendered documents and uploaded photos to the local
// media directory, one subdirectory per tenant, and hands back the URL
// path the HTTP server serves them under.
type MediaStore struct {
	root    string
	baseURL string
}

func NewMediaStore(root, baseURL string) *MediaStore {
	return &MediaStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root is the directory the HTTP server mounts as the media tree.
func (m *MediaStore) Root() string { return m.root }

// Save writes one file and returns its public URL path.
func (m *MediaStore) Save(tenantID, fileName string, data []byte) (string, error) {
	name := sanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("documents: empty file name")
	}
	dir := filepath.Join(m.root, tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("documents: media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("documents: write %s: %w", name, err)
	}
	return fmt.Sprintf("%s/%s/%s", m.baseURL, tenantID, name), nil
}

// sanitizeFileName keeps the base name and strips anything that could
// escape the tenant directory or break a URL.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
