package migration

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// New migrations are seeded with the same header block the existing files
// carry, so headers stay greppable across the directory.
var (
	upTemplate = template.Must(template.New("up").Parse(`-- {{.Name}}
-- Created {{.Timestamp}}
-- {{.Description}}

-- SQL below is applied by 'migrate up'.

`))

	downTemplate = template.Must(template.New("down").Parse(`-- {{.Name}} rollback
-- Created {{.Timestamp}}
-- Reverts: {{.Description}}

-- SQL below is applied by 'migrate down'.

`))
)

// MigrationFile describes a generated up/down pair.
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes a new up/down migration pair into dir.
// The version prefix is the creation time in YYYYMMDDHHMMSS form so files
// sort in application order.
func CreateMigration(dir, name, description string) (*MigrationFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	now := time.Now()
	version := now.Format("20060102150405")
	base := version + "_" + sanitizeName(name)

	file := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
		UpPath:      filepath.Join(dir, base+upSuffix),
		DownPath:    filepath.Join(dir, base+downSuffix),
	}

	if err := writeFromTemplate(file.UpPath, upTemplate, file); err != nil {
		return nil, fmt.Errorf("write up migration: %w", err)
	}
	if err := writeFromTemplate(file.DownPath, downTemplate, file); err != nil {
		// Don't leave a dangling up file behind
		_ = os.Remove(file.UpPath)
		return nil, fmt.Errorf("write down migration: %w", err)
	}

	return file, nil
}

// writeFromTemplate renders the template and writes the file in one shot
func writeFromTemplate(path string, tmpl *template.Template, data *MigrationFile) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render migration template: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// sanitizeName converts a migration name into a safe lowercase file name.
// Letters and digits pass through, runs of separators collapse to a single
// underscore, and other characters are dropped.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, c := range []byte(name) {
		switch {
		case 'A' <= c && c <= 'Z':
			c += 'a' - 'A'
			fallthrough
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteByte(c)
		case c == ' ', c == '-', c == '_':
			pendingSep = true
		}
	}

	return b.String()
}

// ListMigrations returns the base names of all migration pairs in dir.
func ListMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	migrations := make([]string, 0, len(entries)/2)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), upSuffix) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), upSuffix)
		if base == "" {
			continue
		}
		migrations = append(migrations, base)
	}

	return migrations, nil
}
