package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
)

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

// Tenant tables carry owner_id; the scaffold reminds authors to index it.
var sqlScaffold = template.Must(template.New("gallotrack.sql").Parse(`-- +goose Up
-- +goose StatementBegin
-- version {{.Version}}: scope new tenant tables by owner_id and index it.
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- +goose StatementEnd
`))

// CreateSQLMigration scaffolds a timestamped goose SQL file in dir and
// returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if dir == "" || slug == "" {
		return "", fmt.Errorf("migration needs a dir and a name with letters or digits, got %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := goose.CreateWithTemplate(nil, dir, sqlScaffold, slug, "sql"); err != nil {
		return "", fmt.Errorf("create migration %s: %w", slug, err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("locate created migration %s: %v", slug, err)
	}
	return matches[len(matches)-1], nil
}
