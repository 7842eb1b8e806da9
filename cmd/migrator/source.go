package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Migration filename standard: 001_create_star_schema.up.sql and its
// matching 001_create_star_schema.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// migrationFile contains parsed information about a single migration file.
type migrationFile struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

// listMigrations returns the sorted migration filenames in fsys that conform
// to the naming standard. Non-conforming .sql files are an error rather than
// being silently skipped: a typo in a filename must not drop a migration.
func listMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		if !migrationFilenameRegex.MatchString(entry.Name()) {
			return nil, fmt.Errorf(
				"invalid migration filename: %s (expected: 001_name.up.sql or 001_name.down.sql)",
				entry.Name(),
			)
		}

		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// validateMigrationSet checks the whole migration set: every file parses,
// every up has a matching down, and sequence numbers start at 001 with no
// gaps. Called before any command touches the database.
func validateMigrationSet(fsys fs.FS) error {
	files, err := listMigrations(fsys)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no migration files found")
	}

	parsed := make([]migrationFile, 0, len(files))

	for _, file := range files {
		m, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		parsed = append(parsed, m)
	}

	if err := validatePairing(parsed); err != nil {
		return err
	}

	return validateSequence(parsed)
}

func parseMigrationFilename(filename string) (migrationFile, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return migrationFile{}, fmt.Errorf(
			"invalid migration filename format: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return migrationFile{}, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return migrationFile{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// validatePairing ensures every up migration has a matching down migration
// and vice versa.
func validatePairing(migrations []migrationFile) error {
	directions := make(map[string]map[string]bool)

	for _, m := range migrations {
		key := fmt.Sprintf("%03d_%s", m.Sequence, m.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][m.Direction] = true
	}

	for key, dirs := range directions {
		if !dirs["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !dirs["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

// validateSequence ensures sequence numbers start at 001 and have no gaps.
func validateSequence(migrations []migrationFile) error {
	seen := make(map[int]bool)

	for _, m := range migrations {
		seen[m.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d",
				sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}
