// Package migrations embeds the SQL schema migrations so binaries can run
// them without external file dependencies.
//
// Filenames follow the strict standard 001_name.up.sql / 001_name.down.sql.
// Validate enforces the standard at startup: every migration needs both
// directions and sequence numbers must be gap-free starting at 001.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var FS embed.FS

var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info contains the parsed components of a migration filename.
type Info struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

// Parse extracts sequence, name, and direction from a migration filename.
func Parse(filename string) (Info, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return Info{}, fmt.Errorf(
			"invalid migration filename: %s (expected 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return Info{}, fmt.Errorf("invalid sequence number in %s: %w", filename, err)
	}

	return Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// List returns the embedded migration filenames in lexicographic order.
// Files that do not match the naming standard are rejected with an error
// rather than silently skipped.
func List(filesystem fs.FS) ([]string, error) {
	if filesystem == nil {
		filesystem = FS
	}

	entries, err := fs.ReadDir(filesystem, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !filenameRegex.MatchString(entry.Name()) {
			return nil, fmt.Errorf("migration file violates naming standard: %s", entry.Name())
		}

		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks the embedded migration set: at least one migration exists,
// every up has a matching down, and sequence numbers run 1..N without gaps.
func Validate(filesystem fs.FS) error {
	files, err := List(filesystem)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	directions := make(map[string]map[string]bool) // "001_name" -> direction set
	sequences := make(map[int]bool)

	for _, file := range files {
		info, err := Parse(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][info.Direction] = true
		sequences[info.Sequence] = true
	}

	for key, dirs := range directions {
		if !dirs["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !dirs["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	ordered := make([]int, 0, len(sequences))
	for seq := range sequences {
		ordered = append(ordered, seq)
	}

	sort.Ints(ordered)

	if ordered[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, found %03d", ordered[0])
	}

	for i := 1; i < len(ordered); i++ {
		if ordered[i] != ordered[i-1]+1 {
			return fmt.Errorf(
				"gap in migration sequence: expected %03d, found %03d",
				ordered[i-1]+1, ordered[i],
			)
		}
	}

	return nil
}
