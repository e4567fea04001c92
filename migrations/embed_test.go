package migrations

import (
	"testing"
	"testing/fstest"
)

func TestParse(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		filename  string
		wantSeq   int
		wantName  string
		wantDir   string
		wantError bool
	}{
		{
			name:     "valid up migration",
			filename: "001_enable_postgis.up.sql",
			wantSeq:  1,
			wantName: "enable_postgis",
			wantDir:  "up",
		},
		{
			name:     "valid down migration",
			filename: "003_create_points.down.sql",
			wantSeq:  3,
			wantName: "create_points",
			wantDir:  "down",
		},
		{
			name:      "missing sequence",
			filename:  "create_points.up.sql",
			wantError: true,
		},
		{
			name:      "two digit sequence",
			filename:  "01_create_points.up.sql",
			wantError: true,
		},
		{
			name:      "hyphenated name",
			filename:  "001_create-points.up.sql",
			wantError: true,
		},
		{
			name:      "missing direction",
			filename:  "001_create_points.sql",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Parse(tt.filename)

			if tt.wantError {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got none", tt.filename)
				}

				return
			}

			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.filename, err)
			}

			if info.Sequence != tt.wantSeq || info.Name != tt.wantName || info.Direction != tt.wantDir {
				t.Errorf("Parse(%q) = %+v, want seq=%d name=%s dir=%s",
					tt.filename, info, tt.wantSeq, tt.wantName, tt.wantDir)
			}
		})
	}
}

func TestValidateEmbedded(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// The real embedded set must always pass validation.
	if err := Validate(nil); err != nil {
		t.Fatalf("embedded migrations failed validation: %v", err)
	}

	files, err := List(nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(files) == 0 {
		t.Fatal("expected embedded migration files, found none")
	}
}

func TestValidateRejectsBrokenSets(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		files []string
	}{
		{
			name:  "missing down migration",
			files: []string{"001_init.up.sql"},
		},
		{
			name:  "missing up migration",
			files: []string{"001_init.down.sql"},
		},
		{
			name: "sequence gap",
			files: []string{
				"001_init.up.sql", "001_init.down.sql",
				"003_later.up.sql", "003_later.down.sql",
			},
		},
		{
			name:  "sequence starts at two",
			files: []string{"002_init.up.sql", "002_init.down.sql"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for _, f := range tt.files {
				fsys[f] = &fstest.MapFile{Data: []byte("SELECT 1;")}
			}

			if err := Validate(fsys); err == nil {
				t.Errorf("Validate accepted broken migration set %v", tt.files)
			}
		})
	}
}
