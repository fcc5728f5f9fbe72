// Package authcheck statically scans scripts and source for writes to the
// protected tables that never take the write-auth grant. It backs the
// ci-check command: the database triggers already reject unauthorized
// writes at runtime, the scanner rejects them at review time.
package authcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// writePatterns match statements that mutate the protected tables,
// whether the table is named literally (SQL and shell scripts) or through
// the config constants (Go sources).
var writePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(INSERT\s+INTO|UPDATE|DELETE\s+FROM)\s+(teams|matches)\b`),
	regexp.MustCompile(`(INSERT\s+INTO|UPDATE|DELETE\s+FROM)\s*` + "`" + `\s*\+\s*config\.(TeamsTable|MatchesTable)`),
}

// defaultMarkers are the authorization calls whose presence anywhere in a
// file clears it: the SQL grant itself, the pool wrappers, and the
// operator-level dispatcher built on them.
var defaultMarkers = []string{
	"authorize_pipeline_write",
	"WithPipelineAuth",
	"WithPipelineTx",
	"runTx",
}

var scannedExtensions = map[string]bool{
	".go":  true,
	".sql": true,
	".sh":  true,
}

// Violation is one file that writes a protected table without any
// authorization marker.
type Violation struct {
	Path    string
	Line    int
	Matched string
}

// Options configure a scan.
type Options struct {
	// Roots are the directories to walk. Empty means the working
	// directory.
	Roots []string
	// Allowlist entries exempt a file, matched against the walk-relative
	// path or the base name.
	Allowlist []string
	// Markers override the default authorization patterns.
	Markers []string
}

// Scan walks the roots and returns every unauthorized write, sorted by
// path.
func Scan(opts Options) ([]Violation, error) {
	roots := opts.Roots
	if len(roots) == 0 {
		roots = []string{"."}
	}
	markers := opts.Markers
	if len(markers) == 0 {
		markers = defaultMarkers
	}

	var violations []Violation
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && skipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}
			if !scannable(name) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			if allowlisted(rel, name, opts.Allowlist) {
				return nil
			}

			v, err := scanFile(path, markers)
			if err != nil {
				return err
			}
			if v != nil {
				v.Path = filepath.ToSlash(filepath.Join(root, rel))
				violations = append(violations, *v)
			}
			return nil
		})
		if err != nil {
			return violations, fmt.Errorf("scan %s: %w", root, err)
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return violations, nil
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	return name == "node_modules" || name == "vendor" || name == "testdata"
}

func scannable(name string) bool {
	if strings.HasSuffix(name, "_test.go") {
		return false
	}
	return scannedExtensions[filepath.Ext(name)]
}

func allowlisted(rel, base string, allowlist []string) bool {
	rel = filepath.ToSlash(rel)
	for _, entry := range allowlist {
		if entry == rel || entry == base {
			return true
		}
	}
	return false
}

// scanFile returns the file's first unauthorized write, or nil when the
// file is clean or carries an authorization marker.
func scanFile(path string, markers []string) (*Violation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	var first []int
	for _, pat := range writePatterns {
		loc := pat.FindStringIndex(content)
		if loc == nil {
			continue
		}
		if first == nil || loc[0] < first[0] {
			first = loc
		}
	}
	if first == nil {
		return nil, nil
	}

	for _, marker := range markers {
		if strings.Contains(content, marker) {
			return nil, nil
		}
	}

	return &Violation{
		Line:    1 + strings.Count(content[:first[0]], "\n"),
		Matched: strings.Join(strings.Fields(content[first[0]:first[1]]), " "),
	}, nil
}
