package lift

import (
	"fmt"
	"strings"
)

// plexLabels names the menu size of each assay version as it appears in
// scale factor column names.
var plexLabels = map[string]string{
	"v4.0": "5K",
	"v4.1": "7K",
	"v5.0": "11K",
}

// matrixAliases maps StudyMatrix header values to the matrix names used by
// lift paths.
var matrixAliases = map[string]string{
	"EDTA Plasma": "Plasma",
	"Plasma":      "Plasma",
}

// Path is one supported signal space conversion for a sample matrix.
type Path struct {
	From   string
	To     string
	Matrix string
}

// ScalarColumn returns the annotations column holding the per-analyte
// factors of p, e.g. "Plasma Scalar v4.0 5K to v4.1 7K".
func (p Path) ScalarColumn() string {
	return fmt.Sprintf("%s Scalar %s to %s", p.Matrix, versionLabel(p.From), versionLabel(p.To))
}

func (p Path) String() string {
	return fmt.Sprintf("%s -> %s (%s)", p.From, p.To, p.Matrix)
}

func versionLabel(v string) string {
	if plex, ok := plexLabels[v]; ok {
		return v + " " + plex
	}
	return v
}

// PathTable lists every supported conversion. Order matters: with no
// explicit target the first path from the source version is used.
type PathTable []Path

// DefaultPaths returns the conversions with published scale factors.
func DefaultPaths() PathTable {
	return PathTable{
		{From: "v4.0", To: "v4.1", Matrix: "Plasma"},
	}
}

// NormalizeMatrix maps a StudyMatrix header value to a lift path matrix.
func NormalizeMatrix(studyMatrix string) string {
	m := strings.TrimSpace(studyMatrix)
	if alias, ok := matrixAliases[m]; ok {
		return alias
	}
	return m
}

// Matrices returns the distinct matrices in table order.
func (t PathTable) Matrices() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range t {
		if !seen[p.Matrix] {
			seen[p.Matrix] = true
			out = append(out, p.Matrix)
		}
	}
	return out
}

// SupportsMatrix reports whether any path covers matrix.
func (t PathTable) SupportsMatrix(matrix string) bool {
	for _, p := range t {
		if p.Matrix == matrix {
			return true
		}
	}
	return false
}

// From returns the paths starting at version for matrix.
func (t PathTable) From(version, matrix string) []Path {
	var out []Path
	for _, p := range t {
		if p.From == version && p.Matrix == matrix {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the path from -> to for matrix.
func (t PathTable) Find(from, to, matrix string) (Path, bool) {
	for _, p := range t {
		if p.From == from && p.To == to && p.Matrix == matrix {
			return p, true
		}
	}
	return Path{}, false
}

// describe renders the distinct version pairs, e.g. `from "v4.0" to "v4.1"`.
func (t PathTable) describe() string {
	var parts []string
	seen := make(map[string]bool)
	for _, p := range t {
		s := fmt.Sprintf("from %q to %q", p.From, p.To)
		if !seen[s] {
			seen[s] = true
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
