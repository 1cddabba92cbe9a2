package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeromv/zeromv/pkg/errors"
)

// DefaultOutputRoot is the output root used when none is configured.
const DefaultOutputRoot = "outputs"

const (
	viewSuffix     = "_view.png"
	gridSuffix     = "_views_grid.png"
	sheetSuffix    = "_views_sheet.png"
	manifestSuffix = "_manifest.json"
)

// RunContext identifies the output location of one run.
type RunContext struct {
	BaseName   string `json:"base_name"`
	OutputRoot string `json:"output_root"`
	RunDir     string `json:"run_dir"`
}

// BaseName returns the file name of path without directory or extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// NewRunContext derives a run context from an input image path.
func NewRunContext(input, outputRoot string) (RunContext, error) {
	return NewNamedRunContext(BaseName(input), outputRoot)
}

// NewNamedRunContext builds a run context for an explicit base name.
// The base name must be a single path component.
func NewNamedRunContext(base, outputRoot string) (RunContext, error) {
	if err := errors.ValidateBaseName(base); err != nil {
		return RunContext{}, err
	}
	if outputRoot == "" {
		outputRoot = DefaultOutputRoot
	}
	return RunContext{
		BaseName:   base,
		OutputRoot: outputRoot,
		RunDir:     filepath.Join(outputRoot, base),
	}, nil
}

// TileName returns the file name of tile index i.
func (rc RunContext) TileName(i int) string {
	return fmt.Sprintf("%03d_%s%s", i, rc.BaseName, viewSuffix)
}

// TilePath returns the path of tile index i.
func (rc RunContext) TilePath(i int) string {
	return filepath.Join(rc.RunDir, rc.TileName(i))
}

// GridPath returns the path of the composite copy.
func (rc RunContext) GridPath() string {
	return filepath.Join(rc.RunDir, rc.BaseName+gridSuffix)
}

// SheetPath returns the path of the contact sheet.
func (rc RunContext) SheetPath() string {
	return filepath.Join(rc.RunDir, rc.BaseName+sheetSuffix)
}

// ManifestPath returns the path of the result manifest.
func (rc RunContext) ManifestPath() string {
	return filepath.Join(rc.RunDir, rc.BaseName+manifestSuffix)
}

// tilePattern matches tile file names of this run and captures the index.
func (rc RunContext) tilePattern() *regexp.Regexp {
	return regexp.MustCompile(`^(\d{3,})_` + regexp.QuoteMeta(rc.BaseName) + regexp.QuoteMeta(viewSuffix) + `$`)
}

// tileIndex returns the index encoded in a tile file name of this run.
func (rc RunContext) tileIndex(name string) (int, bool) {
	m := rc.tilePattern().FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	i, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return i, true
}
