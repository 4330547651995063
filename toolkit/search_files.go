package toolkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// DefaultIgnorePatterns are skipped during filename search regardless of any
// project-level ignore file.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	".next",
	".venv",
	"__pycache__",
	"*.min.js",
	"*.lock",
}

// ignoreFileNames are probed at the project root, first match wins.
var ignoreFileNames = []string{".gitignore", ".ignore"}

const maxSearchResults = 200

// SearchFilesInput is the input for the search_files tool.
type SearchFilesInput struct {
	Query string `json:"query"`
	Dir   string `json:"dir,omitempty"`
}

// SearchFilesTool finds files whose name contains the query, walking the
// project tree while honouring the default ignore list and any top-level
// ignore file. No lock is taken.
type SearchFilesTool struct {
	toolkit *Toolkit
}

func (t *SearchFilesTool) Name() string {
	return "search_files"
}

func (t *SearchFilesTool) Description() string {
	return "Recursively finds files whose name contains the given text, case-insensitive. Searches the whole project unless a subdirectory is given. Ignored directories like node_modules and .git are skipped. Returns absolute paths."
}

func (t *SearchFilesTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]*schema.Property{
			"query": {
				Type:        "string",
				Description: "Text to match against file names, case-insensitive",
			},
			"dir": {
				Type:        "string",
				Description: "Optional subdirectory to search instead of the whole project",
			},
		},
	}
}

func (t *SearchFilesTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:        "Search Files",
		ReadOnlyHint: true,
	}
}

func (t *SearchFilesTool) Call(ctx context.Context, tc *loom.ToolContext, input SearchFilesInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("search %q", input.Query))
	result := t.call(tc, input)
	finish(result)
	return result, nil
}

func (t *SearchFilesTool) call(tc *loom.ToolContext, input SearchFilesInput) *loom.ToolResult {
	if strings.TrimSpace(input.Query) == "" {
		return loom.NewToolResultError("query is required")
	}
	root := input.Dir
	if root == "" {
		root = tc.ProjectPath
	}
	root, err := ResolveWithin(tc.ProjectPath, root)
	if err != nil {
		return loom.NewToolResultError(err.Error())
	}

	globs, err := compileIgnoreGlobs(t.toolkit.ignorePatterns)
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("invalid ignore pattern: %v", err))
	}
	ignoreFile := loadIgnoreFile(tc.ProjectPath)

	query := strings.ToLower(input.Query)
	var matches []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		name := entry.Name()
		ignored := matchesAnyGlob(globs, name)
		if !ignored && ignoreFile != nil {
			if rel, relErr := filepath.Rel(tc.ProjectPath, path); relErr == nil {
				ignored = ignoreFile.MatchesPath(rel)
			}
		}
		if ignored {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.IsDir() && strings.Contains(strings.ToLower(name), query) {
			matches = append(matches, path)
			if len(matches) >= maxSearchResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("search failed: %v", err))
	}
	if len(matches) == 0 {
		return loom.NewToolResultText(fmt.Sprintf("No files matching %q", input.Query))
	}
	return loom.NewToolResultText(strings.Join(matches, "\n"))
}

func compileIgnoreGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAnyGlob(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func loadIgnoreFile(projectPath string) *ignore.GitIgnore {
	for _, name := range ignoreFileNames {
		path := filepath.Join(projectPath, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		parsed, err := ignore.CompileIgnoreFile(path)
		if err == nil {
			return parsed
		}
	}
	return nil
}
