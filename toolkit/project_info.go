package toolkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// manifestWhitelist are the config manifests probed at the project root to
// identify what kind of project this is.
var manifestWhitelist = []string{
	"package.json",
	"tsconfig.json",
	"go.mod",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"pom.xml",
	"build.gradle",
	"Gemfile",
	"composer.json",
	"Makefile",
	"Dockerfile",
}

// GetProjectInfoInput is the input for the get_project_info tool.
type GetProjectInfoInput struct {
	IncludeStats bool `json:"include_stats,omitempty"`
}

// GetProjectInfoTool reports the project root basename, detected config
// manifests and optional recursive file and directory counts.
type GetProjectInfoTool struct {
	toolkit *Toolkit
}

func (t *GetProjectInfoTool) Name() string {
	return "get_project_info"
}

func (t *GetProjectInfoTool) Description() string {
	return "Returns the project name, which config manifests exist at its root (package.json, go.mod, Cargo.toml and similar), and optionally recursive file and directory counts."
}

func (t *GetProjectInfoTool) Schema() schema.Schema {
	return schema.Schema{
		Type: "object",
		Properties: map[string]*schema.Property{
			"include_stats": {
				Type:        "boolean",
				Description: "Also count files and directories recursively, excluding dotfiles",
			},
		},
	}
}

func (t *GetProjectInfoTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:        "Get Project Info",
		ReadOnlyHint: true,
	}
}

func (t *GetProjectInfoTool) Call(ctx context.Context, tc *loom.ToolContext, input GetProjectInfoInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, "project info")
	result := t.call(tc, input)
	finish(result)
	return result, nil
}

func (t *GetProjectInfoTool) call(tc *loom.ToolContext, input GetProjectInfoInput) *loom.ToolResult {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", filepath.Base(tc.ProjectPath))
	fmt.Fprintf(&sb, "Root: %s\n", tc.ProjectPath)

	var manifests []string
	for _, name := range manifestWhitelist {
		if _, err := os.Stat(filepath.Join(tc.ProjectPath, name)); err == nil {
			manifests = append(manifests, name)
		}
	}
	if len(manifests) > 0 {
		fmt.Fprintf(&sb, "Manifests: %s\n", strings.Join(manifests, ", "))
	} else {
		sb.WriteString("Manifests: none detected\n")
	}

	if input.IncludeStats {
		files, dirs, err := countEntries(tc.ProjectPath)
		if err != nil {
			return loom.NewToolResultError(fmt.Sprintf("failed to count project entries: %v", err))
		}
		fmt.Fprintf(&sb, "Files: %d\nDirectories: %d\n", files, dirs)
	}
	return loom.NewToolResultText(sb.String())
}

// countEntries walks the project counting files and directories, skipping
// dotfiles and dot-directories entirely.
func countEntries(root string) (files, dirs int, err error) {
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			dirs++
		} else {
			files++
		}
		return nil
	})
	return files, dirs, err
}
