// Package scope decides whether a tool call's path arguments stay inside a
// working directory.
package scope

import (
	"strings"

	"github.com/TheLazyLemur/pathscope/internal/pathnorm"
)

// WorkingDirectoryKey is the metadata key that carries the scope boundary.
const WorkingDirectoryKey = "workingDirectory"

// ResolverName is the registry name of the path scope resolver.
const ResolverName = "pathScopeResolver"

// Arguments are the raw arguments of one tool call, keyed by parameter name.
type Arguments map[string]any

// Metadata is per-call context supplied by the dispatch layer.
type Metadata map[string]any

// WorkingDirectory returns the configured boundary, or "" when unset.
func (m Metadata) WorkingDirectory() string {
	wd, _ := m[WorkingDirectoryKey].(string)
	return wd
}

// pathFields are scanned in order before any bulk items.
var pathFields = []string{"path", "file_path", "directory", "oldPath", "newPath"}

// ExtractPaths returns every non-empty path-bearing string in args, in scan
// order. Duplicates are kept.
func ExtractPaths(args Arguments) []string {
	var paths []string
	for _, field := range pathFields {
		if s, ok := args[field].(string); ok && s != "" {
			paths = append(paths, s)
		}
	}
	for _, item := range MoveItems(args) {
		if item.OldPath != "" {
			paths = append(paths, item.OldPath)
		}
		if item.NewPath != "" {
			paths = append(paths, item.NewPath)
		}
	}
	return paths
}

// IsWithinScope reports whether candidate is workingDirectory or lies below it.
func IsWithinScope(candidate, workingDirectory string) bool {
	target := pathnorm.NormalizeForScope(candidate)
	root := pathnorm.NormalizeForScope(workingDirectory)
	// a root working directory matches only itself: "/" + "/" is "//"
	return target == root || strings.HasPrefix(target, root+"/")
}

// OutsidePaths returns the candidates in args that escape workingDirectory.
func OutsidePaths(args Arguments, workingDirectory string) []string {
	var outside []string
	for _, p := range ExtractPaths(args) {
		if !IsWithinScope(p, workingDirectory) {
			outside = append(outside, p)
		}
	}
	return outside
}

// ResolvePathScope reports whether a tool call needs human intervention
// because a path argument leaves the working directory. Without a working
// directory in md it never intervenes.
func ResolvePathScope(args Arguments, md Metadata) bool {
	wd := md.WorkingDirectory()
	if wd == "" {
		return false
	}
	for _, p := range ExtractPaths(args) {
		if !IsWithinScope(p, wd) {
			return true
		}
	}
	return false
}

// PathScopeResolver adapts ResolvePathScope to the dynamic resolver registry.
type PathScopeResolver struct{}

func (PathScopeResolver) Resolve(args Arguments, md Metadata) bool {
	return ResolvePathScope(args, md)
}

// Explain lists the offending paths; empty when no working directory is set.
func (PathScopeResolver) Explain(args Arguments, md Metadata) []string {
	wd := md.WorkingDirectory()
	if wd == "" {
		return nil
	}
	return OutsidePaths(args, wd)
}
