// Package vcs resolves the revision marker that, with the repository id,
// identifies one immutable analysis snapshot.
package vcs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/zeebo/xxh3"
)

// RevisionMarker returns the git HEAD hash for root when it is a working
// tree, and a content fingerprint otherwise. Re-analysis of unchanged
// input yields the same marker either way.
func RevisionMarker(root string) string {
	if rev, ok := gitHead(root); ok {
		return rev
	}
	return treeFingerprint(root)
}

func gitHead(root string) (string, bool) {
	repo, err := gogit.PlainOpenWithOptions(root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	return head.Hash().String(), true
}

// treeFingerprint hashes the sorted (path, size, mtime) listing of the
// tree. Cheaper than hashing content; stable while the tree is untouched.
func treeFingerprint(root string) string {
	var lines []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fs.SkipDir
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		lines = append(lines, fmt.Sprintf("%s|%d|%d",
			filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano()))
		return nil
	})
	sort.Strings(lines)
	return fmt.Sprintf("dir-%016x", xxh3.HashString(strings.Join(lines, "\n")))
}
