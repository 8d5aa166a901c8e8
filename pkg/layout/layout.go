// Package layout maps video identifiers to their on-disk artifacts:
//
//	<root>/hls/<id>/master.m3u8
//	<root>/hls/<id>/<rendition>/index.m3u8
//	<root>/hls/<id>/<rendition>/segment_000.ts
//	<root>/thumbnail/<id>.jpg
package layout

import (
	"errors"
	"fmt"
	"github.com/google/uuid"
	"os"
	"path/filepath"
	"strings"
)

const (
	HLSDir             = "hls"
	ThumbnailDir       = "thumbnail"
	ManifestName       = "index.m3u8"
	MasterManifestName = "master.m3u8"
	SegmentPattern     = "segment_%03d.ts"
	SegmentExt         = ".ts"

	stagingDir = ".staging"
)

var ErrInvalidPath = errors.New("path escapes media root")

type Layout struct {
	root string
}

// New returns a layout rooted at root, which must be absolute.
func New(root string) (*Layout, error) {
	if root == "" || !filepath.IsAbs(root) {
		return nil, fmt.Errorf("media root must be an absolute path, got %q", root)
	}
	return &Layout{root: filepath.Clean(root)}, nil
}

func (l *Layout) Root() string {
	return l.root
}

func (l *Layout) HLSRoot() string {
	return filepath.Join(l.root, HLSDir)
}

func (l *Layout) VideoDir(id uuid.UUID) string {
	return filepath.Join(l.root, HLSDir, id.String())
}

func (l *Layout) ThumbnailPath(id uuid.UUID) string {
	return filepath.Join(l.root, ThumbnailDir, id.String()+".jpg")
}

func (l *Layout) RenditionDir(id uuid.UUID, rendition string) string {
	return filepath.Join(l.VideoDir(id), rendition)
}

func (l *Layout) ManifestPath(id uuid.UUID, rendition string) string {
	return filepath.Join(l.RenditionDir(id, rendition), ManifestName)
}

func (l *Layout) SegmentPath(id uuid.UUID, rendition, segment string) string {
	return filepath.Join(l.RenditionDir(id, rendition), segment)
}

func (l *Layout) MasterManifestPath(id uuid.UUID) string {
	return filepath.Join(l.VideoDir(id), MasterManifestName)
}

// StagingDir is where a rendition is encoded before it is swapped into
// RenditionDir. It lives inside the video tree so cleanup removes it too.
func (l *Layout) StagingDir(id uuid.UUID, rendition string) string {
	return filepath.Join(l.VideoDir(id), stagingDir, rendition)
}

func (l *Layout) StagingRoot(id uuid.UUID) string {
	return filepath.Join(l.VideoDir(id), stagingDir)
}

// SourceDir is where uploaded originals are stored.
func (l *Layout) SourceDir(sub string) string {
	return filepath.Join(l.root, sub)
}

// EnsureDir creates path and any missing parents. path must be inside the
// media root.
func (l *Layout) EnsureDir(path string) error {
	if !l.Contains(path) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return os.MkdirAll(path, 0o755)
}

// Contains reports whether path, cleaned lexically, is strictly below the
// media root. It does not follow symlinks; see Resolve.
func (l *Layout) Contains(path string) bool {
	return within(l.root, filepath.Clean(path))
}

// Resolve canonicalizes candidate, following symlinks, and returns it only
// if the result is strictly below base, which itself must resolve inside
// the media root. A missing candidate returns an os.ErrNotExist error.
func (l *Layout) Resolve(base, candidate string) (string, error) {
	root, err := filepath.EvalSymlinks(l.root)
	if err != nil {
		return "", err
	}
	if !within(l.root, filepath.Clean(base)) || !within(l.root, filepath.Clean(candidate)) {
		return "", ErrInvalidPath
	}

	resolvedBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", err
	}
	if !within(root, resolvedBase) {
		return "", ErrInvalidPath
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", err
	}
	if !within(resolvedBase, resolved) {
		return "", ErrInvalidPath
	}
	return resolved, nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
