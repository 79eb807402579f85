package task

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source is the origin of a Copy task: either a physical path or a virtual
// file tree such as an embedded asset bundle.
type Source interface {
	isSource()
	String() string
}

// PathSource is a file or directory on disk.
type PathSource string

func (PathSource) isSource() {}

func (p PathSource) String() string { return string(p) }

// FSSource is a directory inside a virtual file tree.
type FSSource struct {
	FS   fs.FS
	Root string
}

func (FSSource) isSource() {}

func (s FSSource) String() string {
	root := s.Root
	if root == "" {
		root = "."
	}
	return "fs:" + root
}

// Copy mirrors a source tree into a destination directory, optionally
// skipping files that end with IgnoreSuffix and entries listed in Skip.
// Symbolic links are followed: the copy holds the linked content.
type Copy struct {
	Base
	Source       Source
	Dest         string
	IgnoreSuffix string
	// Skip holds slash-separated paths relative to the source root that are
	// left out together with everything below them.
	Skip map[string]struct{}
}

// NewCopy constructs a copy task.
func NewCopy(src Source, dest string, opts ...Option) *Copy {
	return &Copy{
		Base:   newBase("copy-tree", ModeThreaded, opts),
		Source: src,
		Dest:   dest,
	}
}

// Ignoring sets the suffix filter and returns the task for chaining.
func (c *Copy) Ignoring(suffix string) *Copy {
	c.IgnoreSuffix = suffix
	return c
}

// Skipping excludes the given relative paths and returns the task for
// chaining.
func (c *Copy) Skipping(rels ...string) *Copy {
	for _, rel := range rels {
		rel = path.Clean(filepath.ToSlash(rel))
		if rel == "." || rel == "" {
			continue
		}
		if c.Skip == nil {
			c.Skip = make(map[string]struct{}, len(rels))
		}
		c.Skip[rel] = struct{}{}
	}
	return c
}

// Run implements Task.Run.
func (c *Copy) Run(ctx context.Context) error {
	switch src := c.Source.(type) {
	case PathSource:
		return c.copyPath(ctx, string(src))
	case FSSource:
		if src.FS == nil {
			return fmt.Errorf("%w: nil fs", ErrUnsupportedSource)
		}
		root := src.Root
		if root == "" {
			root = "."
		}
		return c.copyTree(ctx, src.FS, root, c.Dest, ".")
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedSource, c.Source)
	}
}

func (c *Copy) ignored(name string) bool {
	return c.IgnoreSuffix != "" && strings.HasSuffix(name, c.IgnoreSuffix)
}

func (c *Copy) skipped(rel string) bool {
	_, ok := c.Skip[rel]
	return ok
}

func (c *Copy) copyPath(ctx context.Context, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fsError("stat", src, err)
	}
	if !info.IsDir() {
		if c.ignored(info.Name()) {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(c.Dest), 0o755); err != nil {
			return fsError("mkdir", filepath.Dir(c.Dest), err)
		}
		return copyDiskFile(src, c.Dest, info)
	}
	return c.copyDir(ctx, src, c.Dest, ".", map[string]bool{})
}

// copyDir walks one physical directory. Links to directories are walked in
// place of the link; active holds the resolved directories currently being
// copied so a link back to an ancestor fails instead of recursing forever.
func (c *Copy) copyDir(ctx context.Context, src, dest, prefix string, active map[string]bool) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fsError("resolve", src, err)
	}
	if active[resolved] {
		return fsError("walk", src, errSymlinkLoop)
	}
	active[resolved] = true
	defer delete(active, resolved)

	return filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fsError("walk", p, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return fsError("rel", p, err)
		}
		if c.skipped(path.Join(prefix, filepath.ToSlash(rel))) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fsError("mkdir", target, err)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fsError("stat", p, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if info, err = os.Stat(p); err != nil {
				return fsError("stat", p, err)
			}
			if info.IsDir() {
				return c.copyDir(ctx, p, target, path.Join(prefix, filepath.ToSlash(rel)), active)
			}
		}
		if c.ignored(d.Name()) {
			return nil
		}
		if !info.Mode().IsRegular() {
			return fsError("copy", p, errNotRegular)
		}
		return copyDiskFile(p, target, info)
	})
}

// copyTree walks a virtual tree one directory at a time, recursing into
// subdirectories within the same task.
func (c *Copy) copyTree(ctx context.Context, fsys fs.FS, dir, dest, rel string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fsError("mkdir", dest, err)
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fsError("readdir", dir, err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		entryRel := path.Join(rel, entry.Name())
		if c.skipped(entryRel) {
			continue
		}
		srcPath := path.Join(dir, entry.Name())
		target := filepath.Join(dest, entry.Name())
		if entry.IsDir() {
			if err := c.copyTree(ctx, fsys, srcPath, target, entryRel); err != nil {
				return err
			}
			continue
		}
		if c.ignored(entry.Name()) {
			continue
		}
		if err := copyVirtualFile(fsys, srcPath, target); err != nil {
			return err
		}
	}
	return nil
}

func copyDiskFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fsError("open", src, err)
	}
	defer in.Close()
	if err := writeFile(dst, in, info.Mode().Perm()|0o200); err != nil {
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fsError("chtimes", dst, err)
	}
	return nil
}

func copyVirtualFile(fsys fs.FS, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fsError("open", src, err)
	}
	defer in.Close()
	return writeFile(dst, in, 0o644)
}

func writeFile(dst string, r io.Reader, perm fs.FileMode) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fsError("create", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fsError("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return fsError("close", dst, err)
	}
	return nil
}
