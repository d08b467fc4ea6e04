//go:build !windows

package fileaio

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sirtoolchain/sircc/internal/problem"
)

const maxPathLen = 4096

// Sandbox resolves guest paths relative to a root directory fd using
// segment-wise openat(O_DIRECTORY|O_NOFOLLOW) (spec.md §4.7
// "Sandbox"). When disabled, paths are passed through verbatim after
// a length check (spec.md's opt-in "trusted" mode).
type Sandbox struct {
	rootFd  int
	enabled bool
}

// NewSandbox opens root as the sandbox root directory. An empty root
// disables sandboxing.
func NewSandbox(root string) (*Sandbox, error) {
	if root == "" {
		return &Sandbox{enabled: false}, nil
	}
	fd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("fileaio: opening sandbox root %q: %w", root, err)
	}
	return &Sandbox{rootFd: fd, enabled: true}, nil
}

// Close releases the sandbox root directory fd, if any.
func (s *Sandbox) Close() {
	if s.enabled {
		unix.Close(s.rootFd)
	}
}

// Resolve opens the terminal path component relative to the sandbox
// root with O_NOFOLLOW plus extraFlags, returning its fd. It never
// dereferences a symlink at any path segment (spec.md §4.7).
func (s *Sandbox) Resolve(path string, extraFlags int, mode uint32) (int, problem.Kind, error) {
	if !s.enabled {
		if len(path) >= maxPathLen {
			return -1, problem.RuntimeInvalid, fmt.Errorf("path too long")
		}
		fd, err := unix.Open(path, extraFlags, mode)
		if err != nil {
			return -1, errnoKind(err), err
		}
		return fd, problem.None, nil
	}

	if !strings.HasPrefix(path, "/") {
		return -1, problem.RuntimeInvalid, fmt.Errorf("path must be absolute")
	}
	if strings.IndexByte(path, 0) >= 0 {
		return -1, problem.RuntimeInvalid, fmt.Errorf("path contains NUL byte")
	}

	segs := splitSegments(path)
	dirFd := s.rootFd
	opened := -1
	defer func() {
		if opened >= 0 && opened != s.rootFd {
			unix.Close(opened)
		}
	}()

	for i, seg := range segs {
		if len(seg) > 255 {
			return -1, problem.RuntimeInvalid, fmt.Errorf("path segment too long")
		}
		if seg == "." {
			continue
		}
		if seg == ".." {
			return -1, problem.RuntimeDenied, fmt.Errorf("path escapes sandbox root")
		}
		last := i == len(segs)-1
		if !last {
			fd, err := unix.Openat(dirFd, seg, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
			if err != nil {
				return -1, errnoKind(err), fmt.Errorf("fileaio: traversing %q: %w", seg, err)
			}
			if opened >= 0 && opened != s.rootFd {
				unix.Close(opened)
			}
			dirFd = fd
			opened = fd
			continue
		}
		fd, err := unix.Openat(dirFd, seg, extraFlags|unix.O_NOFOLLOW|unix.O_CLOEXEC, mode)
		if err != nil {
			return -1, errnoKind(err), fmt.Errorf("fileaio: opening %q: %w", seg, err)
		}
		return fd, problem.None, nil
	}
	// path was "/" itself
	fd, err := unix.Openat(dirFd, ".", extraFlags|unix.O_CLOEXEC, mode)
	if err != nil {
		return -1, errnoKind(err), err
	}
	return fd, problem.None, nil
}

// StatNoFollow performs fstatat(AT_SYMLINK_NOFOLLOW) on path, failing
// with DENIED if the terminal entry is a symlink rather than
// dereferencing it (spec.md §4.7, used by UNLINK/RMDIR/STAT).
func (s *Sandbox) StatNoFollow(path string) (unix.Stat_t, problem.Kind, error) {
	var st unix.Stat_t
	if !s.enabled {
		if err := unix.Lstat(path, &st); err != nil {
			return st, errnoKind(err), err
		}
		if st.Mode&unix.S_IFMT == unix.S_IFLNK {
			return st, problem.RuntimeDenied, fmt.Errorf("fileaio: terminal entry is a symlink")
		}
		return st, problem.None, nil
	}

	fd, kind, err := s.resolveParent(path)
	if err != nil {
		return st, kind, err
	}
	defer func() {
		if fd != s.rootFd {
			unix.Close(fd)
		}
	}()

	leaf := lastSegment(path)
	if err := unix.Fstatat(fd, leaf, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return st, errnoKind(err), err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return st, problem.RuntimeDenied, fmt.Errorf("fileaio: terminal entry is a symlink")
	}
	return st, problem.None, nil
}

// resolveParent walks every segment but the last, returning an open
// fd for the containing directory.
func (s *Sandbox) resolveParent(path string) (int, problem.Kind, error) {
	segs := splitSegments(path)
	dirFd := s.rootFd
	for i, seg := range segs {
		if i == len(segs)-1 {
			break
		}
		if seg == "." {
			continue
		}
		if seg == ".." {
			return -1, problem.RuntimeDenied, fmt.Errorf("path escapes sandbox root")
		}
		fd, err := unix.Openat(dirFd, seg, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err != nil {
			return -1, errnoKind(err), err
		}
		if dirFd != s.rootFd {
			unix.Close(dirFd)
		}
		dirFd = fd
	}
	return dirFd, problem.None, nil
}

func splitSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

func lastSegment(path string) string {
	segs := splitSegments(path)
	if len(segs) == 0 {
		return "."
	}
	return segs[len(segs)-1]
}

func errnoKind(err error) problem.Kind {
	errno, ok := err.(unix.Errno)
	if !ok {
		return problem.RuntimeIO
	}
	switch errno {
	case unix.ENOENT:
		return problem.RuntimeNotFound
	case unix.EACCES, unix.EPERM, unix.ELOOP:
		return problem.RuntimeDenied
	case unix.EINVAL, unix.ENAMETOOLONG:
		return problem.RuntimeInvalid
	case unix.EAGAIN:
		return problem.RuntimeAgain
	case unix.ENOMEM:
		return problem.RuntimeOOM
	default:
		return problem.RuntimeIO
	}
}
