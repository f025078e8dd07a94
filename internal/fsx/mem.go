package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Mem is an in-memory [FS] implementation for unit tests.
//
// It is deliberately simple: no fault injection, no crash simulation. Tests
// that need to exercise [AtomicWriter]'s or [Locker]'s crash-window behavior
// use [Real] against a [testing.T.TempDir] instead, since those properties
// depend on real rename/fsync semantics that an in-memory fake cannot
// faithfully reproduce.
type Mem struct {
	mu      sync.Mutex
	files   map[string]*memInode
	dirs    map[string]bool
	nextIno uint64
}

type memInode struct {
	ino     uint64
	data    []byte
	mode    os.FileMode
	modTime time.Time
}

// NewMem returns an empty in-memory filesystem rooted at "/".
func NewMem() *Mem {
	return &Mem{
		files: make(map[string]*memInode),
		dirs:  map[string]bool{"/": true, ".": true},
	}
}

func (m *Mem) clean(path string) string {
	return filepath.Clean(path)
}

func (m *Mem) Open(path string) (File, error) {
	return m.OpenFile(path, os.O_RDONLY, 0)
}

func (m *Mem) Create(path string) (File, error) {
	return m.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (m *Mem) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	inode, exists := m.files[path]

	if !exists {
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}

		dir := filepath.Dir(path)
		if !m.dirs[dir] {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}

		m.nextIno++
		inode = &memInode{ino: m.nextIno, mode: perm, modTime: memNow()}
		m.files[path] = inode
	} else if flag&os.O_EXCL != 0 && flag&os.O_CREATE != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrExist}
	} else if flag&os.O_TRUNC != 0 {
		inode.data = nil
	}

	handle := &memFile{
		mem:      m,
		path:     path,
		inode:    inode,
		writable: flag&(os.O_WRONLY|os.O_RDWR) != 0,
		appendOn: flag&os.O_APPEND != 0,
	}
	if handle.appendOn {
		handle.offset = int64(len(inode.data))
	}

	return handle, nil
}

func (m *Mem) ReadFile(path string) ([]byte, error) {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	inode, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	out := make([]byte, len(inode.data))
	copy(out, inode.data)

	return out, nil
}

func (m *Mem) WriteFile(path string, data []byte, perm os.FileMode) error {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(path)
	if !m.dirs[dir] {
		return &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	inode, ok := m.files[path]
	if !ok {
		m.nextIno++
		inode = &memInode{ino: m.nextIno, mode: perm}
		m.files[path] = inode
	}

	inode.data = append([]byte(nil), data...)
	inode.modTime = memNow()

	return nil
}

// WriteFileAtomic behaves like [Mem.WriteFile]. There is no partial-write
// window to simulate in memory, so this exists only to satisfy [FS].
func (m *Mem) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return m.WriteFile(path, data, perm)
}

func (m *Mem) ReadDir(path string) ([]os.DirEntry, error) {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirs[path] {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	seen := make(map[string]bool)
	var entries []os.DirEntry

	for p := range m.files {
		if filepath.Dir(p) == path {
			name := filepath.Base(p)
			if !seen[name] {
				seen[name] = true
				entries = append(entries, memDirEntry{name: name, isDir: false})
			}
		}
	}

	for d := range m.dirs {
		if d != path && filepath.Dir(d) == path {
			name := filepath.Base(d)
			if !seen[name] {
				seen[name] = true
				entries = append(entries, memDirEntry{name: name, isDir: true})
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	return entries, nil
}

func (m *Mem) MkdirAll(path string, perm os.FileMode) error {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	for cur := path; cur != "." && cur != "/"; cur = filepath.Dir(cur) {
		m.dirs[cur] = true
	}

	return nil
}

func (m *Mem) Stat(path string) (os.FileInfo, error) {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirs[path] {
		return memFileInfo{name: filepath.Base(path), isDir: true}, nil
	}

	inode, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}

	return memFileInfo{name: filepath.Base(path), size: int64(len(inode.data)), mode: inode.mode, modTime: inode.modTime, ino: inode.ino}, nil
}

func (m *Mem) Exists(path string) (bool, error) {
	_, err := m.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

func (m *Mem) Remove(path string) error {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path]; ok {
		delete(m.files, path)
		return nil
	}

	if m.dirs[path] {
		delete(m.dirs, path)
		return nil
	}

	return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
}

func (m *Mem) RemoveAll(path string) error {
	path = m.clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := path + string(os.PathSeparator)
	for p := range m.files {
		if p == path || len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(m.files, p)
		}
	}
	for d := range m.dirs {
		if d == path || len(d) > len(prefix) && d[:len(prefix)] == prefix {
			delete(m.dirs, d)
		}
	}

	return nil
}

func (m *Mem) Rename(oldpath, newpath string) error {
	oldpath = m.clean(oldpath)
	newpath = m.clean(newpath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if inode, ok := m.files[oldpath]; ok {
		m.files[newpath] = inode
		delete(m.files, oldpath)

		return nil
	}

	if m.dirs[oldpath] {
		m.dirs[newpath] = true
		delete(m.dirs, oldpath)

		return nil
	}

	return &os.PathError{Op: "rename", Path: oldpath, Err: os.ErrNotExist}
}

// memNow is a monotonically increasing stand-in clock: tests never assert on
// wall time from Mem, only relative ordering.
var memClock time.Time

func memNow() time.Time {
	memClock = memClock.Add(time.Millisecond)
	return memClock
}

type memFile struct {
	mem      *Mem
	path     string
	inode    *memInode
	offset   int64
	writable bool
	appendOn bool
	closed   bool
}

func (f *memFile) Read(p []byte) (int, error) {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	if f.closed {
		return 0, os.ErrClosed
	}

	if f.offset >= int64(len(f.inode.data)) {
		return 0, io.EOF
	}

	n := copy(p, f.inode.data[f.offset:])
	f.offset += int64(n)

	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	if f.closed {
		return 0, os.ErrClosed
	}

	if !f.writable {
		return 0, &os.PathError{Op: "write", Path: f.path, Err: errors.New("file not opened for writing")}
	}

	if f.appendOn {
		f.offset = int64(len(f.inode.data))
	}

	end := f.offset + int64(len(p))
	if end > int64(len(f.inode.data)) {
		grown := make([]byte, end)
		copy(grown, f.inode.data)
		f.inode.data = grown
	}

	n := copy(f.inode.data[f.offset:end], p)
	f.offset += int64(n)
	f.inode.modTime = memNow()

	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = int64(len(f.inode.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}

	return f.offset, nil
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func (f *memFile) Fd() uintptr {
	return uintptr(f.inode.ino)
}

func (f *memFile) Stat() (os.FileInfo, error) {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	return memFileInfo{name: filepath.Base(f.path), size: int64(len(f.inode.data)), mode: f.inode.mode, modTime: f.inode.modTime, ino: f.inode.ino}, nil
}

func (f *memFile) Sync() error {
	return nil
}

func (f *memFile) Chmod(mode os.FileMode) error {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	f.inode.mode = mode

	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	ino     uint64
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi memFileInfo) IsDir() bool        { return fi.isDir }
func (fi memFileInfo) Sys() any           { return nil }

type memDirEntry struct {
	name  string
	isDir bool
}

func (e memDirEntry) Name() string { return e.name }
func (e memDirEntry) IsDir() bool  { return e.isDir }
func (e memDirEntry) Type() os.FileMode {
	if e.isDir {
		return os.ModeDir
	}
	return 0
}
func (e memDirEntry) Info() (os.FileInfo, error) {
	return memFileInfo{name: e.name, isDir: e.isDir}, nil
}

var (
	_ FS   = (*Mem)(nil)
	_ File = (*memFile)(nil)
)
