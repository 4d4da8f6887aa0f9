package data

import "io/fs"

// FileMode represents file mode and permission bits.
// It follows Unix file mode conventions with type and permission bits.
type FileMode uint32

const (
	// Type bits
	ModeDir     FileMode = 1 << 31 // d: directory
	ModeSymlink FileMode = 1 << 30 // L: link declaration

	// Permission bits
	ModePerm FileMode = 0777
)

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool {
	return m&ModeDir != 0
}

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool {
	return m&(ModeDir|ModeSymlink) == 0
}

// Perm returns the Unix permission bits in m.
func (m FileMode) Perm() FileMode {
	return m & ModePerm
}

// FromFileMode converts an fs.FileMode as reported by the operating system.
func FromFileMode(mode fs.FileMode) FileMode {
	m := FileMode(mode.Perm())
	if mode.IsDir() {
		m |= ModeDir
	}
	if mode&fs.ModeSymlink != 0 {
		m |= ModeSymlink
	}
	return m
}

// String returns the mode in 'ls -l' format, e.g. "drwxr-xr-x".
func (m FileMode) String() string {
	var buf [10]byte
	switch {
	case m.IsDir():
		buf[0] = 'd'
	case m&ModeSymlink != 0:
		buf[0] = 'L'
	default:
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}
