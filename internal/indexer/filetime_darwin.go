//go:build darwin

package indexer

import (
	"io/fs"
	"syscall"
	"time"
)

// createdAt returns the file birth time
func createdAt(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
	}
	return info.ModTime()
}
