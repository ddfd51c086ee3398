//go:build linux

package indexer

import (
	"io/fs"
	"syscall"
	"time"
)

// createdAt returns the inode change time, the closest to a creation time
// Linux exposes through stat
func createdAt(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
