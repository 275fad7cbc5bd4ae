package storage

import (
	"time"

	"github.com/dustin/go-humanize"
)

// isoMillis matches what browsers print for Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FileStatus is one entry of a directory listing.
type FileStatus struct {
	Size         string `json:"size"`
	LastModified string `json:"lastModified"`
	Owner        string `json:"owner"`
	File         string `json:"file"`
}

func newFileStatus(name string, size int64, modTime time.Time, owner string) FileStatus {
	if size < 0 {
		size = 0
	}
	return FileStatus{
		Size:         humanize.Bytes(uint64(size)),
		LastModified: modTime.UTC().Format(isoMillis),
		Owner:        owner,
		File:         name,
	}
}
