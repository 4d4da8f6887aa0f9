package data

import (
	"encoding/json"
	"time"
)

// FileStat is the low-level description of a single object returned by a backend.
type FileStat struct {
	// Canonical key relative to the backend root
	Key string `json:"key"`

	// Unix-style mode and permissions
	Mode FileMode `json:"mode"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	ModifyTime time.Time `json:"modify_time"`
	CreateTime time.Time `json:"create_time"`

	// Content MIME type
	ContentType ContentType `json:"content_type"`

	ETag string `json:"etag,omitempty"`
}

// Name returns the last segment of the key.
func (fs *FileStat) Name() string {
	return BaseName(fs.Key)
}

func (fs *FileStat) IsDir() bool {
	return fs.Mode.IsDir()
}

// Marshal provides JSON serialization for FileStat.
func (fs *FileStat) Marshal() ([]byte, error) {
	return json.Marshal(fs)
}

// Unmarshal provides JSON deserialization for FileStat.
func (fs *FileStat) Unmarshal(data []byte) error {
	return json.Unmarshal(data, fs)
}

// NewDirectoryStat describes a directory that has no stored metadata of its own,
// such as an implicit archive directory or a key prefix.
func NewDirectoryStat(key string, modTime time.Time) *FileStat {
	return &FileStat{
		Key:         key,
		Mode:        ModeDir | 0755,
		ModifyTime:  modTime,
		CreateTime:  modTime,
		ContentType: ContentTypeDirectory,
	}
}

// NewFileStat describes a regular file.
func NewFileStat(key string, size int64, modTime time.Time) *FileStat {
	return &FileStat{
		Key:         key,
		Mode:        0644,
		Size:        size,
		ModifyTime:  modTime,
		CreateTime:  modTime,
		ContentType: GetMIMEType(key),
	}
}
