package clouddrive

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a path does not exist on the remote drive.
var ErrNotFound = errors.New("clouddrive: not found")

// FileItem is the host-facing shape of one remote file or directory.
// Path is the full remote path; directories end without a trailing slash.
type FileItem struct {
	Storage  string    `json:"storage,omitempty"`
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id,omitempty"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size,omitempty"`
	ModTime  time.Time `json:"mod_time,omitzero"`
}

// Usage reports drive capacity in bytes.
type Usage struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
	Free  int64 `json:"free"`
}

// Client is the remote-drive surface the adapter needs. Authentication,
// session management and byte streaming live behind the real client; this
// package only drives the metadata operations.
type Client interface {
	GetSubFiles(ctx context.Context, path string) ([]FileItem, error)
	FindFileByPath(ctx context.Context, path string) (FileItem, error)
	GetSpaceInfo(ctx context.Context, path string) (Usage, error)
	CreateFolder(ctx context.Context, parentPath, name string) (FileItem, error)
	DeleteFile(ctx context.Context, path string) error
	RenameFile(ctx context.Context, path, newName string) error
	MoveFile(ctx context.Context, paths []string, destPath string) error
	CopyFile(ctx context.Context, paths []string, destPath string) error
}
