package clouddrive

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by operations this adapter does not carry:
// byte streaming (upload/download) and link creation stay with the host.
var ErrNotSupported = errors.New("clouddrive: operation not supported")

// Storage adapts a remote-drive client to the host's generic file-storage
// operations, metadata only.
type Storage struct {
	client   Client
	diskName string
	mirror   *Mirror
}

// NewStorage builds a storage adapter. diskName is stamped onto every
// returned item so the host can route it back to this adapter.
func NewStorage(client Client, diskName string) *Storage {
	return &Storage{client: client, diskName: diskName, mirror: NewMirror(client)}
}

func (s *Storage) stamp(item FileItem) FileItem {
	item.Storage = s.diskName
	return item
}

// List returns the children of a directory, or the item itself for a file.
func (s *Storage) List(ctx context.Context, item FileItem) ([]FileItem, error) {
	if !item.IsDir {
		found, err := s.client.FindFileByPath(ctx, item.Path)
		if err != nil {
			return nil, err
		}
		return []FileItem{s.stamp(found)}, nil
	}
	children, err := s.client.GetSubFiles(ctx, item.Path)
	if err != nil {
		return nil, err
	}
	out := make([]FileItem, 0, len(children))
	for _, child := range children {
		out = append(out, s.stamp(child))
	}
	return out, nil
}

// IterFiles recursively flattens a directory into its leaf files.
func (s *Storage) IterFiles(ctx context.Context, dir FileItem) ([]FileItem, error) {
	if !dir.IsDir {
		return s.List(ctx, dir)
	}
	var files []FileItem
	err := s.mirror.Walk(ctx, dir.Path, func(item FileItem) error {
		if !item.IsDir {
			files = append(files, s.stamp(item))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// GetItem resolves a remote path to its item.
func (s *Storage) GetItem(ctx context.Context, path string) (FileItem, bool, error) {
	item, err := s.client.FindFileByPath(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FileItem{}, false, nil
		}
		return FileItem{}, false, err
	}
	return s.stamp(item), true, nil
}

// Exists reports whether a remote path exists.
func (s *Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, ok, err := s.GetItem(ctx, path)
	return ok, err
}

// Usage reports the drive's space usage.
func (s *Storage) Usage(ctx context.Context) (Usage, error) {
	return s.client.GetSpaceInfo(ctx, "/")
}

// CreateFolder creates a directory under parentPath.
func (s *Storage) CreateFolder(ctx context.Context, parentPath, name string) (FileItem, error) {
	item, err := s.client.CreateFolder(ctx, parentPath, name)
	if err != nil {
		return FileItem{}, err
	}
	return s.stamp(item), nil
}

// Delete removes a file or directory.
func (s *Storage) Delete(ctx context.Context, path string) error {
	return s.client.DeleteFile(ctx, path)
}

// Rename renames a file or directory in place.
func (s *Storage) Rename(ctx context.Context, path, newName string) error {
	return s.client.RenameFile(ctx, path, newName)
}

// Move moves items into destPath.
func (s *Storage) Move(ctx context.Context, paths []string, destPath string) error {
	return s.client.MoveFile(ctx, paths, destPath)
}

// Copy copies items into destPath.
func (s *Storage) Copy(ctx context.Context, paths []string, destPath string) error {
	return s.client.CopyFile(ctx, paths, destPath)
}

// Download is a byte-streaming path and not implemented by this adapter.
func (s *Storage) Download(ctx context.Context, path string) error {
	return ErrNotSupported
}

// Upload is a byte-streaming path and not implemented by this adapter.
func (s *Storage) Upload(ctx context.Context, path string) error {
	return ErrNotSupported
}
