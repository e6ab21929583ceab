// Package drive uploads posting artifacts into a Google Drive folder.
package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Config identifies the destination folder.
type Config struct {
	FolderID string
}

// BlobStore creates one Drive file per object. Drive allows duplicate names,
// so writing the same name twice leaves two files.
type BlobStore struct {
	files  *drive.FilesService
	folder string
}

// New builds a Drive client from opts.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*BlobStore, error) {
	if strings.TrimSpace(cfg.FolderID) == "" {
		return nil, fmt.Errorf("blob.drive.folder_id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &BlobStore{files: svc.Files, folder: cfg.FolderID}, nil
}

// Ready checks that the folder exists and is not trashed.
func (s *BlobStore) Ready(ctx context.Context) error {
	f, err := s.files.Get(s.folder).
		Fields("id", "mimeType", "trashed").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("get folder %s: %w", s.folder, err)
	}
	if f.MimeType != folderMimeType {
		return fmt.Errorf("drive file %s is %s, not a folder", s.folder, f.MimeType)
	}
	if f.Trashed {
		return fmt.Errorf("drive folder %s is trashed", s.folder)
	}
	return nil
}

// PutObject uploads r as name and returns a drive:// URI with the new file ID.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	meta := &drive.File{Name: name, Parents: []string{s.folder}}
	call := s.files.Create(meta).Fields("id").SupportsAllDrives(true).Context(ctx)
	if contentType != "" {
		call = call.Media(r, googleapi.ContentType(contentType))
	} else {
		call = call.Media(r)
	}
	f, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("create drive file %s: %w", name, err)
	}
	return fmt.Sprintf("drive://%s/%s", s.folder, f.Id), nil
}
