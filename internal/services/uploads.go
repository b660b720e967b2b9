package services

// 图片上传：本地目录存储，按 <bucket>/<folder>/<uuid>.<ext> 组织，并通过 public_path 对外提供。

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"madajagad/internal/config"
)

// DefaultUploadFolder 未指定目录时使用。
const DefaultUploadFolder = "misc"

var folderPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Upload 描述一次成功的上传。
type Upload struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
	MIME   string `json:"mime"`
	Size   int64  `json:"size"`
}

// UploadService 负责校验与落盘上传文件。
type UploadService struct {
	cfg config.UploadConfig
}

func NewUploadService(cfg config.UploadConfig) *UploadService { return &UploadService{cfg: cfg} }

func (s *UploadService) bucketAllowed(bucket string) bool {
	for _, b := range s.cfg.Buckets {
		if b == bucket {
			return true
		}
	}
	return false
}

// Save 读取 r（至多 MaxBytes），嗅探 MIME 类型，仅接受位图图片。
func (s *UploadService) Save(ctx context.Context, bucket, folder string, r io.Reader) (*Upload, error) {
	var v validator
	if !s.bucketAllowed(bucket) {
		v.fail("bucket", "not_allowed")
	}
	folder = strings.ToLower(strings.TrimSpace(folder))
	if folder == "" {
		folder = DefaultUploadFolder
	}
	if !folderPattern.MatchString(folder) {
		v.fail("folder", "invalid")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrUnsupportedFile
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") || mt.Is("image/svg+xml") {
		return nil, ErrUnsupportedFile
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := uuid.NewString() + mt.Extension()
	rel := path.Join(bucket, folder, name)
	dst := filepath.Join(s.cfg.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return nil, err
	}
	return &Upload{
		Bucket: bucket,
		Path:   rel,
		URL:    s.PublicURL(rel),
		MIME:   mt.String(),
		Size:   int64(len(data)),
	}, nil
}

// PublicURL 将相对路径转换为对外访问地址。
func (s *UploadService) PublicURL(rel string) string {
	return strings.TrimSuffix(s.cfg.PublicPath, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// Remove 删除已上传文件；接受相对路径或 PublicURL 返回的地址。
func (s *UploadService) Remove(ctx context.Context, p string) error {
	rel, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.cfg.Dir, filepath.FromSlash(rel))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// resolve 归一化路径并拒绝越界访问。
func (s *UploadService) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if i := strings.Index(p, s.cfg.PublicPath+"/"); i >= 0 && s.cfg.PublicPath != "" {
		p = p[i+len(s.cfg.PublicPath)+1:]
	}
	if strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", &ValidationError{Fields: map[string]string{"path": "invalid"}}
	}
	clean := path.Clean("/" + p)[1:]
	parts := strings.Split(clean, "/")
	if len(parts) != 3 || !s.bucketAllowed(parts[0]) || !folderPattern.MatchString(parts[1]) {
		return "", &ValidationError{Fields: map[string]string{"path": "invalid"}}
	}
	return clean, nil
}
