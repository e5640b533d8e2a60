package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"

	"SceneToVideo-server/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Storage MinIO 对象存储，生成产物转存后通过预签名 URL 访问
type Storage struct {
	client *minio.Client
	cfg    config.MinIO
}

// NewStorage 初始化连接，在启动时调用
func NewStorage(cfg config.MinIO) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("MinIO 连接成功")
	return &Storage{client: client, cfg: cfg}, nil
}

// Upload 上传到 <folder>/<uuid><ext>，返回对象 key 和预签名 URL。
// URL 有效期为 presign_hours，需要长期保存的是 key。
func (s *Storage) Upload(ctx context.Context, data []byte, folder, ext string) (string, string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", "", err
	}

	objectName := ObjectName(folder, ext)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(ext),
	})
	if err != nil {
		return "", "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}
	log.Ctx(ctx).Debug().Str("object", objectName).Int("bytes", len(data)).Msg("文件已上传")

	signed, err := s.PresignURL(ctx, objectName)
	if err != nil {
		return "", "", err
	}
	return objectName, signed, nil
}

// UploadBase64 上传 base64 数据，兼容 data URI 前缀
func (s *Storage) UploadBase64(ctx context.Context, b64, folder, ext string) (string, string, error) {
	if i := strings.Index(b64, ","); strings.HasPrefix(b64, "data:") && i >= 0 {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", "", fmt.Errorf("decode base64: %w", err)
	}
	return s.Upload(ctx, data, folder, ext)
}

// PresignURL 为已上传的对象生成新的签名 URL
func (s *Storage) PresignURL(ctx context.Context, key string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.PresignExpiry(), make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return presignedURL.String(), nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 Bucket 失败: %w", err)
	}
	log.Ctx(ctx).Info().Str("bucket", s.cfg.Bucket).Msg("Bucket 已创建")
	return nil
}

// ObjectName 例如 scenes/<scene_id>/<uuid>.mp4
func ObjectName(folder, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()+ext)
}

// ContentType 根据文件扩展名确定
func ContentType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "mp4":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}
