package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	_ "golang.org/x/image/webp"
)

// ImageFetcher 读取参考图，支持 http(s) URL 与 data URI
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (io.ReadCloser, error)
}

type HTTPImageFetcher struct {
	Client *http.Client
}

func (f *HTTPImageFetcher) Fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	if strings.HasPrefix(ref, "data:") {
		comma := strings.Index(ref, ",")
		if comma < 0 || !strings.Contains(ref[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data uri")
		}
		data, err := base64.StdEncoding.DecodeString(ref[comma+1:])
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// probeAspectRatio 把参考图落到临时文件读取尺寸，任何路径退出都删除临时文件
func probeAspectRatio(ctx context.Context, fetcher ImageFetcher, tempDir, ref string) (string, error) {
	rc, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp(tempDir, "refimg-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", fmt.Errorf("stage reference image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("decode reference image: %w", err)
	}
	return AspectRatioOf(cfg.Width, cfg.Height), nil
}
