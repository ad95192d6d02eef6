// services/coverart_service.go
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"game-library-system/utils"

	"github.com/gosimple/slug"
)

// Cover images larger than this are left at the provider URL.
const maxCoverBytes = 5 * 1024 * 1024

// CoverArtService mirrors provider cover images into R2 so the frontend
// serves them from our CDN instead of hot-linking four different platforms.
// Downloads run through the pool's cover class; a mirror failure is always
// degradable — the caller keeps the provider URL.
type CoverArtService struct {
	Pool   *FetchPool
	client *http.Client
}

func NewCoverArtService(pool *FetchPool) *CoverArtService {
	return &CoverArtService{Pool: pool, client: utils.HTTPClient}
}

// MirrorCover downloads sourceURL and re-uploads it, returning the CDN URL.
func (s *CoverArtService) MirrorCover(ctx context.Context, provider, titleID, name, sourceURL string) (string, error) {
	if !utils.R2Enabled() {
		return "", fmt.Errorf("R2 mirroring not configured")
	}
	var cdnURL string
	err := s.Pool.Run(ctx, ClassCovers, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cover download returned %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
		if err != nil {
			return err
		}
		if len(data) > maxCoverBytes {
			return fmt.Errorf("cover exceeds %d bytes", maxCoverBytes)
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		key := coverKey(provider, titleID, name, sourceURL)
		cdnURL, err = utils.UploadBytesToR2(ctx, key, data, contentType)
		return err
	})
	return cdnURL, err
}

func coverKey(provider, titleID, name, sourceURL string) string {
	ext := path.Ext(sourceURL)
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return fmt.Sprintf("covers/%s/%s-%s%s", provider, slug.Make(name), slug.Make(titleID), ext)
}
