// Package thumbnail fetches the broadcast's thumbnail image, either to
// embed into the final container or to save alongside it (§4.7/§4.8).
package thumbnail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Fetch downloads url to path, matching the teacher's download_thumbnail:
// a short timeout, and any failure removes a possibly-created empty file
// rather than leaving a zero-byte thumbnail behind.
func Fetch(ctx context.Context, url, path string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download thumbnail: status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to download thumbnail: %w", err)
	}
	return nil
}
