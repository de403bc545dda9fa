package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/version"
)

const (
	userAgent         = "Parley updater/%s"
	DefaultRetryDelay = 3 * time.Second
	maxRetries        = 2
)

// ErrTooLarge is returned when a body exceeds the caller supplied limit
var ErrTooLarge = errors.New("response exceeds size limit")

var httpClient = http.DefaultClient

// DownloadToMemory fetches rawURL and returns at most limit bytes. Transient
// failures are retried with backoff starting at retryDelay; 0 disables retries.
// file:// URLs are read from the local disk.
func DownloadToMemory(ctx context.Context, retryDelay time.Duration, rawURL string, limit int64) ([]byte, error) {
	var data []byte
	err := retry(ctx, retryDelay, rawURL, func() error {
		body, err := open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer closeBody(body)

		data, err = readLimited(body, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// DownloadToFile streams rawURL into dstFile, writing at most limit bytes. The
// file is truncated before each attempt.
func DownloadToFile(ctx context.Context, retryDelay time.Duration, rawURL, dstFile string, limit int64) error {
	log.Debugf("starting download from %s", rawURL)

	if err := os.MkdirAll(filepath.Dir(dstFile), 0o700); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	out, err := os.OpenFile(dstFile, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", dstFile, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warnf("error closing file %q: %v", dstFile, cerr)
		}
	}()

	err = retry(ctx, retryDelay, rawURL, func() error {
		if err := out.Truncate(0); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to truncate file: %w", err))
		}
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to seek to beginning of file: %w", err))
		}

		body, err := open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer closeBody(body)

		n, err := io.Copy(out, io.LimitReader(body, limit+1))
		if err != nil {
			return fmt.Errorf("failed to write response body to file: %w", err)
		}
		if n > limit {
			return backoff.Permanent(fmt.Errorf("%s: %w (%d bytes)", rawURL, ErrTooLarge, limit))
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("successfully downloaded file to %s", dstFile)
	return nil
}

func retry(ctx context.Context, retryDelay time.Duration, rawURL string, operation func() error) error {
	if retryDelay <= 0 {
		err := operation()
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			return perr.Err
		}
		return err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     retryDelay,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         4 * retryDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx),
		func(err error, d time.Duration) {
			log.Warnf("download of %s failed, retrying in %v: %v", rawURL, d, err)
		},
	)
}

func open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to parse URL: %w", err))
	}

	if u.Scheme == "file" {
		f, err := os.Open(filepath.FromSlash(u.Path))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.Version()))

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeBody(resp.Body)
		statusErr := fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
		// server errors and rate limits may clear up, anything else will not
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return resp.Body, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, backoff.Permanent(fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit))
	}
	return data, nil
}

func closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		log.Warnf("error closing response body: %v", err)
	}
}
