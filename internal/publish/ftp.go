// Package publish uploads the committed output file to the operator's FTP
// drop. Publishing is best-effort: failures are logged by the caller and
// never fail the run.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

// DialTimeout bounds the FTP connection attempt.
const DialTimeout = 30 * time.Second

// FTPPublisher uploads files over FTP. A publisher with any of host,
// username, or password missing is disabled and skips silently.
type FTPPublisher struct {
	Host      string
	Username  string
	Password  string
	Port      int
	Directory string
	Log       *zap.Logger
}

// Enabled reports whether all required transfer credentials are present.
func (p *FTPPublisher) Enabled() bool {
	return strings.TrimSpace(p.Host) != "" &&
		strings.TrimSpace(p.Username) != "" &&
		strings.TrimSpace(p.Password) != ""
}

// Publish uploads localPath under its basename into the configured remote
// directory, creating the directory path component-by-component if missing.
func (p *FTPPublisher) Publish(ctx context.Context, localPath string) error {
	if !p.Enabled() {
		p.Log.Info("FTP settings not provided, skipping upload")
		return nil
	}

	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("upload skipped, file does not exist: %s", localPath)
	}

	addr := fmt.Sprintf("%s:%d", strings.TrimSpace(p.Host), p.Port)
	p.Log.Info("connecting to FTP", zap.String("addr", addr))

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(DialTimeout))
	if err != nil {
		return fmt.Errorf("FTP dial failed: %w", err)
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(strings.TrimSpace(p.Username), strings.TrimSpace(p.Password)); err != nil {
		return fmt.Errorf("FTP login failed: %w", err)
	}

	if dir := strings.TrimSpace(p.Directory); dir != "" {
		if err := conn.ChangeDir(dir); err != nil {
			p.Log.Info("remote directory missing, creating it", zap.String("dir", dir))
			for _, part := range strings.Split(strings.ReplaceAll(dir, "\\", "/"), "/") {
				if part == "" {
					continue
				}
				// MakeDir fails when the component exists; ChangeDir decides.
				_ = conn.MakeDir(part)
				if err := conn.ChangeDir(part); err != nil {
					return fmt.Errorf("failed to enter remote directory %s: %w", part, err)
				}
			}
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(localPath)
	p.Log.Info("uploading", zap.String("file", name))
	if err := conn.Stor(name, f); err != nil {
		return fmt.Errorf("FTP upload failed: %w", err)
	}

	p.Log.Info("FTP upload completed")
	return nil
}
