// Package pull implements the default olpull command: download a project
// archive and unpack it into a directory.
package pull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"olpull/internal/archive"
	"olpull/internal/client"
	"olpull/internal/config"
	"olpull/internal/snapshot"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

type Flags struct {
	OutputDir string
	NoFlatten bool
	KeepZip   string
	Snapshot  bool
	Timeout   time.Duration
}

// readCookie prompts for the session cookie without echo.
var readCookie = func() (string, error) {
	fmt.Fprint(os.Stderr, "overleaf.sid cookie: ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read cookie: %w", err)
	}
	return string(b), nil
}

// Run pulls projectID from baseURL and writes "Extracted to <dir>" to stdout.
func Run(ctx context.Context, flags Flags, cfg config.Config, projectID, cookie, baseURL string, stdout io.Writer) error {
	log := zerolog.Ctx(ctx)

	if strings.TrimSpace(projectID) == "" {
		return errors.New("project id is empty")
	}
	if cookie == "-" {
		c, err := readCookie()
		if err != nil {
			return err
		}
		cookie = c
	}

	timeout := cfg.Timeout
	if flags.Timeout > 0 {
		timeout = flags.Timeout
	}
	session := client.NewSession(baseURL, cookie,
		client.WithTimeout(timeout),
		client.WithUserAgent(cfg.UserAgent),
	)

	log.Info().Str("project", projectID).Str("base_url", session.BaseURL).Msg("Fetching project page")
	token, found, err := session.FetchCSRFToken(ctx, projectID)
	if err != nil {
		return err
	}
	if found && token != "" {
		session.SetCSRFToken(token)
	} else {
		log.Debug().Msg("No CSRF token on project page")
	}

	log.Info().Msg("Downloading archive")
	data, err := session.FetchArchive(ctx, projectID)
	if err != nil {
		return err
	}
	log.Info().Str("size", humanize.Bytes(uint64(len(data)))).Msg("Archive downloaded")

	if flags.KeepZip != "" {
		if err := os.WriteFile(flags.KeepZip, data, 0644); err != nil {
			return fmt.Errorf("keep zip: %w", err)
		}
		log.Info().Str("path", flags.KeepZip).Msg("Archive saved")
	}

	if flags.Snapshot {
		if err := saveSnapshot(ctx, cfg.Snapshot, projectID, session.BaseURL, data); err != nil {
			return err
		}
	}

	dest, err := filepath.Abs(flags.OutputDir)
	if err != nil {
		return err
	}
	log.Info().Msgf("Decompressing to %s", dest)
	res, err := archive.Extract(data, dest, archive.WithFlatten(!flags.NoFlatten))
	if err != nil {
		return err
	}
	log.Debug().Str("root", res.Root).Int("files", res.Files).Int("dirs", res.Dirs).Msg("Archive extracted")

	fmt.Fprintf(stdout, "Extracted to %s\n", res.Dest)
	return nil
}

func saveSnapshot(ctx context.Context, cfg snapshot.Config, projectID, baseURL string, data []byte) error {
	store, err := snapshot.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	obj, err := store.Save(ctx, projectID, baseURL, data)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("key", obj.Key).Str("driver", cfg.Driver).Msg("Snapshot stored")
	return nil
}
