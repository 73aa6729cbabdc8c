// Package snapshots implements "olpull snapshots": listing, restoring and
// deleting archives kept by "olpull --snapshot".
package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"olpull/internal/archive"
	"olpull/internal/logging"
	"olpull/internal/snapshot"
	"olpull/pkg/api"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

type ListFlags struct {
	JSON bool
}

type RestoreFlags struct {
	OutputDir string
	NoFlatten bool
	JSON      bool
}

// List prints the snapshots of projectID, or of every project when it is
// empty.
func List(ctx context.Context, store *snapshot.Store, flags ListFlags, projectID string, w io.Writer) error {
	objs, err := store.List(ctx, projectID)
	if err != nil {
		return err
	}

	list := make(api.SnapshotList, 0, len(objs))
	for _, obj := range objs {
		created := obj.CustomMeta["fetched_at"]
		if created == "" && !obj.LastModified.IsZero() {
			created = obj.LastModified.UTC().Format(time.RFC3339)
		}
		list = append(list, api.Snapshot{
			Key:       obj.Key,
			Project:   snapshot.ProjectFromKey(obj.Key),
			Size:      obj.Size,
			ETag:      obj.ETag,
			CreatedAt: created,
			Meta:      obj.CustomMeta,
		})
	}

	if flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No snapshots found")
		return nil
	}
	header := "KEY\tPROJECT\tSIZE\tCREATED"
	if logging.IsTerminal(w) {
		header = headerStyle.Render(header)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.Project, humanize.Bytes(uint64(s.Size)), s.CreatedAt)
	}
	return tw.Flush()
}

// Restore extracts the snapshot stored under key into flags.OutputDir.
func Restore(ctx context.Context, store *snapshot.Store, flags RestoreFlags, key string, w io.Writer) error {
	data, err := store.Load(ctx, key)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Msgf("Decompressing %s to %s", key, flags.OutputDir)
	res, err := archive.Extract(data, flags.OutputDir, archive.WithFlatten(!flags.NoFlatten))
	if err != nil {
		return err
	}

	if flags.JSON {
		return json.NewEncoder(w).Encode(api.RestoreResult{
			Key:   key,
			Dest:  res.Dest,
			Root:  res.Root,
			Files: res.Files,
			Dirs:  res.Dirs,
		})
	}
	fmt.Fprintf(w, "Extracted to %s\n", res.Dest)
	return nil
}

// Delete removes the snapshot stored under key and reports what was removed.
func Delete(ctx context.Context, store *snapshot.Store, key string, w io.Writer) error {
	obj, err := store.Stat(ctx, key)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, key); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("key", key).Msg("Snapshot deleted")
	fmt.Fprintf(w, "Deleted %s (%s)\n", key, humanize.Bytes(uint64(obj.Size)))
	return nil
}
