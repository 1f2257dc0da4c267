package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/qdrant"
	"github.com/ricesearch/covereval/internal/runner"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <catalogue.jsonl>",
		Short: "Index a track catalogue into the search backend",
		Long: `Read a JSON-lines catalogue (one track per line with its named
vectors, payload flags and credits), create the collection if it does
not exist and upsert every track in batches.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().Int("batch-size", qdrant.DefaultBatchSize, "tracks per upsert")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}
	path := args[0]

	// First pass: the collection needs every vector dimension up front.
	dims := qdrant.VectorDims{}
	if err := scanFile(path, func(t qdrant.Track) error { return dims.Add(t) }); err != nil {
		return err
	}
	if len(dims) == 0 {
		return fmt.Errorf("%s holds no tracks", path)
	}

	client, err := qdrant.NewClient(runner.ClientConfig(a.cfg.Search), a.log)
	if err != nil {
		return err
	}
	defer a.closeQuietly("qdrant client", client)

	ctx := cmd.Context()
	if err := client.EnsureCollection(ctx, dims); err != nil {
		return err
	}

	batch := make([]qdrant.Track, 0, batchSize)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := client.UpsertTracks(ctx, batch, batchSize); err != nil {
			return err
		}
		total += len(batch)
		a.log.Debug("Upserted batch", "tracks", len(batch), "total", total)
		batch = batch[:0]
		return nil
	}

	err = scanFile(path, func(t qdrant.Track) error {
		batch = append(batch, t)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	a.log.Info("Catalogue ingested", "tracks", total, "vectors", len(dims), "collection", a.cfg.Search.Collection)
	fmt.Fprintf(a.out, "ingested %d tracks into %s\n", total, a.cfg.Search.Collection)
	return nil
}

func scanFile(path string, fn func(qdrant.Track) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := qdrant.ScanTracks(f, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
