// Command modelcache manages a tiered cache of ML model artifacts across
// local disk, an S3-compatible object store, and the origin hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/modelcache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var cache *modelcache.Cache

	cmd := &cobra.Command{
		Use:   "modelcache",
		Short: "Tiered cache for ML model artifacts",
		Long: "Resolve ML model artifacts through a tiered cache: local disk first,\n" +
			"then an S3-compatible object store, then the origin hub. Connection\n" +
			"settings come from S3_* and MODEL_CACHE_DIR environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := configFromEnv()
			if err != nil {
				return err
			}

			var opts []modelcache.Option
			if verbose {
				logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
				opts = append(opts,
					modelcache.WithLogger(logger),
					modelcache.WithTransferHook(modelcache.NewSlogHook(logger)),
				)
			}

			cache, err = modelcache.New(cfg, opts...)
			return err
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log transfers and cache decisions to stderr")

	cmd.AddCommand(pullCmd(&cache))
	cmd.AddCommand(listCmd(&cache))
	cmd.AddCommand(deleteCmd(&cache))
	cmd.AddCommand(pathCmd(&cache))

	return cmd
}

func pullCmd(cache **modelcache.Cache) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <org/model>",
		Short: "Ensure a model is cached locally and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := (*cache).GetOrDownload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func listCmd(cache **modelcache.Cache) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := (*cache).ListCachedModels(cmd.Context(), modelcache.ListSource(source))
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached models")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tLOCAL SIZE")
			for _, id := range models {
				size := "-"
				if n, err := (*cache).LocalSize(id); err == nil {
					size = humanize.IBytes(uint64(n))
				}
				fmt.Fprintf(tw, "%s\t%s\n", id, size)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&source, "source", string(modelcache.SourceLocal), "Tiers to list: local, remote, or both")
	return cmd
}

func deleteCmd(cache **modelcache.Cache) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "delete <org/model>",
		Short: "Delete a model from the cache tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := (*cache).DeleteCachedModel(cmd.Context(), args[0], modelcache.DeleteScope(scope))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", args[0], scope)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(modelcache.DeleteBoth), "Tiers to delete from: local, remote, or both")
	return cmd
}

func pathCmd(cache **modelcache.Cache) *cobra.Command {
	return &cobra.Command{
		Use:   "path <org/model>",
		Short: "Print the local path of a cached model without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := (*cache).LocalPath(args[0])
			if !ok {
				return fmt.Errorf("model %s is not cached locally", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// configFromEnv builds the cache configuration from the environment.
func configFromEnv() (modelcache.Config, error) {
	cfg := modelcache.Config{
		Bucket:      os.Getenv("S3_BUCKET"),
		Endpoint:    os.Getenv("S3_ENDPOINT"),
		AccessKey:   os.Getenv("S3_ACCESS_KEY_ID"),
		SecretKey:   os.Getenv("S3_SECRET_ACCESS_KEY"),
		Region:      os.Getenv("S3_REGION"),
		Prefix:      os.Getenv("S3_PREFIX"),
		RootCAPath:  os.Getenv("S3_ROOT_CA_PATH"),
		CacheDir:    os.Getenv("MODEL_CACHE_DIR"),
		HubToken:    os.Getenv("HF_TOKEN"),
		HubEndpoint: os.Getenv("HF_ENDPOINT"),
		// Archive storage is the default representation.
		StoreAsArchive: true,
	}

	if v := os.Getenv("S3_VERIFY_SSL"); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return modelcache.Config{}, fmt.Errorf("S3_VERIFY_SSL: %w", err)
		}
		cfg.SkipTLSVerify = !verify
	}

	if v := os.Getenv("S3_STORE_AS_ARCHIVE"); v != "" {
		archive, err := strconv.ParseBool(v)
		if err != nil {
			return modelcache.Config{}, fmt.Errorf("S3_STORE_AS_ARCHIVE: %w", err)
		}
		cfg.StoreAsArchive = archive
	}

	if v := os.Getenv("S3_MULTIPART_CHUNK_SIZE"); v != "" {
		size, err := humanize.ParseBytes(v)
		if err != nil {
			return modelcache.Config{}, fmt.Errorf("S3_MULTIPART_CHUNK_SIZE: %w", err)
		}
		cfg.ChunkSize = int64(size)
	}

	if v := os.Getenv("S3_MAX_PARALLEL_PARTS"); v != "" {
		parts, err := strconv.Atoi(v)
		if err != nil {
			return modelcache.Config{}, fmt.Errorf("S3_MAX_PARALLEL_PARTS: %w", err)
		}
		cfg.MaxParallelParts = parts
	}

	if v := os.Getenv("S3_OP_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return modelcache.Config{}, fmt.Errorf("S3_OP_TIMEOUT: %w", err)
		}
		cfg.OpTimeout = timeout
	}

	return cfg, nil
}

// describeError surfaces the most specific failure in a wrapped chain so
// scripted callers see the category without parsing the whole message.
func describeError(err error) string {
	var cfgErr *modelcache.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}
	var originErr *modelcache.OriginFetchError
	if errors.As(err, &originErr) {
		return originErr.Error()
	}
	var transferErr *modelcache.TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Error()
	}
	var partialErr *modelcache.PartialDeletionError
	if errors.As(err, &partialErr) {
		return partialErr.Error()
	}
	return err.Error()
}
