package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/common"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/util"
	"github.com/sheetbridge/persistence/util/cli"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cli.Options{}
	root := &cobra.Command{
		Use:           "blobctl",
		Short:         "Read, write and resolve stored spreadsheet files",
		Long:          helpMessage(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cli.AddFlags(root, opts)

	var bucket, purpose, typeHint string
	addLocationFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&bucket, "bucket", constants.BucketUploads, "Bucket to read or write")
		cmd.Flags().StringVar(&purpose, "purpose", constants.PurposeOrder, "Purpose tag: order, supplier, mapping or output")
		cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
			if !util.StringListContains(constants.Purposes, purpose) {
				return fmt.Errorf("Unknown purpose %q. Use one of %s", purpose, strings.Join(constants.Purposes, ", "))
			}
			return nil
		}
	}

	putCmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a local file and print its reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				name := filepath.Base(args[0])
				file := service.NewFileContent(name, constants.MimeTypeFor(util.FileExtension(name)), data)
				result := c.Files.Upload(ctx, file, purpose, bucket)
				if !result.OK() {
					return result.Error
				}
				return printResult(cmd, opts, result, "%s\t%s\n", result.Reference, result.Key)
			})
		},
	}
	addLocationFlags(putCmd)

	var outFile string
	getCmd := &cobra.Command{
		Use:   "get <reference>",
		Short: "Download the file behind a reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				result := c.Files.Fetch(ctx, args[0], purpose, bucket, hintOr(typeHint, purpose))
				if !result.OK() {
					return result.Error
				}
				if outFile == "" {
					outFile = result.File.Name
				}
				if err := os.WriteFile(outFile, result.File.Data, 0644); err != nil {
					return err
				}
				summary := map[string]interface{}{
					"file":      outFile,
					"fromCache": result.FromCache,
					"key":       result.Key,
					"size":      result.File.Size(),
					"strategy":  result.Strategy,
				}
				return printResult(cmd, opts, summary, "%s\t%s\t%d bytes\n", result.Key, outFile, result.File.Size())
			})
		},
	}
	addLocationFlags(getCmd)
	getCmd.Flags().StringVar(&typeHint, "type", "", "Type hint for the listing heuristic (defaults to --purpose)")
	getCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the file here instead of its original name")

	resolveCmd := &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Print the stored key a reference resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				resolution := c.Resolver.Resolve(ctx, args[0], bucket, hintOr(typeHint, purpose))
				if !resolution.OK() {
					return resolution.Error
				}
				return printResult(cmd, opts, resolution, "%s\t%s\n", resolution.Key, resolution.Strategy)
			})
		},
	}
	addLocationFlags(resolveCmd)
	resolveCmd.Flags().StringVar(&typeHint, "type", "", "Type hint for the listing heuristic (defaults to --purpose)")

	var reference string
	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored object and drop its cached copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				resp := c.Files.Discard(ctx, reference, args[0], bucket)
				if !resp.OK() {
					return resp.Error
				}
				return printResult(cmd, opts, resp, "deleted %s/%s\n", bucket, args[0])
			})
		},
	}
	addLocationFlags(deleteCmd)
	deleteCmd.Flags().StringVar(&reference, "reference", "", "Also drop the cache entry held under this reference")

	mappingCmd := &cobra.Command{
		Use:   "mapping <reference>",
		Short: "Show the persisted mapping for a reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				record, err := c.Resolver.Mapping(ctx, args[0])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("No mapping for %s", args[0])
				}
				return printResult(cmd, opts, record, "%s\t%s\t%s\n", record.OriginalID, record.ActualKey, record.OriginalFileName)
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "cache-stats",
		Short: "Show local cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, opts, func(ctx context.Context, c *common.Context) error {
				stats := c.CacheManager.Cache.Stats()
				if opts.JSON {
					return printJson(cmd, stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d of %d bytes (%.1f%%)\n",
					stats.EntryCount, stats.StoredBytes, stats.Quota, stats.UsagePercent)
				for _, entry := range stats.Entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\n",
						entry.ID, entry.PurposeTag, entry.Size, entry.DisplayName)
				}
				return nil
			})
		},
	}

	var clearCache, once bool
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired cache entries every CACHE_SWEEP_INTERVAL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli.LoadContext(opts)
			if err != nil {
				return err
			}
			defer c.Close()
			if clearCache {
				c.CacheManager.Cache.Clear()
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			}
			if once || c.Config.CacheSweepInterval <= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %d entries\n", c.CacheManager.Cache.Sweep())
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			serveMetrics(ctx, c)
			c.CacheManager.RunSweeper(ctx, c.Config.CacheSweepInterval)
			return nil
		},
	}
	sweepCmd.Flags().BoolVar(&clearCache, "clear", false, "Drop every cache entry instead of sweeping")
	sweepCmd.Flags().BoolVar(&once, "once", false, "Sweep once and exit")

	root.AddCommand(putCmd, getCmd, resolveCmd, deleteCmd, mappingCmd, statsCmd, sweepCmd)
	return root
}

// withContext loads the app context, bounds the command by --timeout
// and closes everything when fn returns.
func withContext(cmd *cobra.Command, opts *cli.Options, fn func(context.Context, *common.Context) error) error {
	c, err := cli.LoadContext(opts)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := cli.CommandContext(cmd.Context(), opts)
	defer cancel()
	return fn(ctx, c)
}

func hintOr(typeHint, purpose string) string {
	if typeHint != "" {
		return typeHint
	}
	return purpose
}

func printResult(cmd *cobra.Command, opts *cli.Options, value interface{}, format string, args ...interface{}) error {
	if opts.JSON {
		return printJson(cmd, value)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return err
}

func printJson(cmd *cobra.Command, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// serveMetrics exposes the context's registry on MetricsAddr until ctx
// is done. It does nothing if no address is configured.
func serveMetrics(ctx context.Context, c *common.Context) {
	if c.Config.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: c.Config.MetricsAddr, Handler: mux}
	go func() {
		c.Logger.Infof("Serving metrics on %s", c.Config.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
}

func helpMessage() string {
	message := `
blobctl reads and writes the spreadsheet files the application stores in
S3-compatible buckets. It goes through the same layers the application
does: the retrying remote store, the filename resolver with its redis
mapping store, and the local file cache.

Examples:

    blobctl put --purpose order "Order 17 (final).xlsx"
    blobctl get --purpose order order-1f0c2a9e4b7d3c5a6e8f9a0b
    blobctl resolve --bucket uploads "orderFile-3f2a9c1d-1700000000000.xlsx"
    blobctl cache-stats --json

The sweep command evicts expired cache entries every CACHE_SWEEP_INTERVAL
until interrupted, serving Prometheus metrics on METRICS_ADDR while it
runs. Use --once for a single pass.
`
	return message + "\n" + cli.EnvMessage
}
