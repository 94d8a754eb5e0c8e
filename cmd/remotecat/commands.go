package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/KarpelesLab/remotefs"
)

var rootCmd = &cobra.Command{
	Use:           "remotecat",
	Short:         "Read ranges of remote files through a chunk cache",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write a byte range of a file to stdout",
	Long: `Write the bytes [from, to) of a file to stdout.

Without --to the file is read until its end.

Example:
  remotecat --root https://example.com/index cat meta.json
  remotecat --backend s3 --bucket idx cat 0a1b.store --from 4096 --to 8192`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		from, err := cmd.Flags().GetInt64("from")
		if err != nil {
			return fmt.Errorf("failed to read 'from' flag: %w", err)
		}
		to, err := cmd.Flags().GetInt64("to")
		if err != nil {
			return fmt.Errorf("failed to read 'to' flag: %w", err)
		}

		reg, dir := cfg.directory()
		ctx := cmd.Context()

		f, err := dir.GetHandle(ctx, args[0])
		if err != nil {
			return err
		}
		if to < 0 {
			to = f.Len()
		}

		data, err := f.ReadRange(ctx, from, to)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}

		return printStats(cmd, reg)
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <path>...",
	Short: "Show length and chunk layout of files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reg, dir := cfg.directory()

		if dir.Root() != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "root: %s\n", dir.Root())
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tSIZE\tCHUNK SIZE\tCHUNKS")
		for _, name := range args {
			f, err := dir.GetHandle(cmd.Context(), name)
			if err != nil {
				return err
			}
			chunks := (f.Len() + f.ChunkSize() - 1) / f.ChunkSize()
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", f.Path(), humanize.IBytes(uint64(f.Len())), humanize.IBytes(uint64(f.ChunkSize())), chunks)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		return printStats(cmd, reg)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("backend", "http", "backend: http, s3 or local")
	pf.String("root", "", "root URL, key prefix or directory")
	pf.Int64("chunk-size", 1024*1024, "chunk size in bytes")
	pf.StringSlice("small-file-suffix", []string{".store"}, "suffixes of files read with the small chunk size")
	pf.Int64("small-file-chunk-size", 16*1024, "chunk size of small files")
	pf.Int("max-concurrent", 10, "chunks fetched in parallel per read")
	pf.Int64("read-ahead", 5*1024*1024, "widest fetch of a sequential reader in bytes (0 disables)")
	pf.Duration("timeout", 0, "timeout of a single fetch (0 for none)")
	pf.Int("retries", 3, "attempts per fetch")
	pf.Bool("prefetch", true, "coalesce missing chunks into larger fetches")
	pf.Bool("verbose", false, "log every fetch to stderr")
	pf.Bool("stats", false, "print read statistics to stderr")
	pf.String("bucket", "", "S3 bucket")
	pf.String("region", "", "S3 region (default $AWS_REGION)")
	pf.String("endpoint", "", "S3-compatible endpoint URL")

	catCmd.Flags().Int64("from", 0, "first byte to read")
	catCmd.Flags().Int64("to", -1, "end of the range (exclusive), -1 for EOF")

	rootCmd.AddCommand(catCmd, statCmd)
}

// loadConfig resolves defaults, then the config file, then explicit flags.
func loadConfig(cmd *cobra.Command) (*config, error) {
	cfg := defaultConfig()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read 'config' flag: %w", err)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printStats(cmd *cobra.Command, reg *remotefs.Registry) error {
	show, err := cmd.Flags().GetBool("stats")
	if err != nil || !show {
		return err
	}

	stats := reg.Stats()
	paths := make([]string, 0, len(stats))
	for p := range stats {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "%s: %s\n", p, stats[p])
	}
	fmt.Fprintf(os.Stderr, "total: %s\n", reg.TotalStats())
	return nil
}
