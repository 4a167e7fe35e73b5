// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/524D/mzsearch/internal/pipeline"
	"github.com/524D/mzsearch/internal/report"
)

// Program name and version, written to mzIdentML output
const progName = "mzsearch"

var progVersion = `Unknown`

const rootLongDescription = `mzsearch identifies peptides in MS2 spectra (mzML) by matching them
against the digest of protein databases (FASTA or UniProt XML). It estimates
the false discovery rate with reversed decoy proteins, infers protein groups
and writes PSM, peptide and protein group tables, mzIdentML files and a
summary to the output directory.`

const searchLongDescription = `Search one or more mzML files against the given databases.

Options can also be set in mzsearch.yaml (or the file given with --config)
using the keys listed below, or through MZSEARCH_<KEY> environment variables
with '.' and '-' replaced by '_', e.g. MZSEARCH_DIGEST_PROTEASE.

Config keys:
  databases, output, search.type,
  digest.protease, digest.specificity, digest.missed_cleavages,
  digest.initiator_methionine, digest.length, digest.max_mods, digest.max_isoforms,
  mods.fixed, mods.variable, mods.localizable, mods.file,
  scoring.ions, scoring.product_tolerance, scoring.precursor,
  scoring.intensity_weighted, scoring.score_cutoff,
  peaks.top_n, peaks.min_ratio, peaks.charge,
  run.decoys, run.partitions, run.parallel,
  parsimony.mod_peptides_unique, parsimony.no_one_hit_wonders, parsimony.q_value,
  histogram.enabled, histogram.bin_tolerance,
  calibration.method, calibration.target_ppm,
  index.dir, index.store.{endpoint,access-key,secret-key,region,bucket,prefix,ssl},
  log.filename, log.level, log.max_size, log.max_backups, log.max_age, log.compress`

const searchExample = `  mzsearch search -d yeast.fasta -o results yeast1.mzML yeast2.mzML
    Standard tryptic search with the default modifications.

  mzsearch search -d human.fasta.gz --precursor open --search-type modern run.mzML
    Open search, writes a mass-shift histogram.

  mzsearch search -d db.fasta --index-dir indexes --partitions 4 *.mzML
    Split the database in 4 parts and keep the fragment indexes for later runs.`

// cli holds the state shared by the commands of one invocation
type cli struct {
	v        *viper.Viper
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{v: newConfig(), logger: slog.Default(), closeLog: func() error { return nil }}
	var configFile string
	var verbose, quiet bool

	cmd := &cobra.Command{
		Use:          progName,
		Short:        "Peptide identification for MS2 spectra",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := readConfig(c.v, configFile); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			c.logger, c.closeLog = configureLogger(c.v, cmd.ErrOrStderr(), verbose, quiet)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.closeLog()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, configFlagName, "", "config `file` (default ./mzsearch.yaml)")
	pf.BoolVar(&verbose, verboseFlagName, false, "print more verbose progress information")
	pf.BoolVar(&quiet, quietFlagName, false, "don't print any output except for errors")
	pf.String(logFileFlagName, "", "also log to this `file`, rotated by size")
	bindFlagToConfig(c.v, pf.Lookup(logFileFlagName), logFilenameKey)
	cmd.MarkFlagsMutuallyExclusive(verboseFlagName, quietFlagName)

	cmd.AddCommand(c.newSearchCmd(), c.newSummaryCmd(), newVersionCmd())
	return cmd
}

func (c *cli) newSearchCmd() *cobra.Command {
	var debugScans string
	cmd := &cobra.Command{
		Use:     "search [flags] <mzML file>...",
		Short:   "Identify peptides in mzML files",
		Long:    searchLongDescription,
		Example: searchExample,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSearch(cmd, args, debugScans)
		},
	}
	addSearchFlags(cmd, c.v)
	cmd.Flags().StringVar(&debugScans, debugFlagName, "",
		"print the PSMs of the given scan number `range`, e.g. 3:6")
	return cmd
}

// logProgress reports pipeline events on the debug level, files finished
// during the search on the info level
func (c *cli) logProgress(e pipeline.Event) {
	switch e.Stage {
	case pipeline.StageSearch:
		c.logger.Info("progress", "stage", e.Stage, "file", e.File, "done", e.Done, "total", e.Total)
	default:
		c.logger.Debug("progress", "stage", e.Stage, "file", e.File, "done", e.Done,
			"total", e.Total, "msg", e.Message)
	}
}

func (c *cli) runSearch(cmd *cobra.Command, args []string, debugScans string) error {
	o, err := searchOptions(c.v, args)
	if err != nil {
		return err
	}
	o.SoftwareVersion = progVersion
	o.Logger = c.logger
	o.Progress = c.logProgress
	if err := o.Validate(); err != nil {
		return err
	}

	start := time.Now()
	res, err := pipeline.Run(cmd.Context(), o)
	if err != nil {
		return err
	}
	if err := pipeline.WriteOutputs(res, o); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	c.logger.Info("search done", "output", o.OutputDir, "psms", len(res.PSMs),
		"groups", len(res.Groups), "elapsed", time.Since(start))

	if debugScans != "" {
		if err := debugLogScans(cmd.OutOrStdout(), res, debugScans); err != nil {
			return err
		}
	}
	return report.WriteSummary(cmd.OutOrStdout(), pipeline.Summarize(res, o))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show software version",
		Run: func(cmd *cobra.Command, _ []string) {
			version := progVersion
			if info, ok := debug.ReadBuildInfo(); ok && version == `Unknown` && info.Main.Version != "" {
				version = info.Main.Version
			}
			cmd.Printf("%s version %s\n", progName, version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}
