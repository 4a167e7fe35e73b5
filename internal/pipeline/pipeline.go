package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/524D/mzsearch/internal/calib"
	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/fdr"
	"github.com/524D/mzsearch/internal/histogram"
	"github.com/524D/mzsearch/internal/index"
	"github.com/524D/mzsearch/internal/indexcache"
	"github.com/524D/mzsearch/internal/mzml"
	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/proteindb"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

// Stage names a step of a search in progress events
type Stage string

const (
	StageLoad     Stage = "load"
	StageIndex    Stage = "index"
	StageSearch   Stage = "search"
	StageAnalysis Stage = "analysis"
	StageDone     Stage = "done"
)

// Event reports progress. Done and Total count files during the search
// stage and proteins while an index is built.
type Event struct {
	Stage   Stage
	File    string
	Done    int
	Total   int
	Message string
}

// FileStats counts what happened to one spectra file
type FileStats struct {
	File    string
	Scans   int
	Skipped int
	PSMs    int
}

// Stats counts the work of a search
type Stats struct {
	Targets     int
	Decoys      int
	UnknownMods int
	Scans       int
	Skipped     int
	// Unresolved counts PSMs whose signature no peptide produced
	Unresolved  int
	IndexBuilds int64
	Files       []FileStats
}

// Result is the outcome of a search
type Result struct {
	RunID    string
	Proteins []*proteomics.Protein
	// PSMs are ordered best first and carry q-values
	PSMs   []*search.PSM
	Groups []*parsimony.Group
	// FileGroups holds the groups rescored against the PSMs of each file
	FileGroups  map[string][]*parsimony.Group
	Histogram   []histogram.Bin
	Calibration *calib.Report
	NumNotches  int
	Stats       Stats
	Elapsed     time.Duration
}

type runner struct {
	opts       Options
	plan       *plan
	logger     *slog.Logger
	cache      *indexcache.Cache
	proteins   []*proteomics.Protein
	partitions [][]*proteomics.Protein

	progressMu sync.Mutex
}

// progress forwards e to the callback, one event at a time
func (r *runner) progress(e Event) {
	if r.opts.Progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.opts.Progress(e)
}

// Run executes a search. Options are validated before any file is read;
// invalid options yield a *ConfigError.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	p, err := opts.compile()
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: uuid.NewString(), FileGroups: make(map[string][]*parsimony.Group)}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &runner{opts: opts, plan: p, logger: logger.With("run", res.RunID)}

	if err := r.loadDatabases(ctx, &res.Stats); err != nil {
		return nil, err
	}
	res.Proteins = r.proteins
	if r.cache, err = r.newCache(ctx); err != nil {
		return nil, err
	}
	r.partition()

	all, err := r.searchFiles(ctx, &res.Stats)
	if err != nil {
		return nil, err
	}
	res.Stats.IndexBuilds = r.cache.Builds()

	r.progress(Event{Stage: StageAnalysis, Message: "resolving peptides"})
	t := time.Now()
	resolver := search.Resolver{
		Proteins:     r.proteins,
		Digestion:    p.digestion,
		Mods:         p.mods,
		ProductTypes: p.productTypes,
		Semi:         opts.SearchType == SemiSearch,
	}
	psms, dropped, err := resolver.Resolve(ctx, all)
	if err != nil {
		return nil, err
	}
	res.Stats.Unresolved = dropped
	res.NumNotches = p.params.Acceptor.NumNotches()
	fdr.Order(psms)
	psms = fdr.Dedup(psms)
	fdr.Analyze(psms, res.NumNotches)
	res.PSMs = psms
	r.logger.Info("FDR analysis done", "psms", len(psms), "unresolved", dropped,
		"confident", fdr.CountAtOrBelow(psms, opts.QValueThreshold), "elapsed", time.Since(t))

	r.progress(Event{Stage: StageAnalysis, Message: "protein parsimony"})
	t = time.Now()
	res.Groups = parsimony.Score(parsimony.Build(psms, p.parsimony), p.parsimony)
	for _, f := range opts.SpectraFiles {
		res.FileGroups[f] = parsimony.SubsetForFile(res.Groups, f, p.parsimony)
	}
	r.logger.Info("protein groups scored", "groups", len(res.Groups), "elapsed", time.Since(t))

	if p.histogram {
		res.Histogram = histogram.Build(psms, opts.QValueThreshold, opts.BinTolerance, p.dict)
	}
	if p.calibration != calib.None {
		res.Calibration = r.calibrate(psms)
	}

	res.Elapsed = time.Since(start)
	r.progress(Event{Stage: StageDone, Message: "search finished"})
	return res, nil
}

func (r *runner) loadDatabases(ctx context.Context, st *Stats) error {
	for i, db := range r.opts.Databases {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.progress(Event{Stage: StageLoad, File: db, Done: i, Total: len(r.opts.Databases)})
		proteins, dbst, err := proteindb.Load(db, proteindb.Options{
			Decoys:      r.opts.Decoys,
			Contaminant: isContaminant(db),
			Mods:        r.plan.dict,
		})
		if err != nil {
			return fmt.Errorf("load database: %w", err)
		}
		r.logger.Info("loaded database", "file", db, "targets", dbst.Targets,
			"decoys", dbst.Decoys, "unknown_mods", dbst.UnknownMods)
		st.Targets += dbst.Targets
		st.Decoys += dbst.Decoys
		st.UnknownMods += dbst.UnknownMods
		r.proteins = append(r.proteins, proteins...)
	}
	return nil
}

func (r *runner) newCache(ctx context.Context) (*indexcache.Cache, error) {
	var stores []indexcache.Store
	if r.opts.IndexDir != "" {
		stores = append(stores, indexcache.LocalStore{Root: r.opts.IndexDir})
	}
	if r.opts.IndexStore != nil {
		s, err := indexcache.NewMinioStore(ctx, *r.opts.IndexStore)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return indexcache.New(r.logger, stores...), nil
}

// partition splits the proteins into contiguous, nearly equal parts
func (r *runner) partition() {
	n := r.opts.TotalPartitions
	r.partitions = make([][]*proteomics.Protein, n)
	for i := range r.partitions {
		lo := i * len(r.proteins) / n
		hi := (i + 1) * len(r.proteins) / n
		r.partitions[i] = r.proteins[lo:hi]
	}
}

// searchFiles matches every spectra file and returns their PSMs in file
// order
func (r *runner) searchFiles(ctx context.Context, st *Stats) ([]*search.PSM, error) {
	files := r.opts.SpectraFiles
	perFile := make([][]*search.PSM, len(files))
	st.Files = make([]FileStats, len(files))

	var mu sync.Mutex
	done := 0
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxParallelFiles)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := time.Now()
			res, fs, err := r.searchFile(ctx, path)
			if err != nil {
				return err
			}
			psms := res.PSMs()
			fs.PSMs = len(psms)
			r.logger.Info("searched file", "file", path, "scans", fs.Scans,
				"psms", fs.PSMs, "elapsed", time.Since(t))

			mu.Lock()
			perFile[i] = psms
			st.Files[i] = fs
			st.Scans += fs.Scans
			st.Skipped += fs.Skipped
			done++
			n := done
			mu.Unlock()
			r.progress(Event{Stage: StageSearch, File: path, Done: n, Total: len(files)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*search.PSM
	for _, psms := range perFile {
		all = append(all, psms...)
	}
	return all, nil
}

func (r *runner) searchFile(ctx context.Context, path string) (*search.Results, FileStats, error) {
	fs := FileStats{File: path}
	contents, err := mzml.ReadFile(path, r.plan.scanOptions)
	if err != nil {
		return nil, fs, fmt.Errorf("read spectra: %w", err)
	}
	scans, skipped := contents.Scans, contents.Skipped
	r.logger.Debug("spectra read", "file", path, "scans", len(scans), "skipped", skipped,
		"analyzers", contents.Analyzers)
	if contents.Profile > 0 {
		r.logger.Warn("profile spectra are searched as centroided peaks", "file", path,
			"spectra", contents.Profile)
	}
	spectra.SortByPrecursorMass(scans)
	fs.Scans = len(scans)

	var res *search.Results
	for i, part := range r.partitions {
		if err := ctx.Err(); err != nil {
			return nil, fs, err
		}
		if len(part) == 0 {
			continue
		}
		pr, err := r.searchPartition(ctx, i, part, scans)
		if err != nil {
			return nil, fs, fmt.Errorf("%s: %w", path, err)
		}
		if res == nil {
			res = pr
		} else {
			res.Merge(pr)
		}
	}
	if res == nil {
		res = search.NewResults(scans, r.plan.params.Acceptor.NumNotches())
	}
	fs.Skipped = skipped + res.Skipped
	return res, fs, nil
}

func (r *runner) searchPartition(ctx context.Context, part int, proteins []*proteomics.Protein,
	scans []*spectra.Scan) (*search.Results, error) {

	p := r.plan
	switch r.opts.SearchType {
	case ClassicSearch:
		e := &search.Classic{Proteins: proteins, Digestion: p.digestion, Mods: p.mods, Params: p.params}
		return e.Search(ctx, scans)
	case SemiSearch:
		e := &search.Semi{
			MinPeptideLength: p.digestion.MinPeptideLength,
			MaxPeptideLength: p.digestion.MaxPeptideLength,
			Params:           p.params,
		}
		var nTypes, cTypes []proteomics.ProductType
		for _, t := range p.productTypes {
			if t.IsNTerminal() {
				nTypes = append(nTypes, t)
			} else {
				cTypes = append(cTypes, t)
			}
		}
		var err error
		if len(nTypes) > 0 {
			d := p.digestion
			d.Protease.Specificity = digest.FullMaxN
			if e.NIndex, err = r.index(ctx, part, proteins, d, nTypes); err != nil {
				return nil, err
			}
		}
		if len(cTypes) > 0 {
			d := p.digestion
			d.Protease.Specificity = digest.FullMaxC
			if e.CIndex, err = r.index(ctx, part, proteins, d, cTypes); err != nil {
				return nil, err
			}
		}
		return e.Search(ctx, scans)
	default:
		x, err := r.index(ctx, part, proteins, p.digestion, p.productTypes)
		if err != nil {
			return nil, err
		}
		e := &search.Modern{Index: x, Params: p.params}
		return e.Search(ctx, scans)
	}
}

// index returns the fragment index of one partition, shared by all files
func (r *runner) index(ctx context.Context, part int, proteins []*proteomics.Protein,
	d digest.Params, types []proteomics.ProductType) (*index.Index, error) {

	names := make([]string, len(r.opts.Databases))
	for i, db := range r.opts.Databases {
		names[i] = filepath.Base(db)
	}
	ip := index.Params{
		Digestion:       d,
		Mods:            r.plan.mods,
		ProductTypes:    types,
		PartitionIndex:  part,
		TotalPartitions: len(r.partitions),
		SearchDecoys:    r.opts.Decoys,
		DatabaseNames:   names,
	}
	text, fp, err := index.Describe(ip, proteins)
	if err != nil {
		return nil, err
	}
	return r.cache.GetOrBuild(ctx, text, fp, func(ctx context.Context) (*index.Index, error) {
		t := time.Now()
		x, err := index.Build(ctx, proteins, ip, fp, func(done, total int) {
			r.progress(Event{Stage: StageIndex, Done: done, Total: total,
				Message: fmt.Sprintf("partition %d of %d", part+1, len(r.partitions))})
		})
		if err == nil {
			r.logger.Info("index built", "partition", part+1, "peptides", len(x.Peptides),
				"fragments", x.NumFragments(), "elapsed", time.Since(t))
		}
		return x, err
	})
}

// calibrate fits the precursor error model of every file. Files without
// enough calibrants keep their error statistics without parameters.
func (r *runner) calibrate(psms []*search.PSM) *calib.Report {
	rep := &calib.Report{Method: r.plan.calibration.String()}
	byFile := calib.FromPSMs(psms, r.opts.QValueThreshold)
	for _, f := range r.opts.SpectraFiles {
		m, err := calib.Fit(byFile[f], calib.Options{
			Method:    r.plan.calibration,
			TargetPPM: r.opts.CalibrationTargetPPM,
		})
		m.File = f
		m.Method = r.plan.calibration.String()
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, calib.ErrTooFewCalibrants) {
				level = slog.LevelInfo
			}
			r.logger.Log(context.Background(), level, "no precursor calibration", "file", f, "err", err)
		} else {
			r.logger.Info("precursor calibration", "file", f, "used", m.Used,
				"median_ppm_before", m.Before.Median, "median_ppm_after", m.After.Median)
		}
		rep.Files = append(rep.Files, m)
	}
	return rep
}
