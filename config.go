package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/524D/mzsearch/internal/indexcache"
	"github.com/524D/mzsearch/internal/pipeline"
)

const (
	configBaseName = "mzsearch"
	envPrefix      = "MZSEARCH"

	maxAssumedCharge = 10

	configFlagName  = "config"
	verboseFlagName = "verbose"
	quietFlagName   = "quiet"
	logFileFlagName = "log-file"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"
	indexStoreKey    = "index.store"

	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// Search flags and the config keys they are bound to
const (
	databaseFlagName    = "database"
	outputFlagName      = "output"
	searchTypeFlagName  = "search-type"
	proteaseFlagName    = "protease"
	specificityFlagName = "specificity"
	missedFlagName      = "missed-cleavages"
	methionineFlagName  = "initiator-methionine"
	lengthFlagName      = "length"
	maxModsFlagName     = "max-mods"
	isoformsFlagName    = "max-isoforms"
	fixedFlagName       = "fixed"
	variableFlagName    = "variable"
	localizableFlagName = "localizable"
	modFileFlagName     = "mod-file"
	ionsFlagName        = "ions"
	productTolFlagName  = "product-tolerance"
	precursorFlagName   = "precursor"
	intensityFlagName   = "intensity-weighted"
	scoreCutoffFlagName = "score-cutoff"
	topPeaksFlagName    = "top-peaks"
	peakRatioFlagName   = "min-peak-ratio"
	chargeFlagName      = "charge"
	decoysFlagName      = "decoys"
	partitionsFlagName  = "partitions"
	parallelFlagName    = "parallel"
	modUniqueFlagName   = "mod-peptides-unique"
	oneHitFlagName      = "no-one-hit-wonders"
	qValueFlagName      = "q-value"
	histogramFlagName   = "histogram"
	binTolFlagName      = "bin-tolerance"
	calibrationFlagName = "calibration"
	ppmCalFlagName      = "ppmcal"
	indexDirFlagName    = "index-dir"
	debugFlagName       = "debug"

	databasesKey   = "databases"
	outputKey      = "output"
	searchTypeKey  = "search.type"
	proteaseKey    = "digest.protease"
	specificityKey = "digest.specificity"
	missedKey      = "digest.missed_cleavages"
	methionineKey  = "digest.initiator_methionine"
	lengthKey      = "digest.length"
	maxModsKey     = "digest.max_mods"
	isoformsKey    = "digest.max_isoforms"
	fixedKey       = "mods.fixed"
	variableKey    = "mods.variable"
	localizableKey = "mods.localizable"
	modFileKey     = "mods.file"
	ionsKey        = "scoring.ions"
	productTolKey  = "scoring.product_tolerance"
	precursorKey   = "scoring.precursor"
	intensityKey   = "scoring.intensity_weighted"
	scoreCutoffKey = "scoring.score_cutoff"
	topPeaksKey    = "peaks.top_n"
	peakRatioKey   = "peaks.min_ratio"
	chargeKey      = "peaks.charge"
	decoysKey      = "run.decoys"
	partitionsKey  = "run.partitions"
	parallelKey    = "run.parallel"
	modUniqueKey   = "parsimony.mod_peptides_unique"
	oneHitKey      = "parsimony.no_one_hit_wonders"
	qValueKey      = "parsimony.q_value"
	histogramKey   = "histogram.enabled"
	binTolKey      = "histogram.bin_tolerance"
	calibrationKey = "calibration.method"
	ppmCalKey      = "calibration.target_ppm"
	indexDirKey    = "index.dir"

	defaultOutputDir = "mzsearch-results"
)

// newConfig returns a viper instance reading MZSEARCH_* variables and
// holding the logging defaults. Search defaults come from the flags.
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(logLevelKey, "info")
	v.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	v.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	v.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	v.SetDefault(logCompressKey, defaultLogCompress)
	return v
}

// readConfig reads file, or mzsearch.yaml from the working directory when
// file is empty. A missing default file is not an error.
func readConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		return v.ReadInConfig()
	}
	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// bindFlagToConfig wires a flag to a viper key so config and environment
// values feed the flag
func bindFlagToConfig(v *viper.Viper, flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	switch level {
	case "":
		return defaultLevel
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}
	return defaultLevel
}

// configureLogger builds the process logger. It writes to stderr and, when
// log.filename is set, to a rotating log file. verbose selects debug level,
// quiet error level, otherwise log.level applies.
func configureLogger(v *viper.Viper, stderr io.Writer, verbose, quiet bool) (*slog.Logger, func() error) {
	level := parseSlogLevel(v.GetString(logLevelKey), slog.LevelInfo)
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}

	var w io.Writer = stderr
	closeLog := func() error { return nil }
	if name := strings.TrimSpace(v.GetString(logFilenameKey)); name != "" {
		lj := &lumberjack.Logger{
			Filename:   name,
			MaxSize:    v.GetInt(logMaxSizeKey),
			MaxBackups: v.GetInt(logMaxBackupsKey),
			MaxAge:     v.GetInt(logMaxAgeKey),
			Compress:   v.GetBool(logCompressKey),
		}
		w = io.MultiWriter(stderr, lj)
		closeLog = lj.Close
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: verbose,
		Level:     level,
	})
	return slog.New(handler), closeLog
}

// addSearchFlags declares the search options, with defaults from
// pipeline.DefaultOptions, and binds them to their config keys
func addSearchFlags(cmd *cobra.Command, v *viper.Viper) {
	d := pipeline.DefaultOptions()
	f := cmd.Flags()

	f.StringArrayP(databaseFlagName, "d", nil, "protein database `file` (FASTA or UniProt XML, may be gzipped), can be repeated")
	f.StringP(outputFlagName, "o", defaultOutputDir, "output `directory`")
	f.String(searchTypeFlagName, string(d.SearchType), "search engine: classic, modern or semi")

	f.String(proteaseFlagName, d.Protease, "protease `name`")
	f.String(specificityFlagName, "",
		"cleavage specificity: Full, FullMaxN, FullMaxC, SingleN, SingleC or None (default of the protease)")
	f.Int(missedFlagName, d.MaxMissedCleavages, "maximum missed cleavages")
	f.String(methionineFlagName, d.InitiatorMethionine, "initiator methionine: Variable, Retain or Cleave")
	f.String(lengthFlagName, fmt.Sprintf("%d:", d.MinPeptideLength), "peptide length `range`, e.g. 7:30")
	f.Int(maxModsFlagName, d.MaxModsForPeptide, "maximum variable modifications per peptide")
	f.Int(isoformsFlagName, d.MaxModificationIsoforms, "maximum modification isoforms per peptide")

	f.StringArray(fixedFlagName, d.FixedMods, "fixed modification `key` (<type>:<id>), can be repeated")
	f.StringArray(variableFlagName, d.VariableMods, "variable modification `key`, can be repeated")
	f.StringArray(localizableFlagName, d.LocalizableMods, "localizable modification `key`, can be repeated")
	f.String(modFileFlagName, "", "`file` with additional modification definitions")

	f.StringSlice(ionsFlagName, d.IonTypes, "product ion types (b, bnob1, c, y, zdot)")
	f.String(productTolFlagName, d.ProductTolerance, "product mass tolerance, e.g. 0.01da or 20ppm")
	f.String(precursorFlagName, d.PrecursorAcceptor,
		`precursor mass acceptor: a tolerance (5ppm), "2mm", "3mm", "open",
"dot:<tolerance>:<shift>,<shift>..." or "interval:[lo,hi];[lo,hi]..."`)
	f.Bool(intensityFlagName, d.IntensityWeighted, "add the intensity fraction to fragment counts")
	f.Float64(scoreCutoffFlagName, d.ScoreCutoff, "minimum PSM score")

	f.Int(topPeaksFlagName, d.TopNPeaks, "keep the `n` most intense peaks per spectrum, 0 keeps all")
	f.Float64(peakRatioFlagName, d.MinPeakRatio, "drop peaks below this fraction of the base peak")
	f.String(chargeFlagName, "2:3", "charge `range` tried for precursors without charge")

	f.Bool(decoysFlagName, d.Decoys, "search reversed decoy proteins")
	f.Int(partitionsFlagName, d.TotalPartitions, "number of database partitions")
	f.Int(parallelFlagName, d.MaxParallelFiles, "number of spectra files searched at once")

	f.Bool(modUniqueFlagName, d.ModPeptidesAreUnique, "treat modified forms as distinct peptides in parsimony")
	f.Bool(oneHitFlagName, d.NoOneHitWonders, "drop protein groups with a single peptide")
	f.Float64(qValueFlagName, d.QValueThreshold, "q-value threshold for confident results")

	f.Bool(histogramFlagName, d.Histogram, "write the mass-shift histogram for narrow searches too")
	f.Float64(binTolFlagName, d.BinTolerance, "mass-shift histogram bin tolerance (Da)")
	f.String(calibrationFlagName, d.CalibrationMethod,
		`precursor error `+"`function`"+`: FTICR, TOF, Orbitrap, OFFSET or POLY<N>
(N in 1:5), empty to skip`)
	f.Float64(ppmCalFlagName, d.CalibrationTargetPPM,
		`0: remove outlier calibrants according to HUPO-PSI mzQC,
> 0: max error (ppm) for accepting a calibrant`)
	f.String(indexDirFlagName, "", "`directory` for storing fragment indexes")

	for flag, key := range map[string]string{
		databaseFlagName:    databasesKey,
		outputFlagName:      outputKey,
		searchTypeFlagName:  searchTypeKey,
		proteaseFlagName:    proteaseKey,
		specificityFlagName: specificityKey,
		missedFlagName:      missedKey,
		methionineFlagName:  methionineKey,
		lengthFlagName:      lengthKey,
		maxModsFlagName:     maxModsKey,
		isoformsFlagName:    isoformsKey,
		fixedFlagName:       fixedKey,
		variableFlagName:    variableKey,
		localizableFlagName: localizableKey,
		modFileFlagName:     modFileKey,
		ionsFlagName:        ionsKey,
		productTolFlagName:  productTolKey,
		precursorFlagName:   precursorKey,
		intensityFlagName:   intensityKey,
		scoreCutoffFlagName: scoreCutoffKey,
		topPeaksFlagName:    topPeaksKey,
		peakRatioFlagName:   peakRatioKey,
		chargeFlagName:      chargeKey,
		decoysFlagName:      decoysKey,
		partitionsFlagName:  partitionsKey,
		parallelFlagName:    parallelKey,
		modUniqueFlagName:   modUniqueKey,
		oneHitFlagName:      oneHitKey,
		qValueFlagName:      qValueKey,
		histogramFlagName:   histogramKey,
		binTolFlagName:      binTolKey,
		calibrationFlagName: calibrationKey,
		ppmCalFlagName:      ppmCalKey,
		indexDirFlagName:    indexDirKey,
	} {
		bindFlagToConfig(v, f.Lookup(flag), key)
	}
}

// searchOptions collects the search options from flags, config file and
// environment. spectra are the positional arguments.
func searchOptions(v *viper.Viper, spectra []string) (pipeline.Options, error) {
	o := pipeline.DefaultOptions()
	o.Databases = v.GetStringSlice(databasesKey)
	o.SpectraFiles = spectra
	o.OutputDir = v.GetString(outputKey)
	o.SearchType = pipeline.SearchType(strings.ToLower(v.GetString(searchTypeKey)))

	o.Protease = v.GetString(proteaseKey)
	o.Specificity = v.GetString(specificityKey)
	o.MaxMissedCleavages = v.GetInt(missedKey)
	o.InitiatorMethionine = v.GetString(methionineKey)
	lo, hi, err := parseIntRange(v.GetString(lengthKey), 1, math.MaxInt32)
	if err != nil {
		return o, fmt.Errorf("--%s: %w", lengthFlagName, err)
	}
	o.MinPeptideLength = lo
	o.MaxPeptideLength = 0
	if hi < math.MaxInt32 {
		o.MaxPeptideLength = hi
	}
	o.MaxModsForPeptide = v.GetInt(maxModsKey)
	o.MaxModificationIsoforms = v.GetInt(isoformsKey)

	o.FixedMods = v.GetStringSlice(fixedKey)
	o.VariableMods = v.GetStringSlice(variableKey)
	o.LocalizableMods = v.GetStringSlice(localizableKey)
	o.ModificationFile = v.GetString(modFileKey)

	o.IonTypes = v.GetStringSlice(ionsKey)
	o.ProductTolerance = v.GetString(productTolKey)
	o.PrecursorAcceptor = v.GetString(precursorKey)
	o.IntensityWeighted = v.GetBool(intensityKey)
	o.ScoreCutoff = v.GetFloat64(scoreCutoffKey)

	o.TopNPeaks = v.GetInt(topPeaksKey)
	o.MinPeakRatio = v.GetFloat64(peakRatioKey)
	if o.AssumedCharges, err = parseCharges(v.GetString(chargeKey)); err != nil {
		return o, fmt.Errorf("--%s: %w", chargeFlagName, err)
	}

	o.Decoys = v.GetBool(decoysKey)
	o.TotalPartitions = v.GetInt(partitionsKey)
	o.MaxParallelFiles = v.GetInt(parallelKey)

	o.ModPeptidesAreUnique = v.GetBool(modUniqueKey)
	o.NoOneHitWonders = v.GetBool(oneHitKey)
	o.QValueThreshold = v.GetFloat64(qValueKey)

	o.Histogram = v.GetBool(histogramKey)
	o.BinTolerance = v.GetFloat64(binTolKey)
	o.CalibrationMethod = v.GetString(calibrationKey)
	o.CalibrationTargetPPM = v.GetFloat64(ppmCalKey)

	o.IndexDir = v.GetString(indexDirKey)
	if v.IsSet(indexStoreKey) {
		var store indexcache.MinioConfig
		if err := v.UnmarshalKey(indexStoreKey, &store); err != nil {
			return o, fmt.Errorf("%s: %w", indexStoreKey, err)
		}
		if store.EndpointURL != "" {
			o.IndexStore = &store
		}
	}
	return o, nil
}

// exitCode maps errors to the process exit status
func exitCode(err error) int {
	var ce *pipeline.ConfigError
	if errors.As(err, &ce) {
		return 2
	}
	var re *indexcache.ResourceError
	if errors.As(err, &re) || errors.Is(err, os.ErrNotExist) {
		return 3
	}
	return 1
}
