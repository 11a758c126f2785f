package s3parquet

import (
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/columns"
	"github.com/adatao/ddf/engine/localexec"
	"github.com/adatao/ddf/logging"
	"github.com/adatao/ddf/storage/localfs"
)

// Defaults for Dataset profiling thresholds and machinery sizes.
const (
	DefaultAlias                   = "this"
	DefaultReprSampleSize          = 1_000_000
	DefaultReprSampleMinNPieces    = 100
	DefaultMinNonNullProportion    = .32
	DefaultOutlierTailProportion   = 1e-3
	DefaultMaxNCats                = 12
	DefaultMinProportionByMaxNCats = .9
	DefaultReadWorkers             = 4
	DefaultPieceCacheSize          = 64
)

// Options configures the construction of a Dataset handle. Collaborator
// fields left nil fall back to in-process defaults, so Open works out of the
// box against the local filesystem.
type Options struct {
	// Engine executes full-dataset work. Defaults to the in-process engine.
	Engine ddf.Engine
	// Store holds the dataset's piece files. Defaults to the local filesystem.
	Store ddf.ObjectStore
	// Registry caches discovery state across handles. Defaults to the
	// process-wide DefaultRegistry.
	Registry *Registry
	// TempDir receives subset copies, piece cache spill files and saved
	// preparation plans.
	TempDir string
	Logger  *logging.Logger
	// Alias is the temporary table name the dataset is registered under for
	// SQL transforms.
	Alias string
	// Refresh forces re-discovery even when the Registry already holds an
	// entry for the path.
	Refresh bool

	// ICol, DCol and TCol name the identity, date-partition and time columns.
	// ICol and DCol default to "id" and "date"; TCol defaults to unset, which
	// disables time auxiliary column derivation on local piece reads.
	ICol string
	DCol string
	TCol string

	// ReprSampleSize is the target row count of the representative sample.
	ReprSampleSize int64
	// ReprSampleMinNPieces floors the number of pieces sampling touches. It
	// is clamped to the dataset's piece count at Open.
	ReprSampleMinNPieces int
	// MinNonNullProportion is the threshold below which a column is deemed
	// to hold insufficient data.
	MinNonNullProportion float64
	// OutlierTailProportion is the tail mass clipped off each end when
	// computing outlier-resistant statistics.
	OutlierTailProportion float64
	// MaxNCats caps the number of levels a categorical column may use.
	MaxNCats int
	// MinProportionByMaxNCats is the sample proportion the top MaxNCats
	// levels must cover for a column to qualify as categorical.
	MinProportionByMaxNCats float64

	// ReadWorkers bounds concurrent piece reads and subset copies.
	ReadWorkers int
	// PieceCacheSize is the number of piece records held in memory before
	// spilling to disk.
	PieceCacheSize int
	// SampleSeed seeds piece choice and row sampling. Zero draws a seed from
	// the clock, making samples non-repeatable.
	SampleSeed int64
	Mem        memory.Allocator
}

func ensureDefaultOptions(opts *Options) *Options {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Engine == nil {
		opts.Engine = localexec.NewEngine(nil)
	}
	if opts.Store == nil {
		opts.Store = localfs.New()
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), ".ddf", "df")
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("s3parquet", logging.InfoLevel)
	}
	if opts.ICol == "" {
		opts.ICol = columns.DefaultICol
	}
	if opts.DCol == "" {
		opts.DCol = columns.DefaultDCol
	}
	if opts.ReprSampleSize <= 0 {
		opts.ReprSampleSize = DefaultReprSampleSize
	}
	if opts.ReprSampleMinNPieces <= 0 {
		opts.ReprSampleMinNPieces = DefaultReprSampleMinNPieces
	}
	if opts.MinNonNullProportion <= 0 {
		opts.MinNonNullProportion = DefaultMinNonNullProportion
	}
	if opts.OutlierTailProportion <= 0 {
		opts.OutlierTailProportion = DefaultOutlierTailProportion
	}
	if opts.MaxNCats <= 0 {
		opts.MaxNCats = DefaultMaxNCats
	}
	if opts.MinProportionByMaxNCats <= 0 {
		opts.MinProportionByMaxNCats = DefaultMinProportionByMaxNCats
	}
	if opts.ReadWorkers <= 0 {
		opts.ReadWorkers = DefaultReadWorkers
	}
	if opts.PieceCacheSize <= 0 {
		opts.PieceCacheSize = DefaultPieceCacheSize
	}
	if opts.Mem == nil {
		opts.Mem = memory.DefaultAllocator
	}
	return opts
}

// SampleOptions tunes one Sample call.
type SampleOptions struct {
	// MinNPieces floors the number of pieces read. Zero falls back to the
	// dataset's clamped ReprSampleMinNPieces.
	MinNPieces int
	// MaxNPieces caps the number of pieces read. Zero means no cap.
	MaxNPieces int
	// Seed overrides the dataset's sampling seed for this call.
	Seed int64
}
