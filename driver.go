package ddprofiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddsql"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddstore"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// ErrUnknownMode is returned for an execution mode that does not exist.
var ErrUnknownMode = errors.New("unknown execution mode")

// Mode selects how a Driver discovers sources
type Mode int

// Execution modes
const (
	Online Mode = iota
	OfflineFiles
	OfflineDB
	Benchmark
)

var modeNames = []string{"online", "offline_files", "offline_db", "benchmark"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode accepts a mode by name or by number.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n < len(modeNames) {
			return Mode(n), nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownMode, n)
	}
	s = strings.ReplaceAll(s, "-", "_")
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// config configures a Driver's run
type config struct {
	Mode               Mode
	Store              ddstore.Config
	Sources            string
	Separator          rune
	Dataset            string
	Workers            int
	ReportInterval     time.Duration
	DBProperties       string
	ListenAddress      string
	BenchmarkThreshold int
	BenchmarkDuration  time.Duration
	MaxRows            int64
	Progress           bool
}

func newConfig() (*config, error) {
	loadConfig() // Load viper config from settings file(s) and environment

	mode, err := ParseMode(viper.GetString("execution_mode"))
	if err != nil {
		return nil, err
	}
	kind, err := ddstore.ParseKind(viper.GetString("store_type"))
	if err != nil {
		return nil, err
	}
	sep, err := ddtask.ParseSeparator(viper.GetString("csv_separator"))
	if err != nil {
		return nil, err
	}

	return &config{
		Mode: mode,
		Store: ddstore.Config{
			Kind:          kind,
			Addresses:     viper.GetStringSlice("elastic_addresses"),
			Username:      viper.GetString("elastic_username"),
			Password:      viper.GetString("elastic_password"),
			Index:         viper.GetString("store_index"),
			FlushInterval: viper.GetDuration("store_flush"),
			DSN:           viper.GetString("store_dsn"),
			Table:         viper.GetString("store_table"),
			BatchSize:     viper.GetInt("store_batch_size"),
			Dir:           viper.GetString("store_dir"),
			Bins:          viper.GetUint("store_bins"),
		},
		Sources:            viper.GetString("sources_folder"),
		Separator:          sep,
		Dataset:            viper.GetString("db_name"),
		Workers:            viper.GetInt("num_workers"),
		ReportInterval:     time.Duration(viper.GetInt("report_metrics_console")) * time.Second,
		DBProperties:       viper.GetString("db_properties"),
		ListenAddress:      viper.GetString("listen_address"),
		BenchmarkThreshold: viper.GetInt("benchmark_threshold"),
		BenchmarkDuration:  viper.GetDuration("benchmark_duration"),
		MaxRows:            viper.GetInt64("max_rows"),
		Progress:           viper.GetBool("progress"),
	}, nil
}

// Option allows configuration of a Driver
type Option func(*config)

// WithMode sets the execution mode of the Driver
func WithMode(m Mode) Option {
	return func(c *config) {
		c.Mode = m
	}
}

// WithStore sets the store profiles are written to
func WithStore(s ddstore.Config) Option {
	return func(c *config) {
		c.Store = s
	}
}

// WithSources sets the root walked in offline_files mode, or the file
// profiled in benchmark mode
func WithSources(location string) Option {
	return func(c *config) {
		c.Sources = location
	}
}

// WithSeparator sets the field separator of CSV sources
func WithSeparator(sep rune) Option {
	return func(c *config) {
		c.Separator = sep
	}
}

// WithDataset sets the dataset name profiles are recorded under
func WithDataset(name string) Option {
	return func(c *config) {
		c.Dataset = name
	}
}

// WithWorkers sets the number of concurrent workers
func WithWorkers(n int) Option {
	return func(c *config) {
		c.Workers = n
	}
}

// WithDBProperties sets the properties file describing the catalog for
// offline_db mode
func WithDBProperties(path string) Option {
	return func(c *config) {
		c.DBProperties = path
	}
}

// WithListenAddress sets the address of the online server
func WithListenAddress(addr string) Option {
	return func(c *config) {
		c.ListenAddress = addr
	}
}

// WithBenchmark sets the queue length kept in benchmark mode and how long
// to keep it topped up
func WithBenchmark(threshold int, duration time.Duration) Option {
	return func(c *config) {
		c.BenchmarkThreshold = threshold
		c.BenchmarkDuration = duration
	}
}

// WithMaxRows limits the rows profiled per source
func WithMaxRows(n int64) Option {
	return func(c *config) {
		c.MaxRows = n
	}
}

// WithProgress enables the progress bar of offline runs
func WithProgress(enabled bool) Option {
	return func(c *config) {
		c.Progress = enabled
	}
}

// WithReportInterval sets how often conductor stats are logged
func WithReportInterval(interval time.Duration) Option {
	return func(c *config) {
		c.ReportInterval = interval
	}
}

// Driver runs one profiling session: it builds the store, profiler and
// Conductor, feeds the Conductor according to the execution mode and
// shuts everything down once the work is drained.
type Driver struct {
	config  *config
	options []Option
	runID   string
}

// NewDriver creates a new Driver with the optional configuration
func NewDriver(options ...Option) (*Driver, error) {
	d := &Driver{
		options: options,
		runID:   uuid.NewString(),
	}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) reload() error {
	c, err := newConfig()
	if err != nil {
		return err
	}
	for _, f := range d.options {
		f(c)
	}
	d.config = c
	log.Debugf("Loaded config: mode=%s store=%s sources=%s workers=%d", c.Mode, c.Store.Kind, c.Sources, c.Workers)
	return nil
}

func configureLogging() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
		return
	}
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		log.Warnf("Invalid log level %q, using info", viper.GetString("log_level"))
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func reportStats(ctx context.Context, logger *log.Entry, c *Conductor, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			logger.WithFields(log.Fields{
				"queued":         s.Queued,
				"active":         s.Active,
				"completed":      s.Completed,
				"failed":         s.Failed,
				"profiles":       s.ProfilesWritten,
				"write_failures": s.WriteFailures,
			}).Info("Conductor stats")
		}
	}
}

// Run executes the configured mode until its work is drained, or, for
// online mode, until the process is signalled. Setup failures are
// returned before any task runs.
func (d *Driver) Run(ctx context.Context) error {
	start := time.Now()
	c := d.config
	logger := log.WithField("run", d.runID)
	logger.Infof("Starting %s run with %s store", c.Mode, c.Store.Kind)

	store, err := ddstore.New(ctx, c.Store)
	if err != nil {
		return fmt.Errorf("setting up %s store: %w", c.Store.Kind, err)
	}
	profiler, err := ddprofile.NewProfiler(ddprofile.WithMaxRows(c.MaxRows))
	if err != nil {
		store.TearDown(ctx)
		return err
	}
	defer profiler.Close()

	var bar *pb.ProgressBar
	options := []ConductorOption{WithPoolSize(c.Workers), WithLogger(logger)}
	if c.Progress && (c.Mode == OfflineFiles || c.Mode == OfflineDB) {
		bar = pb.New(0).Prefix("Profile")
		options = append(options, WithTaskObserver(func(TaskResult) { bar.Increment() }))
	}
	conductor := NewConductor(profiler, store, options...)
	if err := conductor.Start(); err != nil {
		store.TearDown(ctx)
		return err
	}

	reportCtx, stopReporting := context.WithCancel(ctx)
	go reportStats(reportCtx, logger, conductor, c.ReportInterval)

	err = d.runMode(ctx, conductor, store, bar)
	if err == nil && c.Mode != Online {
		err = conductor.Wait(ctx)
	}
	if bar != nil {
		bar.Finish()
	}
	stopReporting()

	if stopErr := conductor.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if tdErr := store.TearDown(context.Background()); tdErr != nil && err == nil {
		err = fmt.Errorf("tearing down store: %w", tdErr)
	}

	s := conductor.Stats()
	fields := log.Fields{
		"submitted":      s.Submitted,
		"completed":      s.Completed,
		"failed":         s.Failed,
		"discarded":      s.Discarded,
		"profiles":       s.ProfilesWritten,
		"write_failures": s.WriteFailures,
	}
	if dropper, ok := store.(ddstore.Dropper); ok {
		fields["store_dropped"] = dropper.Dropped()
	}
	logger.WithFields(fields).Infof("Finished processing in %s", time.Since(start))
	return err
}

func (d *Driver) runMode(ctx context.Context, conductor *Conductor, store ddstore.Store, bar *pb.ProgressBar) error {
	c := d.config
	switch c.Mode {
	case Online:
		return d.serve(ctx, conductor, store)
	case OfflineFiles:
		n, err := SubmitFiles(ctx, conductor, c.Dataset, c.Sources, c.Separator)
		startBar(bar, n)
		return err
	case OfflineDB:
		conn, err := ddsql.LoadConnInfo(c.DBProperties)
		if err != nil {
			return err
		}
		n, err := SubmitTables(ctx, conductor, c.Dataset, conn)
		startBar(bar, n)
		return err
	case Benchmark:
		t, err := ddtask.NewBenchmark(c.Sources, c.Separator)
		if err != nil {
			return err
		}
		_, err = RunBenchmark(ctx, conductor, t, c.BenchmarkThreshold, c.BenchmarkDuration)
		return err
	}
	return fmt.Errorf("%w: %d", ErrUnknownMode, int(c.Mode))
}

func startBar(bar *pb.ProgressBar, total int) {
	if bar == nil {
		return
	}
	bar.SetTotal(total)
	bar.Start()
}

// serve accepts online submissions until the process is signalled.
func (d *Driver) serve(ctx context.Context, conductor *Conductor, store ddstore.Store) error {
	if runningInLambda() {
		h := &lambdaHandler{conductor: conductor, store: store}
		lambda.Start(h.handleRequest)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewServer(d.config.ListenAddress, conductor).Run(ctx)
}

// flagKeys maps command-line flags to the config keys they set
var flagKeys = map[string]string{
	"mode":                "execution_mode",
	"store":               "store_type",
	"sources":             "sources_folder",
	"separator":           "csv_separator",
	"dataset":             "db_name",
	"workers":             "num_workers",
	"db-properties":       "db_properties",
	"listen":              "listen_address",
	"report-interval":     "report_metrics_console",
	"benchmark-threshold": "benchmark_threshold",
	"benchmark-duration":  "benchmark_duration",
	"max-rows":            "max_rows",
	"progress":            "progress",
	"log-level":           "log_level",
	"verbose":             "verbose",
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flags.StringP("mode", "m", "", "execution mode: online, offline_files, offline_db, benchmark (or 0-3)")
	flags.StringP("store", "s", "", "store backend: elastic, postgres, sqlite, file, null")
	flags.String("sources", "", "folder (local or s3://) to profile, or the benchmark file")
	flags.String("separator", "", "field separator of CSV sources")
	flags.String("dataset", "", "dataset name recorded with every profile")
	flags.IntP("workers", "w", 0, "number of concurrent workers (0 uses one per CPU)")
	flags.String("db-properties", "", "properties file describing the catalog to profile")
	flags.String("listen", "", "address of the online server")
	flags.Int("report-interval", 0, "seconds between stats reports (0 disables)")
	flags.Int("benchmark-threshold", 0, "queue length kept in benchmark mode")
	flags.Duration("benchmark-duration", 0, "how long to keep the benchmark queue filled")
	flags.Int64("max-rows", 0, "maximum rows profiled per source (0 reads everything)")
	flags.Bool("progress", true, "show a progress bar in offline modes")
	flags.String("log-level", "", "log level")
	flags.BoolP("verbose", "v", false, "verbose logging")
	flags.String("memprofile", "", "write memory profile to `file`")
	return flags
}

// Main configures the Driver from the command line and runs it, exiting
// the process with a non-zero status on failure.
func (d *Driver) Main() {
	flags := newFlagSet()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	for name, key := range flagKeys {
		viper.BindPFlag(key, flags.Lookup(name))
	}
	if flags.NArg() > 0 {
		viper.Set("sources_folder", flags.Arg(0))
	}

	configureLogging()
	if err := d.reload(); err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}

	start := time.Now()
	err := d.Run(context.Background())
	fmt.Printf("Run Execution Time: %s\n", time.Since(start))

	if memprofile, _ := flags.GetString("memprofile"); memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		f.Close()
	}

	if err != nil {
		log.Errorf("Run failed: %s", err)
		os.Exit(1)
	}
}
