package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/classifier"
	"github.com/elee1766/btdu/pkg/codec"
	"github.com/elee1766/btdu/pkg/config"
	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/state"
	"github.com/elee1766/btdu/pkg/trie"
	"github.com/elee1766/btdu/pkg/worker"
)

// CLI is the root command structure. There is a single run mode
// (sample a filesystem); --subprocess diverts into the worker loop
// instead, and --import/--compare divert into file inspection without
// touching any filesystem.
type CLI struct {
	LogLevel string `short:"l" enum:",debug,info,warn,error" help:"Log level (default: $BTDU_LOG_LEVEL or info)"`

	Physical      bool          `short:"p" help:"Sample physical device space instead of logical filesystem space"`
	Expert        bool          `help:"Track distributed/exclusive/shared counters and the sharing-group panel"`
	Procs         int           `short:"j" help:"Worker process count (default: number of logical CPUs)"`
	Seed          int64         `help:"RNG seed (default: derived from the current time)"`
	Headless      bool          `help:"Run without a TUI, printing a summary when sampling stops"`
	MaxSamples    uint64        `help:"Stop after this many completed samples"`
	MaxTime       time.Duration `help:"Stop after this much wall-clock time"`
	MinResolution uint64        `help:"Stop once total_size/sample_count falls to or below this many bytes"`

	Export  string `help:"Export accumulated statistics to PATH on exit, always in the native binary format"`
	Import  string `help:"Import a previously exported file and print its summary instead of sampling"`
	Compare string `help:"Import a second file and print a per-path delta against --import"`

	Subprocess bool `hidden:"" help:"Internal: run as a sampler worker subprocess"`

	Path string `arg:"" optional:"" help:"Path to a btrfs filesystem mount point or file within one"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("btdu"),
		kong.Description("Statistical disk usage profiler for btrfs"),
		kong.UsageOnError(),
	)
	err := run(cli)
	ctx.FatalIfErrorf(err)
}

func run(cli *CLI) error {
	cfg := config.New()
	if cli.LogLevel == "" {
		cli.LogLevel = cfg.LogLevel
	}
	logger := makeLogger(cli.LogLevel)
	slog.SetDefault(logger)

	if cli.Subprocess {
		return runSubprocess(cli)
	}
	if cli.Import != "" && cli.Path == "" {
		return runImport(cli)
	}
	return runSample(cli, logger, cfg)
}

// runSubprocess turns this binary into one sampler worker, invoked by
// the parent via state.SpawnWorker re-exec'ing os.Executable() with
// --subprocess.
func runSubprocess(cli *CLI) error {
	opts := worker.StartupOptions{
		FSPath:   cli.Path,
		Physical: cli.Physical,
		Seed:     cli.Seed,
	}
	return worker.Run(opts, os.Stdout)
}

// runImport loads an export file and prints its top-level summary;
// --compare additionally loads a second file and prints represented
// sample-count deltas for every path present in either snapshot.
func runImport(cli *CLI) error {
	snap, err := importFile(cli.Import)
	if err != nil {
		return fmt.Errorf("btdu: import %s: %w", cli.Import, err)
	}
	printSnapshotSummary(cli.Import, snap)

	if cli.Compare == "" {
		return nil
	}
	other, err := importFile(cli.Compare)
	if err != nil {
		return fmt.Errorf("btdu: import %s: %w", cli.Compare, err)
	}
	printSnapshotSummary(cli.Compare, other)
	printComparison(snap, other)
	return nil
}

func importFile(path string) (*codec.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".json") {
		return codec.ImportLegacyJSON(f)
	}
	return codec.Import(f)
}

func printSnapshotSummary(path string, snap *codec.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(path)
	t.AppendRow(table.Row{"Filesystem", snap.Header.FSPath})
	t.AppendRow(table.Row{"Total size", humanize.IBytes(snap.Header.TotalSize)})
	t.AppendRow(table.Row{"Samples", snap.SampleCount})
	t.Render()
}

// printComparison walks every non-root node of both snapshots' browser
// tries (by rendered path) and prints the represented sample-count delta.
func printComparison(a, b *codec.Snapshot) {
	sizeOf := func(snap *codec.Snapshot) map[string]uint64 {
		out := make(map[string]uint64)
		var walk func(n *trie.Node[trie.BrowserPathData])
		walk = func(n *trie.Node[trie.BrowserPathData]) {
			if n.Parent != nil {
				out[trie.FullPath(n)] = n.Data.Counters[trie.Represented].Samples
			}
			for _, c := range trie.Children(n) {
				walk(c)
			}
		}
		walk(snap.Browser.Root())
		return out
	}

	left := sizeOf(a)
	right := sizeOf(b)
	seen := make(map[string]bool, len(left)+len(right))

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Comparison (represented samples)")
	t.AppendHeader(table.Row{"Path", "Before", "After", "Delta"})
	for path := range left {
		if seen[path] {
			continue
		}
		seen[path] = true
		before, after := left[path], right[path]
		t.AppendRow(table.Row{path, before, after, int64(after) - int64(before)})
	}
	for path := range right {
		if seen[path] {
			continue
		}
		before, after := left[path], right[path]
		t.AppendRow(table.Row{path, before, after, int64(after) - int64(before)})
	}
	t.Render()
}

// runSample spawns one worker subprocess per CPU (or --procs), runs
// the event loop to accumulate samples, and on exit prints a headless
// summary and/or writes an export file.
func runSample(cli *CLI, logger *slog.Logger, cfg *config.Config) error {
	if cli.Path == "" {
		return fmt.Errorf("btdu: a filesystem path is required")
	}

	fsCap, err := sampling.OpenFilesystem(cli.Path)
	if err != nil {
		return fmt.Errorf("btdu: open filesystem: %w", err)
	}
	defer fsCap.Close()

	fsInfo, err := fsCap.FilesystemInfo()
	if err != nil {
		return fmt.Errorf("btdu: read filesystem info: %w", err)
	}

	var totalSize int64
	if cli.Physical {
		for _, dev := range fsInfo.Devices {
			totalSize += dev.TotalBytes
		}
	} else {
		idx, err := fsCap.EnumerateChunks(false)
		if err != nil {
			return fmt.Errorf("btdu: enumerate chunks: %w", err)
		}
		totalSize = idx.TotalSize()
	}

	shared := newShared(cli.Expert)
	sess := state.NewSession(cli.Path, uint64(totalSize), shared)
	sess.Stop = state.StopConditions{
		MaxSamples:    cli.MaxSamples,
		MaxTime:       cli.MaxTime,
		MinResolution: cli.MinResolution,
	}

	procs := cli.Procs
	if procs <= 0 {
		procs = runtime.NumCPU()
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("btdu: resolve executable path: %w", err)
	}
	seed := cli.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	for i := 0; i < procs; i++ {
		args := subprocessArgs(cli, seed+int64(i))
		wp, err := state.SpawnWorker(self, args, shared)
		if err != nil {
			return fmt.Errorf("btdu: spawn worker %d: %w", i, err)
		}
		sess.Workers = append(sess.Workers, wp)
	}
	logger.Info("sampling started", "path", cli.Path, "workers", procs, "physical", cli.Physical)

	loopErr := state.Loop(sess, state.StdinFD(), nil, nil)
	for _, wp := range sess.Workers {
		wp.Kill()
	}
	if loopErr != nil {
		return fmt.Errorf("btdu: %w", loopErr)
	}

	if cli.Headless || cli.Export != "" {
		printSessionSummary(sess)
	}
	if cli.Export != "" {
		exportPath := cli.Export
		if !strings.ContainsRune(exportPath, os.PathSeparator) {
			exportPath = cfg.SubPath(exportPath)
		}
		if err := exportSession(exportPath, sess, cli.Physical, uuid.UUID(fsInfo.UUID)); err != nil {
			return fmt.Errorf("btdu: export: %w", err)
		}
		logger.Info("exported", "path", exportPath)
	}
	return nil
}

func subprocessArgs(cli *CLI, seed int64) []string {
	args := []string{"--subprocess"}
	if cli.Physical {
		args = append(args, "--physical")
	}
	args = append(args, "--seed", fmt.Sprintf("%d", seed))
	args = append(args, cli.Path)
	return args
}

func newShared(expert bool) *classifier.Shared {
	a := arena.New(1 << 20)
	browserSlab := arena.NewSlab[trie.Node[trie.BrowserPathData]](1024, false)
	browser := trie.NewBrowserTrie(a, browserSlab)
	globalSlab := arena.NewSlab[trie.GlobalPath](1024, false)
	globalTable := trie.NewGlobalPathTable(globalSlab)
	shared := classifier.NewShared(browser, globalTable, func() *trie.SubPathTrie {
		subSlab := arena.NewSlab[trie.Node[struct{}]](256, false)
		return trie.NewSubPathTrie(a, subSlab)
	})
	shared.Expert = expert
	return shared
}

func printSessionSummary(sess *state.Session) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(sess.FSPath)
	t.AppendRow(table.Row{"Total size", humanize.IBytes(sess.TotalSize)})
	t.AppendRow(table.Row{"Samples", sess.SampleCount()})
	t.AppendRow(table.Row{"Resolution", humanize.IBytes(sess.Resolution())})
	t.AppendRow(table.Row{"Elapsed", time.Since(sess.StartedAt).Round(time.Second)})
	t.Render()
}

func exportSession(path string, sess *state.Session, physical bool, fsid uuid.UUID) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	flags := uint32(0)
	if sess.Shared.Expert {
		flags |= codec.FlagExpert
	}
	if physical {
		flags |= codec.FlagPhysical
	}
	h := codec.Header{
		FormatVersion: codec.FormatVersion,
		Flags:         flags,
		FSID:          fsid,
		TotalSize:     sess.TotalSize,
		FSPath:        sess.FSPath,
	}
	return codec.Export(f, h, sess.Shared.Browser, sess.SampleCount())
}

func makeLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
