// Command rangedl is the CLI front end (spec.md §6: "CLI — excluded from
// core"): it loads preferences, runs one download through the library API,
// records the attempt in the local history ledger, and prints the SHA-1 of
// the finished file on success.
package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"

	"github.com/NamanBalaji/rangedl"
	"github.com/NamanBalaji/rangedl/internal/config"
	"github.com/NamanBalaji/rangedl/internal/history"
	"github.com/NamanBalaji/rangedl/internal/httpclient"
	"github.com/NamanBalaji/rangedl/internal/logger"
)

const usage = `usage:
  rangedl download <url> [--file PATH] [--timeout MS] [--connections N] [--debug]
  rangedl history [id]`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		return -2
	}

	switch args[0] {
	case "download":
		return runDownload(args[1:])
	case "history":
		return runHistory(args[1:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		return -2
	}
}

// runHistory implements the ledger's read path (history.Store.All/Find),
// which otherwise has no caller outside history_test.go.
func runHistory(args []string) int {
	store, err := history.Open(filepath.Join(xdg.DataHome, "rangedl", "history.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangedl: open history: %v\n", err)
		return 1
	}
	defer store.Close()

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "rangedl: invalid id: %v\n", err)
			return -2
		}

		entry, err := store.Find(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rangedl: %v\n", err)
			return 1
		}

		printHistoryEntry(entry)

		return 0
	}

	entries, err := store.All()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangedl: list history: %v\n", err)
		return 1
	}

	for _, entry := range entries {
		printHistoryEntry(entry)
	}

	return 0
}

func printHistoryEntry(entry *history.Entry) {
	status := "ok"
	if !entry.Succeeded {
		status = entry.Kind.String()
	}

	fmt.Printf("%s  %-6s  %s  %s\n", entry.StartedAt.Format(time.RFC3339), status, entry.SHA1, entry.URL)
}

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	file := fs.String("file", "", "destination path (default: derived from the URL)")
	timeoutMs := fs.Int("timeout", 0, "download-level retry/arbitration timeout in milliseconds (default: from config)")
	connections := fs.Int("connections", 0, "number of connections (default: from config)")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return -2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		return -2
	}

	url := fs.Arg(0)

	prefs, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangedl: load config: %v\n", err)
		return 1
	}

	if *connections > 0 {
		prefs.Connections = *connections
	}

	if *timeoutMs > 0 {
		prefs.Timeout = time.Duration(*timeoutMs) * time.Millisecond
	}

	if *debug {
		prefs.Debug = true
	}

	dest := *file
	if dest == "" {
		dest = filepath.Join(prefs.DownloadDir, httpclient.Filename(nil, url))
	}

	logPath := prefs.LogPath
	if logPath == "" {
		logPath = filepath.Join(xdg.StateHome, "rangedl", "rangedl.log")
	}

	log, err := logger.New(prefs.Debug, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangedl: init logger: %v\n", err)
		return 1
	}
	defer log.Close()

	store, err := history.Open(filepath.Join(xdg.DataHome, "rangedl", "history.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangedl: open history: %v\n", err)
		return 1
	}
	defer store.Close()

	d := rangedl.New(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var interrupted atomic.Bool

	go func() {
		<-ctx.Done()
		interrupted.Store(true)
	}()

	startedAt := time.Now()

	var etag string
	var lastModified time.Time
	if _, _, _, rawHeader, probeOK, _ := d.ProbeAttributes(ctx, url, prefs.Headers, 3000); probeOK {
		header := http.Header(rawHeader)
		etag = header.Get("ETag")
		lastModified = httpclient.ParseLastModified(header.Get("Last-Modified"))
	}

	progress := newProgressPrinter()
	defer progress.finish()

	ok, kind := d.DownloadFile(ctx, url, dest, func(totalBytes, processedBytes int64) bool {
		progress.update(totalBytes, processedBytes)
		return !interrupted.Load()
	}, rangedl.Preferences{
		Connections: prefs.Connections,
		Interval:    prefs.Interval,
		BlockSize:   prefs.BlockSize,
		Timeout:     prefs.Timeout,
		Headers:     prefs.Headers,
	})

	entry := &history.Entry{
		URL:          url,
		Destination:  dest,
		ETag:         etag,
		LastModified: lastModified,
		Kind:         kind,
		Succeeded:    ok,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}

	if ok {
		sum, serr := sha1File(dest)
		if serr == nil {
			entry.SHA1 = sum
		}

		if info, serr := os.Stat(dest); serr == nil {
			entry.BytesTotal = info.Size()
		}
	}

	if rerr := store.Record(entry); rerr != nil {
		log.Warnf("record history entry: %v", rerr)
	}

	if !ok {
		fmt.Fprintf(os.Stderr, "rangedl: download failed: %s\n", kind)
		return 1
	}

	fmt.Println(entry.SHA1)

	return 0
}

func sha1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressPrinter renders a single-line ANSI progress bar, in the style of
// the corpus's own multi-download progress renderer, trimmed to one line
// since the CLI drives exactly one download at a time.
type progressPrinter struct {
	lastLine bool
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{}
}

func (p *progressPrinter) update(totalBytes, processedBytes int64) {
	fmt.Print("\r\033[K")

	if totalBytes <= 0 {
		fmt.Printf("downloaded %s", humanBytes(processedBytes))
		p.lastLine = true

		return
	}

	pct := float64(processedBytes) / float64(totalBytes) * 100
	fmt.Printf("%s %5.1f%%  %s / %s", progressBar(pct, 30), pct, humanBytes(processedBytes), humanBytes(totalBytes))
	p.lastLine = true
}

func (p *progressPrinter) finish() {
	if p.lastLine {
		fmt.Println()
	}
}

func progressBar(percentage float64, width int) string {
	completed := int(percentage * float64(width) / 100)
	if completed > width {
		completed = width
	}

	bar := "["
	for i := 0; i < width; i++ {
		if i < completed {
			bar += "="
		} else {
			bar += " "
		}
	}

	bar += "]"

	return bar
}

func humanBytes(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
