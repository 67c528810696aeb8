package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/trafficsim/pkg/api/client"
)

var buildVersion = "dev"

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

const (
	envAPIURL       = "TRAFFICCTL_API_URL"
	envControlToken = "TRAFFICCTL_CONTROL_TOKEN"
	requestTimeout  = 15 * time.Second
	defaultWidth    = 80
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "snapshot":
		err = commandSnapshot(args)
	case "summary":
		err = commandSummary(args)
	case "refresh":
		err = commandRefresh(args)
	case "live":
		err = commandLive(args)
	case "watch":
		err = commandWatch(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type connFlags struct {
	api   *string
	token *string
}

func bindConnFlags(fs *flag.FlagSet) connFlags {
	return connFlags{
		api:   fs.String("api", os.Getenv(envAPIURL), "trafficd base URL (default http://localhost:4100)"),
		token: fs.String("token", os.Getenv(envControlToken), "Control token for refresh and live commands"),
	}
}

func (c connFlags) client() (*apiclient.Client, error) {
	return apiclient.New(*c.api, apiclient.WithControlToken(*c.token))
}

func commandSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	conn := bindConnFlags(fs)
	asJSON := fs.Bool("json", false, "Print the raw snapshot as JSON")
	fs.Parse(args)

	client, err := conn.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snap, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(stdout, snap)
	}
	printSnapshot(stdout, snap)
	return nil
}

func commandSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	conn := bindConnFlags(fs)
	asJSON := fs.Bool("json", false, "Print the summary as JSON")
	fs.Parse(args)

	client, err := conn.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	summary, err := client.Summary(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(stdout, summary)
	}
	printSummary(stdout, summary, defaultWidth)
	return nil
}

func commandRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	conn := bindConnFlags(fs)
	fs.Parse(args)

	client, err := conn.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snap, err := client.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "snapshot refreshed: %s sequence=%d detections=%d\n", snap.ID, snap.Sequence, len(snap.VehicleDetections))
	return nil
}

func commandLive(args []string) error {
	action := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action = args[0]
		args = args[1:]
	}
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	conn := bindConnFlags(fs)
	fs.Parse(args)

	client, err := conn.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var status apiclient.LiveStatus
	switch action {
	case "", "status":
		status, err = client.Live(ctx)
	case "pause":
		status, err = client.Pause(ctx)
	case "resume":
		status, err = client.Resume(ctx)
	default:
		return fmt.Errorf("unknown live command: %s", action)
	}
	if err != nil {
		return err
	}
	state := "paused"
	if status.Live {
		state = "live"
	}
	fmt.Fprintf(stdout, "%s interval=%s sequence=%d last_updated=%s\n", state, time.Duration(status.IntervalMS)*time.Millisecond, status.Sequence, status.LastUpdated.Format(time.RFC3339))
	return nil
}

func commandWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	conn := bindConnFlags(fs)
	interval := fs.Duration("interval", 3*time.Second, "Polling interval")
	fs.Parse(args)

	if *interval <= 0 {
		return errors.New("--interval must be positive")
	}
	client, err := conn.client()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchSummaries(ctx, client, *interval, terminalScreen(os.Stdout))
}

// screen reports the render width and whether output is an interactive
// terminal that should be cleared between frames.
type screen func() (width int, interactive bool)

func terminalScreen(f *os.File) screen {
	fd := int(f.Fd())
	return func() (int, bool) {
		if !term.IsTerminal(fd) {
			return defaultWidth, false
		}
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			return w, true
		}
		return defaultWidth, true
	}
}

type summaryFetcher interface {
	Summary(ctx context.Context) (apiclient.Summary, error)
}

// watchSummaries polls the summary every interval and redraws it whenever
// the sequence changes. Fetch errors are reported and polling continues
// until ctx is done.
func watchSummaries(ctx context.Context, client summaryFetcher, interval time.Duration, scr screen) error {
	if scr == nil {
		scr = func() (int, bool) { return defaultWidth, false }
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSequence uint64
	for {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		summary, err := client.Summary(reqCtx)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			fmt.Fprintf(stderr, "error: %v\n", err)
		case summary.Sequence != lastSequence:
			lastSequence = summary.Sequence
			width, interactive := scr()
			if interactive {
				fmt.Fprint(stdout, "\033[H\033[2J")
			}
			printSummary(stdout, summary, width)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSnapshot(w io.Writer, snap apiclient.Snapshot) {
	fmt.Fprintf(w, "snapshot %s sequence=%d at %s\n\n", snap.ID, snap.Sequence, snap.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(w, "LIGHTS")
	for _, light := range snap.TrafficLights {
		fmt.Fprintf(w, "%s\t%-7s\t%3ds\t%s\t%s\n", light.ID, light.Status, light.Countdown, light.Phase, light.Location)
	}
	fmt.Fprintln(w, "\nINTERSECTIONS")
	for _, m := range snap.Metrics {
		fmt.Fprintf(w, "%-16s\tvehicles=%d\twait=%ds\tcongestion=%s\tthroughput=%d/h\n", m.Intersection, m.VehicleCount, m.AvgWaitTime, m.CongestionLevel, m.Throughput)
	}
	fmt.Fprintf(w, "\nDETECTIONS (%d)\n", len(snap.VehicleDetections))
	for _, d := range snap.VehicleDetections {
		fmt.Fprintf(w, "%s\t%-10s\t%.2f\t%s\n", d.CameraID, d.Type, d.Confidence, d.ID)
	}
}

func printSummary(w io.Writer, summary apiclient.Summary, width int) {
	fmt.Fprintf(w, "sequence %d at %s\n", summary.Sequence, summary.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "vehicles=%d  avg_wait=%ds  high_congestion=%d/%d  detections=%d\n",
		summary.TotalVehicles, summary.AverageWaitTime, summary.HighCongestionCount, summary.Intersections, summary.TotalDetections)
	fmt.Fprintf(w, "signals red=%d yellow=%d green=%d\n\n",
		summary.SignalCounts["red"], summary.SignalCounts["yellow"], summary.SignalCounts["green"])

	barWidth := width - 32
	if barWidth < 10 {
		barWidth = 10
	}
	for _, c := range summary.Detections {
		filled := int(c.Percentage / 100 * float64(barWidth))
		fmt.Fprintf(w, "%-10s %3d %5.1f%% %s\n", c.Type, c.Count, c.Percentage, strings.Repeat("#", filled))
	}
}

func printUsage() {
	fmt.Fprintf(stdout, "trafficctl %s\n\n", buildVersion)
	fmt.Fprint(stdout, `Usage:
	trafficctl snapshot [--json] [--api http://localhost:4100]
	trafficctl summary [--json]
	trafficctl refresh [--token secret]
	trafficctl live [status|pause|resume] [--token secret]
	trafficctl watch [--interval 3s]
	trafficctl version

Environment:
	TRAFFICCTL_API_URL        default for --api
	TRAFFICCTL_CONTROL_TOKEN  default for --token
`)
}

func printVersion() {
	fmt.Fprintln(stdout, strings.TrimSpace(buildVersion))
}
