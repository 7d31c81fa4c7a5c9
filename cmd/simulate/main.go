package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/volleycoach/internal/simulate"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	def := simulate.DefaultConfig()
	var (
		baseURL     = flag.String("url", def.BaseURL, "Base URL of the service")
		plan        = flag.String("plan", def.Plan, "Match plan: w holds the called pose, l shows a wrong one")
		interval    = flag.Duration("interval", def.Interval, "Gap between two classifications")
		confidence  = flag.Float64("confidence", def.Confidence, "Confidence sent with every classification")
		retries     = flag.Int("retries", def.MaxRetries, "Practice retries per pose after an expiry")
		transport   = flag.String("transport", def.Transport, `Send classifications over "http" or "ws"`)
		timeout     = flag.Duration("timeout", def.Timeout, "HTTP request timeout")
		stepTimeout = flag.Duration("step-timeout", def.StepTimeout, "Longest wait for one expected event")
		logFile     = flag.String("log", "", "Log file (default: stderr)")
		verbose     = flag.Bool("verbose", false, "Print every event and debug logs")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &simulate.Config{
		BaseURL:     *baseURL,
		Timeout:     *timeout,
		StepTimeout: *stepTimeout,
		Interval:    *interval,
		Confidence:  *confidence,
		Plan:        *plan,
		MaxRetries:  *retries,
		Transport:   *transport,
		Verbose:     *verbose,
	}

	if err := run(cfg); err != nil {
		_, _ = os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg *simulate.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	_, err := simulate.Run(ctx, cfg, os.Stdout)
	return err
}
