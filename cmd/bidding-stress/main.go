// Command bidding-stress fires a batch of staggered concurrent bids at a
// bidding server and prints each response with its elapsed time.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/labstack/gommon/log"

	"bidding/internal/config"
	"bidding/internal/logging"
	"bidding/internal/stress"
)

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// setup loads the .env files before building the logger so LOG_LEVEL may
// come from either. The logger is usable even when loading fails.
func setup(envFiles ...string) (*log.Logger, error) {
	err := config.LoadDotEnv(envFiles...)

	return logging.New("bidding-stress", os.Getenv("LOG_LEVEL"), os.Stderr), err
}

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := setup()
	if err != nil {
		logger.Error(err)
		return 1
	}

	cfg, err := config.LoadStress()
	if err != nil {
		logger.Error(err)
		return 1
	}

	var keywords stringList

	flag.StringVar(&cfg.URL, "url", cfg.URL, "bid endpoint to POST to")
	flag.IntVar(&cfg.Count, "n", cfg.Count, "number of requests")
	flag.DurationVar(&cfg.Stagger, "stagger", cfg.Stagger, "pause before starting each request")
	flag.Var(&keywords, "keyword", "keyword to bid on (repeatable)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per request timeout, 0 for none")
	quiet := flag.Bool("quiet", false, "do not print the summary")
	flag.Parse()

	if len(keywords) > 0 {
		cfg.Keywords = keywords
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Infof("Sending %d bids to %s", cfg.Count, cfg.URL)

	summary, err := stress.NewRunner(cfg, stress.WithOutput(os.Stdout)).Run(ctx)

	if !*quiet {
		if werr := summary.Write(os.Stdout); werr != nil {
			logger.Error(werr)
		}
	}

	if err != nil {
		logger.Errorf("stress test aborted: %v", err)
		return 1
	}

	logger.Info("Stress test completed")

	return 0
}
