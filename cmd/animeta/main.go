package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/animeta/animeta/internal/anidb"
	"github.com/animeta/animeta/internal/anidb/ratelimit"
	"github.com/animeta/animeta/internal/config"
	"github.com/animeta/animeta/internal/logger"
)

// noMatcher stands in for the host's fuzzy title matcher, which this tool
// does not ship. Resolution from the command line requires -aid.
type noMatcher struct{}

func (noMatcher) FindSeriesID(ctx context.Context, name string) (string, error) {
	return "", nil
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	aid := flag.String("aid", "", "known AniDB series id")
	flag.Parse()

	name := flag.Arg(0)
	if name == "" && *aid == "" {
		fmt.Fprintln(os.Stderr, "usage: animeta [-config file] -aid <id> [series name]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Min:     time.Duration(cfg.AniDB.RateMinMs) * time.Millisecond,
		Average: time.Duration(cfg.AniDB.RateAvgMs) * time.Millisecond,
		Burst:   time.Duration(cfg.AniDB.RateBurstMs) * time.Millisecond,
	}, log.Logger)

	client := anidb.NewClient(cfg.AniDB, fs, log.Logger)
	splitter := anidb.NewSplitter(fs, log.Logger)
	cache := anidb.NewCache(fs, cfg.Cache.Root, cfg.Cache.StalenessWindow(), limiter, client, splitter, log.Logger)
	parser := anidb.NewParser(cfg.AniDB, fs, log.Logger)
	oracle := anidb.NewStalenessOracle(fs, cache, cfg.AniDB.EnableAutomaticUpdates)
	resolver := anidb.NewResolver(noMatcher{}, cache, parser, oracle, cfg.AniDB.PreferredLanguage, log.Logger)

	record, err := resolver.Resolve(ctx, name, *aid)
	if err != nil {
		log.Error().Err(err).Msg("Resolution failed")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode record")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
