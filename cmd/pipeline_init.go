package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/area"
	"github.com/sells-group/listing-ledger/internal/config"
	"github.com/sells-group/listing-ledger/internal/extract"
	"github.com/sells-group/listing-ledger/internal/journal"
	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/pipeline"
	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/internal/session"
	"github.com/sells-group/listing-ledger/internal/source"
	"github.com/sells-group/listing-ledger/internal/source/htmlsource"
	"github.com/sells-group/listing-ledger/internal/source/places"
	"github.com/sells-group/listing-ledger/pkg/firecrawl"
	"github.com/sells-group/listing-ledger/pkg/google"
)

// pipelineEnv holds the source, the journal and the run options needed by
// the run and validate-area commands.
type pipelineEnv struct {
	Source  source.Source
	Journal *journal.Journal // may be nil
	Schema  model.Schema
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Journal != nil {
		_ = pe.Journal.Close()
	}
}

// initPipeline validates the config for a run and builds the configured
// source driver. withJournal also opens the run journal. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, withJournal bool) (*pipelineEnv, error) {
	if err := c.Validate("run"); err != nil {
		return nil, err
	}
	schema, err := model.ParseSchema(c.Ledger.Schema)
	if err != nil {
		return nil, err
	}

	src, err := initSource(c)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Source: src, Schema: schema}

	if withJournal && c.Journal.Path != "" {
		j, err := initJournal(ctx, c.Journal.Path)
		if err != nil {
			// The journal is bookkeeping; a run proceeds without it.
			zap.L().Warn("run journal unavailable", zap.String("path", c.Journal.Path), zap.Error(err))
		} else {
			env.Journal = j
		}
	}
	return env, nil
}

// initSource builds the listing source selected by source.driver.
func initSource(c *config.Config) (source.Source, error) {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Extract.SearchRetries

	var breaker *resilience.Breaker
	if c.Source.BreakerThreshold > 0 {
		breaker = resilience.NewBreaker(c.Source.Driver, c.Source.BreakerThreshold, time.Duration(c.Source.BreakerCooldownSecs)*time.Second)
	}

	switch c.Source.Driver {
	case "places":
		client := google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.BaseURL))
		zap.L().Info("source: google places api", zap.Float64("rate_limit", c.Google.RateLimit))
		return places.New(client, places.Options{
			PageSize:     c.Google.PageSize,
			LanguageCode: c.Google.LanguageCode,
			RegionCode:   c.Google.RegionCode,
			RateLimit:    c.Google.RateLimit,
			Retry:        retry,
			Breaker:      breaker,
		}), nil

	case "html":
		timeout := time.Duration(c.HTML.TimeoutSecs) * time.Second
		var r htmlsource.Renderer
		switch c.HTML.Renderer {
		case "firecrawl":
			fc := firecrawl.NewClient(c.Firecrawl.Key,
				firecrawl.WithBaseURL(c.Firecrawl.BaseURL),
				firecrawl.WithHTTPClient(&http.Client{Timeout: 2 * timeout}),
			)
			r = htmlsource.NewFirecrawlRenderer(fc, config.Millis(c.Extract.SettleSearchMS), config.Millis(c.Extract.SettleScrollMS))
		default:
			r = htmlsource.NewDirectRenderer(c.HTML.UserAgent, timeout)
		}
		zap.L().Info("source: rendered html", zap.String("renderer", c.HTML.Renderer))
		return htmlsource.New(r, htmlsource.Options{
			SearchURL: c.HTML.SearchURL,
			Retry:     retry,
			Breaker:   breaker,
		}), nil

	default:
		return nil, eris.Errorf("unsupported source driver: %s", c.Source.Driver)
	}
}

func initJournal(ctx context.Context, path string) (*journal.Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	if err := j.Migrate(ctx); err != nil {
		_ = j.Close()
		return nil, eris.Wrap(err, "migrate journal")
	}
	return j, nil
}

// areaOptions builds validator options. prompt may be nil.
func areaOptions(c *config.Config, prompt area.Prompt) area.Options {
	return area.Options{
		MaxAttempts: c.Area.MaxAttempts,
		Region:      c.Area.Region,
		Settle:      config.Millis(c.Extract.SettleSearchMS),
		Prompt:      prompt,
	}
}

// runOptions builds the explicit configuration of one run.
func runOptions(c *config.Config, schema model.Schema, areaName string, count int) pipeline.Options {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Extract.SearchRetries

	xopts := extract.Options{
		SettleOpen: config.Millis(c.Extract.SettleOpenMS),
		SkipClosed: c.Extract.SkipClosed,
	}
	if c.Snapshot.Enabled {
		xopts.SnapshotDir = c.Snapshot.Dir
	}

	return pipeline.Options{
		OutputDir:    c.Ledger.OutputDir,
		DuplicateDir: c.Ledger.DuplicateDir,
		Schema:       schema,
		Area:         areaName,
		Count:        count,
		Session: session.Options{
			Subject:         c.Extract.Subject,
			MaxEmptyRetries: c.Extract.MaxEmptyRetries,
			MaxScrollProbes: c.Extract.MaxScrollProbes,
			SettleSearch:    config.Millis(c.Extract.SettleSearchMS),
			SettleNext:      config.Millis(c.Extract.SettleNextMS),
			SettleScroll:    config.Millis(c.Extract.SettleScrollMS),
			SettleReload:    config.Millis(c.Extract.SettleReloadMS),
			EmptyWait:       config.Millis(c.Extract.EmptyWaitMS),
			SearchRetry:     retry,
		},
		Extract: xopts,
	}
}
