package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-ledger/internal/area"
	"github.com/sells-group/listing-ledger/internal/config"
	"github.com/sells-group/listing-ledger/internal/journal"
	"github.com/sells-group/listing-ledger/internal/ledger"
	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/pipeline"
	"github.com/sells-group/listing-ledger/internal/session"
	"github.com/sells-group/listing-ledger/internal/source/htmlsource"
	"github.com/sells-group/listing-ledger/internal/source/places"
)

const searchPage = `<html><body>
<div class="Nv2PK"><a class="hfpxzc" href="/maps/place/Chips+Corner/@12.97,77.64,17z"></a><div class="qBF1Pd">Chips Corner</div></div>
<div class="Nv2PK"><a class="hfpxzc" href="/maps/place/Hot+Chips/@12.98,77.65,17z"></a><div class="qBF1Pd">Hot Chips</div></div>
</body></html>`

const placePage = `<html><body>
<a href="tel:+919845012345">Call</a>
<button data-item-id="address"><div>12 CMH Road, Indiranagar</div></button>
</body></html>`

func newMapsStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/maps/search/"):
			_, _ = w.Write([]byte(searchPage))
		case strings.HasPrefix(r.URL.Path, "/maps/place/"):
			_, _ = w.Write([]byte(placePage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, searchURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Ledger: config.LedgerConfig{
			OutputDir:    filepath.Join(dir, "data"),
			DuplicateDir: filepath.Join(dir, "duplicate_data"),
			Schema:       "extended",
		},
		Extract: config.ExtractConfig{
			Subject:         "hot chips",
			MaxEmptyRetries: 2,
			MaxScrollProbes: 1,
			SearchRetries:   1,
		},
		Area:    config.AreaConfig{MaxAttempts: 1},
		Source:  config.SourceConfig{Driver: "html"},
		HTML:    config.HTMLConfig{SearchURL: searchURL, Renderer: "direct", TimeoutSecs: 5},
		Journal: config.JournalConfig{Path: filepath.Join(dir, "journal.db")},
	}
}

func setRunFlags(t *testing.T, areaName string, count int) {
	t.Helper()
	oldArea, oldCount, oldJSON := runArea, runCount, runJSON
	runArea, runCount, runJSON = areaName, count, false
	t.Cleanup(func() { runArea, runCount, runJSON = oldArea, oldCount, oldJSON })
}

func TestRunCmd_EndToEnd(t *testing.T) {
	srv := newMapsStub(t)
	oldCfg := cfg
	cfg = testConfig(t, srv.URL+"/maps/search/")
	defer func() { cfg = oldCfg }()
	setRunFlags(t, "Indiranagar", 5)

	runCmd.SetContext(context.Background())
	require.NoError(t, runCmd.RunE(runCmd, nil))

	runFiles, _ := filepath.Glob(filepath.Join(cfg.Ledger.OutputDir, "main_*.xlsx"))
	require.Len(t, runFiles, 1)
	n, err := ledger.CountRows(runFiles[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	placeholder := ledger.PlaceholderPath(cfg.Ledger.DuplicateDir)
	assert.FileExists(t, placeholder)

	j, err := initJournal(context.Background(), cfg.Journal.Path)
	require.NoError(t, err)
	defer j.Close() //nolint:errcheck
	runs, err := j.List(context.Background(), journal.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, "Indiranagar", runs[0].Area)
	assert.Equal(t, 2, runs[0].Saved)
	assert.Equal(t, string(session.OutcomeExhausted), runs[0].Outcome)
}

func TestRunCmd_RejectsInvalidArea(t *testing.T) {
	srv := newMapsStub(t)
	oldCfg := cfg
	cfg = testConfig(t, srv.URL+"/maps/search/")
	defer func() { cfg = oldCfg }()
	setRunFlags(t, "12345", 5)

	runCmd.SetContext(context.Background())
	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, area.ErrFatalPrecondition)
	assert.Equal(t, 1, exitCode(err))
	assert.NoDirExists(t, cfg.Ledger.OutputDir)
}

func TestRunCmd_RequiresArea(t *testing.T) {
	oldCfg := cfg
	cfg = testConfig(t, "http://127.0.0.1:1/maps/search/")
	defer func() { cfg = oldCfg }()
	setRunFlags(t, "  ", 5)

	runCmd.SetContext(context.Background())
	err := runCmd.RunE(runCmd, nil)
	assert.ErrorIs(t, err, area.ErrFatalPrecondition)
}

func TestRunCmd_FailsOnValidation(t *testing.T) {
	oldCfg := cfg
	cfg = &config.Config{Ledger: config.LedgerConfig{Schema: "wide"}}
	defer func() { cfg = oldCfg }()
	setRunFlags(t, "Indiranagar", 5)

	runCmd.SetContext(context.Background())
	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.driver")
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 12, parseCount("12"))
	assert.Equal(t, 12, parseCount(" 12 "))
	assert.Equal(t, defaultCount, parseCount(""))
	assert.Equal(t, defaultCount, parseCount("twelve"))
	assert.Equal(t, defaultCount, parseCount("0"))
	assert.Equal(t, defaultCount, parseCount("-3"))
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, "Indiranagar", 50, &pipeline.Result{
		RunID:      "abc12345-6789",
		RunPath:    "data/main_2026_10_19_09_30_00.xlsx",
		Saved:      7,
		Duplicates: 4,
		Failed:     1,
		Processed:  11,
		Outcome:    session.OutcomeExhausted,
		Finalize:   &ledger.FinalizeResult{Action: ledger.ActionCreated, Path: "duplicate_data/duplicated_2026_10_19_09_31_00.xlsx"},
		Elapsed:    95 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, "abc12345")
	assert.Contains(t, out, "Indiranagar")
	assert.Contains(t, out, "exhausted")
	assert.Contains(t, out, "data/main_2026_10_19_09_30_00.xlsx")
	assert.Contains(t, out, "11 of 50")
	assert.Contains(t, out, "Failed")
	assert.NotContains(t, out, "Unsaved")
	assert.Contains(t, out, "created duplicate_data/duplicated_2026_10_19_09_31_00.xlsx")
	assert.Contains(t, out, "1m35s")
}

func TestRunOptions(t *testing.T) {
	c := testConfig(t, "https://www.google.com/maps/search/")
	c.Extract.SettleSearchMS = 5000
	c.Extract.SettleOpenMS = 3000
	c.Extract.SearchRetries = 3
	c.Extract.SkipClosed = true
	c.Snapshot = config.SnapshotConfig{Enabled: true, Dir: "snaps"}

	opts := runOptions(c, model.SchemaExtended, "Indiranagar", 20)
	assert.Equal(t, "Indiranagar", opts.Area)
	assert.Equal(t, 20, opts.Count)
	assert.Equal(t, c.Ledger.OutputDir, opts.OutputDir)
	assert.Equal(t, "hot chips", opts.Session.Subject)
	assert.Equal(t, 5*time.Second, opts.Session.SettleSearch)
	assert.Equal(t, 3, opts.Session.SearchRetry.MaxAttempts)
	assert.Equal(t, 3*time.Second, opts.Extract.SettleOpen)
	assert.True(t, opts.Extract.SkipClosed)
	assert.Equal(t, "snaps", opts.Extract.SnapshotDir)

	c.Snapshot.Enabled = false
	assert.Empty(t, runOptions(c, model.SchemaExtended, "x", 1).Extract.SnapshotDir)
}

func TestInitSource(t *testing.T) {
	c := testConfig(t, "https://www.google.com/maps/search/")

	src, err := initSource(c)
	require.NoError(t, err)
	assert.IsType(t, &htmlsource.Source{}, src)

	c.HTML.Renderer = "firecrawl"
	c.Firecrawl = config.FirecrawlConfig{Key: "fc-key", BaseURL: "https://api.firecrawl.dev/v2"}
	src, err = initSource(c)
	require.NoError(t, err)
	assert.IsType(t, &htmlsource.Source{}, src)

	c.Source.Driver = "places"
	c.Google = config.GoogleConfig{Key: "g-key", BaseURL: "https://places.googleapis.com/v1", PageSize: 20}
	src, err = initSource(c)
	require.NoError(t, err)
	assert.IsType(t, &places.Source{}, src)

	c.Source.Driver = "carrier-pigeon"
	_, err = initSource(c)
	assert.Error(t, err)
}

func TestInitPipeline_JournalOptional(t *testing.T) {
	c := testConfig(t, "https://www.google.com/maps/search/")
	c.Journal.Path = ""

	env, err := initPipeline(context.Background(), c, true)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Journal)
	assert.Equal(t, model.SchemaExtended, env.Schema)
}
