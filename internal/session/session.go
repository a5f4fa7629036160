// Package session drives a paginated, lazily loaded listing on an external
// source and hands each candidate to a caller-supplied handler.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/resilience"
	"github.com/sells-group/listing-ledger/internal/source"
)

// State is a step of the session state machine.
type State int

const (
	StateSearching State = iota
	StateListing
	StatePaginating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateListing:
		return "listing"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is why a session reached StateDone.
type Outcome string

const (
	OutcomeCountReached Outcome = "count_reached"
	OutcomeNoResults    Outcome = "no_results"
	OutcomeExhausted    Outcome = "exhausted"
	OutcomeSourceError  Outcome = "source_error"
	OutcomeInterrupted  Outcome = "interrupted"
)

// Options configures a Session.
type Options struct {
	Area    string
	Subject string
	// Need is the number of candidates the handler must count before the
	// session stops.
	Need            int
	MaxEmptyRetries int
	MaxScrollProbes int
	SettleSearch    time.Duration
	SettleNext      time.Duration
	SettleScroll    time.Duration
	SettleReload    time.Duration
	EmptyWait       time.Duration
	SearchRetry     resilience.RetryConfig
}

// Query combines the area with the subject term.
func (o Options) Query() string {
	return strings.TrimSpace(strings.TrimSpace(o.Area) + " " + strings.TrimSpace(o.Subject))
}

// Handler processes one candidate. counted reports whether the candidate
// counts toward Need. A returned error is logged and the session moves on.
type Handler func(ctx context.Context, c model.CandidateItem) (counted bool, err error)

// Result summarizes a finished session.
type Result struct {
	Outcome   Outcome
	Processed int
	Visited   int
	Failed    int
	Pages     int
	Err       error
}

// Session is a single-use walk over one search on a source.
type Session struct {
	src    source.Source
	opts   Options
	ladder Ladder
	log    *zap.Logger
}

// New returns a Session over src.
func New(src source.Source, opts Options) *Session {
	if opts.MaxEmptyRetries <= 0 {
		opts.MaxEmptyRetries = 6
	}
	if opts.MaxScrollProbes <= 0 {
		opts.MaxScrollProbes = 4
	}
	return &Session{
		src:    src,
		opts:   opts,
		ladder: DefaultLadder(opts.MaxEmptyRetries),
		log:    zap.L().With(zap.String("component", "session"), zap.String("area", opts.Area)),
	}
}

// Run walks the listing until handle has counted Need candidates or the
// source is exhausted. It never returns early on a per-candidate failure.
func (s *Session) Run(ctx context.Context, handle Handler) Result {
	var res Result
	if s.opts.Need <= 0 {
		res.Outcome = OutcomeCountReached
		return res
	}

	state := StateSearching
	next, count := 0, 0
	for state != StateDone {
		if ctx.Err() != nil {
			res.Outcome = OutcomeInterrupted
			res.Err = ctx.Err()
			break
		}
		s.log.Debug("state", zap.Stringer("state", state), zap.Int("processed", res.Processed))

		switch state {
		case StateSearching:
			if err := s.search(ctx); err != nil {
				s.log.Error("search failed", zap.Error(err))
				res.Outcome, res.Err = OutcomeSourceError, err
				state = StateDone
				continue
			}
			state = StateListing

		case StateListing:
			count = s.awaitCandidates(ctx, res.Pages > 0)
			if count == 0 {
				res.Outcome = OutcomeExhausted
				if res.Visited == 0 {
					res.Outcome = OutcomeNoResults
				}
				state = StateDone
				continue
			}
			for ; next < count && res.Processed < s.opts.Need && ctx.Err() == nil; next++ {
				s.visit(ctx, next, handle, &res)
			}
			if res.Processed >= s.opts.Need {
				res.Outcome = OutcomeCountReached
				state = StateDone
				continue
			}
			state = StatePaginating

		case StatePaginating:
			if s.nextPage(ctx) {
				res.Pages++
				next = 0
				state = StateListing
				continue
			}
			if grown := s.reveal(ctx, count); grown > count {
				state = StateListing
				continue
			}
			res.Outcome = OutcomeExhausted
			state = StateDone
		}
	}

	s.log.Info("session finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("processed", res.Processed),
		zap.Int("visited", res.Visited),
		zap.Int("failed", res.Failed),
		zap.Int("pages", res.Pages),
	)
	return res
}

// search centers the source on the area, then issues the subject query.
func (s *Session) search(ctx context.Context) error {
	retry := s.opts.SearchRetry
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("source", "search")

	queries := []string{s.opts.Query()}
	if area := strings.TrimSpace(s.opts.Area); area != "" && area != queries[0] {
		queries = []string{area, queries[0]}
	}
	for _, q := range queries {
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			return s.src.Search(ctx, q)
		})
		if err != nil {
			return eris.Wrapf(err, "session: search %q", q)
		}
		s.log.Info("search issued", zap.String("query", q))
		if err := s.src.Wait(ctx, s.opts.SettleSearch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) count(ctx context.Context) int {
	n, err := s.src.Count(ctx)
	if err != nil {
		s.log.Warn("count failed", zap.Error(err))
		return 0
	}
	return n
}

// awaitCandidates counts the listing and, while it is empty, climbs the retry
// ladder. Reload is skipped past the first page since it would restart the
// walk from the top.
func (s *Session) awaitCandidates(ctx context.Context, paginated bool) int {
	n := s.count(ctx)
	for attempt := 0; n == 0 && ctx.Err() == nil; attempt++ {
		rung, ok := s.ladder.At(attempt)
		if !ok {
			s.log.Warn("listing still empty after retry ladder", zap.Int("attempts", attempt))
			return 0
		}
		if rung == RungReload && paginated {
			rung = RungScroll
		}
		s.log.Info("listing empty, retrying", zap.Int("attempt", attempt+1), zap.Stringer("rung", rung))
		s.climb(ctx, rung)
		n = s.count(ctx)
	}
	return n
}

func (s *Session) climb(ctx context.Context, rung Rung) {
	var err error
	switch rung {
	case RungWait:
		err = s.src.Wait(ctx, s.opts.EmptyWait)
	case RungScroll:
		if err = s.src.Scroll(ctx); err == nil {
			err = s.src.Wait(ctx, s.opts.SettleScroll)
		}
	case RungReload:
		if err = s.src.Reload(ctx); err == nil {
			err = s.src.Wait(ctx, s.opts.SettleReload)
		}
	}
	if err != nil {
		s.log.Warn("retry rung failed", zap.Stringer("rung", rung), zap.Error(err))
	}
}

func (s *Session) visit(ctx context.Context, index int, handle Handler, res *Result) {
	c, err := s.src.Candidate(ctx, index)
	if err != nil {
		s.log.Warn("cannot read candidate", zap.Int("index", index), zap.Error(err))
		res.Failed++
		return
	}
	res.Visited++

	counted, err := handle(ctx, c)
	if err != nil {
		s.log.Warn("candidate failed", zap.Int("index", index), zap.String("name", c.DisplayName()), zap.Error(err))
		res.Failed++
		return
	}
	if counted {
		res.Processed++
	}
}

func (s *Session) nextPage(ctx context.Context) bool {
	advanced, err := s.src.Next(ctx)
	if err != nil {
		s.log.Warn("next page failed", zap.Error(err))
		return false
	}
	if !advanced {
		return false
	}
	if err := s.src.Wait(ctx, s.opts.SettleNext); err != nil {
		return false
	}
	s.log.Info("advanced to next page")
	return true
}

// reveal scrolls until the candidate count grows past count or the probe
// budget is spent, and returns the last count seen.
func (s *Session) reveal(ctx context.Context, count int) int {
	for probe := 0; probe < s.opts.MaxScrollProbes && ctx.Err() == nil; probe++ {
		if err := s.src.Scroll(ctx); err != nil {
			s.log.Warn("scroll failed", zap.Error(err))
			continue
		}
		if err := s.src.Wait(ctx, s.opts.SettleScroll); err != nil {
			return count
		}
		if n := s.count(ctx); n > count {
			s.log.Debug("scroll revealed more", zap.Int("from", count), zap.Int("to", n))
			return n
		}
	}
	return count
}
