package profile

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/protocol"
	"wc3-bridge/internal/schedule"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrRequestInProgress = errors.New("profile request already in progress")
	ErrProfileNotFound   = errors.New("player not found in ladder data and the game client did not answer the profile request")
	ErrInvalidIdentity   = errors.New("invalid battle tag")
)

// historyModes are the modes covered by match-history enrichment.
var historyModes = []string{"1v1", "2v2", "3v3", "4v4"}

type Sender interface {
	Send(kind string, payload any) error
}

type LadderLookup interface {
	FindByIdentity(identity string) (domain.RankedPlayerRecord, string, bool)
}

type Options struct {
	Timeout                      time.Duration
	GraceWindow                  time.Duration
	FallbackSeason               int
	EnableMatchHistoryEnrichment bool
	MatchHistoryInterval         time.Duration
}

type State int

const (
	Pending State = iota
	AwaitingEnrichmentWindow
	Resolved
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case AwaitingEnrichmentWindow:
		return "AwaitingEnrichmentWindow"
	case Resolved:
		return "Resolved"
	case TimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Result struct {
	Profile domain.Profile
	Err     error
}

type request struct {
	identity    string
	key         string
	seq         uint64
	state       State
	requestedAt time.Time
	done        func(Result)
	timeout     schedule.Timer
	grace       schedule.Timer
	graceGen    uint64
	history     []schedule.Timer
}

// Resolver correlates profile fragments with outstanding requests. It is not
// safe for concurrent use; the bridge calls it from its loop only.
type Resolver struct {
	sender  Sender
	sched   schedule.Scheduler
	ladder  LadderLookup
	opts    Options
	logger  zerolog.Logger
	store   *FragmentStore
	pending map[string]*request
	seq     uint64
	limiter *rate.Limiter
	now     func() time.Time
}

func NewResolver(sender Sender, sched schedule.Scheduler, ladder LadderLookup, opts Options, logger zerolog.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 2 * time.Second
	}
	if opts.FallbackSeason <= 0 {
		opts.FallbackSeason = 7
	}
	limit := rate.Inf
	if opts.MatchHistoryInterval > 0 {
		limit = rate.Every(opts.MatchHistoryInterval)
	}

	return &Resolver{
		sender:  sender,
		sched:   sched,
		ladder:  ladder,
		opts:    opts,
		logger:  logger.With().Str("component", "profile").Logger(),
		store:   NewFragmentStore(),
		pending: make(map[string]*request),
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Request sends GetProfile for identity and arranges for done to be called
// exactly once with the outcome. A second request for the same identity while
// one is outstanding fails with ErrRequestInProgress.
func (r *Resolver) Request(identity string, done func(Result)) error {
	key := domain.NormalizeIdentity(identity)
	if key == "" {
		return ErrInvalidIdentity
	}
	if _, ok := r.pending[key]; ok {
		return fmt.Errorf("%w: %s", ErrRequestInProgress, identity)
	}

	if err := r.sender.Send(protocol.CmdGetProfile, protocol.PlayerRequest{BattleTag: identity}); err != nil {
		return fmt.Errorf("failed to request profile: %w", err)
	}

	r.seq++
	req := &request{
		identity:    identity,
		key:         key,
		seq:         r.seq,
		state:       Pending,
		requestedAt: r.now(),
		done:        done,
	}
	req.timeout = r.sched.AfterFunc(r.opts.Timeout, func() { r.expire(req) })
	r.pending[key] = req

	if r.opts.EnableMatchHistoryEnrichment {
		r.requestMatchHistory(req)
	}

	r.logger.Info().Str("identity", identity).Dur("timeout", r.opts.Timeout).Msg("profile requested")
	return nil
}

// State reports the state of the outstanding request for identity.
func (r *Resolver) State(identity string) (State, bool) {
	req, ok := r.pending[domain.NormalizeIdentity(identity)]
	if !ok {
		return 0, false
	}
	return req.state, true
}

func (r *Resolver) InFlight() int {
	return len(r.pending)
}

// OnBasicProfile handles UpdateProfileData.
func (r *Resolver) OnBasicProfile(d Details) {
	if !d.HasIdentity() {
		r.logger.Debug().Msg("basic profile without identity dropped")
		return
	}
	req, ok := r.pending[domain.NormalizeIdentity(d.Identity)]
	if !ok {
		r.logger.Debug().Str("identity", d.Identity).Msg("basic profile with no outstanding request dropped")
		return
	}

	r.store.SetBasic(req.key, d.Fields)
	r.logger.Debug().Str("identity", req.identity).Msg("basic profile stored")
	r.maybeStartGrace(req)
}

// OnSeasonStats handles UpdateProfileDataWithToonStats. The identity is often
// absent, in which case the fragment is attributed to an outstanding request.
func (r *Resolver) OnSeasonStats(d Details) {
	if !d.HasSeasons {
		r.logger.Debug().Msg("season stats without seasons dropped")
		return
	}

	var req *request
	if d.HasIdentity() {
		req = r.pending[domain.NormalizeIdentity(d.Identity)]
	} else {
		req = r.correlate()
	}
	if req == nil {
		r.logger.Debug().Str("identity", d.Identity).Msg("season stats with no outstanding request dropped")
		return
	}

	r.store.SetSeasons(req.key, d.Seasons, d.SeasonStats)
	r.logger.Debug().Str("identity", req.identity).Int("seasons", len(d.SeasonStats)).Msg("season stats stored")
	r.maybeStartGrace(req)
}

// OnMatchHistory handles MatchHistoryUpdate.
func (r *Resolver) OnMatchHistory(p protocol.MatchHistoryPayload) {
	modes := make([]string, 0, len(p.MatchHistory))
	for mode := range p.MatchHistory {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	for _, mode := range modes {
		identity, st, ok := HistoryStat(p.MatchHistory[mode])
		if !ok {
			r.logger.Debug().Str("mode", mode).Msg("match history without identity dropped")
			continue
		}
		req, ok := r.pending[domain.NormalizeIdentity(identity)]
		if !ok {
			r.logger.Debug().Str("identity", identity).Str("mode", mode).Msg("match history with no outstanding request dropped")
			continue
		}
		r.store.AddMatchHistory(req.key, mode, st)
		r.logger.Debug().
			Str("identity", req.identity).
			Str("mode", mode).
			Int("wins", st.Wins).
			Int("losses", st.Losses).
			Msg("match history stored")
	}
}

// correlate picks the request an anonymous season fragment belongs to: one that
// has basic data but no seasons yet, otherwise the oldest outstanding request.
func (r *Resolver) correlate() *request {
	if len(r.pending) == 0 {
		return nil
	}
	reqs := make([]*request, 0, len(r.pending))
	for _, req := range r.pending {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].seq < reqs[j].seq })

	for _, req := range reqs {
		if f, ok := r.store.Get(req.key); ok && f.BasicData != nil && !f.HasSeasons {
			return req
		}
	}
	return reqs[0]
}

func (r *Resolver) maybeStartGrace(req *request) {
	f, ok := r.store.Get(req.key)
	if !ok || !f.complete() {
		return
	}

	if req.timeout != nil {
		req.timeout.Stop()
		req.timeout = nil
	}
	if req.grace != nil {
		req.grace.Stop()
	}
	req.state = AwaitingEnrichmentWindow
	req.graceGen++
	gen := req.graceGen
	req.grace = r.sched.AfterFunc(r.opts.GraceWindow, func() { r.finalize(req, gen) })

	r.logger.Debug().Str("identity", req.identity).Dur("grace", r.opts.GraceWindow).Msg("enrichment window opened")
}

// finalize ignores callbacks from grace windows that were restarted after
// they had already fired.
func (r *Resolver) finalize(req *request, gen uint64) {
	if r.pending[req.key] != req || gen != req.graceGen {
		return
	}
	f, ok := r.store.Get(req.key)
	if !ok || !f.complete() {
		return
	}

	stats := RaceMatchStats(f.SeasonStats)
	maps.Copy(stats, f.MatchHistoryByMode)

	req.state = Resolved
	r.finish(req, Result{Profile: domain.Profile{
		Identity:   req.identity,
		Details:    f.BasicData,
		Seasons:    f.Seasons,
		MatchStats: stats,
	}})

	r.logger.Info().
		Str("identity", req.identity).
		Int("match_stats", len(stats)).
		Dur("elapsed", r.now().Sub(req.requestedAt)).
		Msg("profile resolved")
}

// expire handles the overall timeout. Partial fragments and the ladder cache are
// used to build a degraded profile before giving up. A timeout that fired
// after the enrichment window opened is stale and ignored.
func (r *Resolver) expire(req *request) {
	if r.pending[req.key] != req || req.state == AwaitingEnrichmentWindow {
		return
	}
	req.state = TimedOut

	f, _ := r.store.Get(req.key)
	if f == nil {
		f = &Fragments{MatchHistoryByMode: map[string]domain.MatchStat{}}
	}

	details := map[string]any{}
	if f.BasicData != nil {
		details = maps.Clone(f.BasicData)
	}
	if _, ok := details["battle_tag_full"]; !ok {
		details["battle_tag_full"] = req.identity
	}

	profile := domain.Profile{
		Identity:   req.identity,
		Details:    details,
		MatchStats: maps.Clone(f.MatchHistoryByMode),
		Fallback:   true,
	}

	switch rec, mode, found := r.ladder.FindByIdentity(req.identity); {
	case f.HasSeasons:
		profile.Seasons = f.Seasons
		profile.MatchStats = RaceMatchStats(f.SeasonStats)
		maps.Copy(profile.MatchStats, f.MatchHistoryByMode)
	case found:
		profile.Seasons = stubSeasons(rec, r.opts.FallbackSeason)
		r.logger.Info().Str("identity", req.identity).Str("mode", mode).Msg("profile timed out, using ladder fallback")
	case f.BasicData != nil:
		profile.Seasons = []any{}
	default:
		r.finish(req, Result{Err: fmt.Errorf("%w: %s", ErrProfileNotFound, req.identity)})
		r.logger.Warn().Str("identity", req.identity).Msg("profile timed out with no fallback")
		return
	}

	r.finish(req, Result{Profile: profile})
}

func (r *Resolver) finish(req *request, res Result) {
	if req.timeout != nil {
		req.timeout.Stop()
	}
	if req.grace != nil {
		req.grace.Stop()
	}
	for _, t := range req.history {
		t.Stop()
	}
	delete(r.pending, req.key)
	r.store.Delete(req.key)

	if req.done != nil {
		req.done(res)
	}
}

func (r *Resolver) requestMatchHistory(req *request) {
	now := r.now()
	for _, mode := range historyModes {
		delay := r.limiter.ReserveN(now, 1).DelayFrom(now)
		r.scheduleHistory(req, mode, false, delay)
		if mode != "1v1" {
			r.scheduleHistory(req, mode, true, delay+r.opts.MatchHistoryInterval/2)
		}
	}
}

func (r *Resolver) scheduleHistory(req *request, mode string, arranged bool, delay time.Duration) {
	t := r.sched.AfterFunc(delay, func() {
		if r.pending[req.key] != req {
			return
		}
		err := r.sender.Send(protocol.CmdGetMatchHistory, protocol.MatchHistoryRequest{
			BattleTag:     req.identity,
			GameMode:      mode,
			ArrangedTeams: arranged,
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("identity", req.identity).Str("mode", mode).Msg("failed to request match history")
		}
	})
	req.history = append(req.history, t)
}
