// Package notify renders new offers as MarkdownV2 and delivers them in
// size-bounded batches.
package notify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dealwatch/internal/deal"
	kit "dealwatch/internal/transport"
	logx "dealwatch/pkg/logx"
)

// MaxMessageSize is the Telegram text limit.
const MaxMessageSize = 4096

// Candidate policies.
const (
	// PolicyCycle notifies every offer first seen in the cycle.
	PolicyCycle = "cycle"
	// PolicyActivated notifies only offers whose identity key became active.
	PolicyActivated = "activated"
)

// Config controls delivery. Zero fields take defaults.
type Config struct {
	Target         kit.ChatTarget
	MaxMessageSize int
	Policy         string
	Header         bool
	DisablePreview bool
	// HeaderLayout formats the header timestamp.
	HeaderLayout string
}

func (c Config) normalize() Config {
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > MaxMessageSize {
		c.MaxMessageSize = MaxMessageSize
	}
	c.Policy = strings.ToLower(strings.TrimSpace(c.Policy))
	if c.Policy != PolicyActivated {
		c.Policy = PolicyCycle
	}
	if c.HeaderLayout == "" {
		c.HeaderLayout = "2006-01-02 15:04:05"
	}
	return c
}

// ValidPolicy reports whether p names a candidate policy ("" selects the default).
func ValidPolicy(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", PolicyCycle, PolicyActivated:
		return true
	}
	return false
}

// Report summarizes one Notify call.
type Report struct {
	Candidates int
	Sent       int
	Failed     int
	Dropped    int
}

// Notifier never touches persisted state.
type Notifier struct {
	sender kit.Sender
	log    logx.Logger
	now    func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(sender kit.Sender, cfg Config, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		sender: sender,
		log:    log.With(logx.String("comp", "notify")),
		now:    time.Now,
		cfg:    cfg.normalize(),
	}
}

// Apply swaps the delivery config; the next Notify call uses it.
func (n *Notifier) Apply(cfg Config) {
	n.mu.Lock()
	n.cfg = cfg.normalize()
	n.mu.Unlock()
}

func (n *Notifier) config() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg
}

// Select narrows first-seen candidates according to the configured policy.
func (n *Notifier) Select(candidates []deal.Offer, tr deal.Transition) []deal.Offer {
	return SelectCandidates(n.config().Policy, candidates, tr)
}

// SelectCandidates applies policy to candidates. Under PolicyActivated an
// offer survives only if its identity key transitioned to active.
func SelectCandidates(policy string, candidates []deal.Offer, tr deal.Transition) []deal.Offer {
	if strings.ToLower(strings.TrimSpace(policy)) != PolicyActivated {
		return candidates
	}
	activated := make(map[deal.IdentityKey]struct{}, len(tr.Activated))
	for _, k := range tr.Activated {
		activated[k] = struct{}{}
	}
	out := make([]deal.Offer, 0, len(candidates))
	for _, o := range candidates {
		if _, ok := activated[o.Key()]; ok {
			out = append(out, o)
		}
	}
	return out
}

// SortByPrice orders offers ascending by price, ties by identity key.
func SortByPrice(offers []deal.Offer) []deal.Offer {
	out := append([]deal.Offer(nil), offers...)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			return c < 0
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Plan renders offers in price order and packs them into messages.
func Plan(offers []deal.Offer, limit int) (Batches, []deal.Offer) {
	sorted := SortByPrice(offers)
	items := make([]string, len(sorted))
	for i, o := range sorted {
		items[i] = Render(o)
	}
	return Batch(items, limit), sorted
}

// Notify delivers offers. Send failures are logged and counted; the remaining
// batches are still attempted and nothing is retried.
func (n *Notifier) Notify(ctx context.Context, offers []deal.Offer) Report {
	cfg := n.config()
	rep := Report{Candidates: len(offers)}
	if len(offers) == 0 {
		return rep
	}

	batches, sorted := Plan(offers, cfg.MaxMessageSize)
	for _, i := range batches.Dropped {
		o := sorted[i]
		n.log.Warn("offer exceeds message size, dropped",
			logx.String("key", o.Key().String()),
			logx.Int("limit", cfg.MaxMessageSize))
	}
	rep.Dropped = len(batches.Dropped)
	if len(batches.Messages) == 0 {
		return rep
	}

	opt := &kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2, DisablePreview: cfg.DisablePreview}
	if cfg.Header {
		if _, err := n.sender.SendText(ctx, cfg.Target, Header(n.now().Format(cfg.HeaderLayout)), opt); err != nil {
			n.log.Warn("header send failed", logx.Err(deal.TransportFailure(err, "send header")))
		}
	}
	for i, msg := range batches.Messages {
		if _, err := n.sender.SendText(ctx, cfg.Target, msg, opt); err != nil {
			rep.Failed++
			n.log.Error("batch send failed",
				logx.Int("batch", i+1),
				logx.Int("of", len(batches.Messages)),
				logx.Err(deal.TransportFailure(err, "send batch")))
			continue
		}
		rep.Sent++
	}
	n.log.Info("notified",
		logx.Int("candidates", rep.Candidates),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("dropped", rep.Dropped))
	return rep
}
