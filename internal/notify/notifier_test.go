package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/deal"
	kit "dealwatch/internal/transport"
	logx "dealwatch/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	failOn map[int]bool // 1-based call index
	calls  int
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if opt == nil || opt.ParseMode != kit.ParseModeMarkdownV2 {
		return kit.MessageRef{}, errors.New("missing parse mode")
	}
	if f.failOn[f.calls] {
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{MessageID: f.calls}, nil
}

func offerAt(id string, price int64) deal.Offer {
	return deal.Offer{
		Price:         decimal.NewFromInt(price),
		Country:       "Grecja",
		Destination:   "Kreta " + id,
		Airport:       "WAW-HER",
		Brand:         "Rainbow",
		DepartureDate: "2024-09-01",
		Provider:      "rainbow",
	}
}

func TestNotifyScenarioPriceOrderAndBatches(t *testing.T) {
	a, b, c := offerAt("A", 500), offerAt("B", 300), offerAt("C", 9999)
	limit := EffectiveLength(Render(a)) + EffectiveLength(Render(b))

	s := &fakeSender{}
	n := New(s, Config{MaxMessageSize: limit}, logx.Nop())
	rep := n.Notify(context.Background(), []deal.Offer{a, b, c})

	require.Equal(t, []string{Render(b) + Render(a), Render(c)}, s.sent)
	assert.Equal(t, Report{Candidates: 3, Sent: 2}, rep)
}

func TestNotifyOversizeDropped(t *testing.T) {
	small := offerAt("A", 100)
	big := offerAt(strings.Repeat("x", 200), 50)

	s := &fakeSender{}
	n := New(s, Config{MaxMessageSize: EffectiveLength(Render(small))}, logx.Nop())
	rep := n.Notify(context.Background(), []deal.Offer{small, big})

	assert.Equal(t, []string{Render(small)}, s.sent)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 1, rep.Sent)
}

func TestNotifyContinuesAfterFailedBatch(t *testing.T) {
	a, b := offerAt("A", 1), offerAt("B", 2)
	s := &fakeSender{failOn: map[int]bool{1: true}}
	n := New(s, Config{MaxMessageSize: EffectiveLength(Render(a))}, logx.Nop())

	rep := n.Notify(context.Background(), []deal.Offer{a, b})
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, []string{Render(b)}, s.sent)
	assert.Equal(t, 2, s.calls, "no retries")
}

func TestNotifyHeader(t *testing.T) {
	s := &fakeSender{}
	n := New(s, Config{Header: true}, logx.Nop())
	n.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }

	n.Notify(context.Background(), []deal.Offer{offerAt("A", 1)})
	require.Len(t, s.sent, 2)
	assert.Equal(t, "2024-05-01 08:30:00", strings.Split(Visible(s.sent[0]), "\n")[1])

	// Nothing to send, no header either.
	s2 := &fakeSender{}
	New(s2, Config{Header: true}, logx.Nop()).Notify(context.Background(), nil)
	assert.Empty(t, s2.sent)
}

func TestSelectCandidates(t *testing.T) {
	y, z := offerAt("Y", 1), offerAt("Z", 2)
	tr := deal.Transition{Activated: []deal.IdentityKey{z.Key()}, Retained: 1}

	assert.Equal(t, []deal.Offer{y, z}, SelectCandidates(PolicyCycle, []deal.Offer{y, z}, tr))
	assert.Equal(t, []deal.Offer{z}, SelectCandidates(PolicyActivated, []deal.Offer{y, z}, tr))
	assert.True(t, ValidPolicy(""))
	assert.False(t, ValidPolicy("sometimes"))
}

func TestRenderEscapesFreeText(t *testing.T) {
	o := offerAt("(Chania)", 1299)
	o.Link = "https://r.pl/kreta?a=(1)"
	out := Render(o)

	assert.Contains(t, out, `Kreta \(Chania\)`)
	assert.Contains(t, out, `[oferta](https://r.pl/kreta?a=(1\))`)
	v := Visible(out)
	assert.Contains(t, v, "1299zł")
	assert.Contains(t, v, "[R]")
	assert.Contains(t, v, "Kreta (Chania)")
	assert.Contains(t, v, "oferta\n")
	assert.NotContains(t, v, "https://")
	assert.True(t, strings.HasSuffix(v, Separator+"\n"))
}

func TestRenderPackageDetails(t *testing.T) {
	o := offerAt("A", 3998)
	o.ReturnDate = "2024-09-08"
	o.HotelStandard = "4"
	o.Board = "All Inclusive"
	o.PerPerson = decimal.NewNullDecimal(decimal.NewFromInt(1999))
	v := Visible(Render(o))

	assert.Contains(t, v, "3998zł (1999zł/os)")
	assert.Contains(t, v, "2024-09-01 - 2024-09-08")
	assert.Contains(t, v, "⭐ 4 All Inclusive\n")

	plain := Visible(Render(offerAt("A", 3998)))
	assert.NotContains(t, plain, "/os")
	assert.NotContains(t, plain, "⭐")
}

func TestSortByPriceStable(t *testing.T) {
	a, b := offerAt("B", 10), offerAt("A", 10)
	c := offerAt("C", 5)
	got := SortByPrice([]deal.Offer{a, b, c})
	assert.Equal(t, "Kreta C", got[0].Destination)
	assert.Equal(t, "Kreta A", got[1].Destination)
}
