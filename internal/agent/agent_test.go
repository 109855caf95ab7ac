// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pliegos/internal/bus"
	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

type fakeTab struct {
	id        int
	url       string
	html      string
	snapErr   error
	injectErr error
	panics    bool
}

func (f *fakeTab) ID() int                          { return f.id }
func (f *fakeTab) URL() string                      { return f.url }
func (f *fakeTab) WaitLoaded(context.Context) error { return nil }
func (f *fakeTab) Inject(context.Context) error     { return f.injectErr }
func (f *fakeTab) Snapshot(context.Context) (dom.DocumentView, error) {
	if f.panics {
		panic("tab crashed")
	}
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	v, err := dom.Parse(f.html, f.url)
	if err != nil {
		return nil, err
	}
	return v, nil
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setup returns an agent on a fake clock whose reports land on the
// returned channel.
func setup(t *testing.T) (*Agent, *clockwork.FakeClock, chan bus.Message) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(epoch)
	b := bus.NewLocal()
	got := make(chan bus.Message, 4)
	_, err := b.Serve(func(_ context.Context, msg bus.Message) bus.Response {
		got <- msg
		return bus.Response{Success: true}
	})
	require.NoError(t, err)
	a := New(b, types.DefaultPipelineConfig().Scrape, fc, log.New(io.Discard))
	return a, fc, got
}

func waitTimers(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, n))
}

func TestRunReportsRecordsAfterSettleDelay(t *testing.T) {
	a, fc, got := setup(t)
	tab := &fakeTab{
		id:   3,
		url:  "https://bnedigital.bne.es/bd/es/results?w=romance",
		html: `<a href="/bd/es/card?id=5">Romance de ciegos del siglo XVIII</a>`,
	}

	go a.Run(context.Background(), "run-1", tab, &types.Sequence{})
	waitTimers(t, fc, 1)

	fc.Advance(5 * time.Second)
	select {
	case <-got:
		t.Fatal("reported before the bne settle delay")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Second)
	var msg bus.Message
	select {
	case msg = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no report")
	}

	assert.Equal(t, bus.ActionCompleted, msg.Action)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, 3, msg.TabID)
	assert.Equal(t, types.SourceBNE, msg.SourceID)
	assert.Equal(t, "BNE Digital", msg.SourceName)
	assert.Equal(t, "bnedigital.bne.es", msg.Hostname)
	assert.Equal(t, types.MillisOf(epoch.Add(6*time.Second)), msg.Timestamp)
	require.Len(t, msg.Records, 1)
	assert.Equal(t, "bne_1", msg.Records[0].ID)
}

func TestRunUnknownHostSendsNothing(t *testing.T) {
	a, fc, got := setup(t)
	a.Run(context.Background(), "run-1", &fakeTab{id: 1, url: "https://example.com/"}, nil)

	waitTimers(t, fc, 0)
	assert.Empty(t, got)
}

func TestRunReportsFailures(t *testing.T) {
	tests := []struct {
		name string
		tab  *fakeTab
		want string
	}{
		{"snapshot error", &fakeTab{snapErr: errors.New("target closed")}, "target closed"},
		{"panic", &fakeTab{panics: true}, "extraction panicked: tab crashed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fc, got := setup(t)
			tt.tab.id = 9
			tt.tab.url = "https://funjdiaz.net/pliegos-listado.php?t=x"

			go a.Run(context.Background(), "run-2", tt.tab, &types.Sequence{})
			waitTimers(t, fc, 1)
			fc.Advance(2 * time.Second)

			select {
			case msg := <-got:
				assert.Equal(t, bus.ActionFailed, msg.Action)
				assert.Equal(t, tt.want, msg.Error)
				assert.Equal(t, 9, msg.TabID)
				assert.Equal(t, "Fundación Joaquín Díaz", msg.SourceName)
				assert.Empty(t, msg.Records)
			case <-time.After(2 * time.Second):
				t.Fatal("no report")
			}
		})
	}
}

func TestRunCancelledDuringSettle(t *testing.T) {
	a, fc, got := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Run(ctx, "run-1", &fakeTab{id: 1, url: "https://desenrollandoelcordel.unige.ch/"}, nil)
		close(done)
	}()
	waitTimers(t, fc, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.Empty(t, got)
}

func TestRunWithoutReceiverDoesNotPanic(t *testing.T) {
	fc := clockwork.NewFakeClockAt(epoch)
	a := New(bus.NewLocal(), types.DefaultPipelineConfig().Scrape, fc, log.New(io.Discard))

	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), "run-1", &fakeTab{id: 1, url: "https://www.red-aracne.es/"}, nil)
		close(done)
	}()
	waitTimers(t, fc, 1)
	fc.Advance(2 * time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestInjectFailure(t *testing.T) {
	a, fc, _ := setup(t)
	err := a.Inject(context.Background(), "run-1", &fakeTab{id: 1, url: "https://funjdiaz.net/", injectErr: errors.New("cannot access chrome:// URL")}, nil)
	assert.EqualError(t, err, "cannot access chrome:// URL")
	waitTimers(t, fc, 0)
}

func TestInjectStartsRun(t *testing.T) {
	a, fc, got := setup(t)
	require.NoError(t, a.Inject(context.Background(), "run-1", &fakeTab{id: 4, url: "https://desenrollandoelcordel.unige.ch/"}, nil))

	waitTimers(t, fc, 1)
	fc.Advance(3 * time.Second)
	select {
	case msg := <-got:
		assert.Equal(t, bus.ActionCompleted, msg.Action)
		assert.Equal(t, 4, msg.TabID)
	case <-time.After(2 * time.Second):
		t.Fatal("no report")
	}
}
