package cardtrader

import (
	"context"
	"errors"
	"testing"

	"cardwatch/internal/models"
	"cardwatch/internal/monitor"
	"cardwatch/internal/obs"
)

// fakeLauncher hands out cancellable contexts in place of a real browser.
type fakeLauncher struct {
	fail     int // launches that fail before one succeeds
	launches int
	cancels  []context.CancelFunc
}

func (f *fakeLauncher) launch() (context.Context, context.CancelFunc, error) {
	f.launches++
	if f.launches <= f.fail {
		return nil, nil, errors.New("chrome not found")
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancels = append(f.cancels, cancel)
	return ctx, cancel, nil
}

func TestBrowserRelaunchesAfterFailedStart(t *testing.T) {
	obs.Discard()
	l := &fakeLauncher{fail: 1}
	b := &BrowserSource{limiter: monitor.NewLimiter(1), launch: l.launch}

	_, err := b.Quote(context.Background(), models.WatchItem{ItemName: "Bolt", GroupKey: "Alpha"})
	if !monitor.IsTerminal(err) {
		t.Fatalf("failed launch should be terminal for the lookup, got %v", err)
	}
	ctx, err := b.browser()
	if err != nil || ctx == nil {
		t.Fatalf("second launch: %v", err)
	}
	if l.launches != 2 {
		t.Fatalf("launches = %d", l.launches)
	}
	if again, _ := b.browser(); again != ctx || l.launches != 2 {
		t.Fatal("live browser was relaunched")
	}
}

func TestBrowserRelaunchesAfterCrash(t *testing.T) {
	obs.Discard()
	l := &fakeLauncher{}
	b := &BrowserSource{limiter: monitor.NewLimiter(1), launch: l.launch}

	first, err := b.browser()
	if err != nil {
		t.Fatal(err)
	}
	l.cancels[0]() // the browser process went away
	second, err := b.browser()
	if err != nil {
		t.Fatal(err)
	}
	if second == first || second.Err() != nil || l.launches != 2 {
		t.Fatalf("no relaunch: launches=%d", l.launches)
	}

	b.Close()
	if second.Err() == nil {
		t.Fatal("Close left the browser running")
	}
}
