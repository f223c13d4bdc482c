package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cardwatch/internal/obs"

	"github.com/eatmoreapple/openwechat"
)

// WeChat posts alerts to one group chat through a logged-in desktop
// session. The first run prints a QR login URL; later runs reuse the
// session stored at storagePath.
type WeChat struct {
	bot     *openwechat.Bot
	storage io.ReadWriteCloser
	group   string
	mu      sync.Mutex
}

// NewWeChat logs in and returns a notifier for the group whose nickname
// (or user name) is group.
func NewWeChat(storagePath, group string) (*WeChat, error) {
	bot := openwechat.DefaultBot(openwechat.Desktop)
	bot.UUIDCallback = openwechat.PrintlnQrcodeUrl

	storage := openwechat.NewFileHotReloadStorage(storagePath)
	if err := bot.HotLogin(storage, openwechat.NewRetryLoginOption()); err != nil {
		storage.Close()
		return nil, fmt.Errorf("wechat login: %w", err)
	}
	w := &WeChat{bot: bot, storage: storage, group: group}
	if _, err := w.target(); err != nil {
		w.Close()
		return nil, err
	}
	obs.Logger.Info("wechat notifier ready", "group", group)
	return w, nil
}

func (w *WeChat) target() (*openwechat.Group, error) {
	self, err := w.bot.GetCurrentUser()
	if err != nil {
		return nil, fmt.Errorf("wechat current user: %w", err)
	}
	groups, err := self.Groups()
	if err != nil {
		return nil, fmt.Errorf("wechat groups: %w", err)
	}
	for _, g := range groups {
		if g.NickName == w.group || g.UserName == w.group {
			return g, nil
		}
	}
	return nil, fmt.Errorf("wechat group %q not found", w.group)
}

// Send posts text to the group. ctx is only checked before sending; the
// session API has no cancellation.
func (w *WeChat) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.target()
	if err != nil {
		return err
	}
	if _, err := g.SendText(text); err != nil {
		return fmt.Errorf("wechat send: %w", err)
	}
	return nil
}

// Close stops the session and flushes the login storage.
func (w *WeChat) Close() error {
	w.bot.Exit()
	return w.storage.Close()
}
