// Package notify delivers alert chunks to a chat destination.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Header opens every Telegram alert message.
const Header = "Price drop alert!"

// TelegramAPI is the Bot API root.
const TelegramAPI = "https://api.telegram.org"

type Telegram struct {
	client *resty.Client
	chatID int64
}

// NewTelegram returns a notifier posting to chatID through the bot token.
func NewTelegram(token string, chatID int64) *Telegram {
	return NewTelegramAt(TelegramAPI, token, chatID)
}

// NewTelegramAt is NewTelegram against another API root.
func NewTelegramAt(apiRoot, token string, chatID int64) *Telegram {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(apiRoot, "/") + "/bot" + token)
	client.SetTimeout(30 * time.Second)
	return &Telegram{client: client, chatID: chatID}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) payload(text string) string {
	return EscapeMarkdownV2(Header + "\n\n" + text)
}

// PayloadSize is the byte size of text once wrapped and escaped.
func (t *Telegram) PayloadSize(text string) int {
	return len(t.payload(text))
}

// Send posts one message.
func (t *Telegram) Send(ctx context.Context, text string) error {
	var result telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:                t.chatID,
			Text:                  t.payload(text),
			ParseMode:             "MarkdownV2",
			DisableWebPagePreview: true,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if !resp.IsSuccess() || !result.OK {
		return fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

// markdownV2Special lists every character Telegram requires escaped.
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 makes text safe to send with parse_mode=MarkdownV2.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/8)
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
