package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTelegramURL = "https://api.telegram.org"
	telegramTimeout    = 10 * time.Second
)

type Telegram struct {
	baseURL  string
	botToken string
	chatId   string
	client   *http.Client
}

func NewTelegram(botToken, chatId string) *Telegram {
	return NewTelegramWithURL(DefaultTelegramURL, botToken, chatId)
}

func NewTelegramWithURL(baseURL, botToken, chatId string) *Telegram {
	return &Telegram{
		baseURL:  baseURL,
		botToken: botToken,
		chatId:   chatId,
		client:   &http.Client{Timeout: telegramTimeout},
	}
}

type telegramMessage struct {
	ChatId string `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	body, err := json.Marshal(&telegramMessage{ChatId: t.chatId, Text: msg})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, data)
	}
	return nil
}
