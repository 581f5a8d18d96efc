package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscordSender publica avisos en un webhook de Discord.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender crea el sender con timeout de 10s.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

// Send hace POST al webhook con el título en negrita.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(discordPayload{Content: fmt.Sprintf("**%s**\n%s", title, message)})
	if err != nil {
		return fmt.Errorf("discord.Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord.Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord.Send: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content en éxito
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord.Send: HTTP %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
