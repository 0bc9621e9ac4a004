package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"notice_generator/internal/config"
)

// Push is the outbound push notification payload.
type Push struct {
	BatchID string `json:"batch_id"`
	Address string `json:"address"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// SendWebhook posts a push payload to the configured webhook if any.
func SendWebhook(cfg config.Config, p Push) error {
	if cfg.WebhookURL == "" {
		return nil
	}
	buf, _ := json.Marshal(p)
	req, _ := http.NewRequest(http.MethodPost, cfg.WebhookURL, bytes.NewBuffer(buf))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
