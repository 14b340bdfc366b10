package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// WebhookConfig aponta o endpoint externo que recebe os eventos do
// pipeline. Events vazio assina tudo; "ALL" idem.
type WebhookConfig struct {
	URL     string
	Events  []string
	Headers map[string]string
	Timeout time.Duration
}

// webhookDispatcher entrega eventos por POST, fire-and-forget. Falha de
// entrega é logada e esquecida: webhook fora do ar não pode frear o
// pipeline.
type webhookDispatcher struct {
	cfg    WebhookConfig
	client *http.Client
	log    waLog.Logger
}

func NewWebhookDispatcher(cfg WebhookConfig, client *http.Client, log waLog.Logger) Emitter {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = waLog.Noop
	}
	return &webhookDispatcher{cfg: cfg, client: client, log: log}
}

// Emit implementa Emitter. O POST roda num goroutine próprio com
// deadline do client HTTP; o chamador nunca espera.
func (d *webhookDispatcher) Emit(topic string, payload any) {
	targetURL := strings.TrimSpace(d.cfg.URL)
	if targetURL == "" {
		return
	}
	if len(d.cfg.Events) > 0 && !containsEvent(d.cfg.Events, topic) && !containsEvent(d.cfg.Events, "ALL") {
		d.log.Debugf("webhook pulando evento %s: filtrado pela lista", topic)
		return
	}

	go func() {
		if err := d.post(targetURL, topic, payload); err != nil {
			d.log.Warnf("entrega do webhook %s falhou: %v", topic, err)
		}
	}()
}

func (d *webhookDispatcher) post(targetURL, topic string, payload any) error {
	body := map[string]any{
		"event":     topic,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, targetURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	d.log.Debugf("webhook %s entregue (status=%d)", topic, resp.StatusCode)
	return nil
}

func containsEvent(list []string, target string) bool {
	canonicalTarget := canonicalEventName(target)
	if canonicalTarget == "" {
		return false
	}
	for _, item := range list {
		if canonicalEventName(item) == canonicalTarget {
			return true
		}
	}
	return false
}

func canonicalEventName(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	lower := strings.ToLower(cleaned)
	lower = strings.ReplaceAll(lower, "_", ".")
	lower = strings.ReplaceAll(lower, " ", "")
	return lower
}
