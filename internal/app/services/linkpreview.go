package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	previewFetchTimeout = 5 * time.Second
	previewHTMLLimit    = 512 * 1024
	previewImageLimit   = 5 * 1024 * 1024
)

// linkPreview é o resumo de uma URL para enriquecer o envio de texto:
// título, descrição e thumbnail extraídos das meta tags da página.
type linkPreview struct {
	URL         string
	Title       string
	Description string
	Thumbnail   []byte
}

// firstURL devolve a primeira URL http(s) do texto, ou vazio.
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		cleaned := strings.TrimRight(field, ".,;:!?)")
		if strings.HasPrefix(cleaned, "http://") || strings.HasPrefix(cleaned, "https://") {
			return cleaned
		}
	}
	return ""
}

// fetchLinkPreview baixa a página e extrai Open Graph / Twitter Card.
// Best-effort: qualquer falha cancela o preview, nunca o envio.
func fetchLinkPreview(ctx context.Context, client *http.Client, target string) (*linkPreview, error) {
	ctx, cancel := context.WithTimeout(ctx, previewFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "WhatsApp/2.23.20")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("preview http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, previewHTMLLimit))
	if err != nil {
		return nil, err
	}

	body := string(raw)
	pv := &linkPreview{
		URL:         target,
		Title:       extractMetaTag(body, "og:title", "twitter:title"),
		Description: extractMetaTag(body, "og:description", "twitter:description", "description"),
	}

	if pv.Title == "" {
		if start := strings.Index(body, "<title>"); start != -1 {
			if end := strings.Index(body[start:], "</title>"); end != -1 {
				pv.Title = strings.TrimSpace(body[start+7 : start+end])
			}
		}
	}
	if pv.Title == "" && pv.Description == "" {
		return nil, errors.New("page has no preview metadata")
	}

	if imageURL := extractMetaTag(body, "og:image", "twitter:image"); imageURL != "" {
		if data, err := downloadPreviewImage(ctx, client, imageURL); err == nil {
			pv.Thumbnail = data
		}
	}
	return pv, nil
}

// extractMetaTag procura <meta property|name="..." content="..."> sem
// parser de HTML; páginas reais variam demais para valer um DOM aqui.
func extractMetaTag(html string, names ...string) string {
	for _, name := range names {
		if val := findMetaContent(html, `property="`+name+`"`); val != "" {
			return val
		}
		if val := findMetaContent(html, `name="`+name+`"`); val != "" {
			return val
		}
	}
	return ""
}

func findMetaContent(html, pattern string) string {
	idx := strings.Index(html, pattern)
	if idx == -1 {
		return ""
	}
	contentIdx := strings.Index(html[idx:], `content="`)
	if contentIdx == -1 {
		return ""
	}
	start := idx + contentIdx + len(`content="`)
	if start >= len(html) {
		return ""
	}
	end := strings.Index(html[start:], `"`)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(html[start : start+end])
}

// downloadPreviewImage baixa a imagem do preview e valida a assinatura
// dos formatos que o WhatsApp aceita como thumbnail.
func downloadPreviewImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("image http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, previewImageLimit))
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, errors.New("image too small")
	}

	isImage := bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) || // JPEG
		bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}) || // PNG
		bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46}) || // GIF
		bytes.HasPrefix(data, []byte{0x52, 0x49, 0x46, 0x46}) // WEBP
	if !isImage {
		return nil, errors.New("url is not an image")
	}
	return data, nil
}
