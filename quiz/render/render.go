// Package render turns question text into a displayable image URL using
// a remote LaTeX rendering service.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/r4den/kanjiquiz/core/logger"
	"log/slog"
)

const latexTemplate = `\documentclass[32pt]{article}
\usepackage{CJKutf8}
\thispagestyle{empty}
\begin{document}
\begin{CJK}{UTF8}{min}
%s
\end{CJK}
\end{document}
`

// Client renders CJK text to a PNG hosted by the render service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New constructs a render client for the given service base URL.
// A nil httpClient falls back to http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		log:     logger.Component("quiz.render"),
	}
}

type renderRequest struct {
	Content string `json:"content"`
	Density int    `json:"d"`
	Border  string `json:"border"`
	BColor  string `json:"bcolor"`
}

type renderResponse struct {
	Res string `json:"res"`
}

// Render submits the question text and returns the URL of the rendered
// PNG. Any transport, status, or payload failure is returned as a single
// error; callers treat it as fatal and do not retry.
func (c *Client) Render(question string) (string, error) {
	body, err := json.Marshal(renderRequest{
		Content: fmt.Sprintf(latexTemplate, question),
		Density: 800,
		Border:  "100x80",
		BColor:  "white",
	})
	if err != nil {
		return "", fmt.Errorf("render: encode request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"?action=tex2png_no_op", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("render: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("render: read response: %w", err)
	}

	var parsed renderResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("render: parse response: %w", err)
	}
	if parsed.Res == "" {
		return "", fmt.Errorf("render: response missing res field")
	}

	c.log.Debug("question rendered",
		slog.String("event", "render"),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return fmt.Sprintf("%s?action=file&type=png&hash=%s", c.baseURL, parsed.Res), nil
}
