package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/subseek/internal/buildinfo"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
)

type clientOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

// apiClient parle à l'API v1 du serveur.
type apiClient struct {
	base string
	http *http.Client
}

func (o *clientOptions) client() *apiClient {
	return &apiClient{
		base: strings.TrimRight(o.server, "/"),
		http: &http.Client{Timeout: o.timeout},
	}
}

// apiError porte le corps d'erreur JSON du serveur.
type apiError struct {
	Status int
	Body   httpjson.ErrorBody
}

func (e *apiError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Code != "" {
		return fmt.Sprintf("%s (%d, %s)", msg, e.Status, e.Body.Code)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr.Body)
		return nil, apiErr
	}
	return resp, nil
}

// getJSON décode la réponse dans out; renvoie aussi le corps brut pour --json.
func (c *apiClient) getJSON(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	resp, err := c.do(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}

func writeIndented(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(append(raw, '\n'))
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

var errNoSubtitle = errors.New("aucun sous-titre exploitable pour cet identifiant")
