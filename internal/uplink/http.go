package uplink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

// HTTPChannel posts each chunk to the collector's chunk endpoint.
type HTTPChannel struct {
	client     utils.HTTPDoer
	endpoint   string
	projectKey string
}

func NewHTTPChannel(client utils.HTTPDoer, baseURL, deviceSerial, projectKey string) (*HTTPChannel, error) {
	if strings.TrimSpace(deviceSerial) == "" {
		return nil, fmt.Errorf("%w: device serial is required", chunk.ErrInvalidArgument)
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid collector URL %q", chunk.ErrInvalidArgument, baseURL)
	}
	return &HTTPChannel{
		client:     client,
		endpoint:   base.String() + "/api/v0/chunks/" + url.PathEscape(deviceSerial),
		projectKey: projectKey,
	}, nil
}

func (c *HTTPChannel) Name() string { return "http" }

func (c *HTTPChannel) Send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error creating chunk request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.projectKey != "" {
		req.Header.Set(utils.ProjectKeyHeader, c.projectKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return chunk.NewTransportError("uplink/http", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return chunk.NewTransportError("uplink/http", resp.StatusCode,
			fmt.Errorf("collector rejected chunk: %s", strings.TrimSpace(string(body))))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
