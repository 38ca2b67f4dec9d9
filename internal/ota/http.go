package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/utils"
)

// DeviceInfo identifies the device to the release feed.
type DeviceInfo struct {
	Serial          string `yaml:"serial"`
	HardwareVersion string `yaml:"hardware_version"`
	SoftwareType    string `yaml:"software_type"`
	SoftwareVersion string `yaml:"software_version"`
}

// Release is the body of the latest-release endpoint.
type Release struct {
	Version   string     `json:"version"`
	Artifacts []Artifact `json:"artifacts"`
}

type Artifact struct {
	URL      string `json:"url"`
	FileSize int64  `json:"file_size"`
}

// HTTPResolver asks a collector for the latest release and streams its first
// artifact.
type HTTPResolver struct {
	client     utils.HTTPDoer
	base       *url.URL
	device     DeviceInfo
	projectKey string
	log        zerolog.Logger
}

func NewHTTPResolver(client utils.HTTPDoer, baseURL string, device DeviceInfo, projectKey string) (*HTTPResolver, error) {
	if strings.TrimSpace(device.Serial) == "" {
		return nil, fmt.Errorf("%w: device serial is required", chunk.ErrInvalidArgument)
	}
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid collector URL %q", chunk.ErrInvalidArgument, baseURL)
	}
	return &HTTPResolver{
		client:     client,
		base:       base,
		device:     device,
		projectKey: projectKey,
		log:        utils.GetLogger("ota"),
	}, nil
}

func (r *HTTPResolver) latestURL() string {
	q := url.Values{}
	q.Set("device_serial", r.device.Serial)
	q.Set("hardware_version", r.device.HardwareVersion)
	q.Set("software_type", r.device.SoftwareType)
	q.Set("current_version", r.device.SoftwareVersion)
	return r.base.String() + "/api/v0/releases/latest?" + q.Encode()
}

func (r *HTTPResolver) Resolve(ctx context.Context) (*Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.latestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating release request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.projectKey != "" {
		req.Header.Set(utils.ProjectKeyHeader, r.projectKey)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, chunk.NewTransportError("ota/release", 0, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, chunk.NewTransportError("ota/release", resp.StatusCode,
			fmt.Errorf("release lookup failed: %s", strings.TrimSpace(string(body))))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("error decoding release: %v", err)
	}
	if len(release.Artifacts) == 0 || (release.Version != "" && release.Version == r.device.SoftwareVersion) {
		return nil, nil
	}
	artifact := release.Artifacts[0]
	if artifact.FileSize < 0 {
		return nil, fmt.Errorf("%w: artifact size %d", chunk.ErrInvalidArgument, artifact.FileSize)
	}
	ref, err := url.Parse(artifact.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact URL %q", chunk.ErrInvalidArgument, artifact.URL)
	}
	artifactURL := r.base.ResolveReference(ref).String()
	r.log.Debug().Str("op", "ota/release").Str("version", release.Version).Str("url", artifactURL).
		Int64("size", artifact.FileSize).Msg("release resolved")

	return &Update{
		Info: chunk.UpdateInfo{
			TotalSize: artifact.FileSize,
			Version:   release.Version,
			URL:       artifactURL,
		},
		Fetcher: newRangeFetcher("ota/http-fetch", r.openArtifact(artifactURL)),
	}, nil
}

func (r *HTTPResolver) openArtifact(artifactURL string) opener {
	return func(ctx context.Context, offset int64) (io.ReadCloser, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
		if err != nil {
			return nil, false, fmt.Errorf("error creating GET request: %v", err)
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
		req.Header.Set("Connection", "keep-alive")
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, false, chunk.NewTransportError("ota/http-fetch", 0, err)
		}
		switch resp.StatusCode {
		case http.StatusOK:
			return resp.Body, offset == 0, nil
		case http.StatusPartialContent:
			return resp.Body, true, nil
		}
		resp.Body.Close()
		return nil, false, chunk.NewTransportError("ota/http-fetch", resp.StatusCode,
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
}
