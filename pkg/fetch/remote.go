// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/datafy/datafy/pkg/artifact"
)

func isRemote(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (p *Pipeline) loadRemote(ctx context.Context, req artifact.Request) (body, error) {
	if err := p.checkSize(ctx, req); err != nil {
		return body{}, err
	}

	getCtx, cancel := context.WithTimeout(ctx, p.getTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(getCtx, http.MethodGet, req.URI, nil)
	if err != nil {
		return body{}, &artifact.InvalidRequestError{URI: req.URI, Reason: err.Error()}
	}
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return body{}, fmt.Errorf("GET %s: %w", req.URI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body{}, &artifact.HTTPStatusError{URI: req.URI, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if exceeds(resp.ContentLength, req.SizeLimit) {
		return body{}, tooLarge(req.URI, resp.ContentLength, req.SizeLimit)
	}

	var r io.Reader = resp.Body
	if req.SizeLimit > 0 {
		r = io.LimitReader(resp.Body, req.SizeLimit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return body{}, fmt.Errorf("GET %s: reading body: %w", req.URI, err)
	}
	if exceeds(int64(len(data)), req.SizeLimit) {
		return body{}, tooLarge(req.URI, int64(len(data)), req.SizeLimit)
	}
	return body{data: data, header: resp.Header, charset: charset(resp.Header)}, nil
}

// charset returns the Content-Type charset parameter, or "".
func charset(h http.Header) string {
	_, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return params["charset"]
}

// checkSize issues a HEAD request and rejects resources whose declared
// length exceeds the limit. HEAD failures are not fatal; GET decides.
func (p *Pipeline) checkSize(ctx context.Context, req artifact.Request) error {
	if req.SizeLimit <= 0 {
		return nil
	}

	headCtx, cancel := context.WithTimeout(ctx, p.headTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(headCtx, http.MethodHead, req.URI, nil)
	if err != nil {
		return &artifact.InvalidRequestError{URI: req.URI, Reason: err.Error()}
	}
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Debug("size check failed", "uri", req.URI, "error", err)
		return nil
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Debug("size check rejected", "uri", req.URI, "status", resp.Status)
		return nil
	}
	if exceeds(resp.ContentLength, req.SizeLimit) {
		return tooLarge(req.URI, resp.ContentLength, req.SizeLimit)
	}
	return nil
}
