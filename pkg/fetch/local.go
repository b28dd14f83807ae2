// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/datafy/datafy/pkg/artifact"
)

// localPath maps a file: URI or plain path to a filesystem path. Container
// members are relative to the scratch base; anything else to the working
// directory.
func (p *Pipeline) localPath(req artifact.Request) (string, error) {
	rel := strings.TrimPrefix(req.URI, "file:")
	if strings.HasPrefix(rel, "//") {
		u, err := url.Parse(req.URI)
		if err != nil {
			return "", &artifact.InvalidRequestError{URI: req.URI, Reason: err.Error()}
		}
		rel = u.Path
	}
	if rel == "" {
		return "", &artifact.InvalidRequestError{URI: req.URI, Reason: "empty path"}
	}

	local := filepath.FromSlash(rel)
	if filepath.IsAbs(local) {
		return local, nil
	}
	if req.LocalEntry {
		base, err := p.expander.ScratchDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve scratch directory: %w", err)
		}
		return filepath.Join(base, local), nil
	}
	return filepath.Abs(local)
}

func (p *Pipeline) loadLocal(req artifact.Request) (body, error) {
	local, err := p.localPath(req)
	if err != nil {
		return body{}, err
	}

	f, err := os.Open(local)
	if err != nil {
		return body{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return body{}, err
	}
	if info.IsDir() {
		return body{}, &artifact.InvalidRequestError{URI: req.URI, Reason: "is a directory"}
	}
	if exceeds(info.Size(), req.SizeLimit) {
		return body{}, tooLarge(req.URI, info.Size(), req.SizeLimit)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return body{}, err
	}
	return body{data: data, localPath: local}, nil
}

// pathHint is "." for whole resources. For container members it is the
// member path with the leading scratch directory segment removed.
func (p *Pipeline) pathHint(req artifact.Request) (string, error) {
	if !req.LocalEntry {
		return artifact.WholeResource, nil
	}
	rel := path.Clean(strings.TrimPrefix(strings.TrimPrefix(req.URI, "file:"), "/"))
	_, member, ok := strings.Cut(rel, "/")
	if !ok || member == "" {
		return "", &artifact.InvalidRequestError{URI: req.URI, Reason: "container member uri has no scratch segment"}
	}
	return member, nil
}
