// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	digest "github.com/opencontainers/go-digest"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

// configJSON is the OCI/Docker container configuration wire shape. Field
// order matches encoding/json's struct order, which is fixed for a given
// Go type; two calls serializing an equal ContainerConfig therefore always
// produce byte-identical output, which is what makes the config blob's
// digest reproducible (spec.md §4.6, §9).
type configJSON struct {
	Created      string            `json:"created,omitempty"`
	Entrypoint   []string          `json:"Entrypoint,omitempty"`
	Cmd          []string          `json:"Cmd,omitempty"`
	Env          []string          `json:"Env,omitempty"`
	Labels       map[string]string `json:"Labels,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	Volumes      map[string]struct{} `json:"Volumes,omitempty"`
	WorkingDir   string            `json:"WorkingDir,omitempty"`
	User         string            `json:"User,omitempty"`
}

func marshalConfig(cfg ContainerConfig) ([]byte, error) {
	cj := configJSON{
		Entrypoint:   cfg.Entrypoint,
		Cmd:          cfg.Cmd,
		Env:          cfg.Env,
		Labels:       cfg.Labels,
		ExposedPorts: cfg.ExposedPorts,
		Volumes:      cfg.Volumes,
		WorkingDir:   cfg.WorkingDir,
		User:         cfg.User,
	}
	if !cfg.Created.IsZero() {
		cj.Created = cfg.Created.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(cj)
}

// PushConfig serializes cfg exactly once and pushes the resulting blob,
// reusing PushBlob's dedup and retry machinery like any other layer
// (spec.md §4.6). The returned BlobDescriptor's digest is the image's
// config descriptor for the manifest step.
func PushConfig(ctx context.Context, pc *Context, authStep *Step[Authorization], registry, repo string, cfg ContainerConfig) *Step[BlobDescriptor] {
	return Start(ctx, pc.Runtime, nil, func(ctx context.Context) (BlobDescriptor, error) {
		var result BlobDescriptor
		err := timeSpan(pc.Events, "push-config-blob", func() error {
			raw, err := marshalConfig(cfg)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to serialize container configuration", err)
			}
			dg := digest.FromBytes(raw)
			layer := Layer{
				// MediaType is left unset here: the manifest step picks the
				// correct config media type for the requested format
				// (Docker or OCI), the same way it already does for layers.
				Descriptor: BlobDescriptor{Digest: dg, Size: int64(len(raw))},
				Content: func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader(raw)), nil
				},
				Kind: LayerApplication,
			}
			d, err := PushBlob(ctx, pc, authStep, registry, repo, layer).Join(ctx)
			if err != nil {
				return err
			}
			result = d
			return nil
		})
		return result, err
	})
}
