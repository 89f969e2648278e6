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
	"fmt"
	"io"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// Digest is a content-addressed identifier of the form "algo:hex". sha256 is
// the only algorithm the core requires (spec.md §3).
type Digest = digest.Digest

// BlobDescriptor identifies a blob by digest and size, with an optional
// media type. Invariant: Size >= 0 and Digest must be the digest of exactly
// Size content bytes (spec.md §3).
type BlobDescriptor struct {
	Digest    Digest
	Size      int64
	MediaType string
}

func (d BlobDescriptor) String() string {
	return fmt.Sprintf("%s (%d bytes)", d.Digest, d.Size)
}

// ContentSource produces a blob's bytes. It may be called any number of
// times (e.g. on upload retry) and must return a fresh, independently
// closeable reader every time.
type ContentSource func() (io.ReadCloser, error)

// LayerKind classifies a Layer as inherited from the base image or newly
// produced locally (spec.md §3).
type LayerKind int

const (
	// LayerBase layers are inherited from the source image and are
	// candidates for cross-repository mount.
	LayerBase LayerKind = iota
	// LayerApplication layers are produced locally and must be uploaded.
	LayerApplication
)

func (k LayerKind) String() string {
	if k == LayerBase {
		return "base"
	}
	return "application"
}

// Layer pairs a BlobDescriptor with a reopenable content source and its
// classification. SourceRepository, when set on a base layer, names the
// repository the registry should attempt a cross-repository mount from.
type Layer struct {
	Descriptor       BlobDescriptor
	Content          ContentSource
	Kind             LayerKind
	SourceRepository string
}

// ContainerConfig holds the subset of OCI image configuration fields the
// build-image step assembles into an Image (spec.md §4.6).
type ContainerConfig struct {
	Entrypoint   []string
	Cmd          []string
	Env          []string
	Labels       map[string]string
	ExposedPorts map[string]struct{}
	Volumes      map[string]struct{}
	WorkingDir   string
	User         string
	// Created is taken verbatim from configuration; the core never calls
	// time.Now() internally (spec.md §4.6).
	Created time.Time
}

// Image is an ordered list of layers plus the container configuration they
// were built from. Layer order is the runtime filesystem stacking order:
// base layers precede application layers (spec.md §3, §4.6).
type Image struct {
	Layers []Layer
	Config ContainerConfig
}

// ManifestFormat selects the wire format of the uploaded manifest
// (spec.md §6).
type ManifestFormat int

const (
	// FormatDockerV2S2 is Docker V2.2 Schema 2, the default.
	FormatDockerV2S2 ManifestFormat = iota
	// FormatOCI is the OCI image manifest format.
	FormatOCI
)

const (
	mediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerConfig   = "application/vnd.docker.container.image.v1+json"
	mediaTypeDockerLayer    = "application/vnd.docker.image.rootfs.diff.tar.gzip"

	mediaTypeOCIManifest = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeOCIConfig   = "application/vnd.oci.image.config.v1+json"
	mediaTypeOCILayer    = "application/vnd.oci.image.layer.v1.tar+gzip"
)

// ImageReference names a destination registry, repository, and optional
// tag/digest (spec.md §3).
type ImageReference struct {
	Registry   string
	Repository string
	Tag        string
	Digest     Digest
}

func (r ImageReference) String() string {
	if r.Tag != "" {
		return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
	}
	if r.Digest != "" {
		return fmt.Sprintf("%s/%s@%s", r.Registry, r.Repository, r.Digest)
	}
	return fmt.Sprintf("%s/%s", r.Registry, r.Repository)
}

// AuthScheme identifies how an Authorization's token is presented.
type AuthScheme int

const (
	// AuthAnonymous is used when the registry advertised no auth challenge.
	AuthAnonymous AuthScheme = iota
	AuthBearer
	AuthBasic
)

// Authorization is an opaque credential scoped to one repository and a set
// of actions, valid for the lifetime of a single push (spec.md §3).
type Authorization struct {
	Scheme AuthScheme
	Token  string
	// Scope records the actions the registry actually granted, which may be
	// narrower than requested (spec.md §4.2).
	Scope string
}

// IsAnonymous reports whether a is the no-authentication sentinel.
func (a Authorization) IsAnonymous() bool {
	return a.Scheme == AuthAnonymous
}
