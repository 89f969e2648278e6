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
	"context"
	"fmt"
	"io"
	"sync"

	digest "github.com/opencontainers/go-digest"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

// mockRegistry is a minimal in-memory stand-in for an OCI distribution
// registry, used to exercise the push DAG's protocol-level behavior
// without a network. It is deliberately simple: a production registry
// client is implemented in pkg/oci, grounded against this same interface.
type mockRegistry struct {
	mu sync.Mutex

	requireAuth      bool
	requireBasicAuth bool

	blobs     map[string]map[Digest][]byte // repo -> digest -> content
	manifests map[string]map[string][]byte // repo -> tag -> content

	uploads    map[string][]byte // uploadURL -> staged content
	uploadSeq  int
	headCalls  map[Digest]int
	mountCalls map[Digest]int

	transientFailuresRemaining map[Digest]int
	corruptDigestOnce          map[Digest]bool
	manifestMismatchOnce       map[string]bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		blobs:                      make(map[string]map[Digest][]byte),
		manifests:                  make(map[string]map[string][]byte),
		uploads:                    make(map[string][]byte),
		headCalls:                  make(map[Digest]int),
		mountCalls:                 make(map[Digest]int),
		transientFailuresRemaining: make(map[Digest]int),
		corruptDigestOnce:          make(map[Digest]bool),
		manifestMismatchOnce:       make(map[string]bool),
	}
}

func (m *mockRegistry) seedBlob(repo string, dg Digest, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs[repo] == nil {
		m.blobs[repo] = make(map[Digest][]byte)
	}
	m.blobs[repo][dg] = content
}

func (m *mockRegistry) failTransientTimes(dg Digest, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transientFailuresRemaining[dg] = n
}

func (m *mockRegistry) Probe(ctx context.Context, repo string) (*AuthChallenge, error) {
	if m.requireBasicAuth {
		return &AuthChallenge{Scheme: AuthBasic, Realm: "registry.example.com"}, nil
	}
	if !m.requireAuth {
		return nil, nil
	}
	return &AuthChallenge{Scheme: AuthBearer, Realm: "https://auth.example.com/token", Service: "registry.example.com"}, nil
}

func (m *mockRegistry) ExchangeToken(ctx context.Context, challenge AuthChallenge, cred Credential, haveCred bool, scope string) (Authorization, error) {
	return Authorization{Scheme: AuthBearer, Token: "mock-token", Scope: scope}, nil
}

func (m *mockRegistry) HeadBlob(ctx context.Context, auth Authorization, repo string, dg Digest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headCalls[dg]++
	_, ok := m.blobs[repo][dg]
	return ok, nil
}

func (m *mockRegistry) MountBlob(ctx context.Context, auth Authorization, repo string, dg Digest, fromRepo string) (bool, string, error) {
	m.mu.Lock()
	m.mountCalls[dg]++
	content, ok := m.blobs[fromRepo][dg]
	m.mu.Unlock()
	if !ok {
		url, err := m.BeginUpload(ctx, auth, repo)
		return false, url, err
	}
	m.mu.Lock()
	if m.blobs[repo] == nil {
		m.blobs[repo] = make(map[Digest][]byte)
	}
	m.blobs[repo][dg] = content
	m.mu.Unlock()
	return true, "", nil
}

func (m *mockRegistry) BeginUpload(ctx context.Context, auth Authorization, repo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadSeq++
	return fmt.Sprintf("upload://%s/%d", repo, m.uploadSeq), nil
}

func (m *mockRegistry) PatchUpload(ctx context.Context, auth Authorization, uploadURL string, content io.Reader, size int64) (string, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	dg := digest.FromBytes(raw)
	m.mu.Lock()
	remaining := m.transientFailuresRemaining[dg]
	if remaining > 0 {
		m.transientFailuresRemaining[dg] = remaining - 1
		m.mu.Unlock()
		return "", apperrors.New(apperrors.ErrCodeNetworkTransient, "mock transient failure")
	}
	if m.corruptDigestOnce[dg] {
		delete(m.corruptDigestOnce, dg)
		raw = append(raw, 0xFF)
	}
	m.uploads[uploadURL] = raw
	m.mu.Unlock()

	return uploadURL + "#finalize", nil
}

func (m *mockRegistry) FinalizeUpload(ctx context.Context, auth Authorization, uploadURL string, dg Digest) (Digest, error) {
	base := uploadURL[:len(uploadURL)-len("#finalize")]
	m.mu.Lock()
	raw, ok := m.uploads[base]
	m.mu.Unlock()
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeRegistryRefused, "no staged upload for "+uploadURL)
	}

	repo := repoFromUploadURL(base)
	serverDigest := digest.FromBytes(raw)

	m.mu.Lock()
	if m.blobs[repo] == nil {
		m.blobs[repo] = make(map[Digest][]byte)
	}
	m.blobs[repo][serverDigest] = raw
	delete(m.uploads, base)
	m.mu.Unlock()

	return serverDigest, nil
}

func (m *mockRegistry) PutManifest(ctx context.Context, auth Authorization, repo, tag, mediaType string, content []byte) (Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifests[repo] == nil {
		m.manifests[repo] = make(map[string][]byte)
	}
	m.manifests[repo][tag] = content

	if m.manifestMismatchOnce[tag] {
		delete(m.manifestMismatchOnce, tag)
		return digest.FromBytes(append(content, 0xFF)), nil
	}
	return digest.FromBytes(content), nil
}

func repoFromUploadURL(uploadURL string) string {
	const prefix = "upload://"
	rest := uploadURL[len(prefix):]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return rest
}
