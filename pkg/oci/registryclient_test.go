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

package oci

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cloud-native-stack/pkg/push"
)

func testClient(t *testing.T, mux *http.ServeMux) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(mux)
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), ClientOptions{PlainHTTP: true})
	return c, srv.Close
}

func TestProbeReturnsChallengeOn401(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/blobs/sha256:"+probeDigestHex, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="https://auth.example.com/token",service="registry.example.com",scope="repository:team/app:pull"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	challenge, err := c.Probe(context.Background(), "team/app")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, "https://auth.example.com/token", challenge.Realm)
	assert.Equal(t, "registry.example.com", challenge.Service)
	assert.Equal(t, "repository:team/app:pull", challenge.Scope)
}

func TestProbeReturnsNilChallengeWhenRegistryAllowsAnonymous(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/blobs/sha256:"+probeDigestHex, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	challenge, err := c.Probe(context.Background(), "team/app")
	require.NoError(t, err)
	assert.Nil(t, challenge)
}

func TestHeadBlobExistsAndMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/blobs/sha256:aaa", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v2/team/app/blobs/sha256:bbb", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	exists, err := c.HeadBlob(context.Background(), push.Authorization{}, "team/app", "sha256:aaa")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.HeadBlob(context.Background(), push.Authorization{}, "team/app", "sha256:bbb")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMountBlobCreatedVsFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/blobs/uploads/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") == "team/base" {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.Header().Set("Location", "/v2/team/app/blobs/uploads/fallback-id")
		w.WriteHeader(http.StatusAccepted)
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	mounted, uploadURL, err := c.MountBlob(context.Background(), push.Authorization{}, "team/app", "sha256:aaa", "team/base")
	require.NoError(t, err)
	assert.True(t, mounted)
	assert.Empty(t, uploadURL)

	mounted, uploadURL, err = c.MountBlob(context.Background(), push.Authorization{}, "team/app", "sha256:aaa", "other/repo")
	require.NoError(t, err)
	assert.False(t, mounted)
	assert.Contains(t, uploadURL, "/v2/team/app/blobs/uploads/fallback-id")
}

func TestBeginPatchFinalizeUploadSequence(t *testing.T) {
	var patched []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/blobs/uploads/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/v2/team/app/blobs/uploads/session-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/v2/team/app/blobs/uploads/session-1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			buf := make([]byte, r.ContentLength)
			_, _ = r.Body.Read(buf)
			patched = buf
			w.Header().Set("Location", "/v2/team/app/blobs/uploads/session-1?state=x")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodPut:
			w.Header().Set("Docker-Content-Digest", r.URL.Query().Get("digest"))
			w.WriteHeader(http.StatusCreated)
		}
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	uploadURL, err := c.BeginUpload(context.Background(), push.Authorization{}, "team/app")
	require.NoError(t, err)
	assert.Contains(t, uploadURL, "/v2/team/app/blobs/uploads/session-1")

	content := strings.NewReader("hello layer")
	nextURL, err := c.PatchUpload(context.Background(), push.Authorization{}, uploadURL, content, int64(content.Len()))
	require.NoError(t, err)
	assert.Contains(t, nextURL, "session-1")
	assert.Equal(t, "hello layer", string(patched))

	want := push.Digest("sha256:" + strings.Repeat("de", 32))
	dg, err := c.FinalizeUpload(context.Background(), push.Authorization{}, nextURL, want)
	require.NoError(t, err)
	assert.Equal(t, want, dg)
}

func TestPutManifestRejectsUnsupportedMediaType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/team/app/manifests/v1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	_, err := c.PutManifest(context.Background(), push.Authorization{}, "team/app", "v1", "application/vnd.bogus", []byte("{}"))
	require.Error(t, err)
}

func TestParseWWWAuthenticateHandlesQuotedCommas(t *testing.T) {
	header := `Bearer realm="https://auth.example.com/token",service="reg,istry",scope="repository:a:pull,push"`
	challenge := parseWWWAuthenticate(header)
	require.NotNil(t, challenge)
	assert.Equal(t, "reg,istry", challenge.Service)
	assert.Equal(t, "repository:a:pull,push", challenge.Scope)
}

func TestParseWWWAuthenticateParsesBasicChallenge(t *testing.T) {
	challenge := parseWWWAuthenticate(`Basic realm="registry.example.com"`)
	require.NotNil(t, challenge)
	assert.Equal(t, push.AuthBasic, challenge.Scheme)
	assert.Equal(t, "registry.example.com", challenge.Realm)
}

func TestParseWWWAuthenticateRejectsUnknownScheme(t *testing.T) {
	assert.Nil(t, parseWWWAuthenticate(`Digest realm="registry"`))
}

func TestClassifyStatusMapsCodes(t *testing.T) {
	tests := []struct {
		status int
	}{{http.StatusUnauthorized}, {http.StatusForbidden}, {http.StatusTooManyRequests}, {http.StatusInternalServerError}, {http.StatusNotFound}}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.status, Body: http.NoBody, Header: http.Header{}}
		err := classifyStatus(resp, "test")
		assert.Error(t, err)
	}
}

func TestProbeDigestHexIsValidSHA256Length(t *testing.T) {
	assert.Len(t, probeDigestHex, 64)
	_, err := strconv.ParseUint(probeDigestHex[:8], 16, 32)
	assert.NoError(t, err)
}
