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
	"io"
)

// Credential is a username/password pair resolved for a registry host.
type Credential struct {
	Username string
	Password string
}

// CredentialProvider resolves credentials for a registry host, returning
// ok=false when none are configured (spec.md §6).
type CredentialProvider interface {
	Credential(ctx context.Context, host string) (cred Credential, ok bool, err error)
}

// AuthChallenge is the parsed form of a WWW-Authenticate response header
// (spec.md §4.2).
type AuthChallenge struct {
	Scheme AuthScheme
	Realm  string
	Service string
	Scope   string
}

// RegistryClient implements the OCI distribution wire operations the core
// requires (spec.md §6). Every method is handed the Authorization the
// authenticate step produced; implementations attach it as the request's
// Authorization header (or send no header for AuthAnonymous).
type RegistryClient interface {
	// Probe issues a HEAD against an arbitrary blob digest to provoke a
	// WWW-Authenticate challenge when the registry requires one. It returns
	// a nil challenge when the registry answered without demanding auth.
	Probe(ctx context.Context, repo string) (*AuthChallenge, error)

	// ExchangeToken trades a challenge and (optional) credential for an
	// Authorization. haveCred false performs an anonymous token request,
	// which registries may still honor for public scopes.
	ExchangeToken(ctx context.Context, challenge AuthChallenge, cred Credential, haveCred bool, scope string) (Authorization, error)

	// HeadBlob reports whether dg already exists in repo.
	HeadBlob(ctx context.Context, auth Authorization, repo string, dg Digest) (exists bool, err error)

	// MountBlob attempts a cross-repository mount of dg from fromRepo into
	// repo. mounted is true on 201; otherwise uploadURL carries the
	// Location returned by the registry's upload-on-fallback response.
	MountBlob(ctx context.Context, auth Authorization, repo string, dg Digest, fromRepo string) (mounted bool, uploadURL string, err error)

	// BeginUpload opens a new upload session, returning its Location URL.
	BeginUpload(ctx context.Context, auth Authorization, repo string) (uploadURL string, err error)

	// PatchUpload streams content (size bytes) to uploadURL, returning the
	// URL to finalize against.
	PatchUpload(ctx context.Context, auth Authorization, uploadURL string, content io.Reader, size int64) (nextURL string, err error)

	// FinalizeUpload completes the upload session, declaring dg as the
	// blob's digest. It returns the registry's own Docker-Content-Digest
	// response header, if any.
	FinalizeUpload(ctx context.Context, auth Authorization, uploadURL string, dg Digest) (serverDigest Digest, err error)

	// PutManifest uploads content under tag, returning the registry's
	// reported digest, if any.
	PutManifest(ctx context.Context, auth Authorization, repo, tag, mediaType string, content []byte) (serverDigest Digest, err error)
}

// LogLevel mirrors the levels the event sink adapter forwards to slog.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// Event is dispatched by step bodies to report progress (spec.md §4.8).
type Event interface {
	isEvent()
}

// LogEvent is a human-readable progress or diagnostic message.
type LogEvent struct {
	Level   LogLevel
	Message string
}

func (LogEvent) isEvent() {}

// ProgressEvent reports partial completion of a named unit of work (e.g. an
// individual blob upload).
type ProgressEvent struct {
	Unit string
	Done int64
	Total int64
}

func (ProgressEvent) isEvent() {}

// TimerSpanEvent brackets the duration of a step body.
type TimerSpanEvent struct {
	Name  string
	Start int64 // unix nanoseconds
	End   int64
}

func (TimerSpanEvent) isEvent() {}

// ImageCreatedEvent is the terminal event of a successful push (spec.md §4.7).
type ImageCreatedEvent struct {
	Image        Image
	ImageDigest  Digest
	ConfigDigest Digest
}

func (ImageCreatedEvent) isEvent() {}

// EventSink receives events from step bodies. Ordering: events from a single
// step arrive in program order; events across concurrent steps are
// interleaved arbitrarily (spec.md §4.8).
type EventSink interface {
	Dispatch(Event)
}

// Context bundles everything the DAG needs beyond the image being pushed:
// the registry/credential/event collaborators, the worker pool, and the
// per-invocation dedup map. It carries no package-level globals; every push
// gets its own Context (spec.md §9).
type Context struct {
	Registry    RegistryClient
	Credentials CredentialProvider
	Events      EventSink
	Runtime     *Runtime

	tasks *taskSet
}

// NewContext builds a Context ready to drive one push. workers <= 0 defaults
// to runtime.NumCPU().
func NewContext(registry RegistryClient, credentials CredentialProvider, events EventSink, workers int) *Context {
	return &Context{
		Registry:    registry,
		Credentials: credentials,
		Events:      events,
		Runtime:     NewRuntime(workers),
		tasks:       newTaskSet(),
	}
}

func (c *Context) log(level LogLevel, message string) {
	if c.Events != nil {
		c.Events.Dispatch(LogEvent{Level: level, Message: message})
	}
}
