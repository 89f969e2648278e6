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

// Package push implements the concurrent, dependency-ordered pipeline that
// authenticates against a container registry and publishes a built image:
// its layer blobs, its configuration blob, and a manifest uploaded under one
// or more tags.
//
// # Overview
//
// A push is a fixed DAG of steps:
//
//	AuthenticatePush ─┐
//	                  ├──► PushBaseLayers ──┐
//	                  ├──► PushAppLayers  ──┼──► BuildImage ──► PushManifest (per tag) ──► ImageCreated
//	                  └──► PushConfigBlob ──┘
//
// BuildImage is not an independent branch: it starts only after the base
// layers, application layers, and config blob have all been pushed.
//
// Each step is a Step[T]: a deferred, single-assignment value with declared
// predecessors (see step.go). Entry point is Push, which wires the fixed DAG
// above from a Request and a Context and returns the pushed image's digest.
//
// # Collaborators
//
// The core never talks to a filesystem, a build tool, or a specific registry
// implementation directly. It is handed a RegistryClient (the auth probe,
// token exchange, and OCI distribution blob/manifest operations), a
// CredentialProvider, and an EventSink through a Context value; pkg/oci
// supplies a net/http RegistryClient and a CredentialProvider built on the
// oras.land/oras-go/v2 Docker credential store.
package push
