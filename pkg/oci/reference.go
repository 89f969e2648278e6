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
	"github.com/distribution/reference"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
	"github.com/NVIDIA/cloud-native-stack/pkg/push"
)

// ValidateRegistryReference rejects empty registry/repository components.
// distribution/reference already enforces the character-set and length
// rules; this only catches the degenerate case of an empty component.
// ParseImageReference never produces an empty domain on its own, since
// reference.ParseNormalizedNamed expands a bare "myimage" to
// "docker.io/library/myimage".
func ValidateRegistryReference(registry, repository string) error {
	if registry == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "OCI reference is missing a registry host")
	}
	if repository == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "OCI reference is missing a repository path")
	}
	return nil
}

// ParseImageReference parses a Docker-style image reference (registry/repo:tag)
// into the push package's wire-level ImageReference, defaulting an untagged
// reference's tag to "latest" the way `docker push` does.
func ParseImageReference(s string) (push.ImageReference, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return push.ImageReference{}, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid image reference", err)
	}

	registry := reference.Domain(named)
	repository := reference.Path(named)
	if err := ValidateRegistryReference(registry, repository); err != nil {
		return push.ImageReference{}, err
	}

	ref := push.ImageReference{Registry: registry, Repository: repository, Tag: "latest"}
	if tagged, ok := named.(reference.Tagged); ok {
		ref.Tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		ref.Digest = push.Digest(digested.Digest().String())
		ref.Tag = ""
	}
	return ref, nil
}
