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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRegistryReferenceRejectsEmptyRegistry(t *testing.T) {
	assert.Error(t, ValidateRegistryReference("", "nvidia/eidos"))
}

func TestValidateRegistryReferenceRejectsEmptyRepository(t *testing.T) {
	assert.Error(t, ValidateRegistryReference("ghcr.io", ""))
}

func TestValidateRegistryReferenceAcceptsWellFormedInput(t *testing.T) {
	assert.NoError(t, ValidateRegistryReference("ghcr.io", "nvidia/eidos"))
}

func TestParseImageReferenceDefaultsToLatest(t *testing.T) {
	ref, err := ParseImageReference("ghcr.io/nvidia/eidos")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", ref.Registry)
	assert.Equal(t, "nvidia/eidos", ref.Repository)
	assert.Equal(t, "latest", ref.Tag)
	assert.Empty(t, ref.Digest)
}

func TestParseImageReferenceKeepsExplicitTag(t *testing.T) {
	ref, err := ParseImageReference("ghcr.io/nvidia/eidos:v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", ref.Tag)
}

func TestParseImageReferencePrefersDigestOverTag(t *testing.T) {
	dg := "sha256:" + sha256HexOCI()
	ref, err := ParseImageReference("ghcr.io/nvidia/eidos@" + dg)
	require.NoError(t, err)
	assert.Empty(t, ref.Tag)
	assert.Equal(t, dg, string(ref.Digest))
}

func TestParseImageReferenceRejectsInvalidInput(t *testing.T) {
	_, err := ParseImageReference("oci://")
	assert.Error(t, err)
}

func sha256HexOCI() string {
	const hex = "abcdef0123456789"
	b := make([]byte, 64)
	for i := range b {
		b[i] = hex[i%len(hex)]
	}
	return string(b)
}
