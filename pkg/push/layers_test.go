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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLayersPreservesOrder(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)
	auth := anonAuthStep(ctx, pc.Runtime)

	layers := []Layer{
		layerFromBytes([]byte("layer one"), LayerApplication),
		layerFromBytes([]byte("layer two"), LayerApplication),
		layerFromBytes([]byte("layer three"), LayerApplication),
	}

	step := PushLayers(ctx, pc, auth, "registry.example.com", "team/app", layers)
	descs, err := step.Join(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 3)
	for i, l := range layers {
		assert.Equal(t, l.Descriptor.Digest, descs[i].Digest)
	}
}

func TestPushLayersFailsFastOnFirstError(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)
	auth := anonAuthStep(ctx, pc.Runtime)

	ok := layerFromBytes([]byte("uploads fine"), LayerApplication)
	bad := layerFromBytes([]byte("never uploads"), LayerApplication)
	reg.failTransientTimes(bad.Descriptor.Digest, 1000)

	step := PushLayers(ctx, pc, auth, "registry.example.com", "team/app", []Layer{ok, bad})
	_, err := step.Join(ctx)
	require.Error(t, err)
}

func TestPushLayersEmptySet(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)
	auth := anonAuthStep(ctx, pc.Runtime)

	step := PushLayers(ctx, pc, auth, "registry.example.com", "team/app", nil)
	descs, err := step.Join(ctx)
	require.NoError(t, err)
	assert.Empty(t, descs)
}
