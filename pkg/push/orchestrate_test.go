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

func testRequest(repo string, tags []string) Request {
	return Request{
		Reference:  ImageReference{Registry: "registry.example.com", Repository: repo, Tag: tags[0]},
		BaseLayers: []Layer{layerFromBytes([]byte("base layer bytes"), LayerBase)},
		AppLayers:  []Layer{layerFromBytes([]byte("app layer bytes"), LayerApplication)},
		Config:     ContainerConfig{Entrypoint: []string{"/bin/app"}},
		Tags:       tags,
		Format:     FormatDockerV2S2,
	}
}

func TestPushEndToEndAgainstMockRegistry(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)

	req := testRequest("team/app", []string{"v1", "latest"})
	dg, err := Push(ctx, pc, req)
	require.NoError(t, err)
	assert.NotEmpty(t, dg)
	assert.Len(t, reg.manifests["team/app"], 2)
}

func TestPushRejectsEmptyTagSetBeforeAnyNetworkCall(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)

	req := testRequest("team/app", []string{"v1"})
	req.Tags = nil
	_, err := Push(ctx, pc, req)
	require.Error(t, err)
	assert.Empty(t, reg.manifests)
	assert.Empty(t, reg.uploads)
}

func TestPushIsIdempotentOnReRun(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc1 := NewContext(reg, nil, nil, 4)

	req := testRequest("team/app", []string{"v1"})
	dg1, err := Push(ctx, pc1, req)
	require.NoError(t, err)

	pc2 := NewContext(reg, nil, nil, 4)
	dg2, err := Push(ctx, pc2, req)
	require.NoError(t, err)

	assert.Equal(t, dg1, dg2)
}

func TestPushMountsBaseLayersAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	reg := newMockRegistry()
	pc := NewContext(reg, nil, nil, 4)

	baseContent := []byte("shared base layer")
	base := layerFromBytes(baseContent, LayerBase)
	base.SourceRepository = "team/base"
	reg.seedBlob("team/base", base.Descriptor.Digest, baseContent)

	req := Request{
		Reference:  ImageReference{Registry: "registry.example.com", Repository: "team/app", Tag: "v1"},
		BaseLayers: []Layer{base},
		AppLayers:  []Layer{layerFromBytes([]byte("app layer"), LayerApplication)},
		Config:     ContainerConfig{},
		Tags:       []string{"v1"},
		Format:     FormatDockerV2S2,
	}

	_, err := Push(ctx, pc, req)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.mountCalls[base.Descriptor.Digest])
}
