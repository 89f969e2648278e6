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

	"golang.org/x/sync/errgroup"
)

// PushLayers starts one PushBlob per layer in kind order and returns a Step
// resolving to their descriptors in the same order once every upload (or
// dedup attachment) has completed. It implements both PushBaseLayersStep and
// PushAppLayersStep from spec.md §2/§4.4-§4.5: which one a given call is
// depends only on the Kind of the layers passed in.
func PushLayers(ctx context.Context, pc *Context, authStep *Step[Authorization], registry, repo string, layers []Layer) *Step[[]BlobDescriptor] {
	return Start(ctx, pc.Runtime, nil, func(ctx context.Context) ([]BlobDescriptor, error) {
		var name string
		if len(layers) > 0 && layers[0].Kind == LayerBase {
			name = "push-base-layers"
		} else {
			name = "push-app-layers"
		}

		var result []BlobDescriptor
		err := timeSpan(pc.Events, name, func() error {
			steps := make([]*Step[BlobDescriptor], len(layers))
			for i, layer := range layers {
				steps[i] = PushBlob(ctx, pc, authStep, registry, repo, layer)
			}

			g, gctx := errgroup.WithContext(ctx)
			descs := make([]BlobDescriptor, len(layers))
			for i, s := range steps {
				i, s := i, s
				g.Go(func() error {
					d, err := s.Join(gctx)
					if err != nil {
						return err
					}
					descs[i] = d
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			result = descs
			return nil
		})
		return result, err
	})
}
