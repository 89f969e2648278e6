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

import "context"

// BuildImage waits for the base layers, application layers, and config blob
// to finish pushing and assembles the resulting Image purely from their
// already-known descriptors: it performs no I/O of its own and calls no
// clock (spec.md §4.6). Layer order is preserved: base layers precede
// application layers, each group in the order baseLayers and appLayers were
// given.
func BuildImage(ctx context.Context, pc *Context, baseLayers, appLayers []Layer, cfg ContainerConfig,
	baseStep, appStep *Step[[]BlobDescriptor], configStep *Step[BlobDescriptor]) *Step[Image] {

	return Start(ctx, pc.Runtime, AllOf(baseStep, appStep, configStep), func(ctx context.Context) (Image, error) {
		baseDescs, err := baseStep.Join(ctx)
		if err != nil {
			return Image{}, err
		}
		appDescs, err := appStep.Join(ctx)
		if err != nil {
			return Image{}, err
		}
		if _, err := configStep.Join(ctx); err != nil {
			return Image{}, err
		}

		layers := make([]Layer, 0, len(baseLayers)+len(appLayers))
		for i, l := range baseLayers {
			l.Descriptor = baseDescs[i]
			layers = append(layers, l)
		}
		for i, l := range appLayers {
			l.Descriptor = appDescs[i]
			layers = append(layers, l)
		}

		return Image{Layers: layers, Config: cfg}, nil
	})
}
