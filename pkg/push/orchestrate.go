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
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

// Request describes one image push: its destination, content, and the
// tags it should be published under.
type Request struct {
	Reference  ImageReference
	BaseLayers []Layer
	AppLayers  []Layer
	Config     ContainerConfig
	Tags       []string
	Format     ManifestFormat
}

// Push drives the fixed DAG from spec.md §2 to completion:
//
//	AuthenticatePush
//	  -> PushBaseLayers  -\
//	  -> PushAppLayers    >-> BuildImage -> PushManifest (per tag) -> ImageCreated
//	  -> PushConfigBlob  -/
//
// It returns the pushed manifest's digest once every tag has been written
// and verified, or the first error observed anywhere in the DAG. An empty
// tag set is rejected before any network call is made (spec.md §8).
func Push(ctx context.Context, pc *Context, req Request) (Digest, error) {
	if len(req.Tags) == 0 {
		return "", apperrors.New(apperrors.ErrCodeInternal, "push requires at least one tag")
	}

	registry := req.Reference.Registry
	repo := req.Reference.Repository

	invocationID := uuid.NewString()
	pc.log(LogInfo, fmt.Sprintf("push %s [%s]", req.Reference.String(), invocationID))

	authStep := AuthenticatePush(ctx, pc, req.Reference)

	baseStep := PushLayers(ctx, pc, authStep, registry, repo, req.BaseLayers)
	appStep := PushLayers(ctx, pc, authStep, registry, repo, req.AppLayers)
	configStep := PushConfig(ctx, pc, authStep, registry, repo, req.Config)

	imageStep := BuildImage(ctx, pc, req.BaseLayers, req.AppLayers, req.Config, baseStep, appStep, configStep)

	manifestStep := PushManifest(ctx, pc, authStep, imageStep, configStep, registry, repo, req.Tags, req.Format)

	dg, err := manifestStep.Join(ctx)
	if err != nil {
		var se *apperrors.StructuredError
		if errors.As(err, &se) {
			if se.Context == nil {
				se.Context = map[string]any{}
			}
			se.Context["invocation_id"] = invocationID
		}
		return "", err
	}
	return dg, nil
}
