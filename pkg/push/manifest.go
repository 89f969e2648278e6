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
	"encoding/json"
	"fmt"

	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

func manifestMediaTypes(format ManifestFormat) (manifest, config, layer string) {
	if format == FormatOCI {
		return mediaTypeOCIManifest, mediaTypeOCIConfig, mediaTypeOCILayer
	}
	return mediaTypeDockerManifest, mediaTypeDockerConfig, mediaTypeDockerLayer
}

// marshalManifest serializes image and configDesc into the manifest bytes
// exactly once; the returned slice is both hashed for the manifest's own
// digest and sent verbatim as the PUT body, so there is never a second,
// possibly divergent serialization in play (spec.md §4.7, §9).
func marshalManifest(image Image, configDesc BlobDescriptor, format ManifestFormat) ([]byte, string, error) {
	manifestType, configType, layerType := manifestMediaTypes(format)

	layers := make([]v1.Descriptor, len(image.Layers))
	for i, l := range image.Layers {
		mt := l.Descriptor.MediaType
		if mt == "" {
			mt = layerType
		}
		layers[i] = v1.Descriptor{
			MediaType: mt,
			Size:      l.Descriptor.Size,
			Digest:    l.Descriptor.Digest,
		}
	}

	cmt := configDesc.MediaType
	if cmt == "" {
		cmt = configType
	}

	m := v1.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: manifestType,
		Config: v1.Descriptor{
			MediaType: cmt,
			Size:      configDesc.Size,
			Digest:    configDesc.Digest,
		},
		Layers: layers,
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, "", err
	}
	return raw, manifestType, nil
}

// PushManifest waits for the assembled Image and pushed config descriptor,
// serializes the manifest once, and PUTs it under every tag concurrently,
// verifying the registry's Docker-Content-Digest response against the
// locally computed digest before declaring success (spec.md §2, §4.7).
//
// It encloses the whole operation, including the per-tag PUTs, in a single
// TimerSpanEvent and emits one "tagging with <tag>" LogEvent per tag as the
// corresponding PUT is issued, matching the logging Jib's PushImageStep
// performs around the same operation.
func PushManifest(ctx context.Context, pc *Context, authStep *Step[Authorization], imageStep *Step[Image], configStep *Step[BlobDescriptor], registry, repo string, tags []string, format ManifestFormat) *Step[Digest] {
	return Start(ctx, pc.Runtime, AllOf(imageStep, configStep), func(ctx context.Context) (Digest, error) {
		if len(tags) == 0 {
			return "", apperrors.New(apperrors.ErrCodeInternal, "push requires at least one tag")
		}

		var manifestDigest Digest
		err := timeSpan(pc.Events, "push-manifest", func() error {
			auth, err := authStep.Join(ctx)
			if err != nil {
				return err
			}
			image, err := imageStep.Join(ctx)
			if err != nil {
				return err
			}
			configDesc, err := configStep.Join(ctx)
			if err != nil {
				return err
			}

			raw, mediaType, err := marshalManifest(image, configDesc, format)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to serialize manifest", err)
			}
			localDigest := digest.FromBytes(raw)

			g, gctx := errgroup.WithContext(ctx)
			for _, tag := range tags {
				tag := tag
				g.Go(func() error {
					pc.log(LogInfo, fmt.Sprintf("tagging with %s", tag))
					serverDigest, err := pc.Registry.PutManifest(gctx, auth, repo, tag, mediaType, raw)
					if err != nil {
						return err
					}
					if serverDigest != "" && serverDigest != localDigest {
						return apperrors.New(apperrors.ErrCodeDigestMismatch,
							fmt.Sprintf("registry reported manifest digest %s disagrees with %s for tag %s", serverDigest, localDigest, tag))
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			manifestDigest = localDigest
			if pc.Events != nil {
				pc.Events.Dispatch(ImageCreatedEvent{
					Image:        image,
					ImageDigest:  localDigest,
					ConfigDigest: configDesc.Digest,
				})
			}
			return nil
		})
		return manifestDigest, err
	})
}
