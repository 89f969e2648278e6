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
	"io"
	"time"

	digest "github.com/opencontainers/go-digest"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

const (
	retryInitialBackoff = 500 * time.Millisecond
	retryMaxBackoff      = 8 * time.Second
	retryMaxAttempts     = 5
)

// PushBlob pushes one layer's blob to repo, deduplicated per
// (registry, repo, digest) against pc's push task set: if an upload for the
// same key is already in flight or complete, the returned Step attaches to
// it instead of starting a second uploader (spec.md §3, §4.3, §8 property 2).
//
// The returned Step's value is the same BlobDescriptor that was pushed, so
// downstream steps (push-layers, push-manifest) can treat it as a handle to
// the pushed blob.
func PushBlob(ctx context.Context, pc *Context, authStep *Step[Authorization], registry, repo string, layer Layer) *Step[BlobDescriptor] {
	key := taskKey{Registry: registry, Repository: repo, Digest: layer.Descriptor.Digest}

	step, started := pc.tasks.loadOrStore(key, func() *Step[BlobDescriptor] {
		return Start(ctx, pc.Runtime, AllOf(authStep), func(ctx context.Context) (BlobDescriptor, error) {
			return pushBlobBody(ctx, pc, authStep, repo, layer)
		})
	})
	if !started {
		blobDedupHitsTotal.Inc()
	}
	return step
}

func pushBlobBody(ctx context.Context, pc *Context, authStep *Step[Authorization], repo string, layer Layer) (BlobDescriptor, error) {
	var result BlobDescriptor
	err := timeSpan(pc.Events, fmt.Sprintf("push-blob:%s", layer.Descriptor.Digest), func() error {
		auth, err := authStep.Join(ctx)
		if err != nil {
			return err
		}
		desc := layer.Descriptor

		var exists bool
		if err := retry(ctx, func() error {
			var err error
			exists, err = pc.Registry.HeadBlob(ctx, auth, repo, desc.Digest)
			return err
		}); err != nil {
			return err
		}
		if exists {
			blobUploadsTotal.WithLabelValues("exists").Inc()
			pc.log(LogInfo, fmt.Sprintf("%s already exists in %s", desc.Digest, repo))
			result = desc
			return nil
		}

		if layer.SourceRepository != "" && layer.SourceRepository != repo {
			var mounted bool
			var uploadURL string
			if err := retry(ctx, func() error {
				var err error
				mounted, uploadURL, err = pc.Registry.MountBlob(ctx, auth, repo, desc.Digest, layer.SourceRepository)
				return err
			}); err != nil {
				return err
			}
			if mounted {
				blobUploadsTotal.WithLabelValues("mounted").Inc()
				pc.log(LogInfo, fmt.Sprintf("mounted %s from %s into %s", desc.Digest, layer.SourceRepository, repo))
				result = desc
				return nil
			}
			if uploadURL != "" {
				return uploadBlob(ctx, pc, auth, repo, layer, uploadURL, &result)
			}
		}

		var uploadURL string
		if err := retry(ctx, func() error {
			var err error
			uploadURL, err = pc.Registry.BeginUpload(ctx, auth, repo)
			return err
		}); err != nil {
			return err
		}
		return uploadBlob(ctx, pc, auth, repo, layer, uploadURL, &result)
	})
	return result, err
}

// uploadBlob streams layer's content to uploadURL and finalizes it,
// verifying the digest of bytes actually sent before PUT and retrying
// transient failures per spec.md §4.3's backoff policy. A simple full
// restart (reopening Content from byte zero) backs every retry; resumable
// upload via the registry's Range header is not implemented (optional per
// spec.md §4.3).
func uploadBlob(ctx context.Context, pc *Context, auth Authorization, repo string, layer Layer, uploadURL string, result *BlobDescriptor) error {
	desc := layer.Descriptor

	return retry(ctx, func() error {
		rc, err := layer.Content()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to open layer content", err)
		}
		defer rc.Close()

		hasher := desc.Digest.Algorithm().Hash()
		counting := &countingReader{r: rc}
		tee := io.TeeReader(counting, hasher)

		nextURL, err := pc.Registry.PatchUpload(ctx, auth, uploadURL, tee, desc.Size)
		if err != nil {
			return err
		}

		if counting.n != desc.Size {
			return apperrors.New(apperrors.ErrCodeDigestMismatch,
				fmt.Sprintf("declared size %d disagrees with %d bytes streamed for %s", desc.Size, counting.n, desc.Digest))
		}
		computed := digest.NewDigestFromBytes(desc.Digest.Algorithm(), hasher.Sum(nil))
		if computed != desc.Digest {
			return apperrors.New(apperrors.ErrCodeDigestMismatch,
				fmt.Sprintf("computed digest %s disagrees with declared %s", computed, desc.Digest))
		}

		serverDigest, err := pc.Registry.FinalizeUpload(ctx, auth, nextURL, desc.Digest)
		if err != nil {
			return err
		}
		if serverDigest != "" && serverDigest != desc.Digest {
			return apperrors.New(apperrors.ErrCodeDigestMismatch,
				fmt.Sprintf("registry reported digest %s disagrees with %s", serverDigest, desc.Digest))
		}

		blobBytesUploaded.Add(float64(desc.Size))
		blobUploadsTotal.WithLabelValues("uploaded").Inc()
		pc.log(LogInfo, fmt.Sprintf("uploaded %s to %s", desc.Digest, repo))
		*result = desc
		return nil
	})
}

// countingReader tracks the number of bytes read through it, so the upload
// path can catch a content source that streamed fewer or more bytes than
// its descriptor declared.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// retry runs op with exponential backoff (500ms initial, 8s cap, 5 attempts)
// on transient failures, per spec.md §4.3 and §7. Non-retryable errors
// (digest mismatches, 4xx other than 408/429, cancellation) return
// immediately.
func retry(ctx context.Context, op func() error) error {
	backoff := retryInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt == retryMaxAttempts {
			break
		}
		retriesTotal.Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Cancelled(ctx.Err())
		}
		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}

	return apperrors.Wrap(apperrors.ErrCodeNetworkExhausted, "exceeded retry attempts", lastErr)
}

func isRetryable(err error) bool {
	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		return se.Code == apperrors.ErrCodeNetworkTransient
	}
	return false
}
