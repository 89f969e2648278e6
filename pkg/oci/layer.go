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
	"io"
	"os"

	digest "github.com/opencontainers/go-digest"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
	"github.com/NVIDIA/cloud-native-stack/pkg/push"
)

// LayerFromFile builds a push.Layer around a local gzip-compressed tarball,
// hashing it once up front so the returned Layer's BlobDescriptor is known
// before any upload begins. The returned Content source reopens path on
// every call, so PushBlob's retry path always gets a fresh reader.
func LayerFromFile(path string, kind push.LayerKind) (push.Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return push.Layer{}, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to open layer file "+path, err)
	}
	defer f.Close()

	dg, size, err := digestFile(f)
	if err != nil {
		return push.Layer{}, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to hash layer file "+path, err)
	}

	return push.Layer{
		Descriptor: push.BlobDescriptor{Digest: dg, Size: size},
		Content: func() (io.ReadCloser, error) {
			r, err := os.Open(path)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to reopen layer file "+path, err)
			}
			return r, nil
		},
		Kind: kind,
	}, nil
}

func digestFile(f *os.File) (digest.Digest, int64, error) {
	digester := digest.SHA256.Digester()
	size, err := io.Copy(digester.Hash(), f)
	if err != nil {
		return "", 0, err
	}
	return digester.Digest(), size, nil
}
