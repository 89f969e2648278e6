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
	"context"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
	"github.com/NVIDIA/cloud-native-stack/pkg/push"
)

// DockerCredentialProvider resolves push.Credential values from the local
// Docker credential store (~/.docker/config.json, plus any configured
// credential helper). It implements push.CredentialProvider.
type DockerCredentialProvider struct {
	fn auth.CredentialFunc
}

// NewDockerCredentialProvider opens the local Docker credential store.
func NewDockerCredentialProvider() (*DockerCredentialProvider, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to open docker credential store", err)
	}
	return &DockerCredentialProvider{fn: credentials.Credential(store)}, nil
}

// Credential implements push.CredentialProvider.
func (p *DockerCredentialProvider) Credential(ctx context.Context, host string) (push.Credential, bool, error) {
	cred, err := p.fn(ctx, host)
	if err != nil {
		return push.Credential{}, false, apperrors.Wrap(apperrors.ErrCodeAuthRequired, "failed to resolve credential for "+host, err)
	}
	if cred == auth.EmptyCredential {
		return push.Credential{}, false, nil
	}
	username, password := cred.Username, cred.Password
	if username == "" && cred.RefreshToken != "" {
		// Identity token flow: the registry expects the well-known
		// "<token>" username paired with the refresh token as password.
		username = "<token>"
		password = cred.RefreshToken
	}
	if username == "" && password == "" {
		return push.Credential{}, false, nil
	}
	return push.Credential{Username: username, Password: password}, true, nil
}
