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
	"encoding/base64"
	"fmt"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

// AuthenticatePush obtains one reusable Authorization scoped to
// "push,pull" for ref, or the AuthAnonymous sentinel when the registry
// advertises no auth challenge. It is a singleton per push: callers share
// the returned Step so the probe and token exchange happen exactly once,
// before any push-blob step performs a request (spec.md §4.2, §5).
func AuthenticatePush(ctx context.Context, pc *Context, ref ImageReference) *Step[Authorization] {
	return Start(ctx, pc.Runtime, nil, func(ctx context.Context) (Authorization, error) {
		var auth Authorization
		err := timeSpan(pc.Events, "authenticate-push", func() error {
			a, err := authenticatePush(ctx, pc, ref)
			auth = a
			return err
		})
		return auth, err
	})
}

func authenticatePush(ctx context.Context, pc *Context, ref ImageReference) (Authorization, error) {
	challenge, err := pc.Registry.Probe(ctx, ref.Repository)
	if err != nil {
		return Authorization{}, err
	}
	if challenge == nil {
		pc.log(LogInfo, fmt.Sprintf("%s requires no authentication", ref.Registry))
		return Authorization{}, nil
	}

	scope := fmt.Sprintf("repository:%s:push,pull", ref.Repository)
	cred, haveCred, err := credentialFor(ctx, pc.Credentials, ref.Registry)
	if err != nil {
		return Authorization{}, apperrors.Wrap(apperrors.ErrCodeInternal, "credential lookup failed", err)
	}

	if challenge.Scheme == AuthBasic {
		if !haveCred {
			return Authorization{}, apperrors.New(apperrors.ErrCodeAuthRequired,
				fmt.Sprintf("%s requires credentials for %s", ref.Registry, ref.Repository))
		}
		pc.log(LogInfo, fmt.Sprintf("authenticated against %s via basic auth", ref.Registry))
		return Authorization{Scheme: AuthBasic, Token: basicToken(cred), Scope: scope}, nil
	}

	auth, err := pc.Registry.ExchangeToken(ctx, *challenge, cred, haveCred, scope)
	if err != nil {
		if !haveCred {
			return Authorization{}, apperrors.Wrap(apperrors.ErrCodeAuthRequired,
				fmt.Sprintf("%s requires credentials for %s", ref.Registry, ref.Repository), err)
		}
		return Authorization{}, err
	}

	if auth.Scope != "" && auth.Scope != scope {
		pc.log(LogWarn, fmt.Sprintf("authorization scope narrower than requested: got %q want %q", auth.Scope, scope))
	}
	pc.log(LogInfo, fmt.Sprintf("authenticated against %s", ref.Registry))
	return auth, nil
}

func credentialFor(ctx context.Context, provider CredentialProvider, host string) (Credential, bool, error) {
	if provider == nil {
		return Credential{}, false, nil
	}
	return provider.Credential(ctx, host)
}

// basicToken builds the base64(username:password) payload an
// "Authorization: Basic ..." header carries (RFC 7617 §2).
func basicToken(cred Credential) string {
	return base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
}
