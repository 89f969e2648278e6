/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-native-stack/pkg/defaults"
	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
	"github.com/NVIDIA/cloud-native-stack/pkg/oci"
	"github.com/NVIDIA/cloud-native-stack/pkg/push"
)

func pushCmd() *cli.Command {
	return &cli.Command{
		Name:                  "push",
		EnableShellCompletion: true,
		Usage:                 "Push a container image to an OCI-compliant registry",
		Description: `Assemble and push a container image from local layer tarballs and
push it to an OCI Distribution v2 registry, tagging it under one or more
tags. Already-present blobs are skipped entirely. No cross-repository
mount is attempted: there is no option naming a source repository, so base
layers are uploaded the same way as application layers.

# Examples

  eidos push --image ghcr.io/nvidia/eidos:v1.0.0 \
    --base-layer base.tar.gz \
    --app-layer app.tar.gz \
    --entrypoint /bin/eidos`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Usage:    "destination image reference (registry/repository[:tag])",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "additional tag to publish the image under (repeatable); the --image tag is always included",
			},
			&cli.StringSliceFlag{
				Name:  "base-layer",
				Usage: "path to a gzip-compressed tarball to push as a base layer (repeatable, order preserved)",
			},
			&cli.StringSliceFlag{
				Name:  "app-layer",
				Usage: "path to a gzip-compressed tarball to push as an application layer (repeatable, order preserved)",
			},
			&cli.StringSliceFlag{
				Name:  "entrypoint",
				Usage: "container entrypoint (repeatable, order preserved)",
			},
			&cli.StringSliceFlag{
				Name:  "cmd",
				Usage: "container default command (repeatable, order preserved)",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "environment variable in KEY=VALUE form (repeatable)",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "container working directory",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "container user",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "manifest format: docker or oci",
				Value: "docker",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "maximum concurrent step bodies (0 uses the number of CPUs)",
			},
			&cli.IntFlag{
				Name:  "max-conns-per-host",
				Usage: "maximum concurrent connections to the destination registry (0 for no limit)",
			},
			&cli.Float64Flag{
				Name:  "rate-limit",
				Usage: "maximum outbound requests per second to the destination registry (0 disables throttling)",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "connect to the registry over plain HTTP instead of HTTPS",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "skip TLS certificate verification",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall deadline for the push",
				Value: defaults.CLIPushTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref, err := oci.ParseImageReference(cmd.String("image"))
			if err != nil {
				return err
			}

			tags := cmd.StringSlice("tag")
			if ref.Tag != "" {
				tags = append([]string{ref.Tag}, tags...)
			}
			if len(tags) == 0 {
				return apperrors.New(apperrors.ErrCodeInvalidRequest, "no tag resolved from --image or --tag")
			}

			format, err := parseManifestFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			baseLayers, err := loadLayers(cmd.StringSlice("base-layer"), push.LayerBase)
			if err != nil {
				return err
			}
			appLayers, err := loadLayers(cmd.StringSlice("app-layer"), push.LayerApplication)
			if err != nil {
				return err
			}

			env, err := parseEnv(cmd.StringSlice("env"))
			if err != nil {
				return err
			}

			req := push.Request{
				Reference:  ref,
				BaseLayers: baseLayers,
				AppLayers:  appLayers,
				Config: push.ContainerConfig{
					Entrypoint: cmd.StringSlice("entrypoint"),
					Cmd:        cmd.StringSlice("cmd"),
					Env:        env,
					WorkingDir: cmd.String("workdir"),
					User:       cmd.String("user"),
				},
				Tags:   tags,
				Format: format,
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			client := oci.NewClient(ref.Registry, oci.ClientOptions{
				PlainHTTP:         cmd.Bool("plain-http"),
				InsecureTLS:       cmd.Bool("insecure-tls"),
				MaxConnsPerHost:   int(cmd.Int("max-conns-per-host")),
				RequestsPerSecond: cmd.Float64("rate-limit"),
			})
			creds, err := oci.NewDockerCredentialProvider()
			if err != nil {
				return err
			}

			pc := push.NewContext(client, creds, push.SlogSink{}, int(cmd.Int("workers")))

			dg, err := push.Push(ctx, pc, req)
			if err != nil {
				return err
			}

			slog.Info("push complete", "reference", ref.String(), "digest", dg, "tags", tags)
			fmt.Println(dg)
			return nil
		},
	}
}

func parseManifestFormat(s string) (push.ManifestFormat, error) {
	switch s {
	case "docker", "":
		return push.FormatDockerV2S2, nil
	case "oci":
		return push.FormatOCI, nil
	default:
		return 0, apperrors.New(apperrors.ErrCodeInvalidRequest, "unknown manifest format: "+s)
	}
}

func loadLayers(paths []string, kind push.LayerKind) ([]push.Layer, error) {
	layers := make([]push.Layer, 0, len(paths))
	for _, p := range paths {
		layer, err := oci.LayerFromFile(p, kind)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func parseEnv(pairs []string) ([]string, error) {
	for _, p := range pairs {
		if !containsEquals(p) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "invalid --env value (expected KEY=VALUE): "+p)
		}
	}
	return pairs, nil
}

func containsEquals(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return true
		}
	}
	return false
}
