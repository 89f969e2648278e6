// Package cli implements the command-line interface for the Cloud Native Stack (CNS) eidos tool.
//
// # Overview
//
// The eidos CLI pushes locally-built container image layers to an
// OCI-compliant registry: it assembles a push.Request from flags and drives
// it through the pkg/push orchestration core against a real registry
// (pkg/oci.Client).
//
// # Commands
//
// push - Push a container image:
//
//	eidos push --image ghcr.io/nvidia/eidos:v1.0.0 \
//	  --base-layer base.tar.gz --app-layer app.tar.gz \
//	  --entrypoint /bin/eidos
//
// # Global Flags
//
//	--log-level  Log level: debug, info, warn, error (default: info)
//
// # Environment Variables
//
//	LOG_LEVEL  Set logging verbosity (debug, info, warn, error)
//
// # Exit Codes
//
//	0  Success
//	1  General error (invalid arguments, execution failure, registry rejection)
//
// # Architecture
//
// The CLI uses the urfave/cli/v3 framework and delegates to specialized packages:
//   - pkg/push - registry-agnostic push orchestration core
//   - pkg/oci - OCI Distribution v2 wire client and credential resolution
//   - pkg/logging - structured logging
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/cloud-native-stack/pkg/cli.version=1.0.0'"
package cli
