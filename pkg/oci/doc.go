// Package oci wires the push package's registry-agnostic core to a real
// OCI Distribution v2 registry: Client implements push.RegistryClient over
// net/http, and DockerCredentialProvider implements push.CredentialProvider
// against the local Docker credential store. It also parses the image
// references the CLI accepts.
//
// # Core Types
//
//   - Client: hand-rolled OCI Distribution v2 wire client (blob HEAD/mount/
//     upload, manifest PUT, WWW-Authenticate challenge parsing)
//   - DockerCredentialProvider: resolves registry credentials from
//     ~/.docker/config.json and any configured credential helper
//   - ParseImageReference: parses a bare image reference into a
//     push.ImageReference, defaulting an untagged reference to "latest"
//   - LayerFromFile: hashes a local layer tarball into a reopenable push.Layer
//
// # Usage
//
//	client := oci.NewClient("ghcr.io", oci.ClientOptions{})
//	creds, err := oci.NewDockerCredentialProvider()
//	if err != nil {
//	    return err
//	}
//	pc := push.NewContext(client, creds, sink, workers)
//	digest, err := push.Push(ctx, pc, req)
package oci
