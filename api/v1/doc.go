// Package apiv1 embeds the OpenAPI specification of the HTTP API.
package apiv1

import _ "embed"

// Spec contains the OpenAPI 3 JSON document served at /v1/openapi.json. It
// is embedded at compile time so the binary works with scratch-based images.
//
//go:embed openapi.json
var Spec []byte
