// Package api provides the HTTP binding for SensorCloud's device
// registration service.
//
// It exposes POST /api/v1/register, which runs a report through the
// registry validator and reconciler, and GET /api/v1/health. Response
// envelopes follow the device-facing wire contract: successes carry
// {status: "success", message}, failures carry {status: "error"} with
// either per-field violation lists or a single error string.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
