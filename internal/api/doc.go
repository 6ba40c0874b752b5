// Package api exposes the job queue over HTTP. Handlers translate requests
// into service.JobService calls and map service errors to status codes with
// MapErrorToStatusCode, so clients never see internal error text.
//
// Job state is observed by polling GET /jobs/{jobId}. GET
// /jobs/{jobId}/events streams the same snapshots as Server-Sent Events
// until the job reaches a terminal state.
package api
