// Package api is the operator control plane of the pipeline: pool
// inspection, batch control, artifact status queries and dead-letter
// replay over HTTP. Responses are JSON acknowledgements; the processing
// core never depends on this package.
package api
