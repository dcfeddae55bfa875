// Package webhook delivers finished game results to the external points service.
//
// Every delivery is a JSON POST signed with HMAC-SHA256 over the exact body
// bytes, hex encoded in the X-Webhook-Signature header. Receivers verify with:
//
//	ok := webhook.Verify(body, secret, r.Header.Get(webhook.HeaderSignature))
//
// Dispatcher queues results in a bounded channel drained by worker goroutines,
// so game requests never wait on the network. Transient failures (network
// errors, 5xx, 408, 429) are retried with jittered exponential backoff; a 2xx
// reply whose body says {"success": false} counts as a rejection and is not
// retried.
package webhook
