// Package lib holds the clients and helpers that sit below the service
// layer: background jobs on asynq, outbound email through Resend, the
// Microsoft Teams and OpsGenie clients, repository providers, the SQS
// forwarder, rate limiting and prometheus collectors.
package lib
