package model

import "strings"

const PluginAmazonSQS = "amazon-sqs"

// SQSConfig is the per-project configuration of the Amazon SQS data
// forwarding plugin.
type SQSConfig struct {
	QueueURL       string `json:"queue_url"`
	Region         string `json:"region"`
	AccessKey      string `json:"access_key"`
	SecretKey      string `json:"secret_key"`
	MessageGroupID string `json:"message_group_id,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
}

// IsFIFO reports whether the queue is a FIFO queue.
func (c SQSConfig) IsFIFO() bool {
	return strings.HasSuffix(c.QueueURL, ".fifo")
}

type ProjectPlugin struct {
	ProjectID int64          `json:"project_id"`
	Plugin    string         `json:"plugin"`
	Enabled   bool           `json:"enabled"`
	Config    map[string]any `json:"config"`
}
