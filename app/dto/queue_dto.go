package dto

// QueueStatsResponse is a point-in-time snapshot of one queue
type QueueStatsResponse struct {
	QueueName string `json:"queue_name"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
	Paused    bool   `json:"paused"`
}

// CampaignProgressResponse summarizes a batch of campaign/broadcast jobs
type CampaignProgressResponse struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	Progress  int    `json:"progress"`
}

// CleanQueueRequest triggers explicit retention enforcement on one queue
type CleanQueueRequest struct {
	GracePeriodMs int64  `json:"grace_period_ms" validate:"min=0"`
	State         string `json:"state" validate:"required,oneof=completed failed"`
}

// CleanQueueResponse reports how many jobs were removed
type CleanQueueResponse struct {
	Removed int `json:"removed"`
}
