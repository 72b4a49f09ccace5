package ipc

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SiteStatus is one site's routing totals over the wire.
type SiteStatus struct {
	Site      string `json:"site"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Stalled   int64  `json:"stalled"`
}

// StatusResponse represents combined daemon/router status information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	LockPath      string         `json:"lock_path"`
	JournalDBPath string         `json:"journal_db_path"`
	AuditLogPath  string         `json:"audit_log_path"`
	Processed     int64          `json:"processed"`
	Failed        int64          `json:"failed"`
	Stalled       int64          `json:"stalled"`
	JobStats      map[string]int `json:"job_stats"`
	Sites         []SiteStatus   `json:"sites"`
}

// HistoryRequest lists recent journal jobs, optionally filtered.
type HistoryRequest struct {
	Limit int    `json:"limit"`
	Site  string `json:"site"`
	State string `json:"state"`
}

// JobRecord is one journal row over the wire.
type JobRecord struct {
	ID           int64  `json:"id"`
	Site         string `json:"site"`
	ScanFile     string `json:"scan_file"`
	PrintID      string `json:"print_id"`
	Printer      string `json:"printer"`
	Copies       int    `json:"copies"`
	SpoolerJobID string `json:"spooler_job_id"`
	State        string `json:"state"`
	ErrorMessage string `json:"error_message"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// HistoryResponse contains recent journal jobs.
type HistoryResponse struct {
	Jobs []JobRecord `json:"jobs"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
