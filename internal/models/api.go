package models

type ResolveRequest struct {
	Query       string `json:"query" binding:"required"`
	RequesterID string `json:"requester_id"`
	SessionID   string `json:"session_id"`
}

type ResolveResponse struct {
	Answer        string   `json:"answer"`
	Source        string   `json:"source"`
	Confidence    float64  `json:"confidence"`
	Resolution    string   `json:"resolution"`
	SafetyLevel   string   `json:"safety_level"`
	Warning       string   `json:"warning,omitempty"`
	RequiredTools []string `json:"required_tools,omitempty"`
	GapReason     string   `json:"gap_reason,omitempty"`
	ResponseTime  int      `json:"response_time_ms"`
	CorrelationID string   `json:"correlation_id"`
}

type ContextUpdateRequest struct {
	RequesterID string            `json:"requester_id" binding:"required"`
	SkillLevel  string            `json:"skill_level"`
	Preferences map[string]string `json:"preferences"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
