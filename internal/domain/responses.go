package domain

// PackageResponse is the JSON form of a resolved package reference
type PackageResponse struct {
	Package string `json:"package"`
	URL     string `json:"url"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string      `json:"status"`
	PackageURL     string      `json:"package_url"`
	PackageLists   []string    `json:"package_lists"`
	LoadedAt       string      `json:"loaded_at"`
	SupportedCount int         `json:"supported_count"`
	TemplateCache  *CacheStats `json:"template_cache,omitempty"`
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	HitRate  float64 `json:"hit_rate"`
}

// PingResponse represents the ping response
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Status    int           `json:"status"`
	Title     string        `json:"title"`
	Code      string        `json:"code,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Errors    []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail provides detailed error information
type ErrorDetail struct {
	Message  string      `json:"message"`
	Location string      `json:"location,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}
