package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Sessions      int               `json:"sessions"`
}

// EngineInfo describes the remote analysis engine.
type EngineInfo interface {
	Name() string
	Model() string
}

type HealthHandler struct {
	engine    EngineInfo
	styles    StyleDefaults
	sessions  SessionStore
	hasKey    bool
	version   string
	startTime time.Time
}

func NewHealthHandler(engine EngineInfo, styles StyleDefaults, sessions SessionStore, hasKey bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		styles:    styles,
		sessions:  sessions,
		hasKey:    hasKey,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if h.engine != nil {
		checks["engine"] = h.engine.Name() + "/" + h.engine.Model()
	} else {
		checks["engine"] = "not_configured"
		status = "degraded"
	}

	// Without a server key every submission must carry its own.
	if h.hasKey {
		checks["default_api_key"] = "configured"
	} else {
		checks["default_api_key"] = "not_configured"
	}

	if h.styles != nil {
		checks["style_defaults"] = h.styles.Source()
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}

	WriteJSON(w, http.StatusOK, resp)
}
