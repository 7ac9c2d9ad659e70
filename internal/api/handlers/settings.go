package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printpipe/internal/config"
)

type SettingsHandler struct {
	config *config.Config
}

// ServerConfigResponse is the running configuration without secrets.
type ServerConfigResponse struct {
	Port                 int     `json:"port"`
	ReadTimeout          string  `json:"read_timeout"`
	WriteTimeout         string  `json:"write_timeout"`
	SubmitRate           float64 `json:"submit_rate"`
	SubmitBurst          int     `json:"submit_burst"`
	OutputDir            string  `json:"output_dir"`
	Backend              string  `json:"backend"`
	PrinterAddr          string  `json:"printer_addr,omitempty"`
	Format               string  `json:"format,omitempty"`
	WebhookEndpoints     int     `json:"webhook_endpoints"`
	JournalEnabled       bool    `json:"journal_enabled"`
	JournalPath          string  `json:"journal_path,omitempty"`
	JournalFlushInterval string  `json:"journal_flush_interval,omitempty"`
	JournalRetention     string  `json:"journal_retention,omitempty"`
	AuthEnabled          bool    `json:"auth_enabled"`
	LogLevel             string  `json:"log_level"`
	LogFormat            string  `json:"log_format"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	resp := ServerConfigResponse{
		Port:             h.config.Server.Port,
		ReadTimeout:      h.config.Server.ReadTimeout.String(),
		WriteTimeout:     h.config.Server.WriteTimeout.String(),
		SubmitRate:       h.config.Server.SubmitRate,
		SubmitBurst:      h.config.Server.SubmitBurst,
		OutputDir:        h.config.Output.Dir,
		Backend:          h.config.Output.Backend,
		WebhookEndpoints: len(h.config.Webhooks.Endpoints),
		JournalEnabled:   h.config.Journal.Enabled,
		AuthEnabled:      h.config.Auth.Enabled,
		LogLevel:         h.config.Logging.Level,
		LogFormat:        h.config.Logging.Format,
	}

	if h.config.Output.Backend == "network" {
		resp.PrinterAddr = h.config.Output.PrinterAddr
		resp.Format = h.config.Output.Format
	}

	if h.config.Journal.Enabled {
		resp.JournalPath = h.config.Journal.Path
		resp.JournalFlushInterval = h.config.Journal.FlushInterval.String()
		resp.JournalRetention = h.config.Journal.Retention.String()
	}

	c.JSON(http.StatusOK, resp)
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/settings/server", h.GetServerConfig)
}
