package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printpipe/internal/printer"
)

type StatusChecker interface {
	Addr() string
	Printed() int64
	Health() string
	Status() (*printer.Status, error)
}

// PrinterHandler reports on the network printer behind the scheduler.
type PrinterHandler struct {
	printer StatusChecker
}

func NewPrinterHandler(p StatusChecker) *PrinterHandler {
	return &PrinterHandler{printer: p}
}

func (h *PrinterHandler) GetStatus(c *gin.Context) {
	if h.printer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no network printer configured"})
		return
	}

	status, err := h.printer.Status()
	if status == nil {
		status = &printer.Status{}
	}
	resp := gin.H{
		"addr":    h.printer.Addr(),
		"printed": h.printer.Printed(),
		"health":  h.printer.Health(),
		"status":  status.Summary(),
		"details": status,
	}
	if err != nil {
		resp["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func RegisterPrinterRoutes(r *gin.RouterGroup, h *PrinterHandler) {
	r.GET("/printer/status", h.GetStatus)
}
