package handlers

import (
	"net/http"
	"strconv"

	"fleet-backend/internal/realtime"
	"fleet-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type AlertHandler struct {
	Hub *realtime.Hub
}

func NewAlertHandler(hub *realtime.Hub) *AlertHandler {
	return &AlertHandler{Hub: hub}
}

// ListAlerts returns retained alerts, newest first
// GET /api/alerts?all=true
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("all") == "true"
	utils.JSON(w, http.StatusOK, h.Hub.Alerts(includeResolved))
}

// ResolveAlert marks an alert as handled
// POST /api/alerts/{id}/resolve
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	if !h.Hub.ResolveAlert(id) {
		utils.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"id": id, "resolved": true})
}
