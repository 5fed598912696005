package handlers

import (
	"net/http"
	"strconv"

	"fleet-backend/internal/models"
	"fleet-backend/internal/services"
	"fleet-backend/pkg/utils"
)

type DeliveryHandler struct {
	Service *services.DeliveryAuditService
}

func NewDeliveryHandler(service *services.DeliveryAuditService) *DeliveryHandler {
	return &DeliveryHandler{Service: service}
}

// ListDeliveries returns the webhook delivery audit log
// GET /api/webhook-deliveries?outcome=&reason=&limit=&offset=
func (h *DeliveryHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.WebhookDeliveryFilter{
		Outcome: q.Get("outcome"),
		Reason:  q.Get("reason"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	deliveries, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		respondLedgerError(w, err, "list webhook deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []*models.WebhookDelivery{}
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}
