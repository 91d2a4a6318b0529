// Package httptransport exposes the order engine over HTTP/JSON and
// streams new-order alerts as server-sent events.
package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iliamunaev/orderdesk/internal/apperr"
	"github.com/iliamunaev/orderdesk/internal/model"
	"github.com/iliamunaev/orderdesk/internal/order"
	"github.com/iliamunaev/orderdesk/internal/service/alert"
	"github.com/iliamunaev/orderdesk/internal/service/projector"
	"github.com/iliamunaev/orderdesk/internal/service/transition"
	"github.com/iliamunaev/orderdesk/internal/service/urgency"
)

const keepAliveInterval = 15 * time.Second

type engine interface {
	Orders() []model.Order
	State() order.State
	Buckets(query string) projector.Board
	Search(query string) []model.Order
	Urgency(id string) (urgency.Reading, error)
	Readings() map[string]urgency.Reading
	InFlight(id string) bool
	Apply(ctx context.Context, id string, action model.Action) (model.Order, error)
	RefreshNow(ctx context.Context) error
	Activate(businessID string) error
}

type alertFeed interface {
	Active() []alert.Alert
	Subscribe(buffer int) (<-chan model.NewOrderEvent, func())
}

// Handler handles HTTP requests to the order engine.
type Handler struct {
	engine         engine
	alerts         alertFeed
	requestTimeout time.Duration
	validate       *validator.Validate
	log            *logrus.Entry
}

// New returns a Handler serving eng and alerts.
//
// It panics if eng or alerts is nil. If requestTimeout is non-positive,
// a default timeout is applied.
func New(eng engine, alerts alertFeed, requestTimeout time.Duration, log *logrus.Entry) *Handler {
	if eng == nil {
		panic("httptransport.New: nil engine")
	}
	if alerts == nil {
		panic("httptransport.New: nil alert feed")
	}
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		engine:         eng,
		alerts:         alerts,
		requestTimeout: requestTimeout,
		validate:       validator.New(),
		log:            log.WithField("component", "http"),
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.HandleOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/board", h.HandleBoard).Methods(http.MethodGet)
	r.HandleFunc("/orders/search", h.HandleSearch).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/urgency", h.HandleUrgency).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/{action:accept|reject|dispatch|deliver}", h.HandleAction).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/business", h.HandleBusiness).Methods(http.MethodPut)
	r.HandleFunc("/alerts", h.HandleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/stream", h.HandleAlertStream).Methods(http.MethodGet)
}

// orderView is an order as the dashboard renders it.
type orderView struct {
	model.Order
	Actions  []model.Action   `json:"actions"`
	InFlight bool             `json:"in_flight"`
	Urgency  *urgency.Reading `json:"urgency,omitempty"`
}

type boardView struct {
	Pending    []orderView `json:"pending"`
	Preparing  []orderView `json:"preparing"`
	Delivering []orderView `json:"delivering"`
	Delivered  []orderView `json:"delivered"`
	Cancelled  []orderView `json:"cancelled"`
}

type ordersResponse struct {
	State  order.State `json:"state"`
	Orders []orderView `json:"orders"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleOrders returns the full snapshot with the sync state.
func (h *Handler) HandleOrders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ordersResponse{
		State:  h.engine.State(),
		Orders: h.views(h.engine.Orders()),
	})
}

// HandleBoard returns the stage buckets of the orders matching ?q=.
func (h *Handler) HandleBoard(w http.ResponseWriter, r *http.Request) {
	b := h.engine.Buckets(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, boardView{
		Pending:    h.views(b.Pending),
		Preparing:  h.views(b.Preparing),
		Delivering: h.views(b.Delivering),
		Delivered:  h.views(b.Delivered),
		Cancelled:  h.views(b.Cancelled),
	})
}

// HandleSearch returns the orders matching ?q= in source order.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]orderView{
		"orders": h.views(h.engine.Search(r.URL.Query().Get("q"))),
	})
}

func (h *Handler) HandleUrgency(w http.ResponseWriter, r *http.Request) {
	reading, err := h.engine.Urgency(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// HandleAction runs one workflow action. The response carries the order as
// confirmed by the source, or an error naming the order.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := model.Action(vars["action"])

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	o, err := h.engine.Apply(ctx, vars["id"], action)
	if err != nil {
		writeJSON(w, httpStatus(err), model.ActionResponse{
			Status: "error",
			Action: action,
			Error:  errorPayload(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, model.ActionResponse{
		Status: "ok",
		Action: action,
		Order:  &o,
	})
}

// HandleRefresh fetches the active business now and answers with the new state.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := h.engine.RefreshNow(ctx); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.State())
}

// HandleBusiness switches the active business context.
func (h *Handler) HandleBusiness(w http.ResponseWriter, r *http.Request) {
	var req model.BusinessRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &model.ErrorPayload{Kind: "bad_request", Message: "invalid JSON"})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeJSON(w, http.StatusBadRequest, &model.ErrorPayload{Kind: "bad_request", Message: "invalid JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, &model.ErrorPayload{Kind: "bad_request", Message: "business_id is required"})
		return
	}

	if err := h.engine.Activate(req.BusinessID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.State())
}

func (h *Handler) HandleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]alert.Alert{"alerts": h.alerts.Active()})
}

// HandleAlertStream streams new-order events until the client goes away.
func (h *Handler) HandleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, &model.ErrorPayload{Kind: "internal", Message: "streaming unsupported"})
		return
	}

	events, cancel := h.alerts.Subscribe(0)
	defer cancel()

	// the stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Warn("encode alert")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ev.Type(), ev.OrderID, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) views(orders []model.Order) []orderView {
	readings := h.engine.Readings()
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		v := orderView{
			Order:    o,
			Actions:  transition.Available(o.Status),
			InFlight: h.engine.InFlight(o.ID),
		}
		if r, ok := readings[o.ID]; ok {
			v.Urgency = &r
		}
		out = append(out, v)
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorPayload(err))
}

func errorPayload(err error) *model.ErrorPayload {
	kind := apperr.Kind(err)
	msg := err.Error()
	if _, known := kindToStatus[kind]; !known {
		msg = "internal error"
	}
	return &model.ErrorPayload{Kind: kind, Message: msg}
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
