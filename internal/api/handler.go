package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-lifeline/internal/feed"
	"github.com/mr1hm/go-lifeline/internal/location"
	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/repository"
	"github.com/mr1hm/go-lifeline/internal/triage"
)

// UserHeader carries the caller's user id on ownership-checked requests.
const UserHeader = "X-User-Id"

var streamKeepAlive = 15 * time.Second

// Retriager accepts stored alerts whose triage fell back to Unknown.
type Retriager interface {
	Enqueue(a *models.Alert) bool
}

type Hooks struct {
	OnIngest func(a *models.Alert)
}

type Handler struct {
	repo      repository.AlertRepository
	alerts    *feed.Broadcaster[*models.Alert]
	retriager Retriager
	hooks     Hooks
}

// NewHandler builds the alert API. alerts and retriager may be nil.
func NewHandler(repo repository.AlertRepository, alerts *feed.Broadcaster[*models.Alert], retriager Retriager, hooks Hooks) *Handler {
	return &Handler{
		repo:      repo,
		alerts:    alerts,
		retriager: retriager,
		hooks:     hooks,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/alerts", h.createAlert)
	r.GET("/api/alerts", h.getAlerts)
	r.GET("/api/alerts/stream", h.streamAlerts)
	r.GET("/api/alerts/:id", h.getAlert)
	r.PATCH("/api/alerts/:id/status", h.updateStatus)
	r.DELETE("/api/alerts/:id", h.completeAlert)
	r.GET("/health", h.health)
}

func (h *Handler) createAlert(c *gin.Context) {
	var alert models.Alert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert body"})
		return
	}
	if err := normalizeIncoming(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.repo.Add(c.Request.Context(), &alert)
	if err != nil {
		slog.Error("error adding alert", "client_id", alert.ClientID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store alert"})
		return
	}

	if !created {
		slog.Debug("duplicate alert", "client_id", alert.ClientID, "id", alert.ID)
		c.JSON(http.StatusOK, gin.H{"id": alert.ID})
		return
	}

	slog.Info("alert received", "id", alert.ID, "category", alert.Category, "urgency", alert.Urgency)
	if h.hooks.OnIngest != nil {
		h.hooks.OnIngest(&alert)
	}
	h.publish(&alert)
	if h.retriager != nil && alert.Triage().Degraded() {
		h.retriager.Enqueue(&alert)
	}

	c.JSON(http.StatusCreated, gin.H{"id": alert.ID})
}

// normalizeIncoming fills defaults on a client-submitted alert and rejects
// values that cannot be stored.
func normalizeIncoming(a *models.Alert) error {
	a.ID = ""
	a.ReceivedAt = time.Time{}
	a.Status = models.AlertStatusOpen
	a.Message = triage.MessageOrDefault(a.Message)

	if strings.TrimSpace(a.User) == "" {
		return errors.New("user is required")
	}
	if a.Category == "" {
		a.Category = models.LabelUnknown
	}
	if a.Urgency == "" {
		a.Urgency = models.LabelUnknown
	}
	for _, conf := range []*float64{a.CategoryConfidence, a.UrgencyConfidence} {
		if conf != nil && (*conf < 0 || *conf > 1) {
			return errors.New("confidence must be between 0 and 1")
		}
	}

	switch a.Location.Source {
	case "", models.LocationUnavailable:
		a.Location = models.UnavailableLocation()
	case models.LocationFix, models.LocationLastKnown:
		if a.Location.Coords == nil {
			return errors.New("location coordinates missing")
		}
		if err := location.Validate(*a.Location.Coords); err != nil {
			return err
		}
	default:
		return errors.New("unknown location source")
	}
	return nil
}

func (h *Handler) getAlerts(c *gin.Context) {
	filter := repository.Filter{
		Limit: repository.DefaultLimit,
	}

	if cat := c.Query("category"); cat != "" {
		filter.Category = &cat
	}
	if u := c.Query("urgency"); u != "" {
		filter.Urgency = &u
	}
	if s := c.Query("status"); s != "" {
		status := models.AlertStatus(strings.ToLower(s))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = &status
	}
	if uid := c.Query("user_id"); uid != "" {
		filter.UserID = &uid
	}
	if s := c.Query("since"); s != "" {
		if t, ok := parseSince(s); ok {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= repository.MaxLimit {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off > 0 {
			filter.Offset = off
		}
	}
	if d := c.Query("degraded"); d != "" {
		filter.Degraded, _ = strconv.ParseBool(d)
	}

	alerts, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}

	fc := toGeoJSON(alerts)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func parseSince(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *Handler) getAlert(c *gin.Context) {
	alert, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type statusRequest struct {
	Status models.AlertStatus `json:"status" binding:"required"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	// Completion goes through DELETE so the owner check applies.
	if !req.Status.Valid() || req.Status == models.AlertStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	id := c.Param("id")
	if err := h.repo.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		h.writeRepoError(c, err)
		return
	}

	h.publishByID(c, id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func (h *Handler) completeAlert(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserHeader))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + UserHeader + " header"})
		return
	}

	id := c.Param("id")
	if err := h.repo.Complete(c.Request.Context(), id, userID); err != nil {
		h.writeRepoError(c, err)
		return
	}

	h.publishByID(c, id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.AlertStatusCompleted})
}

func (h *Handler) streamAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
		return
	}

	subID, updates := h.alerts.Subscribe()
	defer h.alerts.Unsubscribe(subID)

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	// Send headers now so clients see the stream open before the first event.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case a, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("alert", a)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		}
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) publish(a *models.Alert) {
	if h.alerts != nil {
		h.alerts.Broadcast(a)
	}
}

func (h *Handler) publishByID(c *gin.Context, id string) {
	if h.alerts == nil {
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		slog.Warn("error reloading alert for feed", "id", id, "error", err)
		return
	}
	h.publish(a)
}

func (h *Handler) writeRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case errors.Is(err, repository.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "alert belongs to another user"})
	default:
		slog.Error("repository error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
