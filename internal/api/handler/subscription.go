package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skywatch/skywatch/internal/alert"
	"github.com/skywatch/skywatch/internal/api/models"
	"github.com/skywatch/skywatch/internal/api/response"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/internal/subscription"
)

// SubscriptionHandler implements the subscribe/unsubscribe/prefs/history/test
// operations against the SubscriptionRegistry and AlertDispatcher.
type SubscriptionHandler struct {
	Registry   *subscription.Registry
	Dispatcher *alert.Dispatcher
}

// Subscribe handles POST /v1/subscriptions.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "malformed request body", nil)
		return
	}
	if req.SubscriberID == "" {
		response.BadRequest(w, r, "subscriberId is required", nil)
		return
	}
	if req.Location.RadiusKm <= 0 || req.Location.RadiusKm > 100 {
		response.BadRequest(w, r, "location.radiusKm must be in (0, 100]", nil)
		return
	}
	if req.Location.Lat < -90 || req.Location.Lat > 90 || req.Location.Lng < -180 || req.Location.Lng > 180 {
		response.BadRequest(w, r, "location.lat/lng out of range", nil)
		return
	}

	loc := subscription.Location{Lat: req.Location.Lat, Lng: req.Location.Lng, RadiusKm: req.Location.RadiusKm}
	prefs := toPrefs(req.Prefs)

	sub := h.Registry.Subscribe(req.SubscriberID, loc, prefs)
	response.Created(w, r, "/v1/subscriptions/"+sub.ID, toSubscriptionResponse(sub))
}

// Unsubscribe handles DELETE /v1/subscriptions/{subscriberId}.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")
	h.Registry.Unsubscribe(id)
	response.NoContent(w, r)
}

// UpdatePrefs handles PUT /v1/subscriptions/{subscriberId}/prefs.
func (h *SubscriptionHandler) UpdatePrefs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	var req models.PrefsPatchInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "malformed request body", nil)
		return
	}

	patch := subscription.PrefsPatch{Enabled: req.Enabled}
	if req.AQIThresholds != nil {
		patch.AQIThresholds = &subscription.AQIThresholds{
			Warning:   req.AQIThresholds.Warning,
			Critical:  req.AQIThresholds.Critical,
			Emergency: req.AQIThresholds.Emergency,
		}
	}
	if req.PerPollutantThresholds != nil {
		patch.PerPollutantThresholds = toPollutantThresholds(req.PerPollutantThresholds)
	}
	if req.Channels != nil {
		patch.Channels = toChannels(req.Channels)
	}

	sub, err := h.Registry.UpdatePrefs(id, patch)
	if err != nil {
		writeSubscriberError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toSubscriptionResponse(sub))
}

// History handles GET /v1/subscriptions/{subscriberId}/history?limit=.
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	if _, err := h.Registry.Get(id); err != nil {
		writeSubscriberError(w, r, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.BadRequest(w, r, "invalid query parameter \"limit\"", nil)
			return
		}
		limit = v
	}

	records := h.Dispatcher.HistoryFor(id, limit)
	resp := models.HistoryResponse{SubscriberID: id, Records: toDispatchRecordModels(records)}
	response.JSON(w, r, http.StatusOK, resp)
}

// Test handles POST /v1/subscriptions/{subscriberId}/test.
func (h *SubscriptionHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	sub, err := h.Registry.Get(id)
	if err != nil {
		writeSubscriberError(w, r, err)
		return
	}

	now := time.Now()
	h.Dispatcher.Test(r.Context(), sub, now)

	response.JSON(w, r, http.StatusOK, models.TestAlertResponse{
		SubscriberID: id,
		Dispatched:   true,
		At:           models.Timestamp(now),
	})
}

func writeSubscriberError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, subscription.ErrNotFound) {
		response.NotFound(w, r, "subscriber not found")
		return
	}
	response.InternalError(w, r, "subscription operation failed")
}

func toPrefs(in models.PrefsInput) subscription.Prefs {
	return subscription.Prefs{
		AQIThresholds: subscription.AQIThresholds{
			Warning:   in.AQIThresholds.Warning,
			Critical:  in.AQIThresholds.Critical,
			Emergency: in.AQIThresholds.Emergency,
		},
		PerPollutantThresholds: toPollutantThresholds(in.PerPollutantThresholds),
		Channels:               toChannels(in.Channels),
		Enabled:                in.Enabled,
	}
}

func toPollutantThresholds(in map[string]models.PollutantThresholdInput) map[aqi.Pollutant]subscription.PollutantThreshold {
	if in == nil {
		return nil
	}
	out := make(map[aqi.Pollutant]subscription.PollutantThreshold, len(in))
	for k, v := range in {
		out[aqi.Pollutant(k)] = subscription.PollutantThreshold{Warning: v.Warning, Critical: v.Critical}
	}
	return out
}

func toChannels(in map[string]bool) map[subscription.Channel]bool {
	if in == nil {
		return nil
	}
	out := make(map[subscription.Channel]bool, len(in))
	for k, v := range in {
		out[subscription.Channel(k)] = v
	}
	return out
}

func toSubscriptionResponse(sub *subscription.Subscriber) models.SubscriptionResponse {
	resp := models.SubscriptionResponse{
		SubscriberID: sub.ID,
		Location: models.LocationInput{
			Lat:      sub.Location.Lat,
			Lng:      sub.Location.Lng,
			RadiusKm: sub.Location.RadiusKm,
		},
		Prefs: models.PrefsInput{
			AQIThresholds: models.AQIThresholdsInput{
				Warning:   sub.Prefs.AQIThresholds.Warning,
				Critical:  sub.Prefs.AQIThresholds.Critical,
				Emergency: sub.Prefs.AQIThresholds.Emergency,
			},
			Enabled: sub.Prefs.Enabled,
		},
	}

	if len(sub.Prefs.PerPollutantThresholds) > 0 {
		resp.Prefs.PerPollutantThresholds = make(map[string]models.PollutantThresholdInput, len(sub.Prefs.PerPollutantThresholds))
		for k, v := range sub.Prefs.PerPollutantThresholds {
			resp.Prefs.PerPollutantThresholds[string(k)] = models.PollutantThresholdInput{Warning: v.Warning, Critical: v.Critical}
		}
	}
	if len(sub.Prefs.Channels) > 0 {
		resp.Prefs.Channels = make(map[string]bool, len(sub.Prefs.Channels))
		for k, v := range sub.Prefs.Channels {
			resp.Prefs.Channels[string(k)] = v
		}
	}
	if !sub.LastDispatchAt.IsZero() {
		t := models.Timestamp(sub.LastDispatchAt)
		resp.LastDispatchAt = &t
	}

	return resp
}

func toDispatchRecordModels(records []alert.DispatchRecord) []models.DispatchRecord {
	out := make([]models.DispatchRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, models.DispatchRecord{
			SubscriberID: rec.SubscriberID,
			Alerts:       toAlertModels(rec.Alerts),
			At:           models.Timestamp(rec.At),
		})
	}
	return out
}
