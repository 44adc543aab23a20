package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/go-chi/chi/v5"

	"github.com/riverbt/nodeflow/internal/engine"
	"github.com/riverbt/nodeflow/internal/supervisor"
	"github.com/riverbt/nodeflow/internal/vts"
	"github.com/riverbt/nodeflow/pkg/bterr"
)

func (a *APIActor) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (a *APIActor) writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (a *APIActor) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *APIActor) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":   "nodeflow backtest control API",
			"version": "1.0.0",
		},
		"servers": []map[string]interface{}{
			{"url": fmt.Sprintf("http://localhost:%d/api/v1", a.config.API.Port)},
		},
		"paths": map[string]interface{}{
			"/health":                    map[string]interface{}{"get": map[string]interface{}{"summary": "health check"}},
			"/strategies":                map[string]interface{}{"post": map[string]interface{}{"summary": "create and build a strategy from a graph document"}},
			"/strategies/{id}/play":      map[string]interface{}{"post": map[string]interface{}{"summary": "start or resume playback"}},
			"/strategies/{id}/pause":     map[string]interface{}{"post": map[string]interface{}{"summary": "pause playback"}},
			"/strategies/{id}/stop":      map[string]interface{}{"post": map[string]interface{}{"summary": "stop playback"}},
			"/strategies/{id}/reset":     map[string]interface{}{"post": map[string]interface{}{"summary": "reset a run to its starting state"}},
			"/strategies/{id}/stats":     map[string]interface{}{"get": map[string]interface{}{"summary": "current virtual trading system snapshot"}},
			"/strategies/{id}/orders":    map[string]interface{}{"get": map[string]interface{}{"summary": "terminal orders recorded for this run"}},
			"/strategies/{id}/positions": map[string]interface{}{"get": map[string]interface{}{"summary": "closed positions recorded for this run"}},
		},
	}
	a.writeJSON(w, spec)
}

type createStrategyRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Graph json.RawMessage `json:"graph"`
}

// handleCreateStrategy asks the supervisor to spawn and build a new
// strategy actor, then waits for it to register itself back with the
// API actor before responding.
func (a *APIActor) handleCreateStrategy(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createStrategyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			a.writeError(w, "id is required", http.StatusBadRequest)
			return
		}

		reply := make(chan error, 1)
		ctx.Send(a.supervisorPID, supervisor.CreateStrategyMsg{
			ID:    req.ID,
			Name:  req.Name,
			Graph: req.Graph,
			Reply: reply,
		})

		select {
		case err := <-reply:
			if err != nil {
				a.writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			a.writeJSON(w, map[string]interface{}{"id": req.ID, "status": "building"})
		case <-time.After(a.config.API.Timeout):
			a.writeError(w, "timed out waiting for supervisor", http.StatusGatewayTimeout)
		}
	}
}

func (a *APIActor) strategyPID(id string) (*actor.PID, bool) {
	pid, ok := a.strategyPIDs[id]
	return pid, ok
}

func (a *APIActor) handlePlay(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.controlCall(ctx, w, r, func(reply chan error) interface{} {
			return engine.Play{Reply: reply}
		})
	}
}

func (a *APIActor) handlePause(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.controlCall(ctx, w, r, func(reply chan error) interface{} {
			return engine.Pause{Reply: reply}
		})
	}
}

func (a *APIActor) handleStop(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.controlCall(ctx, w, r, func(reply chan error) interface{} {
			return engine.Stop{Reply: reply}
		})
	}
}

func (a *APIActor) handleReset(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.controlCall(ctx, w, r, func(reply chan error) interface{} {
			return engine.ResetRun{Reply: reply}
		})
	}
}

// controlCall resolves the {id} strategy PID, sends the message built by
// newMsg, and waits on its Reply channel within the configured timeout.
func (a *APIActor) controlCall(ctx *actor.Context, w http.ResponseWriter, r *http.Request, newMsg func(chan error) interface{}) {
	id := chi.URLParam(r, "id")
	pid, ok := a.strategyPID(id)
	if !ok {
		a.writeError(w, bterr.ErrStrategyNotFound.Error(), http.StatusNotFound)
		return
	}

	reply := make(chan error, 1)
	ctx.Send(pid, newMsg(reply))

	select {
	case err := <-reply:
		if err != nil {
			a.writeError(w, err.Error(), http.StatusConflict)
			return
		}
		a.writeJSON(w, map[string]interface{}{"id": id, "status": "ok"})
	case <-time.After(a.config.API.Timeout):
		a.writeError(w, "timed out waiting for strategy", http.StatusGatewayTimeout)
	}
}

func (a *APIActor) handleGetStats(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		pid, ok := a.strategyPID(id)
		if !ok {
			a.writeError(w, bterr.ErrStrategyNotFound.Error(), http.StatusNotFound)
			return
		}

		reply := make(chan vts.Snapshot, 1)
		ctx.Send(pid, engine.GetStats{Reply: reply})

		select {
		case snap := <-reply:
			a.writeJSON(w, snap)
		case <-time.After(a.config.API.Timeout):
			a.writeError(w, "timed out waiting for strategy", http.StatusGatewayTimeout)
		}
	}
}

func (a *APIActor) handleGetHistoryOrders(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if a.db == nil {
			a.writeJSON(w, []interface{}{})
			return
		}
		orders, err := a.db.HistoryOrders(id)
		if err != nil {
			a.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, orders)
	}
}

func (a *APIActor) handleGetHistoryPositions(ctx *actor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if a.db == nil {
			a.writeJSON(w, []interface{}{})
			return
		}
		positions, err := a.db.HistoryPositions(id)
		if err != nil {
			a.writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, positions)
	}
}
