package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.rateLimiter != nil && !a.rateLimiter.allow(clientKey(r)) {
		a.config.Logger.Warn("rate limit exceeded", "remote", r.RemoteAddr)
		a.writeError(w, r, errors.RateLimited())
		return
	}

	var body api.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.config.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		a.writeError(w, r, errors.InvalidField("body", err.Error()))
		return
	}

	// The caller waits for the tunnel; the coordinator bounds that wait.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	res, err := a.backend.Coordinator.Provision(r.Context(), provision.Request{
		RepoURL: body.RepoURL,
		Kind:    body.Kind,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			a.config.Logger.Info("client left before the sandbox resolved", "remote", r.RemoteAddr)
			return
		}
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.RunResponse{
		ID:        res.ID,
		Kind:      res.Kind,
		Port:      res.Port,
		Address:   res.Address,
		TunnelURL: res.TunnelURL,
		Message:   res.Message,
	})
}

func (a *API) describe(ctx context.Context, sb *sandbox.Sandbox) api.Sandbox {
	out := api.Sandbox{
		ID:        sb.ID,
		Kind:      sb.Kind,
		Port:      sb.Port,
		State:     string(sb.State()),
		CreatedAt: sb.CreatedAt,
		Uptime:    health.FormatDuration(sb.Uptime()),
		Health:    string(health.GetSummary(ctx, sb.ID, a.config.ProbeHost, sb.Port, a.backend.Manager.Runtime())),
	}
	if st, err := a.backend.Coordinator.Status(sb.ID); err == nil {
		out.Request = string(st.State)
		out.RepoURL = st.RepoURL
		out.TunnelURL = st.TunnelURL
	}
	return out
}

func (a *API) handleListSandboxes(w http.ResponseWriter, r *http.Request) {
	list := a.backend.Manager.List()
	out := make([]api.Sandbox, 0, len(list))
	for _, sb := range list {
		out = append(out, a.describe(r.Context(), sb))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetSandbox(w http.ResponseWriter, r *http.Request) {
	sb, err := a.backend.Manager.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.describe(r.Context(), sb))
}

func (a *API) handleDeleteSandbox(w http.ResponseWriter, r *http.Request) {
	sb, err := a.backend.Manager.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.backend.Manager.Teardown(r.Context(), sb, sandbox.ReasonRequested); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := config.ValidateSandboxName(id); err != nil {
		a.writeError(w, r, errors.InvalidField("id", err.Error()))
		return
	}
	if a.backend.Audit == nil {
		a.writeError(w, r, errors.SandboxNotFound(id))
		return
	}

	events, err := a.backend.Audit.Events(id)
	if err != nil {
		a.writeError(w, r, errors.Wrap(errors.KindInternal, "failed to read history", err))
		return
	}
	if len(events) == 0 {
		a.writeError(w, r, errors.SandboxNotFound(id))
		return
	}

	out := make([]api.AuditEvent, len(events))
	for i, ev := range events {
		out[i] = api.AuditEvent{
			Timestamp: ev.Timestamp,
			Type:      string(ev.Type),
			Sandbox:   ev.Sandbox,
			Port:      ev.Port,
			Details:   ev.Details,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleKinds(w http.ResponseWriter, r *http.Request) {
	profiles := a.backend.Manager.Profiles()
	out := make([]api.Kind, 0, len(profiles))
	for _, name := range profiles.Kinds() {
		p := profiles[name]
		out = append(out, api.Kind{
			Name:        name,
			Port:        p.Port,
			Description: p.Description,
			Install:     p.Install,
			Build:       p.Build,
			Run:         p.Run,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	b := a.backend
	writeJSON(w, http.StatusOK, api.Health{
		Status:     "ok",
		Runtime:    b.Manager.Runtime().Name(),
		Sandboxes:  b.Manager.Len(),
		PortsFree:  b.Pool.Free(),
		PortsTotal: b.Pool.Size(),
		Observers:  b.Events.Len(),
		Tunnel:     b.Tunnel,
	})
}
