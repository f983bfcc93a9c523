package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// handleRegister accepts a device registration report, validates it and
// runs it through the reconciler.
//
// Responses follow the device-facing wire contract:
//   - 400 {status, <field>: [messages]}: one or more report fields invalid
//   - 400 {status, error}: count over the ceiling, or a storage failure
//   - 403 {status, error}: pin does not match the registered device
//   - 200 {status, message}: registered (new record or version) or updated
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var report registry.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := registry.ValidateReport(report, s.regCfg.MaxCount); err != nil {
		var fieldErrs registry.FieldErrors
		if errors.As(err, &fieldErrs) {
			writeFieldErrors(w, fieldErrs)
			return
		}
		// Count over the ceiling.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.regCfg.ReconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.reconcileTimeout())
		defer cancel()
	}

	outcome, err := s.reconciler.Reconcile(ctx, report)
	if err != nil {
		s.writeReconcileError(w, r, report.DeviceID(), err)
		return
	}

	message := "device registered"
	if outcome.Kind == registry.OutcomeUpdated {
		message = "device updated"
	}
	writeSuccess(w, message)
}

// writeReconcileError maps reconciliation errors onto the wire contract.
func (s *Server) writeReconcileError(w http.ResponseWriter, r *http.Request, device string, err error) {
	if errors.Is(err, registry.ErrPinMismatch) {
		writeError(w, http.StatusForbidden, "pin does not match registered device")
		return
	}

	// Storage failures: log the cause, return a generic message so store
	// internals never reach the device.
	s.logger.Error("registration failed",
		"device", device,
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeError(w, http.StatusBadRequest, "registration failed")
}

// reconcileTimeout returns the configured reconcile timeout as a Duration.
func (s *Server) reconcileTimeout() time.Duration {
	return time.Duration(s.regCfg.ReconcileTimeout) * time.Second
}
