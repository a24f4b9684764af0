// Package audit provides PDR (Process Decision Record) writing for tickos.
// Every state-mutating control plane call leaves one record.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/store"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store  *store.Store
	logger *slog.Logger
}

// NewPDRWriter creates a new PDR writer. A nil logger disables failure
// logging.
func NewPDRWriter(s *store.Store, logger *slog.Logger) *PDRWriter {
	w := &PDRWriter{store: s}
	if logger != nil {
		w.logger = logger.With("component", "audit")
	}
	return w
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, target, details string) (*models.PDREntry, error) {
	inputsHash := hashInputs(inputs)
	return w.store.WritePDR(action, inputsHash, outcome, target, details)
}

// RecordBestEffort writes a PDR entry and logs, rather than returns, a
// failure. The scheduler operation being audited has already happened.
func (w *PDRWriter) RecordBestEffort(action string, inputs interface{}, outcome, target, details string) {
	if _, err := w.Record(action, inputs, outcome, target, details); err != nil && w.logger != nil {
		w.logger.Warn("audit write failed", "action", action, "target", target, "error", err)
	}
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
