package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vadiminshakov/btcsim/internal/domain"
	"go.uber.org/zap"
)

var (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 20 * time.Second
)

// balanceStream pushes balance snapshots as server-sent events. Clients resume from
// Last-Event-ID (or ?last_event_id) after a reconnect.
func (h *handler) balanceStream(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots_disabled", "snapshot store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	lastIndex := h.parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))

	writeRecords := func(records []domain.BalanceSnapshotRecord) error {
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: balance\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastIndex = record.Index
		}
		flusher.Flush()
		return nil
	}

	sendAfter := func() error {
		records, err := h.snapshots.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		return writeRecords(records)
	}

	// nothing is written before the initial load so a failure can still answer 500
	records, err := h.snapshots.SnapshotsAfter(lastIndex)
	if err != nil {
		h.logger.Warn("balance stream initial load", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load snapshots")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if len(records) == 0 && lastIndex == 0 {
		fmt.Fprintf(w, "event: no_data\n")
		fmt.Fprintf(w, "data: {}\n\n")
	}
	if err := writeRecords(records); err != nil {
		h.logger.Warn("balance stream encode", zap.Error(err))
		return
	}

	var wake <-chan domain.BalanceSnapshotRecord
	if h.notifier != nil {
		sub := h.notifier.Subscribe()
		defer h.notifier.Unsubscribe(sub)
		wake = sub
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	poll := time.NewTicker(snapshotPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case record, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if record.Index <= lastIndex {
				continue
			}
			if err := sendAfter(); err != nil {
				h.logger.Warn("balance stream push", zap.Error(err))
			}
		case <-poll.C:
			if err := sendAfter(); err != nil {
				h.logger.Warn("balance stream poll", zap.Error(err))
			}
		}
	}
}

// parseLastEventID prefers the header over the query parameter.
func (h *handler) parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		h.logger.Debug("invalid last event id", zap.String("value", idStr), zap.Error(err))
		return 0
	}

	return id
}
