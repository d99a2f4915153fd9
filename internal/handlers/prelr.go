package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chandanyadavsde/vms-v2/internal/middleware"
	"github.com/chandanyadavsde/vms-v2/internal/netsuite"
	"github.com/chandanyadavsde/vms-v2/internal/services/prelr"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps request bodies on write routes.
const maxBodyBytes = 1 << 20

// harvestIDs runs phase one and, when new ids were queued, phase two.
func (r *Router) harvestIDs(w http.ResponseWriter, req *http.Request) {
	// a dropped client must not abort a sync halfway
	ctx := context.WithoutCancel(req.Context())

	res, err := r.sync.HarvestIDs(ctx)
	if err != nil {
		r.fail(w, req, err, "Failed to fetch / store Pre-LR IDs")
		return
	}

	message := "No new Pre-LRs."
	if res.Imported > 0 {
		message = "IDs stored and details synced."
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"imported": res.Imported,
		"synced":   res.Synced,
		"message":  message,
	})
}

func (r *Router) syncDetails(w http.ResponseWriter, req *http.Request) {
	ctx := context.WithoutCancel(req.Context())

	processed, err := r.sync.SyncDetails(ctx)
	if err != nil {
		r.fail(w, req, err, "Failed to sync Pre-LR details")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"processed": processed,
		"message":   "Detail sync complete.",
	})
}

// fetchPreLR returns the raw NetSuite record for debugging.
func (r *Router) fetchPreLR(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	record, err := r.sync.FetchOne(req.Context(), id)
	if err != nil {
		var apiErr *netsuite.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			respondError(w, http.StatusNotFound, "Record not found")
			return
		}
		r.fail(w, req, err, "Failed to fetch record")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (r *Router) createLR(w http.ResponseWriter, req *http.Request) {
	var in prelr.LRInput
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.CreatedBy == nil {
		if sub := middleware.Subject(req.Context()); sub != "" {
			in.CreatedBy = &sub
		}
	}

	lr, err := r.linker.CreateOrUpdateLR(req.Context(), in)
	if err != nil {
		r.fail(w, req, err, "LR create/update failed")
		return
	}
	respondJSON(w, http.StatusCreated, lr)
}

func (r *Router) listLRs(w http.ResponseWriter, req *http.Request) {
	lrs, err := r.linker.ListLRs(req.Context(), req.URL.Query().Get("prelrName"))
	if err != nil {
		r.fail(w, req, err, "Failed to list LRs")
		return
	}
	respondJSON(w, http.StatusOK, lrs)
}

func (r *Router) rebuildLRRefs(w http.ResponseWriter, req *http.Request) {
	n, err := r.linker.RebuildLRRefs(context.WithoutCancel(req.Context()))
	if err != nil {
		r.fail(w, req, err, "Failed to rebuild LR references")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (r *Router) listPlants(w http.ResponseWriter, req *http.Request) {
	plants, err := r.reader.Plants(req.Context())
	if err != nil {
		r.fail(w, req, err, "Failed to list plants")
		return
	}
	respondJSON(w, http.StatusOK, plants)
}

// plantDetails serves GET /vms/plants/{plant}?page=&limit=
func (r *Router) plantDetails(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	page, ok := queryInt(q.Get("page"), 1)
	if !ok {
		respondError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, ok := queryInt(q.Get("limit"), store.DefaultPageSize)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	res, err := r.reader.PlantDetails(req.Context(), mux.Vars(req)["plant"], page, limit)
	if err != nil {
		r.fail(w, req, err, "Failed to fetch details")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func queryInt(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// fail maps service errors to a status and a short message. Anything not
// caused by the caller is logged and reported as fallback.
func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error, fallback string) {
	var verr *prelr.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Pre-LR not found")
		return
	}

	entry := r.log.WithError(err).WithFields(logrus.Fields{
		"path":           req.URL.Path,
		"correlation_id": middleware.CorrelationIDFrom(req.Context()),
	})
	var apiErr *netsuite.APIError
	if errors.As(err, &apiErr) {
		entry = entry.WithFields(logrus.Fields{"status": apiErr.StatusCode, "body": apiErr.Body})
	}
	entry.Error(fallback)
	respondError(w, http.StatusInternalServerError, fallback)
}
