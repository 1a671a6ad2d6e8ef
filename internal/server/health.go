package server

import (
	"net/http"

	"golang.org/x/sync/errgroup"
)

// handleHealth pings both backing stores concurrently. The relational
// store is required; a dead cache only degrades reads, so it is reported
// but does not fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	var storeErr, cacheErr error
	var g errgroup.Group
	g.Go(func() error {
		storeErr = s.app.Store().Ping()
		return nil
	})
	g.Go(func() error {
		cacheErr = s.app.Cache().Ping()
		return nil
	})
	_ = g.Wait()

	status := func(err error) string {
		if err != nil {
			return "down"
		}
		return "up"
	}
	body := map[string]string{
		"store": status(storeErr),
		"cache": status(cacheErr),
	}
	if storeErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
