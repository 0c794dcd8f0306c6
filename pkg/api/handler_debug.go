package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/justinternetai/arena-runtime/pkg/debug"
)

const (
	defaultDebugLimit = 50
	maxDebugLimit     = 1000
)

func debugLimit(c *gin.Context) int {
	limit := defaultDebugLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			limit = n
		}
	}
	if limit > maxDebugLimit {
		limit = maxDebugLimit
	}
	return limit
}

func optionalInt(c *gin.Context, key string) *int {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// handleDebugViewer serves the embedded trace viewer page.
func (s *Server) handleDebugViewer(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write(debug.ViewerHTML())
}

// handleDebugObservations returns recent tracked observations.
func (s *Server) handleDebugObservations(c *gin.Context) {
	observations := s.tracker.Recent(debugLimit(c), c.Query("agent_id"))
	c.JSON(http.StatusOK, gin.H{"observations": observations, "count": len(observations)})
}

// handleDebugChanges returns only observations whose visibility changed.
func (s *Server) handleDebugChanges(c *gin.Context) {
	changes := s.tracker.Changes(debugLimit(c), c.Query("agent_id"))
	c.JSON(http.StatusOK, gin.H{"changes": changes, "count": len(changes)})
}

// handleDebugReset clears observation tracking history.
func (s *Server) handleDebugReset(c *gin.Context) {
	s.tracker.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleDebugTraces returns the recent-decision ring buffer slice.
func (s *Server) handleDebugTraces(c *gin.Context) {
	traces := s.debugStore.RecentTraces(
		debugLimit(c),
		c.Query("agent_id"),
		optionalInt(c, "tick_start"),
		optionalInt(c, "tick_end"),
	)
	c.JSON(http.StatusOK, gin.H{"traces": traces, "count": len(traces)})
}

// handleDebugAgents returns the union of agents seen by the trace store and
// the observation tracker.
func (s *Server) handleDebugAgents(c *gin.Context) {
	set := make(map[string]struct{})
	for _, a := range s.debugStore.Agents() {
		set[a] = struct{}{}
	}
	for _, a := range s.tracker.Agents() {
		set[a] = struct{}{}
	}
	agents := make([]string, 0, len(set))
	for a := range set {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// handleDebugEpisodes lists an agent's trace episodes.
func (s *Server) handleDebugEpisodes(c *gin.Context) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agentID,
		"episodes": s.debugStore.Episodes(agentID),
	})
}
