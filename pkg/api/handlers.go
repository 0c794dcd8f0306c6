package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justinternetai/arena-runtime/pkg/runtime"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// handleRoot reports server status and pipeline metrics.
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "running",
		"agents":  s.rt.AgentCount(),
		"debug":   s.enableDebug,
		"metrics": s.metrics.Snapshot(),
	})
}

// handleHealth is the liveness signal; it never fails.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"agents": s.rt.AgentCount(),
	})
}

// handleMetrics returns the raw metrics JSON.
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// handleObserve processes a single observation inline and returns the
// decision. An unregistered agent id is a 404.
func (s *Server) handleObserve(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, schemas.NewValidationError("body", err.Error()))
		return
	}

	obs, err := schemas.ParseObservation(body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.trackObservation(obs, body)

	decision, finished, err := s.rt.DecideOne(c.Request.Context(), obs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.recordTrace(finished)
	s.metrics.RecordObservation()

	reasoning := decision.Reasoning
	if reasoning == "" {
		reasoning = "Agent decision"
	}
	c.JSON(http.StatusOK, ObserveResponse{
		AgentID:   obs.AgentID,
		Tool:      decision.Tool,
		Params:    decision.Params,
		Reasoning: reasoning,
	})
}

// handleTick processes a batch of observations. All observations are parsed
// before any behavior runs; decide calls then fan out to the worker pool
// and the response preserves request order. Per-agent failures degrade to
// idle actions.
func (s *Server) handleTick(c *gin.Context) {
	var req TickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, schemas.NewValidationError("tick request", err.Error()))
		return
	}

	start := time.Now()
	entries := make([]runtime.TickEntry, len(req.Agents))
	for i, agent := range req.Agents {
		entries[i].AgentID = agent.AgentID
		obs, raw, err := parseAgentObservation(agent, req.Tick)
		if err != nil {
			entries[i].Err = err
			continue
		}
		entries[i].Observation = obs
		s.trackObservation(obs, raw)
	}

	results := s.rt.ProcessTick(c.Request.Context(), req.Tick, entries)

	actions := make([]ActionEntry, len(results))
	for i, r := range results {
		actions[i] = ActionEntry{AgentID: r.AgentID, Action: r.Decision}
		s.recordTrace(r.Trace)
	}
	s.metrics.RecordTick(len(req.Agents), float64(time.Since(start).Microseconds())/1000)

	c.JSON(http.StatusOK, TickResponse{Tick: req.Tick, Actions: actions})
}

// parseAgentObservation decodes one tick slot, injecting the envelope's
// agent id and tick when the nested observation omits them.
func parseAgentObservation(agent TickAgent, tick int) (*schemas.Observation, []byte, error) {
	var fields map[string]any
	if len(agent.Observations) > 0 {
		if err := json.Unmarshal(agent.Observations, &fields); err != nil {
			return nil, nil, schemas.NewValidationError("observations", err.Error())
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	if _, ok := fields["agent_id"]; !ok {
		fields["agent_id"] = agent.AgentID
	}
	if _, ok := fields["tick"]; !ok {
		fields["tick"] = tick
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, schemas.NewValidationError("observations", err.Error())
	}
	obs, err := schemas.ParseObservation(raw)
	if err != nil {
		return nil, nil, err
	}
	return obs, raw, nil
}

// handleToolExecute acknowledges tool executions. Tools run host-side; the
// endpoint exists for protocol compatibility and forwards the result to the
// behavior's hook when the agent is known.
func (s *Server) handleToolExecute(c *gin.Context) {
	var req ToolExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, schemas.NewValidationError("tool request", err.Error()))
		return
	}
	if agent, ok := s.rt.Agent(req.AgentID); ok && req.ToolName != "" {
		agent.HandleToolResult(req.ToolName, req.Result)
	}
	c.JSON(http.StatusOK, ToolExecuteResponse{Success: true, Result: nil, Error: ""})
}

// handleToolList returns the advertised tool schemas.
func (s *Server) handleToolList(c *gin.Context) {
	tools := s.rt.Tools().List()
	out := make(map[string]schemas.ToolSchema, len(tools))
	for _, t := range tools {
		out[t.Name] = t
	}
	c.JSON(http.StatusOK, gin.H{"tools": out, "count": len(out)})
}

func (s *Server) trackObservation(obs *schemas.Observation, raw []byte) {
	if s.tracker == nil {
		return
	}
	var rawMap map[string]any
	_ = json.Unmarshal(raw, &rawMap)
	s.tracker.Track(obs, rawMap)
}

func (s *Server) recordTrace(t *trace.ReasoningTrace) {
	if s.debugStore != nil && t != nil {
		s.debugStore.Record(t)
	}
}
