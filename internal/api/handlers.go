package api

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentfoundry/agentkit/pkg/streaming"
	"github.com/agentfoundry/agentkit/pkg/types"
)

// listAgents returns the registered agents
func (s *Server) listAgents(c *gin.Context) {
	agents := s.registry.List()

	infos := make([]types.AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, types.AgentInfo{
			Name:        a.Name(),
			Description: a.Description(),
			Skills:      a.Skills(),
		})
	}

	SuccessResponse(c, gin.H{"agents": infos})
}

// executeAgent runs an agent and returns the full response
func (s *Server) executeAgent(c *gin.Context) {
	a, exists := s.registry.Get(c.Param("name"))
	if !exists {
		NotFoundResponse(c, "agent "+c.Param("name")+" not found")
		return
	}

	if s.degradation != nil {
		if err := s.degradation.CheckExecute(); err != nil {
			ServiceUnavailableResponse(c, err.Error())
			return
		}
	}

	var req types.AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := a.Execute(c.Request.Context(), &req)
	if err != nil {
		if s.alerts != nil {
			s.alerts.HandleError(c.Request.Context(), err, "agent:"+a.Name(), nil)
		}
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, resp)
}

// streamAgent runs an agent and streams the response as SSE, or as
// NDJSON when the client asks for application/x-ndjson
func (s *Server) streamAgent(c *gin.Context) {
	a, exists := s.registry.Get(c.Param("name"))
	if !exists {
		NotFoundResponse(c, "agent "+c.Param("name")+" not found")
		return
	}

	if s.degradation != nil {
		if ok, reason := s.degradation.CanStream(); !ok {
			ServiceUnavailableResponse(c, reason)
			return
		}
	}

	var req types.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	session, err := a.ExecuteStream(c.Request.Context(), &req)
	if err != nil {
		if s.alerts != nil {
			s.alerts.HandleError(c.Request.Context(), err, "agent:"+a.Name(), nil)
		}
		ErrorResponseFromError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IncActiveStreams(a.Name())
		defer s.metrics.DecActiveStreams(a.Name())
	}

	c.Header("X-Stream-ID", session.ID())
	c.Header("Cache-Control", "no-cache")

	if strings.Contains(c.GetHeader("Accept"), "application/x-ndjson") {
		s.streamNDJSON(c, session)
		return
	}
	s.streamSSE(c, session)
}

func (s *Server) streamSSE(c *gin.Context, session *streaming.Session) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-session.Events()
		if !ok {
			return false
		}
		if s.metrics != nil {
			s.metrics.RecordStreamEvent(string(ev.Type))
		}
		if err := streaming.EncodeSSE(w, ev); err != nil {
			return false
		}
		return true
	})
}

func (s *Server) streamNDJSON(c *gin.Context, session *streaming.Session) {
	c.Header("Content-Type", "application/x-ndjson")

	var enc *streaming.NDJSONEncoder
	c.Stream(func(w io.Writer) bool {
		if enc == nil {
			enc = streaming.NewNDJSONEncoder(w)
		}
		ev, ok := <-session.Events()
		if !ok {
			return false
		}
		if s.metrics != nil {
			s.metrics.RecordStreamEvent(string(ev.Type))
		}
		if err := enc.Encode(ev); err != nil {
			return false
		}
		return true
	})
}

// getStream reports whether a stream is active
func (s *Server) getStream(c *gin.Context) {
	session, exists := s.streamer.Get(c.Param("id"))
	if !exists {
		NotFoundResponse(c, "stream "+c.Param("id")+" not found")
		return
	}

	SuccessResponse(c, gin.H{
		"stream_id":  session.ID(),
		"active":     session.Active(),
		"started_at": session.StartedAt(),
	})
}

// cancelStream cancels an active streaming session
func (s *Server) cancelStream(c *gin.Context) {
	if err := s.streamer.Cancel(c.Param("id")); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	AcceptedResponse(c, gin.H{
		"stream_id": c.Param("id"),
		"cancelled": true,
	})
}

// systemStatus reports degradation level and circuit breaker stats
func (s *Server) systemStatus(c *gin.Context) {
	status := gin.H{
		"active_streams": s.streamer.ActiveCount(),
	}

	if s.degradation != nil {
		status["degradation"] = s.degradation.Status()
	}

	if len(s.guards) > 0 {
		breakers := make(gin.H, len(s.guards))
		for name, guard := range s.guards {
			breakers[name] = guard.Stats()
		}
		status["circuit_breakers"] = breakers
	}

	SuccessResponse(c, status)
}
