// Package devserver is a local backend that speaks the job protocol of every
// known kind: start hands out a token, query reports progress for a few polls
// and then completion, end returns the generated result once.
//
// Payload flags steer a job for testing: "fail": true makes the query report
// an error, "empty": true makes end answer without a response field.
package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pollster/internal/polling"
)

type Options struct {
	// Steps is how many queries answer {progress} before the job completes.
	Steps int
	// Token, when set, is the bearer token every request must carry.
	Token string
	// RequestsPerSecond above zero answers 429 once the rate is exceeded.
	RequestsPerSecond float64
}

type job struct {
	kind    string
	payload json.RawMessage
	flags   jobFlags
	queries int
	result  json.RawMessage
	failed  bool
}

var errGenerationFailed = errors.New("generation failed earlier")

type jobFlags struct {
	Fail  bool `json:"fail"`
	Empty bool `json:"empty"`
}

type Server struct {
	gen      Generator
	opts     Options
	registry *polling.Registry
	limiter  *rate.Limiter

	mu   sync.Mutex
	jobs map[string]*job
}

func New(gen Generator, registry *polling.Registry, opts Options) *Server {
	if gen == nil {
		gen = EchoGenerator{}
	}
	if registry == nil {
		registry = polling.DefaultRegistry()
	}
	if opts.Steps < 0 {
		opts.Steps = 0
	}
	s := &Server{gen: gen, opts: opts, registry: registry, jobs: make(map[string]*job)}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Router registers the start, query and end routes of every kind.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.limit, s.authorize)

	legacyRegistered := false
	for _, k := range s.registry.List() {
		router.POST(k.StartPath, s.start(k.Name))
		if k.Legacy() {
			if legacyRegistered {
				continue
			}
			legacyRegistered = true
		}
		router.Handle(k.Method, k.QueryPath+"/:token", s.query)
		router.Handle(k.Method, k.EndPath+"/:token", s.end)
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "generator": s.gen.Name()})
	})
	return router
}

func errorBody(code, message string) gin.H {
	return gin.H{"code": code, "message": message}
}

func (s *Server) limit(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate_limited", "Too many requests, please try again later."))
		return
	}
	c.Next()
}

func (s *Server) authorize(c *gin.Context) {
	if s.opts.Token == "" || c.Request.URL.Path == "/health" {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("no_token", "No token, authorization denied"))
		return
	}
	if strings.TrimPrefix(header, "Bearer ") != s.opts.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("user_not_found", "User not found"))
		return
	}
	c.Next()
}

func (s *Server) start(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("bad_request", "Invalid request body"))
			return
		}
		j := &job{kind: kind, payload: raw}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				c.JSON(http.StatusBadRequest, errorBody("bad_request", "Request body must be JSON"))
				return
			}
			// Non-object payloads simply carry no flags.
			_ = json.Unmarshal(raw, &j.flags)
		}

		token := uuid.NewString()
		s.mu.Lock()
		s.jobs[token] = j
		s.mu.Unlock()

		log.Infof("devserver: started %s job %s", kind, token)
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func (s *Server) query(c *gin.Context) {
	token := c.Param("token")
	s.mu.Lock()
	j, ok := s.jobs[token]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, errorBody("request_not_found", "Request not found."))
		return
	}
	j.queries++
	n := j.queries
	s.mu.Unlock()

	if n <= s.opts.Steps {
		c.JSON(http.StatusOK, gin.H{"progress": n})
		return
	}
	if j.flags.Fail {
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	if err := s.generate(c, j); err != nil {
		log.Errorf("devserver: %s generator failed for %s job %s: %v", s.gen.Name(), j.kind, token, err)
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// generate produces the result the first time a job completes.
func (s *Server) generate(c *gin.Context, j *job) error {
	s.mu.Lock()
	done, failed := j.result != nil, j.failed
	s.mu.Unlock()
	if done {
		return nil
	}
	if failed {
		return errGenerationFailed
	}

	result, err := s.gen.Generate(c.Request.Context(), j.kind, j.payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		j.failed = true
		return err
	}
	j.result = result
	return nil
}

func (s *Server) end(c *gin.Context) {
	token := c.Param("token")
	s.mu.Lock()
	j, ok := s.jobs[token]
	if !ok || j.result == nil {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, errorBody("request_not_found", "Request not found."))
		return
	}
	result, empty := j.result, j.flags.Empty
	delete(s.jobs, token)
	s.mu.Unlock()

	if empty {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": result})
}
