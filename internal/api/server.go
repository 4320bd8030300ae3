package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/version"
)

// MaxTokensLimit bounds max_tokens per request.
const MaxTokensLimit = 4096

type Server struct {
	provider Provider
	defaults engine.Request
	clock    func() time.Time
}

// NewServer serves generations from provider. Request fields that are
// omitted take their values from defaults.
func NewServer(provider Provider, defaults engine.Request) *Server {
	return &Server{
		provider: provider,
		defaults: defaults,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", handleMetrics)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleListModels(c *echo.Context) error {
	models, err := s.provider.ListModels()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: models})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON body: "+err.Error())
	}
	ereq, err := s.engineRequest(req)
	if err != nil {
		return writeGenerationError(c, err)
	}

	id := "gen-" + uuid.NewString()
	created := s.clock().Unix()
	if req.Stream != nil && *req.Stream {
		return s.generateStream(c, req.Model, ereq, id, created)
	}

	ctx := c.Request().Context()
	var resp GenerateResponse
	err = s.provider.WithEngine(ctx, req.Model, func(e *engine.Engine) error {
		out, err := e.Generate(ctx, ereq, nil)
		if err != nil {
			return err
		}
		resp = newGenerateResponse(id, created, e.Variant.ID(), out)
		return nil
	})
	if err != nil {
		return writeGenerationError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) generateStream(c *echo.Context, model string, ereq engine.Request, id string, created int64) error {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return writeError(c, http.StatusInternalServerError, "server_error", "streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	var final GenerateResponse
	err := s.provider.WithEngine(ctx, model, func(e *engine.Engine) error {
		out, err := e.Generate(ctx, ereq, func(text string) {
			_ = sendSSE(res, GenerateChunk{ID: id, Object: "generation.chunk", Text: text})
			flusher.Flush()
		})
		if err != nil {
			return err
		}
		final = newGenerateResponse(id, created, e.Variant.ID(), out)
		return nil
	})

	if err != nil {
		_ = sendSSE(res, GenerateChunk{ID: id, Object: "generation.error", Error: &APIError{Message: err.Error(), Type: "server_error"}})
	} else {
		_ = sendSSE(res, GenerateChunk{ID: id, Object: "generation", Response: &final})
	}
	_, _ = io.WriteString(res, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

// engineRequest validates req and fills omitted fields from the defaults.
func (s *Server) engineRequest(req GenerateRequest) (engine.Request, error) {
	out := s.defaults
	if strings.TrimSpace(req.Prompt) == "" {
		return out, newInvalidRequest("prompt is required")
	}
	out.Prompt = req.Prompt
	if req.Chat != nil {
		out.Chat = *req.Chat
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens < 0 || *req.MaxTokens > MaxTokensLimit {
			return out, newInvalidRequest(fmt.Sprintf("max_tokens must be between 0 and %d", MaxTokensLimit))
		}
		out.MaxNewTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		if t := *req.Temperature; math.IsNaN(t) || t < 0 || t > 2 {
			return out, newInvalidRequest("temperature must be between 0 and 2")
		}
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		if p := *req.TopP; math.IsNaN(p) || p <= 0 || p > 1 {
			return out, newInvalidRequest("top_p must be in (0, 1]")
		}
		out.TopP = *req.TopP
	}
	if req.Seed != nil {
		out.Seed = *req.Seed
	}
	return out, nil
}

func newGenerateResponse(id string, created int64, model string, out *inference.Output) GenerateResponse {
	return GenerateResponse{
		ID:         id,
		Object:     "generation",
		Created:    created,
		Model:      model,
		Text:       out.Text,
		StopReason: string(out.StopReason),
		Usage: Usage{
			PromptTokens:     out.PromptTokens,
			CompletionTokens: out.TokenCount,
			TotalTokens:      out.PromptTokens + out.TokenCount,
		},
		ElapsedSeconds:  out.ElapsedSeconds(),
		TokensPerSecond: out.TokensPerSecond(),
	}
}

func sendSSE(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
