package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eske/multivec-go/multivec"

	"github.com/labstack/echo/v4"
)

type Dependencies struct {
	GetModel   func(context.Context, string) (*multivec.Model, error)
	ListModels func() []string
	AppMetrics multivec.AppMetrics
	Logger     *slog.Logger
}

type similarityRequest struct {
	Word1  string `json:"word1"`
	Word2  string `json:"word2"`
	Policy string `json:"policy,omitempty"`
}

type closestRequest struct {
	Word   string `json:"word"`
	N      int    `json:"n"`
	Policy string `json:"policy,omitempty"`
}

type sentenceSimilarityRequest struct {
	Sentence1 string `json:"sentence1"`
	Sentence2 string `json:"sentence2"`
	Policy    string `json:"policy,omitempty"`
}

type sentenceVectorRequest struct {
	Sentence   string `json:"sentence"`
	Iterations int    `json:"iterations"`
}

type modelInfoOut struct {
	ID            string `json:"id"`
	Dimension     int    `json:"dimension"`
	VocabSize     int    `json:"vocab_size"`
	TrainingWords int64  `json:"training_words"`
	TrainingLines int64  `json:"training_lines"`
}

func modelInfo(id string, m *multivec.Model) modelInfoOut {
	return modelInfoOut{
		ID:            id,
		Dimension:     m.Dimension(),
		VocabSize:     m.VocabSize(),
		TrainingWords: m.TrainingWords(),
		TrainingLines: m.TrainingLines(),
	}
}

func Register(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.AppMetrics
	if metrics == nil {
		metrics = multivec.NoopAppMetrics{}
	}
	listModels := deps.ListModels
	if listModels == nil {
		listModels = func() []string { return nil }
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ok",
			"models": len(listModels()),
		})
	})
	e.GET("/metrics/app", func(c echo.Context) error {
		return c.JSON(http.StatusOK, metrics.Snapshot())
	})

	e.GET("/models", func(c echo.Context) error {
		if deps.GetModel == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "models unavailable"})
		}
		ids := listModels()
		infos := make([]modelInfoOut, 0, len(ids))
		for _, id := range ids {
			m, err := deps.GetModel(c.Request().Context(), id)
			if err != nil {
				// Listed a moment ago but gone now. Skip rather than fail
				// the whole listing.
				continue
			}
			infos = append(infos, modelInfo(id, m))
		}
		return c.JSON(http.StatusOK, map[string]any{"models": infos})
	})

	e.GET("/models/:id", func(c echo.Context) error {
		m, modelID, err := resolveModel(c, deps)
		if m == nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{
			"model":  modelInfo(modelID, m),
			"config": m.Config(),
		})
	})

	e.POST("/models/:id/similarity", func(c echo.Context) error {
		start := time.Now()
		m, modelID, err := resolveModel(c, deps)
		if m == nil {
			return err
		}

		var req similarityRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		}
		req.Word1 = strings.TrimSpace(req.Word1)
		req.Word2 = strings.TrimSpace(req.Word2)
		if req.Word1 == "" || req.Word2 == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "word1 and word2 are required"})
		}
		policy, policyName, policyErr := parsePolicyName(req.Policy)
		if policyErr != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": policyErr.Error()})
		}

		sim, err := m.Similarity(req.Word1, req.Word2, policy)
		if err != nil {
			metrics.RecordQuery(modelID, "similarity", time.Since(start).Milliseconds(), err)
			logger.ErrorContext(c.Request().Context(), "similarity query failed",
				"model_id", modelID,
				"error", err,
			)
			return WriteError(c, err)
		}
		dist, err := m.Distance(req.Word1, req.Word2, policy)
		if err != nil {
			metrics.RecordQuery(modelID, "similarity", time.Since(start).Milliseconds(), err)
			return WriteError(c, err)
		}
		metrics.RecordQuery(modelID, "similarity", time.Since(start).Milliseconds(), nil)
		return c.JSON(http.StatusOK, map[string]any{
			"word1":      req.Word1,
			"word2":      req.Word2,
			"policy":     policyName,
			"similarity": sim,
			"distance":   dist,
		})
	})

	e.POST("/models/:id/closest", func(c echo.Context) error {
		start := time.Now()
		m, modelID, err := resolveModel(c, deps)
		if m == nil {
			return err
		}

		var req closestRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		}
		req.Word = strings.TrimSpace(req.Word)
		if req.Word == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "word is required"})
		}
		if req.N <= 0 {
			req.N = 10
		}
		policy, policyName, policyErr := parsePolicyName(req.Policy)
		if policyErr != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": policyErr.Error()})
		}

		neighbors, err := m.Closest(req.Word, req.N, policy)
		metrics.RecordQuery(modelID, "closest", time.Since(start).Milliseconds(), err)
		if err != nil {
			return WriteError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"word":      req.Word,
			"policy":    policyName,
			"neighbors": neighbors,
		})
	})

	e.POST("/models/:id/sentence-similarity", func(c echo.Context) error {
		start := time.Now()
		m, modelID, err := resolveModel(c, deps)
		if m == nil {
			return err
		}

		var req sentenceSimilarityRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		}
		if strings.TrimSpace(req.Sentence1) == "" || strings.TrimSpace(req.Sentence2) == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "sentence1 and sentence2 are required"})
		}
		policy, policyName, policyErr := parsePolicyName(req.Policy)
		if policyErr != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": policyErr.Error()})
		}

		sim, err := m.SimilaritySentence(req.Sentence1, req.Sentence2, policy)
		metrics.RecordQuery(modelID, "sentence_similarity", time.Since(start).Milliseconds(), err)
		if err != nil {
			logger.ErrorContext(c.Request().Context(), "sentence similarity query failed",
				"model_id", modelID,
				"error", err,
			)
			return WriteError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"policy":     policyName,
			"similarity": sim,
		})
	})

	e.POST("/models/:id/sentence-vector", func(c echo.Context) error {
		start := time.Now()
		m, modelID, err := resolveModel(c, deps)
		if m == nil {
			return err
		}

		var req sentenceVectorRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		}
		if strings.TrimSpace(req.Sentence) == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "sentence is required"})
		}

		vec, err := m.InferSentenceVector(req.Sentence, req.Iterations)
		metrics.RecordQuery(modelID, "sentence_vector", time.Since(start).Milliseconds(), err)
		if err != nil {
			return WriteError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"vector":    vec,
			"dimension": len(vec),
		})
	})
}

// resolveModel looks up the path's model id through deps.GetModel, writing
// the error response itself when the lookup fails. Callers return the error
// when the model comes back nil.
func resolveModel(c echo.Context, deps Dependencies) (*multivec.Model, string, error) {
	modelID := strings.TrimSpace(c.Param("id"))
	if deps.GetModel == nil {
		return nil, modelID, c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "models unavailable"})
	}
	m, err := deps.GetModel(c.Request().Context(), modelID)
	if err != nil {
		return nil, modelID, WriteError(c, err)
	}
	return m, modelID, nil
}

func parsePolicyName(raw string) (multivec.VectorPolicy, string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "input":
		return multivec.PolicyInput, "input", nil
	case "concat":
		return multivec.PolicyConcat, "concat", nil
	case "sum":
		return multivec.PolicySum, "sum", nil
	case "output":
		return multivec.PolicyOutput, "output", nil
	default:
		return multivec.PolicyInput, "", fmt.Errorf("invalid policy: %q (allowed: input, concat, sum, output)", raw)
	}
}

func WriteError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, multivec.ErrModelNotFound), errors.Is(err, multivec.ErrOutOfVocabulary):
		return c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, multivec.ErrEmptySequence):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	case errors.Is(err, multivec.ErrDimensionMismatch):
		return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}
