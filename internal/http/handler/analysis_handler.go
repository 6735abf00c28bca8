package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
	analysissvc "github.com/smallbiznis/valora-sleep/internal/service/analysis"
)

const analysisFailedMessage = "Failed to analyze sleep data. Please try again."

// AnalysisHandler serves the analysis submission endpoints.
type AnalysisHandler struct {
	Gateway  analysissvc.Gateway
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAnalysisHandler creates the handler set.
func NewAnalysisHandler(gateway analysissvc.Gateway, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{Gateway: gateway, validate: analysissvc.NewValidator(), logger: logger}
}

// Manual relays the seven user-entered scores.
func (h *AnalysisHandler) Manual(c *gin.Context) {
	var metrics domainsleep.ManualMetrics
	if err := h.bindJSON(c, &metrics); err != nil {
		h.respondAnalysisError(c, err)
		return
	}
	result, err := h.Gateway.SubmitManual(c.Request.Context(), metrics)
	if err != nil {
		h.respondAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Whoop relays an imported snapshot.
func (h *AnalysisHandler) Whoop(c *gin.Context) {
	var snapshot domainsleep.SleepSnapshot
	if err := h.bindJSON(c, &snapshot); err != nil {
		h.respondAnalysisError(c, err)
		return
	}
	result, err := h.Gateway.SubmitSnapshot(c.Request.Context(), snapshot)
	if err != nil {
		h.respondAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// bindJSON decodes the body and turns decode failures into ValidationErrors.
func (h *AnalysisHandler) bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindBodyWith(dst, binding.JSON)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		var body []byte
		if raw, ok := c.Get(gin.BodyBytesKey); ok {
			body, _ = raw.([]byte)
		}
		return h.firstInvalidField(body, dst, typeErr)
	case errors.Is(err, io.EOF):
		return &domainsleep.ValidationError{Field: "body", Reason: "is required"}
	case errors.As(err, &syntaxErr):
		return &domainsleep.ValidationError{Field: "body", Reason: "must be valid JSON"}
	default:
		return &domainsleep.ValidationError{Field: "body", Reason: err.Error()}
	}
}

// firstInvalidField picks whichever comes first in declared field order: a
// value of the wrong JSON type, or a decoded value the gateway would reject.
// encoding/json keeps filling the other fields after a type error, so dst is
// complete apart from the mistyped ones.
func (h *AnalysisHandler) firstInvalidField(body []byte, dst any, typeErr *json.UnmarshalTypeError) error {
	t := reflect.TypeOf(dst).Elem()
	order := leafFields(t, "")

	mistyped := &domainsleep.ValidationError{Field: typeErr.Field, Reason: "must be a number"}
	if issues := mistypedFields(body, t, ""); len(issues) > 0 {
		mistyped = issues[0]
	}
	if mistyped.Field == "" {
		mistyped.Field = "body"
	}

	var rejected *domainsleep.ValidationError
	if err := analysissvc.Validate(h.validate, reflect.ValueOf(dst).Elem().Interface()); !errors.As(err, &rejected) {
		return mistyped
	}
	if fieldIndex(order, rejected.Field) < fieldIndex(order, mistyped.Field) {
		return rejected
	}
	return mistyped
}

// leafFields lists t's JSON leaf paths in declaration order.
func leafFields(t reflect.Type, prefix string) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if name == "" {
			continue
		}
		if ft := indirect(f.Type); ft.Kind() == reflect.Struct {
			out = append(out, leafFields(ft, prefix+name+".")...)
			continue
		}
		out = append(out, prefix+name)
	}
	return out
}

// mistypedFields lists, in declaration order, the fields of body whose JSON
// value cannot be decoded into the matching field of t.
func mistypedFields(body []byte, t reflect.Type, prefix string) []*domainsleep.ValidationError {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	var out []*domainsleep.ValidationError
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		val, ok := obj[name]
		if name == "" || !ok {
			continue
		}
		path := prefix + name
		if ft := indirect(f.Type); ft.Kind() == reflect.Struct {
			if !isObject(val) {
				out = append(out, &domainsleep.ValidationError{Field: path, Reason: "must be an object"})
				continue
			}
			out = append(out, mistypedFields(val, ft, path+".")...)
			continue
		}
		if err := json.Unmarshal(val, reflect.New(f.Type).Interface()); err != nil {
			out = append(out, &domainsleep.ValidationError{Field: path, Reason: "must be a number"})
		}
	}
	return out
}

// fieldIndex places path in order; an object path sorts with its first leaf.
func fieldIndex(order []string, path string) int {
	for i, leaf := range order {
		if leaf == path || strings.HasPrefix(leaf, path+".") {
			return i
		}
	}
	return len(order)
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && (trimmed[0] == '{' || bytes.Equal(trimmed, []byte("null")))
}

func (h *AnalysisHandler) respondAnalysisError(c *gin.Context, err error) {
	logger := h.log()
	var verr *domainsleep.ValidationError
	var upstream *domainsleep.UpstreamError
	var transportErr *domain.TransportError
	switch {
	case errors.As(err, &verr):
		logger.Warn("analysis payload rejected", zap.String("field", verr.Field), zap.String("reason", verr.Reason))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Error()})
	case errors.As(err, &upstream):
		logger.Error("analysis service failed", zap.Int("status", upstream.Status), zap.String("reason", upstream.Reason))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": analysisFailedMessage})
	case errors.As(err, &transportErr):
		logger.Error("analysis service unreachable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": analysisFailedMessage})
	default:
		logger.Error("analysis failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": analysisFailedMessage})
	}
}

func (h *AnalysisHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
