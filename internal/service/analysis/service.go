package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	analysisadapter "github.com/smallbiznis/valora-sleep/internal/adapter/analysis"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
)

const (
	RouteManual = "manual"
	RouteWhoop  = "whoop"
)

// Gateway validates metric payloads and relays them to the analysis service.
type Gateway interface {
	SubmitManual(ctx context.Context, metrics domainsleep.ManualMetrics) (domainsleep.AnalysisResult, error)
	SubmitSnapshot(ctx context.Context, snapshot domainsleep.SleepSnapshot) (domainsleep.AnalysisResult, error)
}

// ManualPayload is the body sent for user-entered metrics.
type ManualPayload struct {
	Route   string                    `json:"route"`
	Metrics domainsleep.ManualMetrics `json:"metrics"`
}

// WhoopPayload is the body sent for an imported snapshot.
type WhoopPayload struct {
	Route string                    `json:"route"`
	Score domainsleep.SnapshotScore `json:"score"`
}

type gateway struct {
	client   analysisadapter.Client
	node     *snowflake.Node
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewGateway wires the analysis gateway. A nil node disables submission ids.
func NewGateway(client analysisadapter.Client, node *snowflake.Node, logger *zap.Logger) Gateway {
	return &gateway{
		client:   client,
		node:     node,
		validate: NewValidator(),
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/valora-sleep/internal/service/analysis"),
	}
}

func (g *gateway) SubmitManual(ctx context.Context, metrics domainsleep.ManualMetrics) (domainsleep.AnalysisResult, error) {
	ctx, span := g.tracer.Start(ctx, "AnalysisGateway.SubmitManual")
	defer span.End()

	if err := Validate(g.validate, metrics); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return g.relay(ctx, span, RouteManual, ManualPayload{Route: RouteManual, Metrics: metrics})
}

func (g *gateway) SubmitSnapshot(ctx context.Context, snapshot domainsleep.SleepSnapshot) (domainsleep.AnalysisResult, error) {
	ctx, span := g.tracer.Start(ctx, "AnalysisGateway.SubmitSnapshot")
	defer span.End()

	if err := Validate(g.validate, snapshot); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return g.relay(ctx, span, RouteWhoop, WhoopPayload{Route: RouteWhoop, Score: snapshot.Score})
}

func (g *gateway) relay(ctx context.Context, span trace.Span, route string, payload any) (domainsleep.AnalysisResult, error) {
	id := g.submissionID()
	span.SetAttributes(attribute.String("analysis.route", route), attribute.String("analysis.submission_id", id))

	body, err := g.client.Post(ctx, id, payload)
	if err != nil {
		span.RecordError(err)
		g.log().Warn("analysis submission failed",
			zap.String("route", route),
			zap.String("submission_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("submit %s analysis: %w", route, err)
	}
	g.log().Info("analysis submission relayed",
		zap.String("route", route),
		zap.String("submission_id", id),
		zap.Int("bytes", len(body)),
	)
	return domainsleep.AnalysisResult(body), nil
}

func (g *gateway) submissionID() string {
	if g.node == nil {
		return ""
	}
	return g.node.Generate().String()
}

func (g *gateway) log() *zap.Logger {
	if g != nil && g.logger != nil {
		return g.logger
	}
	return zap.L()
}

// NewValidator returns a validator that reports json field names and rejects
// non-finite floats.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}
		return true
	})
	return v
}

// Validate checks payload and converts the first failure into a ValidationError.
func Validate(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate payload: %w", err)
	}
	fe := verrs[0]
	return &domainsleep.ValidationError{Field: fieldPath(fe.Namespace()), Reason: reason(fe)}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "required":
		return "is required"
	default:
		return "failed " + fe.Tag()
	}
}
