// Package api maps named operations with JSON arguments onto the service
// and wraps every outcome in an Envelope.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/service"
)

type handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Dispatcher routes operations by name.
type Dispatcher struct {
	svc      *service.Service
	validate *validator.Validate
	logger   *zap.Logger
	handlers map[string]handler
}

// NewDispatcher registers every operation of svc.
func NewDispatcher(svc *service.Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		svc:      svc,
		validate: newValidator(),
		logger:   logger,
	}
	d.handlers = d.routes()
	return d
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Operations returns the registered operation names in sorted order.
func (d *Dispatcher) Operations() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs op with the JSON-encoded args. It never panics and never
// returns an error: failures are reported in the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, op string, args json.RawMessage) (env Envelope) {
	logger := d.logger.With(zap.String("op", op))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("operation panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			env = Envelope{Err: &Error{Code: errs.CodeInternal, Message: "internal error"}}
		}
	}()

	h, ok := d.handlers[op]
	if !ok {
		return failure(fmt.Errorf("%w: %q", errs.ErrUnknownOperation, op))
	}
	data, err := h(ctx, args)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeInternal {
			logger.Error("operation failed", zap.Error(err))
		} else {
			logger.Debug("operation rejected", zap.Error(err))
		}
		return failure(err)
	}
	return success(data)
}

// bind builds a handler that decodes and validates A before calling fn.
func bind[A any](d *Dispatcher, fn func(ctx context.Context, a A) (any, error)) handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a A
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		if err := d.check(ctx, a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

func decode(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed arguments: %v", errs.ErrValidation, err)
	}
	return nil
}

func (d *Dispatcher) check(ctx context.Context, a any) error {
	if reflect.Indirect(reflect.ValueOf(a)).Kind() != reflect.Struct {
		return nil
	}
	err := d.validate.StructCtx(ctx, a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate arguments: %w", err)
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(fields, "; "))
}

// Argument records of the operations that take scalars.
type (
	idArgs struct {
		ID int64 `json:"id" validate:"min=1"`
	}
	reviewArgs struct {
		ID          int64  `json:"id" validate:"min=1"`
		Coefficient string `json:"coefficient" validate:"notblank"`
	}
	limitArgs struct {
		Limit int `json:"limit" validate:"min=1"`
	}
	tagNameArgs struct {
		Name string `json:"name" validate:"notblank"`
	}
	updateTagArgs struct {
		ID   int64  `json:"id" validate:"min=1"`
		Name string `json:"name" validate:"notblank"`
	}
	noArgs struct{}
)

type created struct {
	ID int64 `json:"id"`
}

func (d *Dispatcher) routes() map[string]handler {
	s := d.svc
	return map[string]handler{
		"createTranslateCard": bind(d, func(ctx context.Context, a service.CreateTranslateCard) (any, error) {
			id, err := s.CreateTranslateCard(ctx, a)
			return created{ID: id}, err
		}),
		"readTranslateCardById": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return s.ReadTranslateCardByID(ctx, a.ID)
		}),
		"readTranslateCardsByFilter": bind(d, func(ctx context.Context, f domain.Filter) (any, error) {
			return s.ReadTranslateCardsByFilter(ctx, f)
		}),
		"updateTranslateCard": bind(d, func(ctx context.Context, a service.UpdateTranslateCard) (any, error) {
			return s.UpdateTranslateCard(ctx, a)
		}),
		"reviewTranslateCard": bind(d, func(ctx context.Context, a reviewArgs) (any, error) {
			return s.ReviewTranslateCard(ctx, a.ID, a.Coefficient)
		}),
		"deleteTranslateCard": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return nil, s.DeleteTranslateCard(ctx, a.ID)
		}),
		"readTopOverdueTranslateCards": bind(d, func(ctx context.Context, a limitArgs) (any, error) {
			return s.ReadTopOverdueTranslateCards(ctx, a.Limit)
		}),
		"readTranslateCardHistory": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return s.ReadTranslateCardHistory(ctx, a.ID)
		}),

		"createNote": bind(d, func(ctx context.Context, a service.CreateNote) (any, error) {
			id, err := s.CreateNote(ctx, a)
			return created{ID: id}, err
		}),
		"readNoteById": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return s.ReadNoteByID(ctx, a.ID)
		}),
		"readNotesByFilter": bind(d, func(ctx context.Context, f domain.Filter) (any, error) {
			return s.ReadNotesByFilter(ctx, f)
		}),
		"updateNote": bind(d, func(ctx context.Context, a service.UpdateNote) (any, error) {
			return s.UpdateNote(ctx, a)
		}),
		"deleteNote": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return nil, s.DeleteNote(ctx, a.ID)
		}),
		"readNoteHistory": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return s.ReadNoteHistory(ctx, a.ID)
		}),

		"createTag": bind(d, func(ctx context.Context, a tagNameArgs) (any, error) {
			return s.CreateTag(ctx, a.Name)
		}),
		"readAllTags": bind(d, func(ctx context.Context, _ noArgs) (any, error) {
			return s.ReadAllTags(ctx)
		}),
		"updateTag": bind(d, func(ctx context.Context, a updateTagArgs) (any, error) {
			return s.UpdateTag(ctx, a.ID, a.Name)
		}),
		"deleteTag": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return nil, s.DeleteTag(ctx, a.ID)
		}),
		"readTagHistory": bind(d, func(ctx context.Context, a idArgs) (any, error) {
			return s.ReadTagHistory(ctx, a.ID)
		}),
		"refreshTagUsage": bind(d, func(ctx context.Context, _ noArgs) (any, error) {
			return s.RefreshTagUsage(ctx)
		}),
	}
}
