package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/user"
)

var errRecNotFoundInCtx = errors.New("record object not found in echo.Context")

type recordApi struct {
	svc      record.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerRecordAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc record.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := recordApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	rg := g.Group("/records", jwt)
	rg.POST("", api.log)
	rg.GET("", api.query)

	// detail endpoints; records are voided, never deleted
	dg := rg.Group("/:id", recordOwnerOrStaffMiddleware(api.svc, api.usrSvc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/submit", api.submit)
	dg.POST("/review", api.review, instructorMiddleware())
	dg.POST("/void", api.void)
}

// Handlers

func (api *recordApi) log(ctx echo.Context) error {
	var data LogRecordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LogRecordRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// students always log for themselves; staff must name the student
	studentID := ctxUsr.ID
	if ctxUsr.IsInstructor() || ctxUsr.IsAdmin() {
		if data.StudentID == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
		}
		if _, err = api.usrSvc.GetByID(data.StudentID); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
			}
			return errors.Wrap(err, "finding student by ID")
		}
		studentID = data.StudentID
	}

	rec, err := api.svc.Log(studentID, data.NewRecord)
	if err != nil {
		return errors.Wrap(err, "logging record")
	}

	return ctx.JSON(http.StatusCreated, rec)
}

func (api *recordApi) query(ctx echo.Context) error {
	filter := new(record.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []record.Record{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// students only ever see their own records
	if !(ctxUsr.IsInstructor() || ctxUsr.IsAdmin()) {
		filter.StudentID = ctxUsr.ID
	}

	recs, err := api.svc.Query(filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *recordApi) retrieve(ctx echo.Context) error {
	rec, ok := ctx.Get("object").(record.Record)
	if !ok {
		return errors.Wrap(errRecNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) update(ctx echo.Context) error {
	rec, ok := ctx.Get("object").(record.Record)
	if !ok {
		return errors.Wrap(errRecNotFoundInCtx, "retrieving object from context")
	}

	var data record.UpdateRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Update(rec.ID, data)
	if err != nil {
		switch errors.Cause(err) {
		case record.ErrNotEditable, record.ErrInvalidTransition:
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "updating record")
	}

	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) submit(ctx echo.Context) error {
	rec, ok := ctx.Get("object").(record.Record)
	if !ok {
		return errors.Wrap(errRecNotFoundInCtx, "retrieving object from context")
	}

	rec, err := api.svc.Submit(rec.ID)
	if err != nil {
		if errors.Cause(err) == record.ErrInvalidTransition {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "submitting record")
	}

	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) review(ctx echo.Context) error {
	rec, ok := ctx.Get("object").(record.Record)
	if !ok {
		return errors.Wrap(errRecNotFoundInCtx, "retrieving object from context")
	}

	var data record.ReviewRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rec, err = api.svc.Review(rec.ID, ctxUsr.ID, data)
	if err != nil {
		if errors.Cause(err) == record.ErrInvalidTransition {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "reviewing record")
	}

	return ctx.JSON(http.StatusOK, rec)
}

func (api *recordApi) void(ctx echo.Context) error {
	rec, ok := ctx.Get("object").(record.Record)
	if !ok {
		return errors.Wrap(errRecNotFoundInCtx, "retrieving object from context")
	}

	rec, err := api.svc.Void(rec.ID)
	if err != nil {
		if errors.Cause(err) == record.ErrInvalidTransition {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "voiding record")
	}

	return ctx.JSON(http.StatusOK, rec)
}

// recordOwnerOrStaffMiddleware loads the record under :id into the context.
// Students only ever see their own records; unknown IDs and records of other
// students both come back as not found.
func recordOwnerOrStaffMiddleware(svc record.ServiceInterface, usrSvc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			rec, err := svc.GetByID(ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == record.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding record by ID")
			}

			if rec.StudentID == ctxUsr.ID || ctxUsr.IsInstructor() || ctxUsr.IsAdmin() {
				ctx.Set("object", rec)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

type LogRecordRequest struct {
	StudentID string `json:"student_id"`
	record.NewRecord
}

func (lr *LogRecordRequest) Validate(validate *validator.Validate) error {
	return lr.NewRecord.Validate(validate)
}
