package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core/progress"
	"github.com/tmdent/clinlog/core/user"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errStudentNotFoundInCtx = errors.New("student object not found in echo.Context")

type progressApi struct {
	svc    progress.ServiceInterface
	usrSvc user.ServiceInterface
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc progress.ServiceInterface, usrSvc user.ServiceInterface) {
	api := progressApi{
		svc:    svc,
		usrSvc: usrSvc,
	}

	sg := g.Group("/students/:id", jwt, studentSelfOrStaffMiddleware(usrSvc))
	sg.GET("/progress", api.report)
	sg.GET("/progress/export", api.export)
}

// Handlers

func (api *progressApi) report(ctx echo.Context) error {
	student, ok := ctx.Get("student").(user.User)
	if !ok {
		return errors.Wrap(errStudentNotFoundInCtx, "retrieving student from context")
	}

	reports, err := api.svc.Report(student.ID)
	if err != nil {
		return errors.Wrap(err, "building progress report")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *progressApi) export(ctx echo.Context) error {
	student, ok := ctx.Get("student").(user.User)
	if !ok {
		return errors.Wrap(errStudentNotFoundInCtx, "retrieving student from context")
	}

	reports, err := api.svc.Report(student.ID)
	if err != nil {
		return errors.Wrap(err, "building progress report")
	}

	f, err := buildProgressWorkbook(student, reports)
	if err != nil {
		return errors.Wrap(err, "building progress workbook")
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return errors.Wrap(err, "serializing progress workbook")
	}

	filename := fmt.Sprintf("progress-%s.xlsx", student.Username)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentTypeXLSX, buf.Bytes())
}

// studentSelfOrStaffMiddleware loads the student under :id into the context.
// Students only ever see their own progress; staff see anyone's.
func studentSelfOrStaffMiddleware(usrSvc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsInstructor() || ctxUsr.IsAdmin() {
				if student, err := usrSvc.GetByID(ctx.Param("id")); err == nil {
					ctx.Set("student", student)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding student by ID")
				}
			}
			return errHttpNotFound
		}
	}
}
