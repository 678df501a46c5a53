package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/requirement"
)

type catalogApi struct {
	svc      requirement.ServiceInterface
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc requirement.ServiceInterface, validate *validator.Validate) {
	api := catalogApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/divisions", api.queryDivisions, jwt)

	rg := g.Group("/requirements", jwt)
	rg.GET("", api.query)
	rg.POST("", api.create, adminMiddleware())
	rg.DELETE("", api.destroyMultiple, adminMiddleware())
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update, adminMiddleware())
	rg.DELETE("/:id", api.destroy, adminMiddleware())
}

// Handlers

func (api *catalogApi) queryDivisions(ctx echo.Context) error {
	divs, err := api.svc.QueryDivisions()
	if err != nil {
		return errors.Wrap(err, "querying divisions")
	}
	if divs == nil {
		divs = []requirement.Division{}
	}
	return ctx.JSON(http.StatusOK, divs)
}

func (api *catalogApi) create(ctx echo.Context) error {
	var data requirement.NewRequirement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequirement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Create(data)
	if err != nil {
		if errors.Cause(err) == requirement.ErrRequirementExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return errors.Wrap(err, "creating requirement")
	}

	return ctx.JSON(http.StatusCreated, req)
}

func (api *catalogApi) query(ctx echo.Context) error {
	filter := new(requirement.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []requirement.Requirement{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reqs, err := api.svc.Query(filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying requirements")
	}
	if reqs == nil {
		reqs = []requirement.Requirement{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *catalogApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == requirement.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding requirement by ID")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *catalogApi) update(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == requirement.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding requirement by ID")
	}

	var data requirement.UpdateRequirement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRequirement")
	}
	if err := data.Validate(req, api.validate); err != nil {
		return err
	}

	req, err = api.svc.Update(req.ID, data)
	if err != nil {
		if errors.Cause(err) == requirement.ErrRequirementExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return errors.Wrap(err, "updating requirement")
	}

	return ctx.JSON(http.StatusOK, req)
}

func (api *catalogApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Param("id")); err != nil {
		if errors.Cause(err) == requirement.ErrRequirementInUse {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "deleting requirement")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(query.IDs...); err != nil {
		if errors.Cause(err) == requirement.ErrRequirementInUse {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "deleting requirements")
	}
	return ctx.NoContent(http.StatusNoContent)
}
