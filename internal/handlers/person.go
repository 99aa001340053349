package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type PersonRepo interface {
	GetByUID(ctx context.Context, uid string) (*models.Person, error)
	List(ctx context.Context, search string, page models.Page) ([]models.Person, int, error)
}

type PersonMatches interface {
	ListByMatchedID(ctx context.Context, uid string) ([]models.MatchResult, error)
}

// History reads a person's provenance from the lineage graph
type History interface {
	PersonHistory(ctx context.Context, uid string) ([]graph.Event, error)
}

// PersonHandler exposes known persons. history may be nil when the lineage
// graph is disabled.
type PersonHandler struct {
	persons PersonRepo
	results PersonMatches
	history History
	logger  ectologger.Logger
}

func NewPersonHandler(persons PersonRepo, results PersonMatches, history History, logger ectologger.Logger) *PersonHandler {
	return &PersonHandler{
		persons: persons,
		results: results,
		history: history,
		logger:  logger,
	}
}

// PersonDetail is a person with every decision that pointed at it
type PersonDetail struct {
	*models.Person
	Decisions []models.MatchResult `json:"decisions"`
}

// Register registers person routes
func (h *PersonHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:uid", h.Get)
	g.GET("/:uid/lineage", h.Lineage)
}

// List pages through persons, filtered by a name search
func (h *PersonHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PersonHandler.List")
	defer span.End()

	page, err := BindPage(c)
	if err != nil {
		return err
	}

	persons, total, err := h.persons.List(ctx, c.QueryParam("search"), page)
	if err != nil {
		return err
	}
	return SuccessResponse(c, models.NewListResponse(persons, total, page))
}

func (h *PersonHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PersonHandler.Get")
	defer span.End()

	person, err := h.persons.GetByUID(ctx, c.Param("uid"))
	if err != nil {
		return err
	}

	decisions, err := h.results.ListByMatchedID(ctx, person.UID)
	if err != nil {
		return err
	}
	if decisions == nil {
		decisions = []models.MatchResult{}
	}
	return SuccessResponse(c, PersonDetail{Person: person, Decisions: decisions})
}

// Lineage returns the batches and decisions that created or matched a person
func (h *PersonHandler) Lineage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PersonHandler.Lineage")
	defer span.End()

	if h.history == nil {
		return httperror.NewHTTPError(http.StatusNotImplemented, "lineage graph is not enabled")
	}

	person, err := h.persons.GetByUID(ctx, c.Param("uid"))
	if err != nil {
		return err
	}

	events, err := h.history.PersonHistory(ctx, person.UID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("uid", person.UID).Error("failed to read person lineage")
		return httperror.NewHTTPError(http.StatusBadGateway, "failed to read person lineage")
	}
	if events == nil {
		events = []graph.Event{}
	}
	return SuccessResponse(c, events)
}
