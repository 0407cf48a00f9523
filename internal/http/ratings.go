package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/rating"
	"github.com/one-folder-app/onefolder-api/internal/repository"
)

const missingParentMessage = "Please provide a comment, folder or software id"

// maxPage keeps page*limit inside the range the service accepts.
const maxPage = math.MaxInt32

type ratingCreateRequest struct {
	UserID     string  `json:"userId" validate:"required,uuid"`
	Rating     *int    `json:"rating" validate:"required,min=1,max=5"`
	CommentID  *string `json:"commentId" validate:"omitempty,uuid"`
	FolderID   *string `json:"folderId" validate:"omitempty,uuid"`
	SoftwareID *string `json:"softwareId" validate:"omitempty,uuid"`
}

// ratingUpdateRequest leaves the score unchanged when rating is omitted.
type ratingUpdateRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Rating *int   `json:"rating" validate:"omitempty,min=1,max=5"`
}

type parentQuery struct {
	CommentID  *string `json:"commentId" validate:"omitempty,uuid"`
	FolderID   *string `json:"folderId" validate:"omitempty,uuid"`
	SoftwareID *string `json:"softwareId" validate:"omitempty,uuid"`
}

// listQuery is the parsed form of GET /ratings. Page is 1-based.
type listQuery struct {
	Page  int
	Limit int
	Order repository.RatingOrder
	Desc  bool
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	query, err := buildListParams(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	page, err := s.ratings.ListRatings(r.Context(), rating.ListParams{
		Limit:     query.Limit,
		PageIndex: query.Page - 1,
		OrderBy:   query.Order,
		Desc:      query.Desc,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load ratings")
		return
	}
	if len(page.Items) == 0 {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Ratings not found")
		return
	}

	items := make([]ratingResponse, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, toRatingResponse(item))
	}

	s.respondJSON(w, http.StatusOK, ratingListResponse{
		Success:      true,
		Message:      "Ratings loaded",
		Ratings:      items,
		Links:        buildPageLinks(r.URL, query.Page, page.Limit, page.TotalPages),
		TotalPages:   page.TotalPages,
		TotalRatings: page.Total,
	})
}

// buildListParams parses page, limit, orderBy and order. Limit clamping is
// left to the service.
func buildListParams(query url.Values) (listQuery, error) {
	params := listQuery{Page: 1}

	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil || page <= 0 || page > maxPage {
			return params, fmt.Errorf("Invalid page")
		}
		params.Page = page
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit <= 0 {
			return params, fmt.Errorf("Invalid limit")
		}
		params.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("orderBy")); val != "" {
		order := repository.RatingOrder(val)
		if !repository.ValidRatingOrder(order) {
			return params, fmt.Errorf("Invalid orderBy value")
		}
		params.Order = order
	}
	switch strings.ToLower(strings.TrimSpace(query.Get("order"))) {
	case "", "asc":
	case "desc":
		params.Desc = true
	default:
		return params, fmt.Errorf("Invalid order value")
	}
	return params, nil
}

func buildPageLinks(base *url.URL, page, limit, totalPages int) paginationLinks {
	link := func(p int) *string {
		values := base.Query()
		values.Set("page", strconv.Itoa(p))
		values.Set("limit", strconv.Itoa(limit))
		u := url.URL{Path: base.Path, RawQuery: values.Encode()}
		out := u.String()
		return &out
	}

	var links paginationLinks
	if page < totalPages {
		links.Next = link(page + 1)
	}
	if page > 1 {
		links.Previous = link(page - 1)
	}
	return links
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ratingIDParam(w, r)
	if !ok {
		return
	}

	found, err := s.ratings.GetRatingByID(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingEnvelope{
		Success: true,
		Message: "Rating loaded",
		Rating:  toRatingResponse(found),
	})
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	var req ratingCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if details := validateStruct(req); details != nil {
		s.respondValidation(w, details)
		return
	}

	// A request without exactly one parent id yields a zero ref. The service
	// reports it after the author lookup.
	parent, _ := domain.ParentRefFromIDs(req.CommentID, req.FolderID, req.SoftwareID)

	result, err := s.ratings.CreateRating(r.Context(), rating.CreateParams{
		AuthorID: req.UserID,
		Score:    *req.Rating,
		Parent:   parent,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create rating")
		return
	}

	w.Header().Set("Location", "/ratings/"+result.Rating.ID)
	s.respondJSON(w, http.StatusCreated,
		mutationEnvelope(parent.Kind.Title()+" rated", result.Rating, &result.Entity))
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ratingIDParam(w, r)
	if !ok {
		return
	}

	var req ratingUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if details := validateStruct(req); details != nil {
		s.respondValidation(w, details)
		return
	}

	result, err := s.ratings.UpdateRating(r.Context(), rating.UpdateParams{
		RatingID: id,
		Score:    req.Rating,
		CallerID: req.UserID,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to edit rating")
		return
	}

	s.respondJSON(w, http.StatusOK,
		mutationEnvelope(result.Rating.Parent.Kind.Title()+"'s rating edited", result.Rating, &result.Entity))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ratingIDParam(w, r)
	if !ok {
		return
	}

	result, err := s.ratings.DeleteRating(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to delete rating")
		return
	}

	payload := map[string]interface{}{
		"success": true,
		"message": "Rating deleted",
	}
	if result.Entity != nil {
		payload[string(result.Entity.Kind)] = toEntityResponse(*result.Entity)
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetAverage(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := parentQuery{
		CommentID:  queryPtr(values, "commentId"),
		FolderID:   queryPtr(values, "folderId"),
		SoftwareID: queryPtr(values, "softwareId"),
	}
	if details := validateStruct(q); details != nil {
		s.respondValidation(w, details)
		return
	}

	parent, err := domain.ParentRefFromIDs(q.CommentID, q.FolderID, q.SoftwareID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", missingParentMessage)
		return
	}

	agg, err := s.ratings.GetRatingAggregate(r.Context(), parent)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load average rating")
		return
	}
	s.respondJSON(w, http.StatusOK, averageResponse{
		Success: true,
		Average: agg.Average,
		Count:   agg.Count,
	})
}

func (s *Server) ratingIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "ratingId"))
	if _, err := uuid.Parse(raw); err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid rating id")
		return "", false
	}
	return raw, true
}

func queryPtr(values url.Values, key string) *string {
	val := strings.TrimSpace(values.Get(key))
	if val == "" {
		return nil
	}
	return &val
}
