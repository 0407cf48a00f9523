package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/rating"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Success bool         `json:"success"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []fieldError `json:"details,omitempty"`
}

type ratingResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	Rating     int       `json:"rating"`
	CommentID  *string   `json:"commentId"`
	FolderID   *string   `json:"folderId"`
	SoftwareID *string   `json:"softwareId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type entityResponse struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	Name          *string   `json:"name,omitempty"`
	Content       *string   `json:"content,omitempty"`
	AverageRating *float64  `json:"averageRating"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type paginationLinks struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

type ratingListResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Ratings      []ratingResponse `json:"ratings"`
	Links        paginationLinks  `json:"links"`
	TotalPages   int              `json:"totalPages"`
	TotalRatings int64            `json:"totalRatings"`
}

type ratingEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Rating  ratingResponse `json:"rating"`
}

type poolStats struct {
	TotalConns    int32 `json:"totalConns"`
	IdleConns     int32 `json:"idleConns"`
	AcquiredConns int32 `json:"acquiredConns"`
	MaxConns      int32 `json:"maxConns"`
}

type healthResponse struct {
	Status string     `json:"status"`
	Pool   *poolStats `json:"pool,omitempty"`
}

type averageResponse struct {
	Success bool     `json:"success"`
	Average *float64 `json:"average"`
	Count   int64    `json:"count"`
}

func toRatingResponse(r domain.Rating) ratingResponse {
	commentID, folderID, softwareID := r.Parent.IDs()
	return ratingResponse{
		ID:         r.ID,
		AuthorID:   r.AuthorID,
		Rating:     r.Score,
		CommentID:  commentID,
		FolderID:   folderID,
		SoftwareID: softwareID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toEntityResponse(e domain.Entity) entityResponse {
	resp := entityResponse{
		ID:            e.ID,
		AuthorID:      e.AuthorID,
		AverageRating: e.AverageRating,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	title := e.Title
	if e.Kind == domain.KindComment {
		resp.Content = &title
	} else {
		resp.Name = &title
	}
	return resp
}

// mutationEnvelope renders {success, message, rating, <kind>: entity}. The
// entity key is the parent's kind, so the payload is built as a map.
func mutationEnvelope(message string, r domain.Rating, parent *domain.Entity) map[string]interface{} {
	payload := map[string]interface{}{
		"success": true,
		"message": message,
		"rating":  toRatingResponse(r),
	}
	if parent != nil {
		payload[string(parent.Kind)] = toEntityResponse(*parent)
	}
	return payload
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondValidation(w http.ResponseWriter, details []fieldError) {
	s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "Invalid input",
		Details: details,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps a rating.Error kind to a status code. Anything
// that is not a client error is logged and hidden behind failure.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	switch rating.KindOf(err) {
	case rating.KindNotFound:
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", rating.MessageOf(err))
	case rating.KindConflict:
		s.respondError(w, http.StatusConflict, "CONFLICT", rating.MessageOf(err))
	case rating.KindInvalid:
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", rating.MessageOf(err))
	default:
		s.requestLogger(r).Error(failure, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", failure)
	}
}
