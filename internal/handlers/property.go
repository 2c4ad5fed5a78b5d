package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/session"
	"github.com/primeacre/apiserver/types"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 32 << 20
	formFieldImages    = "images"
	propertyNotFound   = "property not found"
)

// Listings is the listing use-case surface the handlers depend on.
type Listings interface {
	List(ctx context.Context) ([]types.Listing, error)
	Get(ctx context.Context, id string) (types.Listing, error)
	Create(ctx context.Context, agentID string, in services.ListingInput, uploads []services.Upload) (types.Listing, error)
	Update(ctx context.Context, id, callerID string, in services.ListingInput, uploads []services.Upload) (types.Listing, error)
	Delete(ctx context.Context, id, callerID string) error
}

// Interests records a client's interest in a listing.
type Interests interface {
	MarkInterested(ctx context.Context, clientID, listingID string) (bool, error)
}

// PropertyHandler serves listing endpoints.
type PropertyHandler struct {
	listings  Listings
	interests Interests
	limits    config.UploadConfig
	log       *zap.Logger
}

// NewPropertyHandler constructs a handler with the provided services.
func NewPropertyHandler(listings Listings, interests Interests, limits config.UploadConfig, log *zap.Logger) *PropertyHandler {
	return &PropertyHandler{listings: listings, interests: interests, limits: limits, log: log}
}

// PropertyRouter registers listing routes, and the review routes nested
// under a listing, on the given router.
func PropertyRouter(r chi.Router, h *PropertyHandler, reviews *ReviewHandler) {
	agentOnly := session.Require(session.Role(types.RoleAgent))
	clientOnly := session.Require(session.Role(types.RoleClient))

	r.Get("/", h.List)
	r.With(agentOnly).Post("/", h.Create)
	r.Route("/{propertyID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(agentOnly).Patch("/", h.Update)
		r.With(agentOnly).Delete("/", h.Delete)
		r.With(clientOnly).Post("/interested", h.MarkInterested)

		r.Get("/reviews", reviews.List)
		r.With(clientOnly).Post("/reviews", reviews.Create)
		r.With(clientOnly).Patch("/reviews/{reviewID}", reviews.Update)
		r.With(clientOnly).Delete("/reviews/{reviewID}", reviews.Delete)
	})
}

// ListingRequest is the listing payload. Absent fields are nil. It is read
// from a JSON body or from multipart form fields of the same names.
type ListingRequest struct {
	Title        *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=5000"`
	Price        *float64 `json:"price" validate:"omitempty,gt=0"`
	Location     *string  `json:"location" validate:"omitempty,min=1,max=300"`
	Size         *float64 `json:"size" validate:"omitempty,gt=0"`
	Bedrooms     *int     `json:"bedrooms" validate:"omitempty,gte=0"`
	Bathrooms    *int     `json:"bathrooms" validate:"omitempty,gte=0"`
	PropertyType *string  `json:"propertyType" validate:"omitempty,oneof=Apartment House Condo Land Commercial"`
	Status       *string  `json:"status" validate:"omitempty,oneof=Available Sold Pending"`
	DateListed   *string  `json:"dateListed"`
	Images       []string `json:"images" validate:"omitempty,dive,url"`
}

func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.List(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.Get(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Create publishes a listing owned by the calling agent.
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	in, uploads, err := h.parseListingRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.listings.Create(r.Context(), identity.UserID, in, uploads)
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// Update merges the supplied fields into a listing owned by the caller.
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	in, uploads, err := h.parseListingRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.listings.Update(r.Context(), chi.URLParam(r, "propertyID"), identity.UserID, in, uploads)
	if err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	if err := h.listings.Delete(r.Context(), chi.URLParam(r, "propertyID"), identity.UserID); err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Property and associated images deleted")
}

// MarkInterested adds the listing to the calling client's interested set.
// Repeating the call is harmless.
func (h *PropertyHandler) MarkInterested(w http.ResponseWriter, r *http.Request) {
	identity, _ := session.FromContext(r.Context())

	if _, err := h.interests.MarkInterested(r.Context(), identity.UserID, chi.URLParam(r, "propertyID")); err != nil {
		writeServiceError(w, h.log, err, propertyNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Property marked as interested")
}

func (h *PropertyHandler) parseListingRequest(w http.ResponseWriter, r *http.Request) (services.ListingInput, []services.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req ListingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return services.ListingInput{}, nil, err
		}
		in, err := req.input()
		return in, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxMultipartBytes())
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.ListingInput{}, nil, errors.New("invalid multipart form")
	}
	req, err := listingRequestFromForm(r.MultipartForm)
	if err != nil {
		return services.ListingInput{}, nil, err
	}
	if err := validateRequest(&req); err != nil {
		return services.ListingInput{}, nil, err
	}
	in, err := req.input()
	if err != nil {
		return services.ListingInput{}, nil, err
	}
	uploads, err := h.readUploads(r.MultipartForm)
	if err != nil {
		return services.ListingInput{}, nil, err
	}
	return in, uploads, nil
}

func (h *PropertyHandler) maxMultipartBytes() int64 {
	return int64(h.limits.MaxImages)*h.limits.MaxImageBytes + maxJSONBodyBytes
}

func (h *PropertyHandler) readUploads(form *multipart.Form) ([]services.Upload, error) {
	files := form.File[formFieldImages]
	if h.limits.MaxImages > 0 && len(files) > h.limits.MaxImages {
		return nil, fmt.Errorf("at most %d images may be uploaded", h.limits.MaxImages)
	}

	uploads := make([]services.Upload, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read image %q", fileHeader.Filename)
		}
		data, err := readFileLimited(file, h.limits.MaxImageBytes)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", fileHeader.Filename, err)
		}
		uploads = append(uploads, services.Upload{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Size:        int64(len(data)),
			Body:        bytes.NewReader(data),
		})
	}
	return uploads, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

func listingRequestFromForm(form *multipart.Form) (ListingRequest, error) {
	var req ListingRequest
	value := func(name string) (string, bool) {
		values, ok := form.Value[name]
		if !ok || len(values) == 0 {
			return "", false
		}
		return strings.TrimSpace(values[0]), true
	}

	if v, ok := value("title"); ok {
		req.Title = &v
	}
	if v, ok := value("description"); ok {
		req.Description = &v
	}
	if v, ok := value("location"); ok {
		req.Location = &v
	}
	if v, ok := value("propertyType"); ok {
		req.PropertyType = &v
	}
	if v, ok := value("status"); ok {
		req.Status = &v
	}

	var err error
	if req.Price, err = parseOptionalFloat(value("price")); err != nil {
		return req, errors.New("price must be a number")
	}
	if req.Size, err = parseOptionalFloat(value("size")); err != nil {
		return req, errors.New("size must be a number")
	}
	if req.Bedrooms, err = parseOptionalInt(value("bedrooms")); err != nil {
		return req, errors.New("bedrooms must be a whole number")
	}
	if req.Bathrooms, err = parseOptionalInt(value("bathrooms")); err != nil {
		return req, errors.New("bathrooms must be a whole number")
	}
	if v, ok := value("dateListed"); ok && v != "" {
		req.DateListed = &v
	}

	if urls, ok := form.Value[formFieldImages]; ok {
		req.Images = make([]string, 0, len(urls))
		for _, raw := range urls {
			req.Images = append(req.Images, parseList(raw)...)
		}
	}
	return req, nil
}

func (req ListingRequest) input() (services.ListingInput, error) {
	in := services.ListingInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Location:    req.Location,
		Size:        req.Size,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Images:      req.Images,
	}
	if req.DateListed != nil {
		listedAt, err := parseDate(strings.TrimSpace(*req.DateListed))
		if err != nil {
			return services.ListingInput{}, errors.New("dateListed must be an RFC 3339 timestamp or a YYYY-MM-DD date")
		}
		in.ListedAt = &listedAt
	}
	if req.PropertyType != nil {
		propertyType := types.PropertyType(*req.PropertyType)
		in.PropertyType = &propertyType
	}
	if req.Status != nil {
		status := types.ListingStatus(*req.Status)
		in.Status = &status
	}
	return in, nil
}

// parseOptionalFloat treats a missing or blank field as not supplied.
func parseOptionalFloat(value string, ok bool) (*float64, error) {
	if !ok || value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil, errors.New("not a finite number")
	}
	return &parsed, nil
}

func parseOptionalInt(value string, ok bool) (*int, error) {
	if !ok || value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, value)
}

// parseList splits a comma separated form value.
func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}
