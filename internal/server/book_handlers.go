package server

import (
	"net/http"
	"strconv"
	"strings"

	"bookshelf/internal/app"
	"bookshelf/pkg/domain"
)

// maxThumbnailBytes bounds multipart uploads.
const maxThumbnailBytes = 5 << 20

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, s.withOptionalUser(r))
	case http.MethodPost:
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		s.handleCreateBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.app.ListBooks(filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreateBook accepts multipart form data with book fields and an
// optional thumbnail file.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxThumbnailBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxThumbnailBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	in := app.CreateBookInput{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
	}
	if raw := r.FormValue("rating"); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "rating must be a number")
			return
		}
		in.Rating = &rating
	}

	book, err := s.app.CreateBook(user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if file, header, ferr := r.FormFile("thumbnail"); ferr == nil {
		defer file.Close()
		book, err = s.app.SetThumbnail(r.Context(), user, book.ID, header.Filename, file, header.Size)
		if err != nil {
			// The book exists; report the upload problem instead of the book.
			writeAppError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/books/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		r = s.withOptionalUser(r)
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)

	case sub == "" && r.Method == http.MethodPatch:
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		s.handleUpdateBook(w, r, user, id)

	case sub == "" && r.Method == http.MethodDelete:
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	case sub == "thumbnail" && r.Method == http.MethodPost:
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		s.handleUploadThumbnail(w, r, user, id)

	case sub != "" && sub != "thumbnail":
		http.NotFound(w, r)

	default:
		methodNotAllowed(w)
	}
}

type updateBookRequest struct {
	Title       *string  `json:"title"`
	Author      *string  `json:"author"`
	Description *string  `json:"description"`
	Rating      *float64 `json:"rating"`
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	var req updateBookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	book, err := s.app.UpdateBook(user, id, app.UpdateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Rating:      req.Rating,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleUploadThumbnail(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxThumbnailBytes)
	if err := r.ParseMultipartForm(maxThumbnailBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		writeError(w, http.StatusBadRequest, "thumbnail file is required")
		return
	}
	defer file.Close()

	book, err := s.app.SetThumbnail(r.Context(), user, id, header.Filename, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleBookStats(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.BookStats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseBookFilter(r *http.Request) (domain.BookFilter, error) {
	q := r.URL.Query()
	filter := domain.BookFilter{
		Search:    q.Get("search"),
		Author:    q.Get("author"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	var err error
	if filter.Page, err = parseIntParam(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.MinRating, err = parseFloatParam(q.Get("minRating"), "minRating"); err != nil {
		return filter, err
	}
	if filter.MaxRating, err = parseFloatParam(q.Get("maxRating"), "maxRating"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseIntParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name}
	}
	return n, nil
}

func parseFloatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &paramError{name}
	}
	return &f, nil
}

type paramError struct{ name string }

func (e *paramError) Error() string { return e.name + " must be a number" }
