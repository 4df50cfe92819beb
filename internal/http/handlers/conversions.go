package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"illustrator/internal/conversion"
	"illustrator/internal/domain"
	"illustrator/pkg/zip"
)

const multipartMemory = 32 << 20

type jobResponse struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	StyleID         string     `json:"styleId"`
	TotalImages     int        `json:"totalImages"`
	CompletedImages int        `json:"completedImages"`
	ResultIDs       []string   `json:"resultIds"`
	FailedIndices   []int      `json:"failedIndices"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func toJobResponse(job *domain.ConversionJob) jobResponse {
	resp := jobResponse{
		ID:              job.ID,
		Kind:            string(job.Kind),
		Status:          string(job.Status),
		StyleID:         job.StyleID,
		TotalImages:     job.TotalImages,
		CompletedImages: job.CompletedImages,
		ResultIDs:       job.ResultIDs,
		FailedIndices:   job.FailedIndices,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
	if resp.ResultIDs == nil {
		resp.ResultIDs = []string{}
	}
	if resp.FailedIndices == nil {
		resp.FailedIndices = []int{}
	}
	return resp
}

// SubmitConversion accepts a multipart form with one or more "images" files, a "styleId",
// an optional "kind" and an optional "sceneAnalysis" JSON document.
func (a *App) SubmitConversion(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, domain.CodeInvalidInput, "upload too large")
			return
		}
		a.error(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid multipart payload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads, err := readUploads(r.MultipartForm.File["images"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := conversion.SubmitRequest{
		OwnerID:       owner.ID,
		Authenticated: owner.Authenticated,
		Kind:          domain.JobKind(r.FormValue("kind")),
		StyleID:       r.FormValue("styleId"),
		Images:        uploads,
	}
	if raw := r.FormValue("sceneAnalysis"); raw != "" {
		var scene domain.SceneAnalysis
		if err := json.Unmarshal([]byte(raw), &scene); err != nil {
			a.error(w, http.StatusBadRequest, domain.CodeInvalidInput, "sceneAnalysis is not valid JSON")
			return
		}
		req.Scene = &scene
	}

	res, err := a.Conversions.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func readUploads(files []*multipart.FileHeader) ([]conversion.Upload, error) {
	out := make([]conversion.Upload, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: image %d unreadable", domain.ErrInvalidInput, i)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: image %d unreadable", domain.ErrInvalidInput, i)
		}
		out = append(out, conversion.Upload{Filename: fh.Filename, Data: data})
	}
	return out, nil
}

func (a *App) ConversionStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func (a *App) ConversionArchive(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		a.error(w, http.StatusConflict, domain.CodeConflict, "job is still running")
		return
	}
	assets, err := a.Conversions.Archive(r.Context(), job)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=conversion-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: archive stream failed")
	}
}

// ownedJob loads the job in the URL. Jobs of other owners are reported as missing.
func (a *App) ownedJob(w http.ResponseWriter, r *http.Request) (*domain.ConversionJob, bool) {
	owner, ok := a.owner(w, r)
	if !ok {
		return nil, false
	}
	job, err := a.Conversions.Status(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return job, true
}
