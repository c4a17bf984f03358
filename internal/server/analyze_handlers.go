package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/preprocess"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

// analyzeHandler runs preprocessing and recognition on an uploaded image.
// Form fields: image (file), mode, lang, crop, enhance, roi ("x,y,w,h" in
// source pixels) and preview ("1" to return the preprocessed image).
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, meta, err := imageio.DecodeReader(file, header.Size)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	req, err := s.analyzeRequest(r.Context(), r)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Image = img

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	progress := recognize.NewLogProgress(s.logger, slog.LevelDebug)
	analysis, err := s.app.Recognizer.Run(ctx, req, progress)
	if err != nil {
		s.logger.Info("Analysis failed", "file", header.Filename, "mode", string(req.Mode), "error", err)
		s.writeErrorResponse(w, err.Error(), analysisStatus(err))
		return
	}

	result := AnalyzeResult{
		SourceType: analysis.SourceType,
		Value:      analysis.Value,
		Format:     analysis.Format,
		DurationMs: analysis.Duration.Milliseconds(),
		Region:     analysis.Plan.Final(),
		Width:      analysis.Processed.Bounds().Dx(),
		Height:     analysis.Processed.Bounds().Dy(),
	}
	if r.FormValue("preview") == "1" {
		data, err := imageio.EncodePNG(analysis.Processed)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
			return
		}
		result.Preview = base64.StdEncoding.EncodeToString(data)
	}

	s.logger.Info("Image analyzed",
		"file", header.Filename,
		"format", meta.Format,
		"source_type", string(result.SourceType),
		"duration_ms", result.DurationMs,
	)
	s.writeJSON(w, http.StatusOK, AnalyzeResponse{Success: true, Result: result})
}

// analyzeRequest reads recognition and preprocessing options from the form,
// falling back to stored settings and configuration.
func (s *Server) analyzeRequest(ctx context.Context, r *http.Request) (recognize.Request, error) {
	profile, err := s.app.Profile(ctx)
	if err != nil {
		return recognize.Request{}, err
	}

	mode := profile.Mode
	if v := r.FormValue("mode"); v != "" {
		if mode, err = recognize.ParseMode(v); err != nil {
			return recognize.Request{}, err
		}
	}
	lang := profile.Language
	if v := r.FormValue("lang"); v != "" {
		lang = v
	}

	crop, enhance := s.app.Config.Preprocess.Crop, s.app.Config.Preprocess.Enhance
	if v := r.FormValue("crop"); v != "" {
		crop = v
	}
	if v := r.FormValue("enhance"); v != "" {
		enhance = v
	}
	opts, err := preprocess.ParseOptions(crop, enhance)
	if err != nil {
		return recognize.Request{}, err
	}

	req := recognize.Request{Preprocess: opts, Mode: mode, Language: lang}
	if v := r.FormValue("roi"); v != "" {
		rect, err := geometry.ParseSelection(v)
		if err != nil {
			return recognize.Request{}, fmt.Errorf("roi: %w", err)
		}
		req.Selection = &rect
	}
	return req, nil
}

// analysisStatus maps a recognition failure to an HTTP status.
func analysisStatus(err error) int {
	switch {
	case errors.Is(err, recognize.ErrNoBarcodeFound),
		errors.Is(err, recognize.ErrEmptyRecognition),
		errors.Is(err, recognize.ErrBothFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var ie *imageio.Error
		if errors.As(err, &ie) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
