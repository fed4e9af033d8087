package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/formcoach/formcheck/internal/analysis"
	"github.com/formcoach/formcheck/internal/journal"
	"github.com/formcoach/formcheck/internal/logging"
)

const (
	videoField    = "video"
	videoURLField = "video_url"

	maxFieldBytes = 8 << 10
	maxJSONBytes  = 64 << 10
	// Multipart framing and small fields on top of the largest video.
	multipartSlack = 1 << 20
)

var errBadRequest = errors.New("bad request")

func analyzeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.WithRequestID(cfg.Logger, requestIDFrom(r.Context()))

		sub, err := readSubmission(w, r, cfg)
		if err != nil {
			logger.Warn("unreadable analyze request", "error", err)
			WriteError(w, http.StatusBadRequest, "The request could not be read. Send multipart/form-data with a video file or video_url, or JSON with video_url.", analysis.KindValidation.Code())
			return
		}

		var tracker analysis.Tracker = analysis.NopTracker{}
		var run *journal.RunTracker
		if cfg.Journal != nil {
			kind, ref := describe(sub)
			run = cfg.Journal.Begin(r.Context(), kind, ref, sub.Size)
			tracker = run
			logger = logging.WithRunID(logger, run.ID())
		}

		out, err := cfg.Analyzer.Analyze(r.Context(), sub, tracker)
		if err != nil {
			status := analysis.HTTPStatus(err)
			message, code := "internal server error", "INTERNAL_ERROR"
			var ae *analysis.Error
			if errors.As(err, &ae) {
				message, code = ae.Message, ae.Kind.Code()
			}
			resp := ErrorResponse{Error: message, Code: code}
			if run != nil {
				// Diagnostics stay in the logs; the journal is served back to clients.
				run.Fail(r.Context(), code, message)
				resp.RunID = run.ID()
			}
			logger.Info("analyze request failed", "status", status, "code", code)
			WriteJSON(w, status, resp)
			return
		}

		resp := AnalyzeResponse{Analysis: out.Text}
		if run != nil {
			run.Complete(r.Context(), out.Text)
			resp.RunID = run.ID()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func describe(sub analysis.Submission) (kind, ref string) {
	if u := strings.TrimSpace(sub.VideoURL); analysis.IsAbsoluteURL(u) {
		return string(analysis.SourceURL), u
	}
	return string(analysis.SourceInline), sub.Filename
}

func readSubmission(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (analysis.Submission, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return analysis.Submission{}, errBadRequest
	}

	switch mediaType {
	case "multipart/form-data":
		return readMultipart(w, r, cfg)
	case "application/json":
		var req AnalyzeJSONRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(&req); err != nil {
			return analysis.Submission{}, err
		}
		return analysis.Submission{VideoURL: req.VideoURL}, nil
	default:
		return analysis.Submission{}, errBadRequest
	}
}

// readMultipart streams the form. Inline bytes are buffered only up to the
// inline ceiling; past that the part is drained and counted so the gate can
// tell an oversized upload from an unsupported one, and a video_url that
// follows the file is still seen.
func readMultipart(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (analysis.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.HardMaxBytes+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		return analysis.Submission{}, err
	}

	var sub analysis.Submission
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return sub, nil
		}
		if err == nil {
			err = readPart(part, cfg, &sub)
			part.Close()
		}
		if err != nil {
			if overLimit(err) {
				sub.Size, sub.Data = cfg.HardMaxBytes+1, nil
				return sub, nil
			}
			return analysis.Submission{}, err
		}
	}
}

func readPart(part *multipart.Part, cfg ServerConfig, sub *analysis.Submission) error {
	switch part.FormName() {
	case videoURLField:
		b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		if err != nil {
			return err
		}
		sub.VideoURL = strings.TrimSpace(string(b))
	case videoField:
		return readVideoPart(part, cfg, sub)
	}
	return nil
}

func readVideoPart(part *multipart.Part, cfg ServerConfig, sub *analysis.Submission) error {
	sub.Filename = part.FileName()
	sub.ContentType = part.Header.Get("Content-Type")

	data, err := io.ReadAll(io.LimitReader(part, cfg.MaxInlineBytes+1))
	if err != nil {
		return err
	}
	if int64(len(data)) <= cfg.MaxInlineBytes {
		sub.Data, sub.Size = data, int64(len(data))
		return nil
	}

	rest, err := io.Copy(io.Discard, part)
	if err != nil {
		return err
	}
	sub.Data, sub.Size = nil, int64(len(data))+rest
	return nil
}

func overLimit(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
