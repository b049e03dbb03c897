package api

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/storage"
)

// archiveProbeSize bounds how much of an upload is buffered to verify it is
// a gzip tar archive before the stream goes to the object store.
const archiveProbeSize = 32 * 1024

func (s *Server) uploadLimitFor(kind model.UploadKind) int64 {
	switch kind {
	case model.UploadBinaries:
		return s.cfg.Uploads.BinariesLimit
	case model.UploadSeeds:
		return s.cfg.Uploads.SeedsLimit
	default:
		return s.cfg.Uploads.ConfigLimit
	}
}

// probeGzipTar checks that the buffered prefix of an upload opens as a gzip
// stream containing a tar header. A prefix too short to decide passes; the
// scheduler re-validates during verification.
func probeGzipTar(prefix []byte) error {
	if len(prefix) < 2 || prefix[0] != 0x1f || prefix[1] != 0x8b {
		return apierr.ErrFileNotArchive
	}
	gz, err := gzip.NewReader(bytes.NewReader(prefix))
	if err != nil {
		return apierr.ErrFileNotArchive
	}
	defer gz.Close()
	if _, err := tar.NewReader(gz).Next(); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		return apierr.ErrFileNotArchive
	}
	return nil
}

// recordUploadFailure marks the slot failed and persists it so health
// reflects the broken artifact. Validation rejections keep their own code on
// the slot; size and I/O failures are recorded as a generic upload failure
// even though the response carries the specific code.
func (s *Server) recordUploadFailure(c echo.Context, revision *model.Revision, kind model.UploadKind, cause error) {
	code := apierr.ErrUploadFailure.Code
	message := apierr.ErrUploadFailure.Message
	if apiErr, ok := apierr.As(cause); ok {
		switch apiErr.Code {
		case apierr.ErrFileNotArchive.Code, apierr.ErrJSONFileIsInvalid.Code:
			code = apiErr.Code
			message = apiErr.Message
		}
	}
	slot := revision.Slot(kind)
	slot.Attempted = true
	slot.Uploaded = false
	slot.LastError = &model.UploadError{Code: code, Message: message}
	revision.RecomputeHealth()
	if err := s.store.Revisions.Update(c.Request().Context(), revision); err != nil {
		common.Logger.WithError(err).Error("recording upload failure")
	}
}

// uploadRevisionFile streams one artifact into the object store. Binaries
// and seeds must be gzip tar archives; config must be a JSON object.
// Artifacts freeze once verification starts.
func (s *Server) uploadRevisionFile(c echo.Context) error {
	kind, ok := model.ParseUploadKind(c.Param("kind"))
	if !ok {
		return apierr.ErrValidationFailed.WithMessage("unknown file kind %q", c.Param("kind"))
	}
	revision := pathRevision(c)
	if !revision.Editable() {
		return apierr.ErrWrongRevisionStatus
	}
	ctx := c.Request().Context()
	limit := s.uploadLimitFor(kind)
	key := storage.ArtifactKey(revision.FuzzerID, revision.ID, kind)

	var uploadErr error
	switch kind {
	case model.UploadConfig:
		data, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > limit {
			s.recordUploadFailure(c, revision, kind, apierr.ErrFileTooLarge)
			return apierr.ErrFileTooLarge
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			s.recordUploadFailure(c, revision, kind, apierr.ErrJSONFileIsInvalid)
			return apierr.ErrJSONFileIsInvalid
		}
		uploadErr = s.objects.Upload(ctx, key, bytes.NewReader(data), limit)

	default:
		buffered := bufio.NewReaderSize(c.Request().Body, archiveProbeSize)
		prefix, err := buffered.Peek(archiveProbeSize)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
		if err := probeGzipTar(prefix); err != nil {
			s.recordUploadFailure(c, revision, kind, err)
			return err
		}
		uploadErr = s.objects.Upload(ctx, key, buffered, limit)
	}

	if uploadErr != nil {
		s.recordUploadFailure(c, revision, kind, uploadErr)
		return uploadErr
	}

	slot := revision.Slot(kind)
	slot.Attempted = true
	slot.Uploaded = true
	slot.LastError = nil
	revision.RecomputeHealth()
	if err := s.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}
	common.Logger.WithFields(map[string]interface{}{
		"revision": revision.ID,
		"kind":     kind,
	}).Info("uploaded revision artifact")
	return c.JSON(http.StatusOK, revision)
}

// downloadRevisionFile streams one stored artifact back to the client.
func (s *Server) downloadRevisionFile(c echo.Context) error {
	kind, ok := model.ParseUploadKind(c.Param("kind"))
	if !ok {
		return apierr.ErrValidationFailed.WithMessage("unknown file kind %q", c.Param("kind"))
	}
	revision := pathRevision(c)
	key := storage.ArtifactKey(revision.FuzzerID, revision.ID, kind)

	body, size, err := s.objects.Download(c.Request().Context(), key)
	if err != nil {
		return err
	}
	defer body.Close()

	contentType := "application/gzip"
	if kind == model.UploadConfig {
		contentType = echo.MIMEApplicationJSON
	}
	if size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}
	return c.Stream(http.StatusOK, contentType, body)
}

// copyCorpus clones the corpus of another revision of the same fuzzer into
// this one. The target corpus may only be seeded while the revision is still
// unverified.
func (s *Server) copyCorpus(c echo.Context) error {
	var req struct {
		SourceRevisionID string `json:"source_revision_id"`
	}
	if err := c.Bind(&req); err != nil || req.SourceRevisionID == "" {
		return apierr.ErrValidationFailed.WithMessage("source_revision_id is required")
	}
	ctx := c.Request().Context()
	target := pathRevision(c)

	if req.SourceRevisionID == target.ID {
		return apierr.ErrCopySourceTargetSame
	}
	if !target.Editable() {
		return apierr.ErrCorpusOverwriteForbidden
	}
	source, err := s.store.Revisions.GetByID(ctx, req.SourceRevisionID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrRevisionNotFound.Code) {
			return apierr.ErrSourceRevisionNotFound
		}
		return err
	}
	if source.FuzzerID != target.FuzzerID {
		return apierr.ErrSourceRevisionNotFound
	}
	if err := s.objects.CopyPrefix(ctx,
		storage.CorpusPrefix(source.FuzzerID, source.ID),
		storage.CorpusPrefix(target.FuzzerID, target.ID),
	); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// streamCorpus writes the revision corpus as a gzip tar attachment.
func (s *Server) streamCorpus(c echo.Context, fuzzerID, revisionID string) error {
	prefix := storage.CorpusPrefix(fuzzerID, revisionID)
	c.Response().Header().Set(echo.HeaderContentType, "application/gzip")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="corpus.tar.gz"`)
	return s.objects.TarPrefix(c.Request().Context(), prefix, c.Response())
}

func (s *Server) downloadCorpus(c echo.Context) error {
	revision := pathRevision(c)
	return s.streamCorpus(c, revision.FuzzerID, revision.ID)
}

func (s *Server) downloadActiveCorpus(c echo.Context) error {
	fuzzer := pathFuzzer(c)
	revision, err := s.activeRevisionOf(c.Request().Context(), fuzzer)
	if err != nil {
		return err
	}
	return s.streamCorpus(c, revision.FuzzerID, revision.ID)
}
