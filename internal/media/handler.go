package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/bandsite/service/internal/middleware"
	"github.com/bandsite/service/internal/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// Handler holds HTTP handlers for the media admin endpoints.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

// NewHandler creates a new media Handler.
func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "media_api").Logger()}
}

// ItemResult is the per-file outcome of a batch upload.
type ItemResult struct {
	Name   string        `json:"name"`
	Result *UploadResult `json:"result,omitempty"`
	Kind   Kind          `json:"kind,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Upload godoc
//
//	@Summary		Upload media
//	@Description	Uploads one or more files from the "files" form field. Identical content is deduplicated and raster images are normalized to WebP unless transcode=false.
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			files				formData	file	true	"Files to upload"
//	@Param			acl					formData	string	false	"private, public-read, public-read-write or authenticated-read"
//	@Param			fileType			formData	string	false	"Category override"
//	@Param			associationKind		formData	string	false	"Owning entity kind"
//	@Param			associationId		formData	string	false	"Owning entity id"
//	@Param			transcode			formData	bool	false	"Normalize raster images (default true)"
//	@Param			skipDuplicateCheck	formData	bool	false	"Store even if identical content exists"
//	@Success		201	{object}	response.Envelope{data=[]ItemResult}
//	@Success		200	{object}	response.Envelope{data=[]ItemResult}	"Every file was a duplicate"
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		413	{object}	response.Envelope
//	@Failure		422	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/media [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Config()
	if cfg.MaxBatchBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBatchBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Failure(w, http.StatusRequestEntityTooLarge, string(KindBatchLimit), "request body too large", nil)
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		response.BadRequest(w, "no files provided")
		return
	}

	var total int64
	for _, fh := range files {
		total += fh.Size
	}
	if err := h.svc.CheckBatch(len(files), total); err != nil {
		h.writeError(w, err)
		return
	}

	opts, err := h.uploadOptions(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	out := make([]ItemResult, len(files))
	items := make([]BatchItem, 0, len(files))
	slots := make([]int, 0, len(files))
	for i, fh := range files {
		out[i].Name = fh.Filename
		if cfg.MaxFileBytes > 0 && fh.Size > cfg.MaxFileBytes {
			out[i].Kind = KindOversize
			out[i].Error = "file exceeds the per-file size limit"
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			h.log.Warn().Err(err).Str("file", fh.Filename).Msg("failed to read multipart file")
			response.BadRequest(w, fmt.Sprintf("could not read %q", fh.Filename))
			return
		}
		contentType := DetectContentType(data, fh.Header.Get("Content-Type"))
		item := BatchItem{Data: data, Key: fh.Filename, ContentType: contentType, Options: opts}
		item.Options.Transcode = opts.Transcode && Transcodable(contentType)
		items = append(items, item)
		slots = append(slots, i)
	}

	results, err := h.svc.UploadBatch(r.Context(), items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for j, res := range results {
		i := slots[j]
		out[i].Result = res.Result
		if res.Err != nil {
			out[i].Kind = KindOf(res.Err)
			out[i].Error = PublicMessage(res.Err)
		}
	}

	stored, failed := 0, 0
	var first *ItemResult
	for i := range out {
		switch {
		case out[i].Result == nil:
			failed++
			if first == nil {
				first = &out[i]
			}
		case !out[i].Result.IsDuplicate:
			stored++
		}
	}

	switch {
	case failed == len(out):
		response.Failure(w, statusForKind(first.Kind), string(first.Kind), first.Error, out)
	case stored > 0:
		response.Created(w, out)
	default:
		response.OK(w, out)
	}
}

// Get godoc
//
//	@Summary		Get media record
//	@Description	Returns the metadata of an OK media object.
//	@Tags			media
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Media ID"
//	@Success		200	{object}	response.Envelope{data=MediaObject}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/media/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, obj)
}

// Delete godoc
//
//	@Summary		Delete media
//	@Description	Stops serving a media object and removes its stored bytes.
//	@Tags			media
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Media ID"
//	@Success		200	{object}	response.Envelope{data=MediaObject}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/media/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, obj)
}

func (h *Handler) uploadOptions(r *http.Request) (UploadOptions, error) {
	opts := UploadOptions{
		ACL:       ACL(r.FormValue("acl")),
		FileType:  r.FormValue("fileType"),
		Transcode: true,
	}
	if opts.ACL != "" && !opts.ACL.Valid() {
		return opts, fmt.Errorf("unknown acl %q", opts.ACL)
	}
	if opts.FileType != "" {
		if _, ok := ParseCategory(opts.FileType); !ok {
			return opts, fmt.Errorf("unknown fileType %q", opts.FileType)
		}
	}

	kind, id := r.FormValue("associationKind"), r.FormValue("associationId")
	if (kind == "") != (id == "") {
		return opts, errors.New("associationKind and associationId must be set together")
	}
	if kind != "" {
		opts.Association = &Association{Kind: kind, ID: id}
	}

	for field, dst := range map[string]*bool{"transcode": &opts.Transcode, "skipDuplicateCheck": &opts.SkipDuplicateCheck} {
		if v := r.FormValue(field); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("%s must be a boolean", field)
			}
			*dst = b
		}
	}

	if owner, err := uuid.Parse(middleware.UserID(r.Context())); err == nil {
		opts.OwnerID = owner.String()
	}
	return opts, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("media request failed")
	}
	if status == http.StatusInternalServerError && kind == "" {
		response.InternalError(w)
		return
	}
	response.Failure(w, status, string(kind), PublicMessage(err), nil)
}

// statusFor maps an error to the admin API status code.
func statusFor(err error) (int, Kind) {
	kind := KindOf(err)
	return statusForKind(kind), kind
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindOversize, KindBatchLimit:
		return http.StatusRequestEntityTooLarge
	case KindTranscodeFailure:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable, KindMetadataUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
