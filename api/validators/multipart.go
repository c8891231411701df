package validators

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

const multipartMemory = 8 << 20

// FilePart is one uploaded file read fully into memory.
type FilePart struct {
	Payload []byte
	Name    string
}

// IsMultipart reports whether the request carries a multipart form body.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

// ParseMultipart bounds the body to maxBytes and parses the form.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").WithReason("MEDIA_TOO_LARGE")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	return nil
}

// FormFile returns nil when the field is absent.
func FormFile(r *http.Request, field string) (*FilePart, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	return readPart(headers[0], field)
}

// FormFiles returns every file attached under field, in order.
func FormFiles(r *http.Request, field string) ([]FilePart, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var parts []FilePart
	for _, h := range r.MultipartForm.File[field] {
		part, err := readPart(h, field)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *part)
	}
	return parts, nil
}

// DecodeFormJSON decodes the JSON document in a form field and validates it.
// Multipart requests carry their structured payload this way.
func DecodeFormJSON(r *http.Request, field string, dest any) error {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "form field required").WithDetails(map[string]any{"field": field})
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form payload").WithDetails(map[string]any{"field": field, "error": err.Error()})
	}
	return check(dest)
}

func readPart(h *multipart.FileHeader, field string) (*FilePart, error) {
	f, err := h.Open()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open upload").WithDetails(map[string]any{"field": field})
	}
	defer f.Close()
	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload").WithDetails(map[string]any{"field": field})
	}
	return &FilePart{Payload: payload, Name: h.Filename}, nil
}
