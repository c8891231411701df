package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
)

var allowedMimeTypes = map[enums.MediaKind][]string{
	enums.MediaKindImage: {"image/gif", "image/jpeg", "image/png", "image/webp"},
	enums.MediaKindVideo: {"video/mp4", "video/webm"},
}

// Limits caps payload sizes per media kind.
type Limits struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

// LimitsFromMB builds Limits from megabyte settings.
func LimitsFromMB(imageMB, videoMB int) Limits {
	return Limits{
		MaxImageBytes: int64(imageMB) << 20,
		MaxVideoBytes: int64(videoMB) << 20,
	}
}

// Sniff detects the payload's media kind and mime type from its leading bytes.
// kind may be MediaKindAuto to accept either images or videos.
func Sniff(payload []byte, kind enums.MediaKind, limits Limits) (enums.MediaKind, string, error) {
	if len(payload) == 0 {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "media payload is empty")
	}

	mime := mimetype.Detect(payload).String()
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}

	detected := ""
	for candidate, types := range allowedMimeTypes {
		if contains(types, mime) {
			detected = string(candidate)
			break
		}
	}
	if detected == "" || (kind != enums.MediaKindAuto && kind != "" && string(kind) != detected) {
		return "", mime, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported media type %s", mime)).
			WithDetails(map[string]any{"allowed": allowedFor(kind)})
	}

	detectedKind := enums.MediaKind(detected)
	max := limits.MaxImageBytes
	if detectedKind == enums.MediaKindVideo {
		max = limits.MaxVideoBytes
	}
	if max > 0 && int64(len(payload)) > max {
		return "", mime, pkgerrors.New(pkgerrors.CodeValidation, "media payload too large").
			WithDetails(map[string]any{"max_bytes": max, "size": len(payload)})
	}

	return detectedKind, mime, nil
}

func allowedFor(kind enums.MediaKind) []string {
	if types, ok := allowedMimeTypes[kind]; ok {
		return types
	}
	var all []string
	for _, types := range allowedMimeTypes {
		all = append(all, types...)
	}
	sort.Strings(all)
	return all
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
