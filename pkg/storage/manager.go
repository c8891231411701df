package storage

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gallotrack-backend/pkg/errors"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
)

// Manager owns the process-wide active adapter and delegates every call to
// it. The active adapter is replaced only at startup and by SwitchProvider.
type Manager struct {
	adapters map[string]Adapter
	order    []string
	active   atomic.Pointer[activeAdapter]
	logg     *logger.Logger
}

type activeAdapter struct {
	adapter Adapter
}

// NewManager registers adapters in priority order and elects the preferred
// one. When the preferred adapter is unavailable, the first available adapter
// in registration order is elected instead and the substitution is logged.
func NewManager(ctx context.Context, preferred string, logg *logger.Logger, adapters ...Adapter) (*Manager, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one storage adapter is required")
	}

	m := &Manager{
		adapters: make(map[string]Adapter, len(adapters)),
		logg:     logg,
	}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := normalizeName(adapter.Name())
		if _, dup := m.adapters[name]; dup {
			return nil, fmt.Errorf("storage adapter %q registered twice", name)
		}
		m.adapters[name] = adapter
		m.order = append(m.order, name)
	}
	if len(m.order) == 0 {
		return nil, fmt.Errorf("at least one storage adapter is required")
	}

	m.active.Store(&activeAdapter{adapter: m.elect(ctx, normalizeName(preferred))})
	return m, nil
}

func (m *Manager) elect(ctx context.Context, preferred string) Adapter {
	if candidate, ok := m.adapters[preferred]; ok && candidate.Available() {
		return candidate
	}

	for _, name := range m.order {
		if name == preferred {
			continue
		}
		candidate := m.adapters[name]
		if candidate.Available() {
			if m.logg != nil {
				fctx := m.logg.WithFields(ctx, map[string]any{
					"provider":           name,
					"preferred_provider": preferred,
				})
				m.logg.Warn(fctx, "preferred storage provider unavailable; using fallback")
			}
			return candidate
		}
	}

	fallback := m.adapters[m.order[0]]
	if candidate, ok := m.adapters[preferred]; ok {
		fallback = candidate
	}
	if m.logg != nil {
		m.logg.Warn(m.logg.WithProvider(ctx, fallback.Name()), "no storage provider available; uploads will fail")
	}
	return fallback
}

// Active returns the adapter currently serving calls.
func (m *Manager) Active() Adapter {
	return m.active.Load().adapter
}

// ActiveName is the registry key of the active adapter.
func (m *Manager) ActiveName() string {
	return normalizeName(m.Active().Name())
}

// Providers lists the registered adapter names in priority order.
func (m *Manager) Providers() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SwitchProvider replaces the active adapter for new uploads. The switch is
// local to this process.
func (m *Manager) SwitchProvider(ctx context.Context, name string) error {
	key := normalizeName(name)
	adapter, ok := m.adapters[key]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown storage provider %q", name))
	}
	if !adapter.Available() {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("storage provider %q is not configured", name))
	}
	m.active.Store(&activeAdapter{adapter: adapter})
	if m.logg != nil {
		m.logg.Info(m.logg.WithProvider(ctx, key), "storage provider switched")
	}
	return nil
}

// Available mirrors the active adapter's availability.
func (m *Manager) Available() bool {
	return m.Active().Available()
}

func (m *Manager) Upload(ctx context.Context, payload []byte, name, folder string, kind enums.MediaKind) (*UploadResult, error) {
	adapter := m.Active()
	res, err := adapter.Upload(ctx, payload, name, folder, kind)
	if err != nil {
		return nil, m.providerFailure(ctx, adapter, "upload", err)
	}
	return tagged(adapter, res), nil
}

func (m *Manager) UploadWithTransform(ctx context.Context, payload []byte, name, folder string, t Transform) (*UploadResult, error) {
	adapter := m.Active()
	res, err := adapter.UploadWithTransform(ctx, payload, name, folder, t.Normalize())
	if err != nil {
		return nil, m.providerFailure(ctx, adapter, "upload", err)
	}
	return tagged(adapter, res), nil
}

// tagged prefixes the storage id with the adapter that holds the object so
// Delete keeps reaching it after SwitchProvider.
func tagged(adapter Adapter, res *UploadResult) *UploadResult {
	if res != nil && res.StorageID != "" {
		res.StorageID = normalizeName(adapter.Name()) + ":" + res.StorageID
	}
	return res
}

// UploadImage is a convenience wrapper that resizes on upload.
func (m *Manager) UploadImage(ctx context.Context, payload []byte, name, folder string, width, height, quality int) (*UploadResult, error) {
	return m.UploadWithTransform(ctx, payload, name, folder, Transform{
		Width:   width,
		Height:  height,
		Quality: quality,
		Crop:    CropAtMax,
		Format:  FormatAuto,
	})
}

// Delete removes an object through the adapter named by the storage id
// prefix. Ids without a registered prefix go to the active adapter unchanged.
// Failures are logged and reported as false; callers tolerate provider
// orphans.
func (m *Manager) Delete(ctx context.Context, storageID string) bool {
	if strings.TrimSpace(storageID) == "" {
		return false
	}
	adapter, id := m.owner(storageID)
	if err := adapter.Delete(ctx, id); err != nil {
		if m.logg != nil {
			lctx := m.logg.WithFields(ctx, map[string]any{
				"provider":   adapter.Name(),
				"storage_id": storageID,
			})
			m.logg.Warn(lctx, "storage delete failed: "+err.Error())
		}
		return false
	}
	return true
}

func (m *Manager) owner(storageID string) (Adapter, string) {
	if prefix, id, ok := strings.Cut(storageID, ":"); ok && id != "" {
		if adapter, known := m.adapters[normalizeName(prefix)]; known {
			return adapter, id
		}
	}
	return m.Active(), storageID
}

func (m *Manager) OptimisedURL(url string, t Transform) string {
	return m.Active().OptimisedURL(url, t.Normalize())
}

func (m *Manager) ThumbnailURL(url string, width, height, quality int) string {
	return m.Active().ThumbnailURL(url, width, height, quality)
}

func (m *Manager) providerFailure(ctx context.Context, adapter Adapter, op string, err error) error {
	if m.logg != nil {
		m.logg.Error(m.logg.WithProvider(ctx, adapter.Name()), "storage "+op+" failed", err)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "media provider failed").
		WithReason(ReasonProviderFailed).
		WithDetails(map[string]any{"provider": adapter.Name()})
}

// ReasonProviderFailed tags errors raised by a media provider.
const ReasonProviderFailed = "PROVIDER_FAILED"

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
