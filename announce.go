package providers

import (
	"sync"

	"github.com/google/uuid"

	"github.com/MetaMask/providers-sub001/pkg/log"
)

// Discovery event names, following the EIP-6963 convention.
const (
	EventAnnounceProvider = "eip6963:announceProvider"
	EventRequestProvider  = "eip6963:requestProvider"
)

// EventBus abstracts the host surface discovery announcements travel
// over. Listen returns the unsubscribe function for the registration.
type EventBus interface {
	Dispatch(name string, detail any)
	Listen(name string, fn func(detail any)) (unsubscribe func())
}

// ProviderInfo describes an announced provider.
type ProviderInfo struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
	Icon string    `json:"icon"`
	RDNS string    `json:"rdns"`
}

// ProviderDetail is the payload of an announce event.
type ProviderDetail struct {
	Info     ProviderInfo `json:"info"`
	Provider *Provider    `json:"-"`
}

// Announcer publishes a provider on an event bus: once on Start, and
// again whenever any party asks for providers. The announced UUID is
// stable for the announcer's lifetime.
type Announcer struct {
	bus    EventBus
	detail ProviderDetail
	logger log.Logger

	mu   sync.Mutex
	stop func()
}

// NewAnnouncer creates an Announcer for the given provider. A zero-UUID
// info gets a fresh UUID; an empty name and icon are filled from the
// provider's page metadata hook when one is configured.
func NewAnnouncer(bus EventBus, provider *Provider, info ProviderInfo) *Announcer {
	if info.UUID == uuid.Nil {
		info.UUID = uuid.New()
	}
	if info.Name == "" && provider.config.OnPageMetadata != nil {
		title, icon := provider.config.OnPageMetadata()
		info.Name = title
		if info.Icon == "" {
			info.Icon = icon
		}
	}

	return &Announcer{
		bus:    bus,
		detail: ProviderDetail{Info: info, Provider: provider},
		logger: provider.logger.WithName("announcer"),
	}
}

// Start announces the provider and begins re-announcing on request
// events. Calling Start on a started announcer is a no-op.
func (a *Announcer) Start() {
	a.mu.Lock()
	if a.stop != nil {
		a.mu.Unlock()
		return
	}
	a.stop = a.bus.Listen(EventRequestProvider, func(any) {
		a.Announce()
	})
	a.mu.Unlock()

	a.Announce()
}

// Stop ends re-announcing. The provider itself is unaffected.
func (a *Announcer) Stop() {
	a.mu.Lock()
	stop := a.stop
	a.stop = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Announce publishes the provider detail once.
func (a *Announcer) Announce() {
	a.logger.Debug("announcing provider", "uuid", a.detail.Info.UUID.String())
	a.bus.Dispatch(EventAnnounceProvider, a.detail)
}
