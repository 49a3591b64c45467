package providers

import (
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/MetaMask/providers-sub001/pkg/log"
)

// pendingEvent is an event collected while state mutations are applied
// under the lock and emitted afterwards, so that a handler reading any
// cached field observes the fully updated state.
type pendingEvent struct {
	event   Event
	payload any
}

// synchronizer consumes the one-way stream of pushed state snapshots,
// diffs them against the cached provider state and raises change events
// only when semantic values actually change. It is the only component
// allowed to mutate the cached wallet state.
type synchronizer struct {
	logger  log.Logger
	metrics *Metrics
	events  *emitter

	// refreshAccounts dispatches a fire-and-forget account list refresh
	// through the request pipeline. Wired by the provider once the
	// engine exists.
	refreshAccounts func()

	mu             sync.Mutex
	accounts       []string
	haveAccounts   bool
	chainID        string
	networkVersion string
	unlocked       *bool

	// internalRefresh marks that the next RPC-delivered account list
	// was requested by the unlock transition, exempting it from the
	// consistency diagnostic.
	internalRefresh bool
}

func newSynchronizer(logger log.Logger, metrics *Metrics, events *emitter) *synchronizer {
	return &synchronizer{
		logger:  logger.WithName("state-sync"),
		metrics: metrics,
		events:  events,
	}
}

// applySnapshot applies the fields present in a pushed snapshot. All
// cached fields are updated before any event is emitted.
func (sy *synchronizer) applySnapshot(s Snapshot) {
	sy.mu.Lock()

	var events []pendingEvent
	var doRefresh bool

	if s.ChainID != nil {
		events = append(events, sy.applyChainLocked(*s.ChainID)...)
	}
	if s.NetworkVersion != nil {
		events = append(events, sy.applyNetworkLocked(*s.NetworkVersion)...)
	}
	if s.Accounts != nil {
		events = append(events, sy.applyAccountsLocked(s.Accounts)...)
	}
	if s.IsUnlocked != nil {
		unlocked := *s.IsUnlocked
		if sy.unlocked == nil || *sy.unlocked != unlocked {
			sy.unlocked = &unlocked
			if unlocked {
				// Refresh the account list now that it is readable.
				// The response is exempt from the drift diagnostic.
				doRefresh = true
				sy.internalRefresh = true
			} else {
				events = append(events, sy.applyAccountsLocked([]string{})...)
			}
		}
	}

	sy.mu.Unlock()

	sy.metrics.SnapshotsTotal.Inc()
	sy.emit(events)

	if doRefresh {
		if sy.refreshAccounts != nil {
			sy.refreshAccounts()
		} else {
			sy.cancelInternalRefresh()
		}
	}
}

// cancelInternalRefresh drops the drift-diagnostic exemption when the
// unlock-triggered refresh could not be dispatched or failed, so an
// unrelated later result is not exempted by a stale flag.
func (sy *synchronizer) cancelInternalRefresh() {
	sy.mu.Lock()
	sy.internalRefresh = false
	sy.mu.Unlock()
}

// handleRPCAccounts feeds an account list delivered as an RPC result
// (eth_accounts or eth_requestAccounts) into the accounts-changed
// detection path. It runs before the original caller is notified, so
// caller-visible state is consistent with the just-delivered result.
func (sy *synchronizer) handleRPCAccounts(accounts []string) {
	sy.mu.Lock()

	internal := sy.internalRefresh
	sy.internalRefresh = false

	if !internal && sy.haveAccounts && !slices.Equal(accounts, sy.accounts) {
		sy.logger.Warn("account list from RPC result differs from synchronized state",
			"cached", sy.accounts, "received", accounts)
		sy.metrics.ConsistencyWarnings.Inc()
	}

	events := sy.applyAccountsLocked(accounts)
	sy.mu.Unlock()

	sy.emit(events)
}

// handleNotifiedAccounts feeds a pushed accounts-changed notification
// into the change-detection path.
func (sy *synchronizer) handleNotifiedAccounts(accounts []string) {
	sy.mu.Lock()
	events := sy.applyAccountsLocked(accounts)
	sy.mu.Unlock()

	sy.emit(events)
}

// applyChainLocked applies a chain id value, interpreting the transient
// "loading" sentinel as unknown. An unknown chain also forces the
// network id to unknown.
func (sy *synchronizer) applyChainLocked(chainID string) []pendingEvent {
	if chainID == chainLoadingSentinel {
		chainID = ""
	}
	if chainID == sy.chainID {
		return nil
	}
	sy.chainID = chainID

	events := []pendingEvent{{event: EventChainChanged, payload: chainID}}
	if chainID == "" && sy.networkVersion != "" {
		sy.networkVersion = ""
		events = append(events, pendingEvent{event: EventNetworkChanged, payload: ""})
	}
	return events
}

// applyNetworkLocked applies a network id value. While the chain is
// unknown the network id is held unknown as well.
func (sy *synchronizer) applyNetworkLocked(networkVersion string) []pendingEvent {
	if networkVersion == chainLoadingSentinel || sy.chainID == "" {
		networkVersion = ""
	}
	if networkVersion == sy.networkVersion {
		return nil
	}
	sy.networkVersion = networkVersion

	return []pendingEvent{{event: EventNetworkChanged, payload: networkVersion}}
}

// applyAccountsLocked replaces the cached account list and reports an
// accounts-changed event if and only if the new ordered sequence
// differs from the cached one by value.
func (sy *synchronizer) applyAccountsLocked(accounts []string) []pendingEvent {
	var invalid []string
	for _, account := range accounts {
		if !common.IsHexAddress(account) {
			invalid = append(invalid, account)
		}
	}
	if len(invalid) > 0 {
		sy.logger.Warn("received malformed account addresses", "accounts", invalid)
	}

	if sy.haveAccounts && slices.Equal(accounts, sy.accounts) {
		return nil
	}

	next := slices.Clone(accounts)
	if next == nil {
		next = []string{}
	}
	sy.accounts = next
	sy.haveAccounts = true

	payload := slices.Clone(next)
	return []pendingEvent{{event: EventAccountsChanged, payload: payload}}
}

func (sy *synchronizer) emit(events []pendingEvent) {
	for _, ev := range events {
		sy.events.emit(ev.event, ev.payload)
	}
}

// accountsValue returns a copy of the cached account list and whether a
// snapshot has been received yet.
func (sy *synchronizer) accountsValue() ([]string, bool) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if !sy.haveAccounts {
		return nil, false
	}
	return slices.Clone(sy.accounts), true
}

// selectedAddress returns the first cached account, or empty when the
// account list is empty or unknown.
func (sy *synchronizer) selectedAddress() string {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if len(sy.accounts) == 0 {
		return ""
	}
	return sy.accounts[0]
}

func (sy *synchronizer) chainIDValue() string {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.chainID
}

func (sy *synchronizer) networkVersionValue() string {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.networkVersion
}

// isUnlocked returns the cached lock status; ok is false while no
// snapshot has reported it yet.
func (sy *synchronizer) isUnlocked() (unlocked, ok bool) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.unlocked == nil {
		return false, false
	}
	return *sy.unlocked, true
}
