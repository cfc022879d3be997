// Package ledger keeps the append-only record of identities and grain
// distributions.
//
// The ledger is an ordered event log plus lookup indices that every applied
// event updates in place. It is not safe for concurrent mutation.
package ledger

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/platform/id"
	"github.com/louisbranch/credrank/internal/services/cred/domain/credrank"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/policy"
)

var (
	// ErrIdentityNotFound indicates an unknown identity id.
	ErrIdentityNotFound = apperrors.New(apperrors.CodeIdentityNotFound, "identity not found")
	// ErrInvalidName indicates a name outside [A-Za-z0-9-]+.
	ErrInvalidName = apperrors.New(apperrors.CodeIdentityInvalidName, "identity name must match [A-Za-z0-9-]+")
	// ErrNameTaken indicates a name already used, ignoring case.
	ErrNameTaken = apperrors.New(apperrors.CodeIdentityNameTaken, "identity name is taken")
	// ErrDuplicateDistribution indicates a distribution id recorded twice.
	ErrDuplicateDistribution = apperrors.New(apperrors.CodeDuplicateDistribution, "distribution already recorded")
	// ErrInvalidAddress indicates the empty node address, which is a prefix
	// of every node rather than a participant.
	ErrInvalidAddress = apperrors.New(apperrors.CodeInvalidParameter, "identity address must have at least one part")
	// ErrInvalidEvent indicates a log that cannot be replayed.
	ErrInvalidEvent = apperrors.New(apperrors.CodeInvalidParameter, "invalid ledger event")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Identity is an account that can receive grain. Address is the participant
// node credited to it and may be empty.
type Identity struct {
	ID      policy.IdentityID
	Name    string
	Address graph.NodeAddress
}

// Account is an identity with its lifetime payout.
type Account struct {
	Identity Identity
	Paid     grain.Grain
}

// Ledger is the in-memory ledger state.
type Ledger struct {
	events        []Event
	identities    []Identity
	byID          map[policy.IdentityID]int
	byName        map[string]policy.IdentityID
	byAddress     map[graph.NodeAddress]policy.IdentityID
	distributions []policy.Distribution
	recorded      map[string]bool
	paid          map[policy.IdentityID]grain.Grain

	now   func() time.Time
	newID func() (string, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator sets the identity id source.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		byID:      make(map[policy.IdentityID]int),
		byName:    make(map[string]policy.IdentityID),
		byAddress: make(map[graph.NodeAddress]policy.IdentityID),
		recorded:  make(map[string]bool),
		paid:      make(map[policy.IdentityID]grain.Grain),
		now:       time.Now,
		newID:     id.NewID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Replay rebuilds a ledger from a persisted log.
func Replay(events []Event, opts ...Option) (*Ledger, error) {
	l := New(opts...)
	for i, e := range events {
		if want := uint64(i) + 1; e.Seq != want {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidParameter, "ledger event sequence gap", map[string]string{
				"expected": strconv.FormatUint(want, 10),
				"got":      strconv.FormatUint(e.Seq, 10),
			})
		}
		if err := l.apply(e); err != nil {
			return nil, fmt.Errorf("replay event %d: %w", e.Seq, err)
		}
		l.events = append(l.events, e)
	}
	return l, nil
}

// CreateIdentity registers a new identity credited with the participant at address.
func (l *Ledger) CreateIdentity(name string, address graph.NodeAddress) (Identity, error) {
	if err := checkAddress(address); err != nil {
		return Identity{}, err
	}
	identityID, err := l.newID()
	if err != nil {
		return Identity{}, fmt.Errorf("identity id: %w", err)
	}
	identity := Identity{ID: policy.IdentityID(identityID), Name: name, Address: address}
	if _, err := l.commit(EventIdentityCreated, identityCreated{Identity: encodeIdentity(identity)}); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// RenameIdentity changes an identity's name.
func (l *Ledger) RenameIdentity(identityID policy.IdentityID, name string) error {
	_, err := l.commit(EventIdentityRenamed, identityRenamed{ID: identityID, Name: name})
	return err
}

// RecordDistribution appends a computed distribution and credits its receipts.
func (l *Ledger) RecordDistribution(d policy.Distribution) error {
	_, err := l.commit(EventDistributionRecorded, distributionRecorded{Distribution: d})
	return err
}

// Account returns the identity and its lifetime payout.
func (l *Ledger) Account(identityID policy.IdentityID) (Account, error) {
	i, ok := l.byID[identityID]
	if !ok {
		return Account{}, notFound(identityID)
	}
	return Account{Identity: l.identities[i], Paid: l.paid[identityID]}, nil
}

// IdentityByAddress returns the identity credited with address.
func (l *Ledger) IdentityByAddress(address graph.NodeAddress) (Identity, bool) {
	identityID, ok := l.byAddress[address]
	if !ok {
		return Identity{}, false
	}
	return l.identities[l.byID[identityID]], true
}

// Identities returns identities in creation order.
func (l *Ledger) Identities() []Identity {
	return append([]Identity(nil), l.identities...)
}

// Distributions returns recorded distributions in order.
func (l *Ledger) Distributions() []policy.Distribution {
	return append([]policy.Distribution(nil), l.distributions...)
}

// Paid returns the grain paid to an identity so far.
func (l *Ledger) Paid(identityID policy.IdentityID) grain.Grain {
	return l.paid[identityID]
}

// Events returns the full log.
func (l *Ledger) Events() []Event {
	return append([]Event(nil), l.events...)
}

// EventsAfter returns the events with Seq greater than seq.
func (l *Ledger) EventsAfter(seq uint64) []Event {
	if seq >= uint64(len(l.events)) {
		return nil
	}
	return append([]Event(nil), l.events[seq:]...)
}

// LastSeq returns the sequence number of the latest event, or 0.
func (l *Ledger) LastSeq() uint64 { return uint64(len(l.events)) }

// ProcessIdentities joins identities to participant cred by address.
// Identities without a scored participant are skipped.
func (l *Ledger) ProcessIdentities(cg *credrank.CredGraph) []policy.ProcessedIdentity {
	var out []policy.ProcessedIdentity
	for _, identity := range l.identities {
		if identity.Address == "" {
			continue
		}
		p, ok := cg.Participant(identity.Address)
		if !ok {
			continue
		}
		out = append(out, policy.ProcessedIdentity{ID: identity.ID, Cred: p.CredPerEpoch})
	}
	return out
}

func (l *Ledger) commit(eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	e := Event{
		Seq:         l.LastSeq() + 1,
		Type:        eventType,
		TimestampMs: l.now().UnixMilli(),
		Payload:     data,
	}
	if err := l.apply(e); err != nil {
		return Event{}, err
	}
	l.events = append(l.events, e)
	return e, nil
}

// apply validates e against the current state and updates the indices.
func (l *Ledger) apply(e Event) error {
	switch e.Type {
	case EventIdentityCreated:
		var payload identityCreated
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidParameter, ErrInvalidEvent.Message, err)
		}
		identity, err := decodeIdentity(payload.Identity)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidParameter, ErrInvalidEvent.Message, err)
		}
		return l.applyCreate(identity)
	case EventIdentityRenamed:
		var payload identityRenamed
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidParameter, ErrInvalidEvent.Message, err)
		}
		return l.applyRename(payload.ID, payload.Name)
	case EventDistributionRecorded:
		var payload distributionRecorded
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidParameter, ErrInvalidEvent.Message, err)
		}
		return l.applyDistribution(payload.Distribution)
	default:
		return apperrors.WithMetadata(apperrors.CodeInvalidParameter, "unknown ledger event type", map[string]string{
			"type": string(e.Type),
		})
	}
}

func (l *Ledger) applyCreate(identity Identity) error {
	if identity.ID == "" {
		return apperrors.New(apperrors.CodeInvalidParameter, "identity id is required")
	}
	if _, ok := l.byID[identity.ID]; ok {
		return apperrors.WithMetadata(apperrors.CodeInvalidParameter, "identity id already exists", map[string]string{"id": string(identity.ID)})
	}
	if err := l.checkName(identity.Name); err != nil {
		return err
	}
	if err := checkAddress(identity.Address); err != nil {
		return err
	}
	if identity.Address != "" {
		if owner, ok := l.byAddress[identity.Address]; ok {
			return apperrors.WithMetadata(apperrors.CodeInvalidParameter, "address already belongs to an identity", map[string]string{
				"address": identity.Address.String(),
				"owner":   string(owner),
			})
		}
		l.byAddress[identity.Address] = identity.ID
	}
	l.byID[identity.ID] = len(l.identities)
	l.byName[strings.ToLower(identity.Name)] = identity.ID
	l.identities = append(l.identities, identity)
	return nil
}

func (l *Ledger) applyRename(identityID policy.IdentityID, name string) error {
	i, ok := l.byID[identityID]
	if !ok {
		return notFound(identityID)
	}
	current := l.identities[i].Name
	if strings.EqualFold(current, name) && namePattern.MatchString(name) {
		l.identities[i].Name = name
		return nil
	}
	if err := l.checkName(name); err != nil {
		return err
	}
	delete(l.byName, strings.ToLower(current))
	l.byName[strings.ToLower(name)] = identityID
	l.identities[i].Name = name
	return nil
}

func (l *Ledger) applyDistribution(d policy.Distribution) error {
	if d.ID == "" {
		return apperrors.New(apperrors.CodeInvalidParameter, "distribution id is required")
	}
	if l.recorded[d.ID] {
		return apperrors.WithMetadata(apperrors.CodeDuplicateDistribution, ErrDuplicateDistribution.Message, map[string]string{"id": d.ID})
	}
	for _, allocation := range d.Allocations {
		for _, r := range allocation.Receipts {
			if _, ok := l.byID[r.ID]; !ok {
				return notFound(r.ID)
			}
		}
	}
	for _, allocation := range d.Allocations {
		for _, r := range allocation.Receipts {
			l.paid[r.ID] = l.paid[r.ID].Add(r.Amount)
		}
	}
	l.recorded[d.ID] = true
	l.distributions = append(l.distributions, d)
	return nil
}

func (l *Ledger) checkName(name string) error {
	if !namePattern.MatchString(name) {
		return apperrors.WithMetadata(apperrors.CodeIdentityInvalidName, ErrInvalidName.Message, map[string]string{"name": name})
	}
	if owner, ok := l.byName[strings.ToLower(name)]; ok {
		return apperrors.WithMetadata(apperrors.CodeIdentityNameTaken, ErrNameTaken.Message, map[string]string{
			"name":  name,
			"owner": string(owner),
		})
	}
	return nil
}

// checkAddress accepts no address or one with at least one part.
func checkAddress(address graph.NodeAddress) error {
	if address != "" && len(address.Parts()) == 0 {
		return ErrInvalidAddress
	}
	return nil
}

func notFound(identityID policy.IdentityID) error {
	return apperrors.WithMetadata(apperrors.CodeIdentityNotFound, ErrIdentityNotFound.Message, map[string]string{"id": string(identityID)})
}
