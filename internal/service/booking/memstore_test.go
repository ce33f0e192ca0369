package booking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/repository"
)

// memStore is an in-memory stand-in for postgres. Transactions are serialised
// and a failing fn restores the snapshot taken when it started, so the tests
// see the same all-or-nothing behaviour as the real ledgers.
type memStore struct {
	mu    sync.Mutex
	state memState
	now   time.Time

	// injected failures
	failStatusUpdate map[int64]error
	failReserve      map[string]error
}

type memState struct {
	flights      map[int64]domain.Flight
	seats        map[int64]map[string]domain.SeatStatus
	reservations map[int64]domain.Reservation
	liveSeats    map[int64]map[string]int64
	events       []domain.PaymentEvent
	nextID       int64
}

func (s memState) clone() memState {
	c := memState{
		flights:      maps.Clone(s.flights),
		seats:        make(map[int64]map[string]domain.SeatStatus, len(s.seats)),
		reservations: make(map[int64]domain.Reservation, len(s.reservations)),
		liveSeats:    make(map[int64]map[string]int64, len(s.liveSeats)),
		events:       slices.Clone(s.events),
		nextID:       s.nextID,
	}
	for k, v := range s.seats {
		c.seats[k] = maps.Clone(v)
	}
	for k, v := range s.reservations {
		v.SeatIDs = slices.Clone(v.SeatIDs)
		c.reservations[k] = v
	}
	for k, v := range s.liveSeats {
		c.liveSeats[k] = maps.Clone(v)
	}
	return c
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			flights:      map[int64]domain.Flight{},
			seats:        map[int64]map[string]domain.SeatStatus{},
			reservations: map[int64]domain.Reservation{},
			liveSeats:    map[int64]map[string]int64{},
		},
		now:              time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		failStatusUpdate: map[int64]error{},
		failReserve:      map[string]error{},
	}
}

func (m *memStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

// addFlight seeds a flight with AVAILABLE seats and consistent counters.
func (m *memStore) addFlight(seatIDs ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.state.flights[id] = domain.Flight{
		ID:          id,
		ExternalID:  fmt.Sprintf("FL-%d", id),
		ScheduledAt: m.now.Add(72 * time.Hour),
		Status:      domain.FlightStatusOnTime,
		FreeSeats:   len(seatIDs),
	}
	m.state.seats[id] = map[string]domain.SeatStatus{}
	m.state.liveSeats[id] = map[string]int64{}
	for _, s := range seatIDs {
		m.state.seats[id][s] = domain.SeatStatusAvailable
	}
	return id
}

func (m *memStore) flight(id int64) domain.Flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.flights[id]
}

func (m *memStore) seat(flightID int64, seatID string) domain.SeatStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.seats[flightID][seatID]
}

func (m *memStore) reservation(id int64) (domain.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.reservations[id]
	return r, ok
}

func (m *memStore) reservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.reservations)
}

func (m *memStore) eventsFor(reservationID int64) []domain.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentStatus
	for _, e := range m.state.events {
		if e.ReservationID == reservationID {
			out = append(out, e.Status)
		}
	}
	return out
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.events)
}

// checkInvariants verifies that every held seat belongs to exactly one live
// reservation and that the counters match the seat rows.
func (m *memStore) checkInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for flightID, seats := range m.state.seats {
		held := 0
		for seatID, status := range seats {
			owners := 0
			for _, r := range m.state.reservations {
				if r.FlightID == flightID && r.Status.Live() && slices.Contains(r.SeatIDs, seatID) {
					owners++
				}
			}
			if status.Held() {
				held++
				if owners != 1 {
					return fmt.Errorf("flight %d seat %s is %s with %d live owners", flightID, seatID, status, owners)
				}
			} else if owners != 0 {
				return fmt.Errorf("flight %d seat %s is AVAILABLE but has %d live owners", flightID, seatID, owners)
			}
		}
		f := m.state.flights[flightID]
		if f.OccupiedSeats != held || f.FreeSeats != len(seats)-held {
			return fmt.Errorf("flight %d counters free=%d occupied=%d, seats held=%d of %d", flightID, f.FreeSeats, f.OccupiedSeats, held, len(seats))
		}
	}
	return nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, memUnitOfWork{m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

type memUnitOfWork struct{ m *memStore }

func (u memUnitOfWork) Seats() repository.SeatLedger               { return memSeats(u) }
func (u memUnitOfWork) Reservations() repository.ReservationLedger { return memReservations(u) }
func (u memUnitOfWork) Payments() repository.PaymentEventLog       { return memPayments(u) }
func (u memUnitOfWork) Flights() repository.FlightRepository       { return memFlights(u) }

// --- seats ---

type memSeats struct{ m *memStore }

func (s memSeats) CreateInventory(_ context.Context, flightID int64, seatIDs []string) (int, error) {
	inserted := 0
	if s.m.state.seats[flightID] == nil {
		s.m.state.seats[flightID] = map[string]domain.SeatStatus{}
	}
	for _, id := range seatIDs {
		if _, ok := s.m.state.seats[flightID][id]; !ok {
			s.m.state.seats[flightID][id] = domain.SeatStatusAvailable
			inserted++
		}
	}
	return inserted, nil
}

func (s memSeats) ListByFlight(_ context.Context, flightID int64) ([]domain.Seat, error) {
	out := make([]domain.Seat, 0)
	for id, status := range s.m.state.seats[flightID] {
		out = append(out, domain.Seat{FlightID: flightID, SeatID: id, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (s memSeats) Statuses(_ context.Context, flightID int64, seatIDs []string) (map[string]domain.SeatStatus, error) {
	out := map[string]domain.SeatStatus{}
	for _, id := range seatIDs {
		if status, ok := s.m.state.seats[flightID][id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (s memSeats) Reserve(_ context.Context, flightID int64, seatID string) error {
	if err := s.m.failReserve[seatID]; err != nil {
		return err
	}
	if s.m.state.seats[flightID][seatID] != domain.SeatStatusAvailable {
		return fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatUnavailable)
	}
	s.m.state.seats[flightID][seatID] = domain.SeatStatusReserved
	return nil
}

func (s memSeats) Confirm(_ context.Context, flightID int64, seatIDs []string) ([]string, error) {
	var confirmed []string
	for _, id := range seatIDs {
		if s.m.state.seats[flightID][id] == domain.SeatStatusReserved {
			s.m.state.seats[flightID][id] = domain.SeatStatusConfirmed
			confirmed = append(confirmed, id)
		}
	}
	return confirmed, nil
}

func (s memSeats) Release(_ context.Context, flightID int64, seatID string, from ...domain.SeatStatus) error {
	status, ok := s.m.state.seats[flightID][seatID]
	if !ok || !slices.Contains(from, status) {
		return fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatNotInExpectedState)
	}
	s.m.state.seats[flightID][seatID] = domain.SeatStatusAvailable
	return nil
}

// --- reservations ---

type memReservations struct{ m *memStore }

func (l memReservations) Create(_ context.Context, r *domain.Reservation) error {
	if len(r.SeatIDs) == 0 {
		return domain.NewValidationError("seat_ids", "must not be empty")
	}
	live := l.m.state.liveSeats[r.FlightID]
	if live == nil {
		live = map[string]int64{}
		l.m.state.liveSeats[r.FlightID] = live
	}
	for _, s := range r.SeatIDs {
		if _, taken := live[s]; taken {
			return &domain.SeatsTakenError{FlightID: r.FlightID, SeatIDs: r.SeatIDs}
		}
	}

	r.ID = l.m.id()
	r.Status = domain.ReservationStatusPending
	r.CreatedAt = l.m.now
	r.UpdatedAt = l.m.now
	stored := *r
	stored.SeatIDs = slices.Clone(r.SeatIDs)
	l.m.state.reservations[r.ID] = stored
	for _, s := range r.SeatIDs {
		live[s] = r.ID
	}
	return nil
}

func (l memReservations) Get(_ context.Context, id int64) (*domain.Reservation, error) {
	r, ok := l.m.state.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	// equivalent of slices.Sorted(slices.Values(...)) (Go 1.23+)
	r.SeatIDs = append([]string(nil), r.SeatIDs...)
	slices.Sort(r.SeatIDs)
	return &r, nil
}

func (l memReservations) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	return l.Get(ctx, id)
}

func (l memReservations) ListByFlight(ctx context.Context, flightID int64, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	out := make([]domain.Reservation, 0)
	for _, id := range sortedKeys(l.m.state.reservations) {
		r := l.m.state.reservations[id]
		if r.FlightID == flightID && (len(statuses) == 0 || slices.Contains(statuses, r.Status)) {
			got, _ := l.Get(ctx, id)
			out = append(out, *got)
		}
	}
	return out, nil
}

func (l memReservations) ListPendingBefore(ctx context.Context, deadline time.Time, limit int) ([]domain.Reservation, error) {
	out := make([]domain.Reservation, 0)
	for _, id := range sortedKeys(l.m.state.reservations) {
		r := l.m.state.reservations[id]
		if r.Status == domain.ReservationStatusPending && !r.CreatedAt.After(deadline) && len(out) < limit {
			got, _ := l.Get(ctx, id)
			out = append(out, *got)
		}
	}
	return out, nil
}

func (l memReservations) UpdateStatus(_ context.Context, id int64, from, to domain.ReservationStatus) error {
	if err := l.m.failStatusUpdate[id]; err != nil {
		return err
	}
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("reservation %d %s -> %s: %w", id, from, to, domain.ErrIllegalTransition)
	}
	r, ok := l.m.state.reservations[id]
	if !ok || r.Status != from {
		return fmt.Errorf("reservation %d is not %s: %w", id, from, domain.ErrIllegalTransition)
	}
	r.Status = to
	l.m.state.reservations[id] = r
	return nil
}

func (l memReservations) ChangeSeat(_ context.Context, id int64, oldSeatID, newSeatID string) error {
	r := l.m.state.reservations[id]
	live := l.m.state.liveSeats[r.FlightID]
	if owner, taken := live[newSeatID]; taken && owner != id {
		return fmt.Errorf("seat %s: %w", newSeatID, domain.ErrSeatUnavailable)
	}
	idx := slices.Index(r.SeatIDs, oldSeatID)
	if idx < 0 || live[oldSeatID] != id {
		return fmt.Errorf("reservation %d does not hold seat %s: %w", id, oldSeatID, domain.ErrSeatNotFound)
	}
	r.SeatIDs[idx] = newSeatID
	l.m.state.reservations[id] = r
	delete(live, oldSeatID)
	live[newSeatID] = id
	return nil
}

func (l memReservations) DeactivateSeats(_ context.Context, id int64) error {
	r := l.m.state.reservations[id]
	for seat, owner := range l.m.state.liveSeats[r.FlightID] {
		if owner == id {
			delete(l.m.state.liveSeats[r.FlightID], seat)
		}
	}
	return nil
}

func (l memReservations) Dates(_ context.Context, id int64) (domain.ReservationDates, error) {
	r, ok := l.m.state.reservations[id]
	if !ok {
		return domain.ReservationDates{}, domain.ErrReservationNotFound
	}
	return domain.ReservationDates{
		ReservationDate: r.CreatedAt,
		FlightDate:      l.m.state.flights[r.FlightID].ScheduledAt,
	}, nil
}

// --- payment events ---

type memPayments struct{ m *memStore }

func (p memPayments) Record(_ context.Context, e *domain.PaymentEvent) error {
	if e.Status == domain.PaymentStatusFailed || e.Status == domain.PaymentStatusRefund {
		for _, existing := range p.m.state.events {
			if existing.ReservationID == e.ReservationID && existing.Status == e.Status {
				return fmt.Errorf("%s event for reservation %d: %w", e.Status, e.ReservationID, domain.ErrDuplicateEvent)
			}
		}
	}
	e.ID = p.m.id()
	e.CreatedAt = p.m.now
	p.m.state.events = append(p.m.state.events, *e)
	return nil
}

func (p memPayments) FindPending(_ context.Context, reservationID int64, userID string) (int64, error) {
	for i := len(p.m.state.events) - 1; i >= 0; i-- {
		e := p.m.state.events[i]
		if e.ReservationID == reservationID && e.ExternalUserID == userID && e.Status == domain.PaymentStatusPending {
			return e.Amount, nil
		}
	}
	return 0, domain.ErrNoPendingEvent
}

func (p memPayments) Exists(_ context.Context, reservationID int64, status domain.PaymentStatus) (bool, error) {
	for _, e := range p.m.state.events {
		if e.ReservationID == reservationID && e.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (p memPayments) ListByReservation(_ context.Context, reservationID int64) ([]domain.PaymentEvent, error) {
	out := make([]domain.PaymentEvent, 0)
	for _, e := range p.m.state.events {
		if e.ReservationID == reservationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- flights ---

type memFlights struct{ m *memStore }

func (f memFlights) Create(_ context.Context, flight *domain.Flight) (bool, error) {
	for _, existing := range f.m.state.flights {
		if existing.ExternalID == flight.ExternalID {
			*flight = existing
			return false, nil
		}
	}
	flight.ID = f.m.id()
	f.m.state.flights[flight.ID] = *flight
	return true, nil
}

func (f memFlights) List(_ context.Context) ([]domain.Flight, error) {
	out := make([]domain.Flight, 0)
	for _, id := range sortedKeys(f.m.state.flights) {
		out = append(out, f.m.state.flights[id])
	}
	return out, nil
}

func (f memFlights) GetByID(_ context.Context, id int64) (*domain.Flight, error) {
	flight, ok := f.m.state.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	return &flight, nil
}

func (f memFlights) GetByExternalID(_ context.Context, externalID string) (*domain.Flight, error) {
	for _, flight := range f.m.state.flights {
		if flight.ExternalID == externalID {
			return &flight, nil
		}
	}
	return nil, domain.ErrFlightNotFound
}

func (f memFlights) Update(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error) {
	flight, ok := f.m.state.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	if update.Status != nil {
		flight.Status = *update.Status
	}
	if update.ScheduledAt != nil {
		flight.ScheduledAt = *update.ScheduledAt
	}
	f.m.state.flights[id] = flight
	return &flight, nil
}

func (f memFlights) UpdateStatus(_ context.Context, id int64, status domain.FlightStatus) error {
	flight, ok := f.m.state.flights[id]
	if !ok {
		return domain.ErrFlightNotFound
	}
	flight.Status = status
	f.m.state.flights[id] = flight
	return nil
}

func (f memFlights) AdjustCounters(_ context.Context, id int64, freeDelta, occupiedDelta int) error {
	flight, ok := f.m.state.flights[id]
	if !ok {
		return domain.ErrFlightNotFound
	}
	if flight.FreeSeats+freeDelta < 0 || flight.OccupiedSeats+occupiedDelta < 0 {
		return errors.New("seat counters would go negative")
	}
	flight.FreeSeats += freeDelta
	flight.OccupiedSeats += occupiedDelta
	f.m.state.flights[id] = flight
	return nil
}

func (f memFlights) RecountSeats(_ context.Context, id int64) (*domain.Flight, error) {
	flight, ok := f.m.state.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	flight.FreeSeats, flight.OccupiedSeats = 0, 0
	for _, status := range f.m.state.seats[id] {
		if status.Held() {
			flight.OccupiedSeats++
		} else {
			flight.FreeSeats++
		}
	}
	f.m.state.flights[id] = flight
	return &flight, nil
}

var (
	_ repository.Transactor = (*memStore)(nil)
	_ repository.UnitOfWork = memUnitOfWork{}
)

// sortedKeys is the equivalent of slices.Sorted(maps.Keys(m)) (Go 1.23+).
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	var keys []K
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
