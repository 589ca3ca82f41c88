package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberq/backend/internal/availcache"
	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
	"barberq/backend/internal/store/memory"
)

const (
	testProvider = "barber-1"
	testDate     = "2026-06-15"
	testOTP      = "424242"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) For(recipient string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.got {
		if n.RecipientID == recipient {
			out = append(out, n)
		}
	}
	return out
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.AppointmentEvent
}

func (r *recordingBroadcaster) Publish(ctx context.Context, ev domain.AppointmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, domain.Notification) error {
	return errors.New("smtp down")
}

type harness struct {
	svc      *Service
	st       *memory.Store
	notes    *recordingNotifier
	events   *recordingBroadcaster
	provider domain.Actor
	opts     []Option
}

func newHarness(t *testing.T, capacity int, opts ...Option) *harness {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	st := memory.New()
	st.PutProvider(domain.Provider{ID: testProvider, Name: "Arjun", MaxAppointmentsPerDay: capacity})
	h := &harness{
		st:       st,
		notes:    &recordingNotifier{},
		events:   &recordingBroadcaster{},
		provider: domain.Actor{ID: testProvider, Role: domain.RoleProvider, Name: "Arjun"},
	}
	base := []Option{
		WithNotifier(h.notes),
		WithBroadcaster(h.events),
		WithLocation(loc),
		WithOTPGenerator(func() (string, error) { return testOTP, nil }),
	}
	h.opts = append(base, opts...)
	h.svc = NewService(st, h.opts...)
	return h
}

func customer(id string) domain.Actor {
	return domain.Actor{ID: id, Role: domain.RoleCustomer, Name: "Customer " + id}
}

func (h *harness) book(t *testing.T, customerID, tier string) domain.Appointment {
	t.Helper()
	appt, err := h.svc.Create(context.Background(), customer(customerID), CreateInput{
		ProviderID: testProvider,
		Date:       testDate,
		Time:       "10:30",
		TierLabel:  tier,
		Services:   []domain.Service{{ID: "cut", Name: "Haircut", Price: decimal.NewFromInt(150)}},
	})
	require.NoError(t, err)
	return appt
}

func (h *harness) walkIn(t *testing.T, tier string) domain.Appointment {
	t.Helper()
	appt, err := h.svc.Create(context.Background(), h.provider, CreateInput{
		ProviderID:    testProvider,
		Date:          testDate,
		Time:          "11:00",
		TierLabel:     tier,
		IsOffline:     true,
		CustomerName:  "Walk In",
		CustomerPhone: "+91 98765 43210",
	})
	require.NoError(t, err)
	return appt
}

func (h *harness) get(t *testing.T, id uuid.UUID) domain.Appointment {
	t.Helper()
	appt, err := h.svc.Get(context.Background(), h.provider, id)
	require.NoError(t, err)
	return appt
}

func (h *harness) coins(id string) int {
	c, _ := h.st.Customer(id)
	return c.Coins
}

func (h *harness) admitted(t *testing.T) int {
	t.Helper()
	day, err := h.svc.ParseDay(testDate)
	require.NoError(t, err)
	appts, err := h.st.ListDay(context.Background(), testProvider, day,
		domain.StatusPending, domain.StatusConfirmed, domain.StatusStarted, domain.StatusCompleted)
	require.NoError(t, err)
	return len(appts)
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "error %v is %T, want *RejectionError", err, err)
	require.Equal(t, kind, rej.Kind)
}

func TestCreate_OnlineBookingAwaitsPaymentWithOTP(t *testing.T) {
	h := newHarness(t, 5)

	appt := h.book(t, "c1", "Premium")

	assert.Equal(t, domain.StatusPending, appt.Status)
	assert.Equal(t, domain.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, testOTP, appt.OTP)
	require.NotNil(t, appt.CustomerID)
	assert.Equal(t, "c1", *appt.CustomerID)
	assert.True(t, decimal.NewFromInt(150).Equal(appt.TotalPrice))

	// reads never expose the code
	assert.Empty(t, h.get(t, appt.ID).OTP)

	notes := h.notes.For(testProvider)
	require.Len(t, notes, 1)
	assert.Equal(t, "New Booking", notes[0].Title)
	assert.Contains(t, notes[0].Message, "15 June 2026 at 10:30 AM")
}

func TestCreate_OfflineWalkInIsPaidWithoutOTP(t *testing.T) {
	h := newHarness(t, 5)

	appt := h.walkIn(t, "Basic")

	assert.True(t, appt.IsOffline)
	assert.Nil(t, appt.CustomerID)
	assert.Empty(t, appt.OTP)
	assert.Equal(t, domain.PaymentCompleted, appt.PaymentStatus)
	assert.Equal(t, "Walk In", appt.CustomerName)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   domain.Actor
		in      CreateInput
		wantErr string
	}{
		{
			name:    "missing provider",
			actor:   customer("c1"),
			in:      CreateInput{Date: testDate, Time: "10:00"},
			wantErr: "provider_id is required",
		},
		{
			name:    "malformed date",
			actor:   customer("c1"),
			in:      CreateInput{ProviderID: testProvider, Date: "15/06/2026", Time: "10:00"},
			wantErr: "date must be formatted as YYYY-MM-DD",
		},
		{
			name:    "offline without phone",
			actor:   h.provider,
			in:      CreateInput{ProviderID: testProvider, Date: testDate, Time: "10:00", IsOffline: true, CustomerName: "A"},
			wantErr: "customer_phone is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tt.actor, tt.in)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "error %v is %T, want *ValidationError", err, err)
			assert.Equal(t, tt.wantErr, vErr.Error())
		})
	}
}

func TestCreate_Authorization(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, customer("c1"), CreateInput{
		ProviderID: testProvider, Date: testDate, Time: "10:00",
		IsOffline: true, CustomerName: "A", CustomerPhone: "1",
	})
	requireKind(t, err, KindUnauthorized)

	other := domain.Actor{ID: "barber-2", Role: domain.RoleProvider}
	_, err = h.svc.Create(ctx, other, CreateInput{
		ProviderID: testProvider, Date: testDate, Time: "10:00",
		IsOffline: true, CustomerName: "A", CustomerPhone: "1",
	})
	requireKind(t, err, KindUnauthorized)

	_, err = h.svc.Create(ctx, customer("c1"), CreateInput{ProviderID: "nobody", Date: testDate, Time: "10:00"})
	requireKind(t, err, KindNotFound)
}

func TestCreate_FullDayRejectsNonTopTier(t *testing.T) {
	h := newHarness(t, 2)
	h.book(t, "c1", "Free")
	h.book(t, "c2", "Free")

	for _, tier := range []string{"Premium", "Basic", "Free", ""} {
		_, err := h.svc.Create(context.Background(), customer("c3"), CreateInput{
			ProviderID: testProvider, Date: testDate, Time: "12:00", TierLabel: tier,
		})
		requireKind(t, err, KindCapacityExceeded)
	}
	assert.Equal(t, 2, h.admitted(t))
}

func TestCreate_TopTierWithNothingToDisplace(t *testing.T) {
	h := newHarness(t, 2)
	h.book(t, "c1", "Black Premium")
	started := h.book(t, "c2", "Free")
	_, err := h.svc.Accept(context.Background(), h.provider, started.ID)
	require.NoError(t, err)
	_, err = h.svc.Start(context.Background(), h.provider, started.ID, testOTP)
	require.NoError(t, err)

	_, err = h.svc.Create(context.Background(), customer("c3"), CreateInput{
		ProviderID: testProvider, Date: testDate, Time: "12:00", TierLabel: "Black Premium",
	})
	requireKind(t, err, KindNoDisplaceableCandidate)
	assert.Equal(t, 2, h.admitted(t))
}

func TestDisplacementAndReinstatementRoundTrip(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	free := h.book(t, "c-free", "Free")
	basic := h.book(t, "c-basic", "Basic")
	premium := h.book(t, "c-premium", "Premium")
	h.book(t, "c-bp1", "Black Premium")
	h.book(t, "c-bp2", "Black Premium")

	first := h.book(t, "c-new1", "Black Premium")
	got := h.get(t, free.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.DisplacementMarker, got.CancellationReason)
	require.NotNil(t, got.DisplacedBy)
	assert.Equal(t, first.ID, *got.DisplacedBy)
	assert.Equal(t, 0, h.coins("c-free"))
	assert.Empty(t, h.st.Transactions("c-free"))
	assert.Equal(t, 5, h.admitted(t))

	second := h.book(t, "c-new2", "Black Premium")
	got = h.get(t, basic.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, 3, got.CompensationCoins)
	assert.Equal(t, 3, h.coins("c-basic"))
	assert.Equal(t, domain.StatusPending, h.get(t, premium.ID).Status)
	assert.Equal(t, 5, h.admitted(t))

	displacedNotes := h.notes.For("c-basic")
	require.Len(t, displacedNotes, 1)
	assert.Contains(t, displacedNotes[0].Message, "3 coins have been added")

	_, err := h.svc.Decline(ctx, h.provider, second.ID)
	require.NoError(t, err)
	got = h.get(t, basic.ID)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Empty(t, got.CancellationReason)
	assert.Nil(t, got.DisplacedBy)
	assert.Equal(t, 0, h.coins("c-basic"))
	assert.Equal(t, domain.StatusCancelled, h.get(t, free.ID).Status)
	assert.Equal(t, 5, h.admitted(t))

	_, err = h.svc.Decline(ctx, h.provider, first.ID)
	require.NoError(t, err)
	got = h.get(t, free.ID)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Empty(t, got.CancellationReason)
	assert.Equal(t, 5, h.admitted(t))

	txns := h.st.Transactions("c-basic")
	require.Len(t, txns, 2)
	assert.Equal(t, domain.TransactionCredit, txns[0].Kind)
	assert.Equal(t, domain.TransactionDebit, txns[1].Kind)
	assert.Equal(t, 3, txns[1].Amount)
}

func TestReinstatement_HappensAtMostOnce(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	free := h.book(t, "c-free", "Free")
	bp := h.book(t, "c-bp", "Black Premium")

	_, err := h.svc.Cancel(ctx, customer("c-bp"), bp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, h.get(t, free.ID).Status)

	// a second cancellation of an unrelated booking reinstates nothing
	_, err = h.svc.Decline(ctx, h.provider, free.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, h.get(t, free.ID).Status)
	assert.Equal(t, domain.StatusCancelled, h.get(t, bp.ID).Status)
	assert.Equal(t, 0, h.admitted(t))
}

func TestReinstatement_DebitClampsAtZero(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	premium := h.book(t, "c-premium", "Premium")
	bp := h.book(t, "c-bp", "Black Premium")
	assert.Equal(t, 10, h.coins("c-premium"))

	// spend most of the compensation elsewhere
	c, _ := h.st.Customer("c-premium")
	c.Coins = 4
	h.st.PutCustomer(c)

	_, err := h.svc.CancelPending(ctx, customer("c-bp"), bp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, h.get(t, premium.ID).Status)
	assert.Equal(t, 0, h.coins("c-premium"))

	txns := h.st.Transactions("c-premium")
	require.Len(t, txns, 2)
	assert.Equal(t, 4, txns[1].Amount)
}

func TestCancel_BlockedByHigherPriorityUnpaid(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	basic := h.book(t, "c-basic", "Basic")
	_, err := h.svc.Accept(ctx, h.provider, basic.ID)
	require.NoError(t, err)
	free := h.book(t, "c-free", "Free")

	_, err = h.svc.Cancel(ctx, customer("c-free"), free.ID)
	requireKind(t, err, KindBlockedByHigherPriorityUnpaid)
	assert.Equal(t, domain.StatusPending, h.get(t, free.ID).Status)

	_, err = h.svc.MarkPaid(ctx, customer("c-basic"), basic.ID)
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, customer("c-free"), free.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.NotEmpty(t, h.events.events)
	last := h.events.events[len(h.events.events)-1]
	assert.Equal(t, domain.EventCancelled, last.Type)
	assert.Equal(t, free.ID, last.Appointment.ID)
	assert.Empty(t, last.Appointment.OTP)
}

func TestCancel_Rules(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	appt := h.book(t, "c1", "Basic")
	_, err := h.svc.Cancel(ctx, customer("someone-else"), appt.ID)
	requireKind(t, err, KindUnauthorized)

	_, err = h.svc.Cancel(ctx, customer("c1"), uuid.New())
	requireKind(t, err, KindNotFound)

	_, err = h.svc.MarkPaid(ctx, domain.SystemActor, appt.ID)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, customer("c1"), appt.ID)
	requireKind(t, err, KindAlreadySettled)

	_, err = h.svc.CancelPending(ctx, customer("c1"), appt.ID)
	requireKind(t, err, KindAlreadySettled)
}

func TestDecline_BlockedGuardIgnoresLowerPriority(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	premium := h.book(t, "c-premium", "Premium")
	h.book(t, "c-free", "Free")

	_, err := h.svc.Decline(ctx, h.provider, premium.ID)
	require.NoError(t, err)

	_, err = h.svc.Decline(ctx, customer("c-premium"), premium.ID)
	requireKind(t, err, KindUnauthorized)
}

func TestLoyaltyMilestone(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	h.st.PutCustomer(domain.Customer{ID: "loyal", Name: "Loyal", CompletedBookings: 8})

	complete := func() {
		appt := h.book(t, "loyal", "Basic")
		_, err := h.svc.Accept(ctx, h.provider, appt.ID)
		require.NoError(t, err)
		_, err = h.svc.Start(ctx, h.provider, appt.ID, testOTP)
		require.NoError(t, err)
		done, err := h.svc.Complete(ctx, h.provider, appt.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompleted, done.Status)
	}

	complete() // 9th
	assert.Equal(t, 1, h.coins("loyal"))
	require.Len(t, h.st.Transactions("loyal"), 1)

	complete() // 10th
	assert.Equal(t, 12, h.coins("loyal"))
	txns := h.st.Transactions("loyal")
	require.Len(t, txns, 3)
	assert.Equal(t, 1, txns[1].Amount)
	assert.Equal(t, 10, txns[2].Amount)
	assert.NotEqual(t, txns[1].ID, txns[2].ID)

	complete() // 11th
	assert.Equal(t, 13, h.coins("loyal"))
	assert.Len(t, h.st.Transactions("loyal"), 4)

	c, ok := h.st.Customer("loyal")
	require.True(t, ok)
	assert.Equal(t, 11, c.CompletedBookings)
	assert.Equal(t, 1, c.LoyaltyRewardsEarned)
	assert.NotNil(t, c.LastLoyaltyRewardAt)

	day, err := h.svc.ParseDay(testDate)
	require.NoError(t, err)
	assert.Equal(t, 3, h.st.CompletedCount(testProvider, day))
}

func TestComplete_BlockedByStartedHigherPriorityUnpaid(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	startIt := func(appt domain.Appointment) {
		_, err := h.svc.Accept(ctx, h.provider, appt.ID)
		require.NoError(t, err)
		_, err = h.svc.Start(ctx, h.provider, appt.ID, testOTP)
		require.NoError(t, err)
	}
	premium := h.book(t, "c-premium", "Premium")
	free := h.book(t, "c-free", "Free")
	startIt(premium)
	startIt(free)

	_, err := h.svc.Complete(ctx, h.provider, free.ID)
	requireKind(t, err, KindBlockedByHigherPriorityUnpaid)
	assert.Equal(t, domain.StatusStarted, h.get(t, free.ID).Status)

	_, err = h.svc.Complete(ctx, h.provider, premium.ID)
	require.NoError(t, err)
	_, err = h.svc.MarkPaid(ctx, h.provider, premium.ID)
	require.NoError(t, err)
	_, err = h.svc.Complete(ctx, h.provider, free.ID)
	require.NoError(t, err)
}

func TestComplete_OfflineSettlesPayment(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	appt, err := h.svc.CreatePublic(ctx, PublicInput{
		ProviderID: testProvider, Date: testDate, Time: "4:15 PM", TierLabel: "Free",
		CustomerName: "Public", CustomerPhone: "123",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, appt.PaymentStatus)
	assert.True(t, appt.IsOffline)
	assert.Equal(t, "New Public Booking", h.notes.For(testProvider)[0].Title)

	_, err = h.svc.Accept(ctx, h.provider, appt.ID)
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, h.provider, appt.ID, "")
	require.NoError(t, err)
	done, err := h.svc.Complete(ctx, h.provider, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, done.PaymentStatus)

	notes := h.notes.For(testProvider)
	assert.Contains(t, notes[len(notes)-1].Message, "Booking for Public on 15 June 2026 at 4:15 PM")
}

func TestStart_OTP(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	online := h.book(t, "c1", "Basic")
	offline := h.walkIn(t, "Basic")
	for _, a := range []domain.Appointment{online, offline} {
		_, err := h.svc.Accept(ctx, h.provider, a.ID)
		require.NoError(t, err)
	}

	_, err := h.svc.Start(ctx, h.provider, online.ID, "000000")
	requireKind(t, err, KindInvalidOtp)
	assert.Equal(t, domain.StatusConfirmed, h.get(t, online.ID).Status)
	requireKind(t, h.svc.VerifyOtp(ctx, h.provider, online.ID, ""), KindInvalidOtp)
	require.NoError(t, h.svc.VerifyOtp(ctx, h.provider, online.ID, testOTP))

	started, err := h.svc.Start(ctx, h.provider, offline.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, started.Status)

	started, err = h.svc.Start(ctx, h.provider, online.ID, testOTP)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, started.Status)
	assert.Empty(t, started.OTP)
}

func TestTransitions_InvalidFromState(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	appt := h.book(t, "c1", "Basic")
	_, err := h.svc.Start(ctx, h.provider, appt.ID, testOTP)
	requireKind(t, err, KindInvalidTransition)
	_, err = h.svc.Complete(ctx, h.provider, appt.ID)
	requireKind(t, err, KindInvalidTransition)

	_, err = h.svc.Accept(ctx, h.provider, appt.ID)
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, h.provider, appt.ID)
	requireKind(t, err, KindInvalidTransition)
}

func TestExpireOverdue_ReinstatesDisplacedBooking(t *testing.T) {
	h := newHarness(t, 1, WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) }))
	ctx := context.Background()

	free := h.book(t, "c-free", "Free")
	_, err := h.svc.MarkPaid(ctx, customer("c-free"), free.ID)
	require.NoError(t, err)
	bp := h.book(t, "c-bp", "Black Premium")

	n, err := h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusCancelled, h.get(t, bp.ID).Status)
	assert.Equal(t, domain.StatusConfirmed, h.get(t, free.ID).Status)
	assert.Len(t, h.notes.For("c-bp"), 1)

	n, err = h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExpireOverdue_LeavesFreshBookings(t *testing.T) {
	h := newHarness(t, 5)
	appt := h.book(t, "c1", "Basic")

	n, err := h.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, domain.StatusPending, h.get(t, appt.ID).Status)
}

func TestConcurrentTopTierAdmissionsDisplaceEachVictimOnce(t *testing.T) {
	const capacity = 3
	h := newHarness(t, capacity)
	for i := 0; i < capacity; i++ {
		h.book(t, "c-basic", "Basic")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Create(context.Background(), customer(uuid.NewString()), CreateInput{
				ProviderID: testProvider, Date: testDate, Time: "09:00", TierLabel: "Black Premium",
			})
			mu.Lock()
			defer mu.Unlock()
			var rej *RejectionError
			switch {
			case err == nil:
				admitted++
			case errors.As(err, &rej) && rej.Kind == KindNoDisplaceableCandidate:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, 10-capacity, rejected)
	assert.Equal(t, capacity, h.admitted(t))
	// one compensation per displaced booking
	assert.Equal(t, 3*capacity, h.coins("c-basic"))
	assert.Len(t, h.st.Transactions("c-basic"), capacity)
}

func TestCapacityNeverExceededUnderConcurrency(t *testing.T) {
	h := newHarness(t, 4)
	tiers := []string{"Free", "Basic", "Premium", "Black Premium"}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.svc.Create(context.Background(), customer(uuid.NewString()), CreateInput{
				ProviderID: testProvider, Date: testDate, Time: "09:00", TierLabel: tiers[i%len(tiers)],
			})
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, h.admitted(t), 4)
}

func TestCreate_IdempotencyKeyReplaysWithoutSecondAdmission(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.book(t, "c-free", "Free")

	in := CreateInput{
		ProviderID: testProvider, Date: testDate, Time: "09:00", TierLabel: "Black Premium",
		IdempotencyKey: "k1",
	}
	first, err := h.svc.Create(ctx, customer("c-bp"), in)
	require.NoError(t, err)
	again, err := h.svc.Create(ctx, customer("c-bp"), in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, h.admitted(t))

	in.Time = "10:00"
	_, err = h.svc.Create(ctx, customer("c-bp"), in)
	requireKind(t, err, KindIdempotencyConflict)
}

func TestNotificationFailureDoesNotUndoTransition(t *testing.T) {
	h := newHarness(t, 5, WithNotifier(failingNotifier{}))
	appt := h.book(t, "c1", "Basic")

	accepted, err := h.svc.Accept(context.Background(), h.provider, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, accepted.Status)
}

func TestAvailabilityQueueAndCounts(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	a, err := h.svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{Type: domain.AvailabilityFree, Count: 2}, a)

	h.book(t, "c1", "Free")
	bp := h.book(t, "c2", "Black Premium")

	a, err = h.svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{Type: domain.AvailabilityPremium, Count: 1}, a)

	again, err := h.svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	batch, err := h.svc.AvailabilityBatch(ctx, []string{testProvider, "unknown"}, testDate)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Availability{testProvider: a}, batch)

	queue, err := h.svc.Queue(ctx, testProvider, testDate)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, bp.ID, queue[0].ID)
	for _, q := range queue {
		assert.Empty(t, q.OTP)
	}

	counts, err := h.svc.DailyCounts(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["Free"])
	assert.Equal(t, 1, counts["Black Premium"])
}

func TestSetCapacity_AffectsFutureAdmissionsOnly(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	h.book(t, "c1", "Basic")
	h.book(t, "c2", "Basic")

	_, err := h.svc.SetCapacity(ctx, customer("c1"), 5)
	requireKind(t, err, KindUnauthorized)
	_, err = h.svc.SetCapacity(ctx, h.provider, 0)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	p, err := h.svc.SetCapacity(ctx, h.provider, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxAppointmentsPerDay)
	assert.Equal(t, 2, h.admitted(t))

	_, err = h.svc.Create(ctx, customer("c3"), CreateInput{ProviderID: testProvider, Date: testDate, Time: "12:00", TierLabel: "Basic"})
	requireKind(t, err, KindCapacityExceeded)

	a, err := h.svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityPremium, a.Type)
}

// failingUpdateStore fails every conditional update inside slot transactions.
type failingUpdateStore struct {
	*memory.Store
	err error
}

func (s failingUpdateStore) InSlotTransaction(ctx context.Context, providerID string, day domain.DayWindow, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return s.Store.InSlotTransaction(ctx, providerID, day, func(ctx context.Context, tx store.SlotTx) error {
		return fn(ctx, failingUpdateTx{SlotTx: tx, err: s.err})
	})
}

type failingUpdateTx struct {
	store.SlotTx
	err error
}

func (t failingUpdateTx) UpdateAppointment(context.Context, domain.Appointment, domain.Status) (domain.Appointment, error) {
	return domain.Appointment{}, t.err
}

func TestCreate_DisplacementWriteFailureAbortsAdmission(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	victim := h.book(t, "c-basic", "Basic")
	eventsBefore := len(h.events.events)

	svc := NewService(failingUpdateStore{Store: h.st, err: errors.New("disk full")}, h.opts...)
	_, err := svc.Create(ctx, customer("c-black"), CreateInput{
		ProviderID: testProvider,
		Date:       testDate,
		Time:       "12:00",
		TierLabel:  "Black Premium",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	assert.Equal(t, 1, h.admitted(t))
	got := h.get(t, victim.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.DisplacedBy)
	assert.Equal(t, 0, h.coins("c-basic"))
	assert.Empty(t, h.st.Transactions("c-basic"))
	assert.Empty(t, h.notes.For("c-basic"))
	assert.Empty(t, h.notes.For("c-black"))
	assert.Len(t, h.events.events, eventsBefore)
}

// writeAfterReadStore runs after once, right after the first unlocked day
// read, so that read returns a view older than the next commit.
type writeAfterReadStore struct {
	*memory.Store
	mu    sync.Mutex
	fired bool
	after func()
}

func (s *writeAfterReadStore) ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error) {
	rows, err := s.Store.ListDay(ctx, providerID, day, statuses...)
	s.mu.Lock()
	run := !s.fired
	s.fired = true
	s.mu.Unlock()
	if run {
		s.after()
	}
	return rows, err
}

func TestAvailability_SkipsCacheWhenWriteCommitsDuringRead(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	cache := availcache.NewLocal(time.Minute)

	var svc *Service
	st := &writeAfterReadStore{Store: h.st}
	st.after = func() {
		_, err := svc.Create(ctx, customer("c1"), CreateInput{
			ProviderID: testProvider,
			Date:       testDate,
			Time:       "10:00",
			TierLabel:  "Basic",
		})
		require.NoError(t, err)
	}
	svc = NewService(st, append(h.opts, WithCache(cache))...)

	stale, err := svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{Type: domain.AvailabilityFree, Count: 3}, stale)
	_, cached := cache.Get(ctx, testProvider, testDate)
	assert.False(t, cached, "view read before a commit must not be cached")

	fresh, err := svc.Availability(ctx, testProvider, testDate)
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{Type: domain.AvailabilityFree, Count: 2}, fresh)
	got, cached := cache.Get(ctx, testProvider, testDate)
	assert.True(t, cached)
	assert.Equal(t, fresh, got)
}

type countingRecorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *countingRecorder) Admission(tier, outcome string)      {}
func (r *countingRecorder) Displacement(tier string, coins int) {}
func (r *countingRecorder) Reinstatement()                      {}
func (r *countingRecorder) Expired(n int)                       {}

func (r *countingRecorder) Transition(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, op+":"+outcome)
}

func TestVerifyOtp_IsReadOnly(t *testing.T) {
	rec := &countingRecorder{}
	h := newHarness(t, 5, WithRecorder(rec))
	ctx := context.Background()
	appt := h.book(t, "c1", "Basic")
	eventsBefore := len(h.events.events)
	notesBefore := len(h.notes.For("c1"))

	require.NoError(t, h.svc.VerifyOtp(ctx, h.provider, appt.ID, testOTP))
	requireKind(t, h.svc.VerifyOtp(ctx, h.provider, appt.ID, "000000"), KindInvalidOtp)
	requireKind(t, h.svc.VerifyOtp(ctx, customer("c1"), appt.ID, testOTP), KindUnauthorized)

	assert.Empty(t, rec.transitions)
	assert.Len(t, h.events.events, eventsBefore)
	assert.Len(t, h.notes.For("c1"), notesBefore)
	assert.Equal(t, domain.StatusPending, h.get(t, appt.ID).Status)
}
