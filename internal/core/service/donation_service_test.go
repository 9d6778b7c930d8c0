package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

func donationInput(userID string) ports.SubmitDonationInput {
	return ports.SubmitDonationInput{
		UserID:   userID,
		Date:     "2026-03-01",
		Location: "Central Hospital",
		Amount:   450,
	}
}

func TestDonationService_Submit_AssignsSequentialPendingIDs(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	self := domain.Identity{UserID: donor.ID, Role: domain.RoleDonor}

	for want := 1; want <= 3; want++ {
		res, err := svc.Submit(context.Background(), self, donationInput(donor.ID))
		if err != nil {
			t.Fatalf("submit %d failed: %v", want, err)
		}
		if res.Entry.ID != want {
			t.Errorf("expected id %d, got %d", want, res.Entry.ID)
		}
		if res.Entry.Status != domain.DonationPending {
			t.Errorf("expected Pending, got %s", res.Entry.Status)
		}
	}

	stored := repo.get(donor.ID)
	if len(stored.Donations) != 3 {
		t.Fatalf("expected 3 stored entries, got %d", len(stored.Donations))
	}
	if stored.TotalDonated != 0 {
		t.Errorf("pending entries must not count, totalDonated=%d", stored.TotalDonated)
	}
}

func TestDonationService_Submit_Errors(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	ctx := context.Background()

	other := domain.Identity{UserID: "someone_else", Role: domain.RoleDonor}
	if _, err := svc.Submit(ctx, other, donationInput(donor.ID)); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another user's ledger, got %v", err)
	}

	if _, err := svc.Submit(ctx, adminIdentity(), donationInput("missing")); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	bad := donationInput(donor.ID)
	bad.Amount = 0
	if _, err := svc.Submit(ctx, adminIdentity(), bad); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}

	bad = donationInput(donor.ID)
	bad.Location = "<b></b>"
	if _, err := svc.Submit(ctx, adminIdentity(), bad); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for markup-only location, got %v", err)
	}
}

func TestDonationService_Submit_SanitisesText(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	in := donationInput(donor.ID)
	in.Location = `<script>alert(1)</script>St. Mary's`
	res, err := svc.Submit(context.Background(), adminIdentity(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Entry.Location != "St. Mary's" {
		t.Fatalf("unexpected location %q", res.Entry.Location)
	}
}

func TestDonationService_Submit_StripsEscapedMarkup(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	in := donationInput(donor.ID)
	in.Location = "&lt;script&gt;alert(1)&lt;/script&gt;Clinic"
	res, err := svc.Submit(context.Background(), adminIdentity(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Entry.Location != "Clinic" {
		t.Fatalf("unexpected location %q", res.Entry.Location)
	}
	if stored := repo.get(donor.ID).Donations[0].Location; stored != "Clinic" {
		t.Fatalf("unexpected stored location %q", stored)
	}
}

func TestDonationService_Submit_IdempotencyReplay(t *testing.T) {
	repo := newStubUserRepo()
	idem := newStubIdemStore()
	svc := NewDonationService(repo, idem, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	in := donationInput(donor.ID)
	in.IdempotencyKey = "key-1"

	first, err := svc.Submit(context.Background(), adminIdentity(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Submit(context.Background(), adminIdentity(), in)
	if err != nil {
		t.Fatal(err)
	}

	if !second.AlreadyExisted {
		t.Error("replay must set AlreadyExisted=true")
	}
	if second.Entry.ID != first.Entry.ID {
		t.Errorf("replay returned id %d, want %d", second.Entry.ID, first.Entry.ID)
	}
	if n := len(repo.get(donor.ID).Donations); n != 1 {
		t.Errorf("expected 1 stored entry, got %d", n)
	}
}

func TestDonationService_Submit_IdempotencyStoreDown(t *testing.T) {
	repo := newStubUserRepo()
	idem := newStubIdemStore()
	idem.reserveErr = errors.New("redis unavailable")
	svc := NewDonationService(repo, idem, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	in := donationInput(donor.ID)
	in.IdempotencyKey = "key-1"
	if _, err := svc.Submit(context.Background(), adminIdentity(), in); err != nil {
		t.Fatalf("submission must proceed when the idempotency store fails: %v", err)
	}
}

func TestDonationService_Submit_ConcurrentRetriesAppendOnce(t *testing.T) {
	repo := newStubUserRepo()
	idem := newStubIdemStore()
	idem.arrive = &sync.WaitGroup{}
	idem.arrive.Add(2)
	svc := NewDonationService(repo, idem, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	in := donationInput(donor.ID)
	in.IdempotencyKey = "retry-1"

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Submit(context.Background(), adminIdentity(), in)
			if err != nil {
				if !errors.Is(err, domain.ErrSubmissionInFlight) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !res.AlreadyExisted {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one created submission, got %d", created)
	}
	if n := len(repo.get(donor.ID).Donations); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	if id, ok := idem.held(donor.ID, "retry-1"); !ok || id != 1 {
		t.Fatalf("expected key to map to donation 1, got id=%d held=%v", id, ok)
	}
}

func TestDonationService_Submit_PendingKeyIsConflict(t *testing.T) {
	repo := newStubUserRepo()
	idem := newStubIdemStore()
	svc := NewDonationService(repo, idem, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	if reserved, _, _ := idem.Reserve(context.Background(), donor.ID, "key-1"); !reserved {
		t.Fatal("setup: expected to reserve key")
	}

	in := donationInput(donor.ID)
	in.IdempotencyKey = "key-1"
	_, err := svc.Submit(context.Background(), adminIdentity(), in)
	if !errors.Is(err, domain.ErrSubmissionInFlight) || domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected in-flight conflict, got %v", err)
	}
	if n := len(repo.get(donor.ID).Donations); n != 0 {
		t.Fatalf("expected no ledger entry, got %d", n)
	}
}

func TestDonationService_Submit_FailedAppendReleasesKey(t *testing.T) {
	repo := newStubUserRepo()
	idem := newStubIdemStore()
	svc := NewDonationService(repo, idem, discardLogger)

	in := donationInput("missing")
	in.IdempotencyKey = "key-1"
	if _, err := svc.Submit(context.Background(), adminIdentity(), in); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, held := idem.held("missing", "key-1"); held {
		t.Fatal("key must be released when the append fails")
	}
}

func TestDonationService_Approve_RecomputesLevel(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Submit(ctx, adminIdentity(), donationInput(donor.ID)); err != nil {
			t.Fatal(err)
		}
	}

	var last *ports.ApproveDonationResult
	for id := 1; id <= 5; id++ {
		res, err := svc.Approve(ctx, adminIdentity(), donor.ID, id)
		if err != nil {
			t.Fatalf("approve %d failed: %v", id, err)
		}
		if res.Entry.Status != domain.DonationCompleted {
			t.Errorf("entry %d not completed", id)
		}
		if res.TotalDonated != id {
			t.Errorf("after %d approvals totalDonated=%d", id, res.TotalDonated)
		}
		if res.Level != domain.ComputeLevel(id) {
			t.Errorf("after %d approvals level=%+v", id, res.Level)
		}
		last = res
	}
	if !last.LeveledUp {
		t.Error("fifth approval must level the user up")
	}

	stored := repo.get(donor.ID)
	if stored.TotalDonated != domain.CountCompleted(stored.Donations) {
		t.Fatalf("totalDonated %d drifted from ledger count %d", stored.TotalDonated, domain.CountCompleted(stored.Donations))
	}
	if stored.Level.LevelBadge != domain.BadgeSilver || stored.Level.Current != 2 {
		t.Fatalf("unexpected stored level %+v", stored.Level)
	}
}

func TestDonationService_Approve_MissingDonationLeavesStateUnchanged(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	ctx := context.Background()

	_, _ = svc.Submit(ctx, adminIdentity(), donationInput(donor.ID))
	before := repo.get(donor.ID)

	_, err := svc.Approve(ctx, adminIdentity(), donor.ID, 42)
	if !errors.Is(err, domain.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}

	after := repo.get(donor.ID)
	if after.Version != before.Version || after.Donations[0].Status != domain.DonationPending || after.TotalDonated != 0 {
		t.Fatalf("state changed on failed approval: %+v", after)
	}

	if _, err := svc.Approve(ctx, adminIdentity(), "missing", 1); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDonationService_Approve_TwiceIsRejected(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	ctx := context.Background()

	_, _ = svc.Submit(ctx, adminIdentity(), donationInput(donor.ID))
	if _, err := svc.Approve(ctx, adminIdentity(), donor.ID, 1); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Approve(ctx, adminIdentity(), donor.ID, 1)
	if !errors.Is(err, domain.ErrDonationAlreadyCompleted) {
		t.Fatalf("expected ErrDonationAlreadyCompleted, got %v", err)
	}
	if got := repo.get(donor.ID).TotalDonated; got != 1 {
		t.Fatalf("re-approval must not double count, totalDonated=%d", got)
	}
}

func TestDonationService_Approve_RequiresAdmin(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")
	self := domain.Identity{UserID: donor.ID, Role: domain.RoleDonor}

	_, _ = svc.Submit(context.Background(), self, donationInput(donor.ID))
	if _, err := svc.Approve(context.Background(), self, donor.ID, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("donors must not approve their own donations, got %v", err)
	}
}

func TestDonationService_RetriesOnVersionConflict(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	repo.forceConflicts = 2
	res, err := svc.Submit(context.Background(), adminIdentity(), donationInput(donor.ID))
	if err != nil {
		t.Fatalf("submit should succeed after retries: %v", err)
	}
	if res.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", res.Retries)
	}

	repo.forceConflicts = maxLedgerAttempts
	_, err = svc.Approve(context.Background(), adminIdentity(), donor.ID, 1)
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if repo.get(donor.ID).Donations[0].Status != domain.DonationPending {
		t.Fatal("entry must stay Pending when every attempt conflicts")
	}
}

func TestDonationService_ConcurrentSubmitsKeepDistinctIDs(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	donor := seedDonor(repo, "d@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Submit(context.Background(), adminIdentity(), donationInput(donor.ID))
		}()
	}
	wg.Wait()

	stored := repo.get(donor.ID)
	seen := map[int]bool{}
	for _, d := range stored.Donations {
		if seen[d.ID] {
			t.Fatalf("duplicate donation id %d", d.ID)
		}
		seen[d.ID] = true
	}
	if int64(len(stored.Donations)) != stored.Version {
		t.Fatalf("every stored entry must correspond to one guarded write: entries=%d version=%d", len(stored.Donations), stored.Version)
	}
}

func TestDonationService_Summary(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewDonationService(repo, nil, discardLogger)
	legacy := repo.seed(&domain.User{Email: "old@example.com", Role: domain.RoleDonor, IsActive: true})

	sum, err := svc.Summary(context.Background(), domain.Identity{UserID: legacy.ID, Role: domain.RoleDonor}, legacy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Level != domain.ComputeLevel(0) {
		t.Errorf("missing level must default to the zero state, got %+v", sum.Level)
	}
	if sum.Donations == nil || sum.Achievements == nil {
		t.Error("summary sequences must never be nil")
	}
	if !sum.IsActive {
		t.Error("expected isActive=true")
	}

	if _, err := svc.Summary(context.Background(), domain.Identity{UserID: "x", Role: domain.RoleDonor}, legacy.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
