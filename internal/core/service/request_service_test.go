package service

import (
	"context"
	"errors"
	"testing"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

type requestFixture struct {
	users    *stubUserRepo
	requests *stubRequestRepo
	svc      *RequestService
}

func newRequestFixture() *requestFixture {
	users := newStubUserRepo()
	requests := newStubRequestRepo()
	ledger := NewDonationService(users, nil, discardLogger)
	return &requestFixture{
		users:    users,
		requests: requests,
		svc:      NewRequestService(requests, ledger, discardLogger),
	}
}

func recipientIdentity(id string) domain.Identity {
	return domain.Identity{UserID: id, Role: domain.RoleRecipient}
}

func TestRequestService_Create(t *testing.T) {
	f := newRequestFixture()

	req, err := f.svc.Create(context.Background(), recipientIdentity("rec_1"), "ab-", " Cusco ")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if req.Status != domain.RequestPending {
		t.Errorf("expected pending, got %s", req.Status)
	}
	if req.BloodGroup != "AB-" || req.City != "Cusco" || req.RecipientID != "rec_1" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRequestService_Create_ByDonorIsForbidden(t *testing.T) {
	f := newRequestFixture()

	_, err := f.svc.Create(context.Background(), domain.Identity{UserID: "d", Role: domain.RoleDonor}, "O+", "Lima")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequestService_Create_Validation(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, recipientIdentity("r"), "X", "Lima"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for blood group, got %v", err)
	}
	if _, err := f.svc.Create(ctx, recipientIdentity("r"), "O+", "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for city, got %v", err)
	}
}

func TestRequestService_Accept_RecordsLedgerEntry(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()
	donor := seedDonor(f.users, "d@example.com")

	req, _ := f.svc.Create(ctx, recipientIdentity("rec_1"), "O-", "Lima")
	accepted, err := f.svc.Accept(ctx, domain.Identity{UserID: donor.ID, Role: domain.RoleDonor}, req.ID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Status != domain.RequestAccepted || accepted.AcceptedBy != donor.ID {
		t.Fatalf("unexpected request after accept: %+v", accepted)
	}

	stored := f.users.get(donor.ID)
	if len(stored.Donations) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(stored.Donations))
	}
	entry := stored.Donations[0]
	if entry.Status != domain.DonationCompleted || entry.RequestID != req.ID || entry.ID != 1 {
		t.Errorf("unexpected ledger entry %+v", entry)
	}
	if stored.TotalDonated != domain.CountCompleted(stored.Donations) {
		t.Errorf("totalDonated %d drifted from ledger", stored.TotalDonated)
	}
	if stored.Level != domain.ComputeLevel(1) {
		t.Errorf("level not recomputed: %+v", stored.Level)
	}
}

func TestRequestService_Accept_ByRecipientIsForbidden(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	req, _ := f.svc.Create(ctx, recipientIdentity("rec_1"), "O-", "Lima")
	_, err := f.svc.Accept(ctx, recipientIdentity("rec_2"), req.ID)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequestService_Accept_Errors(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()
	donor := seedDonor(f.users, "d@example.com")
	asDonor := domain.Identity{UserID: donor.ID, Role: domain.RoleDonor}

	if _, err := f.svc.Accept(ctx, asDonor, "req_404"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}

	req, _ := f.svc.Create(ctx, recipientIdentity("rec_1"), "O-", "Lima")
	if _, err := f.svc.Accept(ctx, asDonor, req.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, asDonor, req.ID); !errors.Is(err, domain.ErrRequestNotPending) {
		t.Errorf("expected ErrRequestNotPending, got %v", err)
	}
	if n := len(f.users.get(donor.ID).Donations); n != 1 {
		t.Errorf("a rejected accept must not touch the ledger, entries=%d", n)
	}
}

func TestRequestService_Accept_UnknownDonorReopensRequest(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	req, _ := f.svc.Create(ctx, recipientIdentity("rec_1"), "O-", "Lima")
	_, err := f.svc.Accept(ctx, domain.Identity{UserID: "ghost", Role: domain.RoleDonor}, req.ID)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	stored, _ := f.requests.FindByID(ctx, req.ID)
	if stored.Status != domain.RequestPending || stored.AcceptedBy != "" {
		t.Fatalf("request must be reopened, got %+v", stored)
	}
}

func TestRequestService_Complete(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()
	donor := seedDonor(f.users, "d@example.com")
	owner := recipientIdentity("rec_1")

	req, _ := f.svc.Create(ctx, owner, "O-", "Lima")

	if _, err := f.svc.Complete(ctx, owner, req.ID); !errors.Is(err, domain.ErrRequestNotAccepted) {
		t.Errorf("completing a pending request: expected ErrRequestNotAccepted, got %v", err)
	}

	_, _ = f.svc.Accept(ctx, domain.Identity{UserID: donor.ID, Role: domain.RoleDonor}, req.ID)

	if _, err := f.svc.Complete(ctx, recipientIdentity("rec_2"), req.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other recipient: expected ErrForbidden, got %v", err)
	}

	done, err := f.svc.Complete(ctx, owner, req.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Status != domain.RequestCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
}

func TestRequestService_List_ScopesRecipients(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	_, _ = f.svc.Create(ctx, recipientIdentity("rec_1"), "O-", "Lima")
	_, _ = f.svc.Create(ctx, recipientIdentity("rec_2"), "A+", "Cusco")

	own, err := f.svc.List(ctx, recipientIdentity("rec_1"), ports.RequestFilter{RecipientID: "rec_2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].RecipientID != "rec_1" {
		t.Fatalf("recipient must only see own requests, got %+v", own)
	}

	all, err := f.svc.List(ctx, domain.Identity{UserID: "d", Role: domain.RoleDonor}, ports.RequestFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("donor must see all requests, got %d", len(all))
	}

	byGroup, _ := f.svc.List(ctx, adminIdentity(), ports.RequestFilter{BloodGroup: "a+"})
	if len(byGroup) != 1 || byGroup[0].BloodGroup != "A+" {
		t.Fatalf("blood group filter not applied: %+v", byGroup)
	}

	if _, err := f.svc.List(ctx, adminIdentity(), ports.RequestFilter{Status: "lost"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
}
