package leads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/notify"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type staticProfiles map[string]profiles.Profile

func (s staticProfiles) GetByID(_ context.Context, profileID string) (profiles.Profile, error) {
	profile, ok := s[profileID]
	if !ok {
		return profiles.Profile{}, apperr.NotFound("profiles.get", "profile_not_found", profiles.ErrProfileNotFound)
	}
	return profile, nil
}

type staticOwners map[string]string

func (s staticOwners) OwnerEmail(_ context.Context, workspaceID string) (string, error) {
	email, ok := s[workspaceID]
	if !ok {
		return "", apperr.NotFound("accounts.owner_email", "owner_not_found", errors.New("no owner"))
	}
	return email, nil
}

type recordingNotifier struct {
	messages []notify.Message
	result   outcome.Outcome
}

func (n *recordingNotifier) Send(_ context.Context, message notify.Message) outcome.Outcome {
	n.messages = append(n.messages, message)
	return n.result
}

type recordingListener struct {
	leads []Lead
}

func (l *recordingListener) LeadCaptured(_ context.Context, lead Lead) {
	l.leads = append(l.leads, lead)
}

type fixture struct {
	service  *Service
	db       *gorm.DB
	notifier *recordingNotifier
	listener *recordingListener
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "leads.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Lead{}); err != nil {
		t.Fatalf("failed to migrate leads: %v", err)
	}

	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{result: outcome.Succeeded()},
		listener: &recordingListener{},
		now:      time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Profiles: staticProfiles{
			"profile-ada":    {ID: "profile-ada", WorkspaceID: "ws-ada", Handle: "ada", DisplayName: "Ada"},
			"profile-orphan": {ID: "profile-orphan", WorkspaceID: "ws-none", Handle: "orphan", DisplayName: "Orphan"},
		},
		Owners:     staticOwners{"ws-ada": "owner@example.com"},
		Notifier:   f.notifier,
		Listener:   f.listener,
		IDProvider: &ids.SequenceProvider{Prefix: "lead"},
		Clock: func() time.Time {
			f.now = f.now.Add(time.Minute)
			return f.now
		},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	f.service = service
	return f
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var total int64
	if err := f.db.Model(&Lead{}).Count(&total).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return total
}

func (f *fixture) capture(t *testing.T, submission Submission) Result {
	t.Helper()
	result, err := f.service.Capture(context.Background(), submission)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	return result
}

func TestCaptureStoresContactAndNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	result := f.capture(t, Submission{
		ProfileID: "profile-ada",
		Kind:      "contact",
		Email:     "  fan@example.com ",
		Name:      "Fan",
		Message:   "Loved the talk",
		BaseURL:   "https://sundae.to",
	})
	if !result.Stored || !result.Notification.Succeeded() {
		t.Fatalf("expected stored lead and delivered notification, got %+v", result)
	}

	var stored Lead
	if err := f.db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if stored.Kind != KindContact || stored.Email != "fan@example.com" {
		t.Fatalf("unexpected lead %+v", stored)
	}
	if stored.NameText() != "Fan" || stored.MessageText() != "Loved the talk" || string(stored.Meta) != "{}" {
		t.Fatalf("unexpected lead details %+v", stored)
	}

	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.messages))
	}
	message := f.notifier.messages[0]
	if message.To != "owner@example.com" || message.Subject != "New message for Ada" || message.ReplyTo != "fan@example.com" {
		t.Fatalf("unexpected notification %+v", message)
	}
	if len(f.listener.leads) != 1 {
		t.Fatalf("expected listener to see the lead")
	}
}

func TestCaptureSignupDropsMessage(t *testing.T) {
	f := newFixture(t)
	result := f.capture(t, Submission{
		ProfileID: "profile-ada",
		Kind:      "signup",
		Email:     "fan@example.com",
		Message:   "should not be kept",
	})
	if result.Lead.Message != nil || result.Lead.Name != nil {
		t.Fatalf("signup leads keep neither name nor message, got %+v", result.Lead)
	}
	if f.notifier.messages[0].Subject != "New subscriber for Ada" {
		t.Fatalf("unexpected subject %q", f.notifier.messages[0].Subject)
	}
}

func TestCaptureHoneypotStoresNothing(t *testing.T) {
	f := newFixture(t)
	result := f.capture(t, Submission{
		ProfileID: "profile-ada",
		Kind:      "signup",
		Email:     "bot@example.com",
		Honeypot:  "Acme Inc",
	})
	if !result.Honeypot || result.Stored {
		t.Fatalf("expected honeypot result, got %+v", result)
	}
	if f.count(t) != 0 || len(f.notifier.messages) != 0 {
		t.Fatalf("honeypot submissions must not be stored or notified")
	}
}

func TestCaptureRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name       string
		submission Submission
		kind       apperr.Kind
		reason     string
	}{
		{
			name:       "missing profile",
			submission: Submission{Kind: "signup", Email: "fan@example.com"},
			kind:       apperr.KindInvalid,
			reason:     "missing_profile_id",
		},
		{
			name:       "unknown kind",
			submission: Submission{ProfileID: "profile-ada", Kind: "newsletter", Email: "fan@example.com"},
			kind:       apperr.KindInvalid,
			reason:     "invalid_kind",
		},
		{
			name:       "unknown profile",
			submission: Submission{ProfileID: "profile-missing", Kind: "signup", Email: "fan@example.com"},
			kind:       apperr.KindNotFound,
			reason:     "profile_not_found",
		},
		{
			name:       "missing email",
			submission: Submission{ProfileID: "profile-ada", Kind: "signup"},
			kind:       apperr.KindInvalid,
			reason:     "invalid_email",
		},
		{
			name:       "malformed email",
			submission: Submission{ProfileID: "profile-ada", Kind: "contact", Email: "fan@example"},
			kind:       apperr.KindInvalid,
			reason:     "invalid_email",
		},
		{
			name:       "email with spaces",
			submission: Submission{ProfileID: "profile-ada", Kind: "contact", Email: "fan @example.com"},
			kind:       apperr.KindInvalid,
			reason:     "invalid_email",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Capture(context.Background(), testCase.submission)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if apperr.KindOf(err) != testCase.kind || apperr.ReasonOf(err) != testCase.reason {
				t.Fatalf("expected %s/%s, got %s/%s", testCase.kind, testCase.reason, apperr.KindOf(err), apperr.ReasonOf(err))
			}
			if f.count(t) != 0 {
				t.Fatalf("rejected submissions must not be stored")
			}
		})
	}
}

func TestCaptureSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.result = outcome.Failed(errors.New("resend unavailable"))

	result := f.capture(t, Submission{ProfileID: "profile-ada", Kind: "signup", Email: "fan@example.com"})
	if !result.Stored || !result.Notification.Failed() {
		t.Fatalf("expected stored lead with failed notification, got %+v", result)
	}
	if f.count(t) != 1 {
		t.Fatalf("expected one stored lead")
	}
}

func TestCaptureSkipsNotificationWithoutOwner(t *testing.T) {
	f := newFixture(t)
	result := f.capture(t, Submission{ProfileID: "profile-orphan", Kind: "signup", Email: "fan@example.com"})
	if result.Notification.Status != outcome.StatusSkipped || result.Notification.Reason != reasonNoOwner {
		t.Fatalf("expected skipped(%s), got %+v", reasonNoOwner, result.Notification)
	}
	if len(f.notifier.messages) != 0 {
		t.Fatalf("no notification expected without an owner")
	}
}

func TestCaptureDoesNotDeduplicate(t *testing.T) {
	f := newFixture(t)
	submission := Submission{ProfileID: "profile-ada", Kind: "signup", Email: "fan@example.com"}
	f.capture(t, submission)
	f.capture(t, submission)
	if f.count(t) != 2 {
		t.Fatalf("expected both submissions stored, got %d", f.count(t))
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"first@example.com", "second@example.com", "third@example.com"} {
		f.capture(t, Submission{ProfileID: "profile-ada", Kind: "signup", Email: email})
	}

	listed, err := f.service.List(ctx, "profile-ada", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 || listed[0].Email != "third@example.com" || listed[1].Email != "second@example.com" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	others, err := f.service.List(ctx, "profile-orphan", 0)
	if err != nil || len(others) != 0 {
		t.Fatalf("expected no leads for another profile, got %d (%v)", len(others), err)
	}
}

func TestExportWorkbookWritesRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.capture(t, Submission{ProfileID: "profile-ada", Kind: "contact", Email: "fan@example.com", Name: "Fan", Message: "Hi"})

	payload, err := f.service.ExportWorkbook(ctx, "profile-ada")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer func() { _ = workbook.Close() }()

	rows, err := workbook.GetRows("Leads")
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if got := fmt.Sprint(rows[0]); got != "[created_at kind email name message]" {
		t.Fatalf("unexpected header %s", got)
	}
	if got := fmt.Sprint(rows[1][1:]); got != "[contact fan@example.com Fan Hi]" {
		t.Fatalf("unexpected row %s", got)
	}
}
