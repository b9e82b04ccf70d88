package closing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/ledger"
)

func newAdminFixture(t *testing.T) (*Service, *mockRepository, *mockRecorder) {
	t.Helper()
	repo := newMockRepository()
	gw := newMockLedger()
	gw.addAccount("Retained Earnings", ledger.RootEquity, false)
	recorder := &mockRecorder{}
	return newTestService(repo, gw, recorder, nil), repo, recorder
}

func TestCreatePeriod(t *testing.T) {
	svc, repo, recorder := newAdminFixture(t)

	period, err := svc.CreatePeriod(context.Background(), accountsManager(), "January 2025", "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)

	assert.NotZero(t, period.ID)
	assert.Equal(t, StatusOpen, period.Status)
	assert.Equal(t, audit.ActionCreated, recorder.lastAction())

	stored, err := repo.GetByID(context.Background(), period.ID)
	require.NoError(t, err)
	assert.Equal(t, "January 2025", stored.Name)
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	svc, _, _ := newAdminFixture(t)
	ctx := context.Background()

	_, err := svc.CreatePeriod(ctx, sysManager(), "January 2025", "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)

	_, err = svc.CreatePeriod(ctx, sysManager(), "Mid January", "Acme",
		date(2025, time.January, 15), date(2025, time.February, 15))
	assert.Equal(t, CodePeriodOverlap, domainCode(t, err))

	// Another company may use the same window.
	_, err = svc.CreatePeriod(ctx, sysManager(), "January 2025", "Globex",
		date(2025, time.January, 1), date(2025, time.January, 31))
	assert.NoError(t, err)
}

func TestCreatePeriodRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := newAdminFixture(t)

	_, err := svc.CreatePeriod(context.Background(), sysManager(), "Broken", "Acme",
		date(2025, time.February, 1), date(2025, time.January, 1))
	assert.Equal(t, CodeValidationFailed, domainCode(t, err))
}

func TestCreatePeriodRequiresManagerRole(t *testing.T) {
	svc, _, _ := newAdminFixture(t)

	_, err := svc.CreatePeriod(context.Background(), plainUser(), "January 2025", "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	assert.Equal(t, CodeForbidden, domainCode(t, err))
}

func TestGenerateMonthly(t *testing.T) {
	svc, repo, _ := newAdminFixture(t)
	ctx := context.Background()

	created, err := svc.GenerateMonthly(ctx, sysManager(), "Acme", 2025)
	require.NoError(t, err)
	require.Len(t, created, 12)

	assert.Equal(t, "January 2025", created[0].Name)
	assert.Equal(t, date(2025, time.January, 1), created[0].StartDate)
	assert.Equal(t, date(2025, time.January, 31), created[0].EndDate)
	assert.Equal(t, "February 2025", created[1].Name)
	assert.Equal(t, date(2025, time.February, 28), created[1].EndDate)
	assert.Equal(t, "December 2025", created[11].Name)
	assert.Equal(t, date(2025, time.December, 31), created[11].EndDate)

	periods, err := repo.List(ctx, "Acme")
	require.NoError(t, err)
	assert.Len(t, periods, 12)
}

func TestGenerateMonthlySkipsExisting(t *testing.T) {
	svc, repo, _ := newAdminFixture(t)
	repo.addPeriod(Period{
		Name:      "March 2025",
		Company:   "Acme",
		StartDate: date(2025, time.March, 1),
		EndDate:   date(2025, time.March, 31),
	})

	created, err := svc.GenerateMonthly(context.Background(), sysManager(), "Acme", 2025)
	require.NoError(t, err)
	assert.Len(t, created, 11)
	for _, p := range created {
		assert.NotEqual(t, "March 2025", p.Name)
	}
}

func TestDeletePeriodOnlyWhenOpen(t *testing.T) {
	svc, repo, _ := newAdminFixture(t)
	ctx := context.Background()

	open := repo.addPeriod(Period{
		Name: "January 2025", Company: "Acme",
		StartDate: date(2025, time.January, 1), EndDate: date(2025, time.January, 31),
	})
	closed := repo.addPeriod(Period{
		Name: "February 2025", Company: "Acme",
		StartDate: date(2025, time.February, 1), EndDate: date(2025, time.February, 28),
		Status: StatusClosed,
	})

	require.NoError(t, svc.DeletePeriod(ctx, sysManager(), open.ID))
	_, err := repo.GetByID(ctx, open.ID)
	assert.ErrorIs(t, err, ErrPeriodNotFound)

	err = svc.DeletePeriod(ctx, sysManager(), closed.ID)
	assert.Equal(t, CodeAlreadyClosed, domainCode(t, err))
}

func TestUpdateConfig(t *testing.T) {
	svc, repo, _ := newAdminFixture(t)

	cfg, err := svc.UpdateConfig(context.Background(), accountsManager(), Config{
		Company:                 "Acme",
		RetainedEarningsAccount: "Retained Earnings",
		ClosingRole:             "Finance Controller",
		RestrictClosedPeriods:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Finance Controller", cfg.ClosingRole)
	assert.Equal(t, "Finance Controller", repo.config.ClosingRole)
}

func TestUpdateConfigValidatesRetainedEarnings(t *testing.T) {
	svc, _, _ := newAdminFixture(t)

	_, err := svc.UpdateConfig(context.Background(), sysManager(), Config{
		Company:                 "Acme",
		RetainedEarningsAccount: "Missing Account",
	})
	assert.Equal(t, CodeRetainedEarnings, domainCode(t, err))
}

func TestUpdateConfigRequiresManagerRole(t *testing.T) {
	svc, _, _ := newAdminFixture(t)

	_, err := svc.UpdateConfig(context.Background(), plainUser(), Config{Company: "Acme"})
	assert.Equal(t, CodeForbidden, domainCode(t, err))
}
