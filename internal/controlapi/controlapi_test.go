package controlapi_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logging"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/supervisor"
)

func newTestAPI(t *testing.T) *controlapi.API {
	t.Helper()
	dir := t.TempDir()
	logs, err := logstore.New(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	cfg := config.Default(dir)
	cfg.SampleInterval = 20 * time.Millisecond
	cfg.TerminateGrace = 200 * time.Millisecond

	tbl := record.New()
	sup := supervisor.New(cfg, logging.Noop(), tbl, logs)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(func() {
		cancel()
		sup.Wait()
	})

	return controlapi.New(cfg, sup, tbl, logs)
}

func TestCreateThenListThenInfo(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()

	ids, err := api.Create(controlapi.CreateRequest{Script: "exit 0", Name: "one-shot", Path: dir})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	list := api.List()
	require.Len(t, list, 1)
	assert.Equal(t, "one-shot", list[0].Name)

	detail, err := api.Info("one-shot")
	require.NoError(t, err)
	assert.Equal(t, "exit 0", detail.Script)
}

func TestInfoOnMissingRefReturnsNotFound(t *testing.T) {
	api := newTestAPI(t)
	_, err := api.Info("nope")
	assert.ErrorIs(t, err, controlapi.ErrNotFound)
}

func TestCreateDuplicateNameReturnsNameTaken(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()

	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "svc", Path: dir})
	require.NoError(t, err)

	_, err = api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "svc", Path: dir})
	assert.ErrorIs(t, err, controlapi.ErrNameTaken)
}

func TestActionStartOnAlreadyRunningIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()

	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "svc", Path: dir})
	require.NoError(t, err)

	err = api.Action("svc", controlapi.ActionStart)
	assert.NoError(t, err)
}

func TestActionStopOnAlreadyStoppedIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()

	_, err := api.Create(controlapi.CreateRequest{Script: "exit 0", Name: "svc", Path: dir})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		d, _ := api.Info("svc")
		return d.Status == record.StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	err = api.Action("svc", controlapi.ActionStop)
	assert.NoError(t, err)
}

func TestActionOnUnknownRefReturnsNotFound(t *testing.T) {
	api := newTestAPI(t)
	err := api.Action("nope", controlapi.ActionStop)
	assert.ErrorIs(t, err, controlapi.ErrNotFound)
}

func TestAdjustRequiresAtLeastOneField(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()
	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "svc", Path: dir})
	require.NoError(t, err)

	err = api.Adjust("svc", controlapi.AdjustRequest{})
	assert.ErrorIs(t, err, controlapi.ErrInvalidArgs)
}

func TestRenameToTakenNameFails(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()
	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "a", Path: dir})
	require.NoError(t, err)
	_, err = api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "b", Path: dir})
	require.NoError(t, err)

	err = api.Rename("a", "b")
	assert.ErrorIs(t, err, controlapi.ErrNameTaken)
}

func TestResetFailsWhenTableNotEmpty(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()
	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "a", Path: dir})
	require.NoError(t, err)

	err = api.Reset()
	assert.True(t, errors.Is(err, controlapi.ErrInvalidTransition))
}

func TestCreateWithWorkersExpandsGroup(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()

	ids, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "api", Path: dir, Workers: 3, PortRange: "9000-9002"})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	list := api.List()
	require.Len(t, list, 3)
}

func TestDeleteRemovesRecord(t *testing.T) {
	api := newTestAPI(t)
	dir := t.TempDir()
	_, err := api.Create(controlapi.CreateRequest{Script: "sleep 30", Name: "svc", Path: dir})
	require.NoError(t, err)

	err = api.Action("svc", controlapi.ActionDelete)
	require.NoError(t, err)

	_, err = api.Info("svc")
	assert.ErrorIs(t, err, controlapi.ErrNotFound)
}

func TestDeleteOnMissingRefIsIdempotentSuccess(t *testing.T) {
	api := newTestAPI(t)

	err := api.Action("no-such-ref", controlapi.ActionDelete)
	assert.NoError(t, err)
}

func TestActionOnMissingRefReturnsNotFound(t *testing.T) {
	api := newTestAPI(t)

	err := api.Action("no-such-ref", controlapi.ActionStop)
	assert.ErrorIs(t, err, controlapi.ErrNotFound)
}
