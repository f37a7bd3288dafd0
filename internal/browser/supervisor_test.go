package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/navigation"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/recovery"
)

// These tests exercise the supervisor's state machine without launching a
// real browser: contexts are fabricated and only the pure transitions are
// asserted. Anything that would spawn Chrome stays out of unit scope.

func testConfig() *config.Config {
	return &config.Config{
		Browser: config.BrowserConfig{
			Headless:         true,
			UserAgent:        testUA,
			PageLoadTimeout:  30 * time.Second,
			SelectorTimeout:  5 * time.Second,
			AnswerTimeout:    120 * time.Second,
			IdleTimeout:      5 * time.Minute,
			PageRecycleAfter: 50,
		},
	}
}

func fabricate(s *Supervisor) (allocCancel, pageCancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocCtx, s.allocCancel = context.WithCancel(context.Background())
	s.pageCtx, s.pageCancel = context.WithCancel(s.allocCtx)
	return s.allocCancel, s.pageCancel
}

func TestSnapshotFreshSupervisor(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")

	env := s.Snapshot()
	assert.False(t, env.HasBrowser)
	assert.False(t, env.IsBrowserConnected)
	assert.False(t, env.HasValidPage)
	assert.Zero(t, env.OperationCount)
	assert.False(t, s.Ready())
}

func TestSnapshotWithLiveHandles(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	fabricate(s)

	env := s.Snapshot()
	assert.True(t, env.HasBrowser)
	assert.True(t, env.IsBrowserConnected)
	assert.True(t, env.HasValidPage)
	assert.True(t, s.Ready())
}

func TestSnapshotAfterPageDeath(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	_, pageCancel := fabricate(s)
	pageCancel()

	env := s.Snapshot()
	assert.True(t, env.HasBrowser)
	assert.True(t, env.IsBrowserConnected)
	assert.False(t, env.HasValidPage)
	assert.False(t, s.Ready())
}

func TestSnapshotAfterBrowserDeath(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	allocCancel, _ := fabricate(s)
	allocCancel()

	env := s.Snapshot()
	assert.True(t, env.HasBrowser)
	assert.False(t, env.IsBrowserConnected)
	assert.False(t, env.HasValidPage)

	// A dead environment must route to a full restart.
	assert.Equal(t, recovery.LevelRestartBrowser, recovery.DetermineLevel("some failure", &env))
}

func TestInitializeNoOpWhileInProgress(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	s.mu.Lock()
	s.initializing = true
	s.mu.Unlock()

	// Must return immediately without touching any handles.
	require.NoError(t, s.Initialize(context.Background()))
	assert.Nil(t, s.allocCtx)
}

func TestInitializeRejectsDangerousExtras(t *testing.T) {
	cfg := testConfig()
	cfg.Browser.ExtraArgs = []string{"--disable-web-security"}
	s := NewSupervisor(zap.NewNop(), cfg, nil, "test-session")

	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDangerousArg)
}

func TestRecoverRetryIsNoOp(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	fabricate(s)
	before := s.pageCtx

	require.NoError(t, s.Recover(context.Background(), recovery.LevelRetry))
	assert.Equal(t, before, s.pageCtx)
}

func TestRecoverReplacePageSwapsOnlyThePage(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	fabricate(s)
	oldAlloc := s.allocCtx
	oldPage := s.pageCtx

	require.NoError(t, s.Recover(context.Background(), recovery.LevelReplacePage))

	assert.Equal(t, oldAlloc, s.allocCtx)
	assert.NotEqual(t, oldPage, s.pageCtx)
	// The replaced page context must be cancelled.
	assert.Error(t, oldPage.Err())
}

func TestRecoverReplacePageWithoutBrowser(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")

	err := s.Recover(context.Background(), recovery.LevelReplacePage)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRecoverUnknownLevel(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	assert.Error(t, s.Recover(context.Background(), recovery.Level(99)))
}

func TestTeardownReleasesEverything(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	fabricate(s)
	oldAlloc := s.allocCtx
	oldPage := s.pageCtx

	s.teardown()

	assert.Error(t, oldAlloc.Err())
	assert.Error(t, oldPage.Err())
	assert.Nil(t, s.allocCtx)
	assert.Nil(t, s.pageCtx)
	assert.False(t, s.Ready())
}

func TestCleanupWithoutBrowserIsSafe(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	s.Cleanup(context.Background())
	assert.False(t, s.Ready())
}

func TestPageContextErrorsWhenDead(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")

	_, err := s.pageContext()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, pageCancel := fabricate(s)
	_, err = s.pageContext()
	require.NoError(t, err)

	pageCancel()
	_, err = s.pageContext()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestOperationsFailFastWithoutPage(t *testing.T) {
	s := NewSupervisor(zap.NewNop(), testConfig(), nil, "test-session")
	ctx := context.Background()

	assert.ErrorIs(t, s.Navigate(ctx, "https://www.perplexity.ai"), ErrNotInitialized)
	assert.Equal(t, navigation.UnknownLocation, s.Location(ctx))
	assert.ErrorIs(t, s.WaitVisible(ctx, "textarea", time.Second), ErrNotInitialized)

	_, err := s.OuterHTML(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.HarvestCookies(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRecordSuccessCountsAndRearmsIdle(t *testing.T) {
	cfg := testConfig()
	cfg.Browser.PageRecycleAfter = 0 // no recycle in this test
	s := NewSupervisor(zap.NewNop(), cfg, nil, "test-session")

	s.RecordSuccess()
	s.RecordSuccess()
	assert.Equal(t, 2, s.OperationCount())
	assert.Equal(t, 2, s.Snapshot().OperationCount)

	s.mu.Lock()
	assert.NotNil(t, s.idleTimer)
	s.mu.Unlock()
	s.Cleanup(context.Background())
}

func TestRecordSuccessRecyclesPage(t *testing.T) {
	cfg := testConfig()
	cfg.Browser.PageRecycleAfter = 2
	cfg.Browser.IdleTimeout = 0
	s := NewSupervisor(zap.NewNop(), cfg, nil, "test-session")
	fabricate(s)
	firstPage := s.pageCtx

	s.RecordSuccess()
	assert.Equal(t, firstPage, s.pageCtx)

	s.RecordSuccess()
	assert.NotEqual(t, firstPage, s.pageCtx)
	assert.Error(t, firstPage.Err())
}
