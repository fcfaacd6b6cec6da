package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database/dbtest"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics/counter"
)

func newTestService(t *testing.T) (*Service, *repository.Repositories) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = client.Close()
	})
	repos := repository.NewRepositories(dbtest.Open(t))
	return NewService(repos.Attribution, repos.Profile), repos
}

func TestTrackDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		in     TouchInput
		source string
	}{
		{"utm source wins", TouchInput{Source: " Google ", Medium: "CPC", Referrer: "https://www.bing.com/search"}, "google"},
		{"referrer host", TouchInput{Referrer: "https://www.linkedin.com/feed/"}, "linkedin.com"},
		{"direct", TouchInput{}, SourceDirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			touch, err := svc.Track(ctx, "", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.source, touch.Source)
			assert.NotEmpty(t, touch.VisitorID)
			assert.Equal(t, models.TouchEventPageView, touch.Event)
		})
	}

	points, err := counter.Daily(ctx, counter.KindTouches, time.Now(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.Total(points))
}

func TestTrackKeepsVisitorAndValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	touch, err := svc.Track(ctx, "", TouchInput{VisitorID: "v-1", Event: models.TouchEventSignup})
	require.NoError(t, err)
	assert.Equal(t, "v-1", touch.VisitorID)
	assert.Equal(t, models.TouchEventSignup, touch.Event)

	_, err = svc.Track(ctx, "", TouchInput{Event: "purchase"})
	assert.Error(t, err)
}

func TestIdentifySetsFirstTouchOnce(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()

	_, err := svc.Track(ctx, "", TouchInput{VisitorID: "v-1", Source: "newsletter", Medium: "email", Campaign: "rentree"})
	require.NoError(t, err)
	_, err = svc.Track(ctx, "", TouchInput{VisitorID: "v-1", Source: "google"})
	require.NoError(t, err)

	linked, first, err := svc.Identify(ctx, "user-1", "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), linked)
	assert.True(t, first)

	p, err := repos.Profile.GetByUserID("user-1")
	require.NoError(t, err)
	assert.Equal(t, "newsletter", p.FirstTouchSource)
	assert.Equal(t, "email", p.FirstTouchMedium)
	assert.Equal(t, "rentree", p.FirstTouchCampaign)

	_, err = svc.Track(ctx, "", TouchInput{VisitorID: "v-2", Source: "twitter"})
	require.NoError(t, err)
	_, first, err = svc.Identify(ctx, "user-1", "v-2")
	require.NoError(t, err)
	assert.False(t, first)

	_, _, err = svc.Identify(ctx, "user-1", " ")
	assert.ErrorIs(t, err, ErrMissingVisitor)

	linked, first, err = svc.Identify(ctx, "user-2", "unknown-visitor")
	require.NoError(t, err)
	assert.Zero(t, linked)
	assert.False(t, first)
}

func TestRecordConversionFirstPaidOnly(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()

	_, err := svc.Track(ctx, "", TouchInput{VisitorID: "v-1", Source: "google", Medium: "cpc"})
	require.NoError(t, err)
	_, _, err = svc.Identify(ctx, "user-1", "v-1")
	require.NoError(t, err)

	require.NoError(t, svc.RecordConversion(ctx, "user-1", "pro", 990, "eur", "evt_1"))
	require.NoError(t, svc.RecordConversion(ctx, "user-1", "pro", 990, "eur", "evt_1"))
	require.NoError(t, svc.RecordConversion(ctx, "user-1", "premium", 1490, "eur", "evt_2"))
	require.NoError(t, svc.RecordConversion(ctx, "user-2", "pro", 990, "eur", "evt_3"))

	report, err := svc.Report(ctx, 7)
	require.NoError(t, err)
	require.Len(t, report.Conversions, 2)
	bySource := map[string]repository.SourceReport{}
	for _, r := range report.Conversions {
		bySource[r.Source] = r
	}
	assert.Equal(t, int64(1), bySource["google"].Conversions)
	assert.Equal(t, int64(990), bySource["google"].RevenueCents)
	assert.Equal(t, int64(1), bySource[SourceDirect].Conversions)
	require.Len(t, report.Visitors, 1)
	assert.Equal(t, int64(1), report.Visitors[0].Visitors)

	has, err := repos.Attribution.HasConversion("user-1")
	require.NoError(t, err)
	assert.True(t, has)

	assert.Error(t, svc.RecordConversion(ctx, "", "pro", 1, "eur", "evt_4"))
}
